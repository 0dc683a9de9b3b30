package shared

// Parish administration permissions.
const (
	PermMembersView   = "members.view"
	PermMembersManage = "members.manage"

	PermFamiliesManage   = "families.manage"
	PermSacramentsManage = "sacraments.manage"

	PermOfferingsRecord    = "offerings.record"
	PermFinanceReportsView = "finance.reports.view"

	PermActivitiesManage = "activities.manage"
	PermGroupsManage     = "groups.manage"

	PermReportsView = "reports.view"
)

// ParishScopes lists the permissions guarding parish administration screens.
func ParishScopes() []string {
	return []string{
		PermMembersView,
		PermMembersManage,
		PermFamiliesManage,
		PermSacramentsManage,
		PermOfferingsRecord,
		PermFinanceReportsView,
		PermActivitiesManage,
		PermGroupsManage,
		PermReportsView,
	}
}

// AllScopes returns every permission known to the application.
func AllScopes() []string {
	return append(CoreScopes(), ParishScopes()...)
}
