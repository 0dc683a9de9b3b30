package roles

import "github.com/parokia/parokia/internal/rbac"

// Role is the management view of a role, including its permission names.
type Role struct {
	rbac.Role
	Permissions []string `json:"permissions"`
}

// CreateRoleInput is the payload for creating a role.
type CreateRoleInput struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=255"`
}

// SetPermissionsInput replaces the permission set of a role.
type SetPermissionsInput struct {
	Permissions []string `json:"permissions" validate:"dive,required,max=128"`
}
