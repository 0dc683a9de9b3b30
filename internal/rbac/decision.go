package rbac

// Reason explains an authorization outcome.
type Reason string

const (
	ReasonGranted           Reason = "granted"
	ReasonSuperAdmin        Reason = "super_admin"
	ReasonBootstrapIdentity Reason = "bootstrap_identity"
	ReasonNotGranted        Reason = "not_granted"
	ReasonNoRoles           Reason = "no_roles"
	ReasonInactive          Reason = "inactive"
	ReasonStoreUnavailable  Reason = "store_unavailable"
)

// Decision is the outcome of a single capability check. It is computed per
// request and never persisted.
type Decision struct {
	Granted      bool
	Reason       Reason
	FallbackUsed bool
}

func grant(reason Reason) Decision {
	return Decision{Granted: true, Reason: reason}
}

func deny(reason Reason) Decision {
	return Decision{Reason: reason}
}
