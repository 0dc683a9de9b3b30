package gate

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/parokia/parokia/internal/rbac"
	"github.com/parokia/parokia/internal/shared"
)

// Gate names, in chain order.
const (
	NameAuthenticated    = "authenticated"
	NameSessionIntegrity = "session_integrity"
	NameAccountActive    = "account_active"
	NameRolePresence     = "role_presence"
	NameCapability       = "capability"
)

// PrincipalSource loads the account behind a session. Unknown ids must yield
// an error matching shared.ErrNotFound.
type PrincipalSource interface {
	FindPrincipal(ctx context.Context, id int64) (rbac.Principal, error)
}

type authenticatedGate struct {
	principals PrincipalSource
}

// Authenticated requires a session bound to an existing account and loads the
// principal into the request.
func Authenticated(principals PrincipalSource) Gate {
	return authenticatedGate{principals: principals}
}

func (authenticatedGate) Name() string { return NameAuthenticated }

func (g authenticatedGate) Evaluate(req *Request) Decision {
	if req.Session == nil {
		return Halt(NameAuthenticated, StateUnauthenticated, "no_session")
	}
	raw := strings.TrimSpace(req.Session.User())
	if raw == "" {
		return Halt(NameAuthenticated, StateUnauthenticated, "anonymous")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return Halt(NameAuthenticated, StateUnauthenticated, "malformed_user_id")
	}
	principal, err := g.principals.FindPrincipal(req.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Halt(NameAuthenticated, StateUnauthenticated, "unknown_principal")
		}
		d := Halt(NameAuthenticated, StateUnauthenticated, "principal_lookup_failed")
		d.Err = err
		return d
	}
	req.Principal = &principal
	return Pass(NameAuthenticated)
}

type integrityGate struct {
	monitor *Monitor
}

// SessionIntegrity runs the Monitor checks and forces logout on violation.
func SessionIntegrity(monitor *Monitor) Gate {
	return integrityGate{monitor: monitor}
}

func (integrityGate) Name() string { return NameSessionIntegrity }

func (g integrityGate) Evaluate(req *Request) Decision {
	clientIP := shared.ClientIP(req.HTTP)
	v := g.monitor.Inspect(req.Session, clientIP)
	if v == nil {
		return Pass(NameSessionIntegrity)
	}
	err := g.monitor.ForceLogout(req.Context(), req.Session,
		slog.String("check", v.Check),
		slog.String("issued_ip", v.IssuedIP),
		slog.String("current_ip", v.CurrentIP),
		slog.Duration("age", v.Age),
		slog.String("route", req.Route))
	req.Principal = nil
	d := Halt(NameSessionIntegrity, StateSessionInvalid, v.Check)
	d.Err = err
	return d
}

type activeGate struct {
	monitor *Monitor
}

// AccountActive rejects deactivated accounts and ends their session.
func AccountActive(monitor *Monitor) Gate {
	return activeGate{monitor: monitor}
}

func (activeGate) Name() string { return NameAccountActive }

func (g activeGate) Evaluate(req *Request) Decision {
	if req.Principal == nil {
		return Halt(NameAccountActive, StateUnauthenticated, "no_principal")
	}
	if req.Principal.Active {
		return Pass(NameAccountActive)
	}
	err := g.monitor.ForceLogout(req.Context(), req.Session,
		slog.String("check", "account_inactive"),
		slog.Int64("principal_id", req.Principal.ID),
		slog.String("route", req.Route))
	d := Halt(NameAccountActive, StateInactive, string(rbac.ReasonInactive))
	d.Err = err
	return d
}

type rolePresenceGate struct {
	resolver *rbac.Resolver
}

// RolePresence requires at least one assigned role.
func RolePresence(resolver *rbac.Resolver) Gate {
	return rolePresenceGate{resolver: resolver}
}

func (rolePresenceGate) Name() string { return NameRolePresence }

func (g rolePresenceGate) Evaluate(req *Request) Decision {
	if req.Principal == nil {
		return Halt(NameRolePresence, StateUnauthenticated, "no_principal")
	}
	res := g.resolver.RolePresence(req.Context(), *req.Principal)
	if res.Granted {
		d := Pass(NameRolePresence)
		d.Reason = string(res.Reason)
		d.FallbackUsed = res.FallbackUsed
		return d
	}
	state := StateNoRole
	if res.Reason != rbac.ReasonNoRoles {
		state = StateUnauthorized
	}
	d := Halt(NameRolePresence, state, string(res.Reason))
	d.FallbackUsed = res.FallbackUsed
	return d
}

type capabilityGate struct {
	resolver *rbac.Resolver
}

// CapabilityCheck enforces the route capability carried by the request.
func CapabilityCheck(resolver *rbac.Resolver) Gate {
	return capabilityGate{resolver: resolver}
}

func (capabilityGate) Name() string { return NameCapability }

func (g capabilityGate) Evaluate(req *Request) Decision {
	if req.Principal == nil {
		return Halt(NameCapability, StateUnauthenticated, "no_principal")
	}
	if req.Capability.IsZero() {
		return Pass(NameCapability)
	}
	var res rbac.Decision
	switch req.Capability.Kind {
	case KindRole:
		res = g.resolver.HasRole(req.Context(), *req.Principal, req.Capability.Name)
	default:
		res = g.resolver.HasPermission(req.Context(), *req.Principal, req.Capability.Name)
	}
	if res.Granted {
		d := Pass(NameCapability)
		d.Reason = string(res.Reason)
		d.FallbackUsed = res.FallbackUsed
		return d
	}
	d := Halt(NameCapability, StateUnauthorized, string(res.Reason))
	d.FallbackUsed = res.FallbackUsed
	return d
}
