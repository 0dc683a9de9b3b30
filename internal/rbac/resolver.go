package rbac

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
)

const (
	kindRole       = "role"
	kindPermission = "permission"
)

// Observer receives fallback notifications, typically for metrics.
type Observer interface {
	ObserveFallback(kind string, granted bool)
}

// ResolverConfig collects Resolver dependencies.
type ResolverConfig struct {
	Store Store
	// SuperAdminBootstrapIdentity is the email treated as super-admin while
	// the store cannot be consulted, and exempt from the role-presence check.
	SuperAdminBootstrapIdentity string
	Logger                      *slog.Logger
	Observer                    Observer
}

// Resolver answers role and permission questions for a principal. Every
// method is total: store failures are converted into fail-closed decisions
// that only grant the bootstrap identity.
type Resolver struct {
	store     Store
	bootstrap string
	logger    *slog.Logger
	observer  Observer
}

// NewResolver constructs a Resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{
		store:     cfg.Store,
		bootstrap: strings.ToLower(strings.TrimSpace(cfg.SuperAdminBootstrapIdentity)),
		logger:    logger,
		observer:  cfg.Observer,
	}
}

// IsBootstrapIdentity reports whether p carries the configured bootstrap email.
func (r *Resolver) IsBootstrapIdentity(p Principal) bool {
	if r.bootstrap == "" {
		return false
	}
	return strings.ToLower(strings.TrimSpace(p.Email)) == r.bootstrap
}

// HasRole checks direct role membership. Holders of SuperAdminRole satisfy
// every role.
func (r *Resolver) HasRole(ctx context.Context, p Principal, role string) Decision {
	role = NormalizeName(role)
	if !p.Active {
		return deny(ReasonInactive)
	}
	roles, err := r.roles(ctx, p)
	if err != nil {
		return r.fallback(p, kindRole, role, err)
	}
	if containsName(roles, SuperAdminRole) {
		return grant(ReasonSuperAdmin)
	}
	if role != "" && containsName(roles, role) {
		return grant(ReasonGranted)
	}
	return deny(ReasonNotGranted)
}

// HasPermission checks a permission through the principal's roles, with the
// super-admin role as a universal bypass.
func (r *Resolver) HasPermission(ctx context.Context, p Principal, permission string) Decision {
	permission = NormalizeName(permission)
	if !p.Active {
		return deny(ReasonInactive)
	}
	super := r.HasRole(ctx, p, SuperAdminRole)
	if super.Granted || super.FallbackUsed {
		return super
	}
	roles, err := r.roles(ctx, p)
	if err != nil {
		return r.fallback(p, kindPermission, permission, err)
	}
	perms, err := r.permissions(ctx, roles)
	if err != nil {
		return r.fallback(p, kindPermission, permission, err)
	}
	if permission != "" && containsName(perms, permission) {
		return grant(ReasonGranted)
	}
	return deny(ReasonNotGranted)
}

// RolePresence reports whether p has at least one role. The bootstrap
// identity always passes.
func (r *Resolver) RolePresence(ctx context.Context, p Principal) Decision {
	if !p.Active {
		return deny(ReasonInactive)
	}
	if r.IsBootstrapIdentity(p) {
		return grant(ReasonBootstrapIdentity)
	}
	roles, err := r.roles(ctx, p)
	if err != nil {
		return r.fallback(p, kindRole, "", err)
	}
	if len(roles) == 0 {
		return deny(ReasonNoRoles)
	}
	return grant(ReasonGranted)
}

// ListRoles returns the sorted role names of p. Failures yield an empty list.
func (r *Resolver) ListRoles(ctx context.Context, p Principal) []string {
	roles, err := r.roles(ctx, p)
	if err != nil {
		r.logger.Error("list roles failed",
			slog.Int64("principal_id", p.ID),
			slog.Any("error", err))
		return []string{}
	}
	out := cloneNames(roles)
	sort.Strings(out)
	return out
}

func (r *Resolver) roles(ctx context.Context, p Principal) ([]string, error) {
	m := memoFrom(ctx)
	if roles, ok := m.getRoles(p.ID); ok {
		return roles, nil
	}
	if r.store == nil {
		return nil, ErrStoreUnavailable
	}
	roles, err := r.store.FindRolesForPrincipal(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	roles = normalizeNames(roles)
	m.putRoles(p.ID, roles)
	return roles, nil
}

func (r *Resolver) permissions(ctx context.Context, roles []string) ([]string, error) {
	if len(roles) == 0 {
		return []string{}, nil
	}
	key := rolesKey(roles)
	m := memoFrom(ctx)
	if perms, ok := m.getPerms(key); ok {
		return perms, nil
	}
	if r.store == nil {
		return nil, ErrStoreUnavailable
	}
	perms, err := r.store.FindPermissionsForRoles(ctx, roles)
	if err != nil {
		return nil, err
	}
	perms = normalizeNames(perms)
	m.putPerms(key, perms)
	return perms, nil
}

// fallback is the single degraded-mode policy: grant the bootstrap identity,
// deny everyone else.
func (r *Resolver) fallback(p Principal, kind, capability string, cause error) Decision {
	d := Decision{Reason: ReasonStoreUnavailable, FallbackUsed: true}
	if r.IsBootstrapIdentity(p) {
		d = Decision{Granted: true, Reason: ReasonBootstrapIdentity, FallbackUsed: true}
	}
	r.logger.Warn("authorization fallback",
		slog.String("event", "fallback_used"),
		slog.Int64("principal_id", p.ID),
		slog.String("email", p.Email),
		slog.String("kind", kind),
		slog.String("capability", capability),
		slog.Bool("granted", d.Granted),
		slog.Any("error", cause))
	if r.observer != nil {
		r.observer.ObserveFallback(kind, d.Granted)
	}
	return d
}
