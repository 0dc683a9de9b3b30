package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/singleflight"
)

// ErrStoreUnavailable marks failures of the role-permission store. The
// Resolver converts these into fallback decisions.
var ErrStoreUnavailable = errors.New("rbac: role-permission store unavailable")

// Store exposes role and permission lookups.
type Store interface {
	FindRolesForPrincipal(ctx context.Context, principalID int64) ([]string, error)
	FindPermissionsForRoles(ctx context.Context, roles []string) ([]string, error)
}

// Querier is the subset of pgxpool.Pool used by PGStore.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGStore reads role assignments from PostgreSQL. Concurrent lookups for the
// same key share one query.
type PGStore struct {
	db    Querier
	group singleflight.Group
}

// NewPGStore constructs a PGStore.
func NewPGStore(db Querier) *PGStore {
	return &PGStore{db: db}
}

const rolesForUserSQL = `SELECT r.name
FROM user_roles ur
JOIN roles r ON r.id = ur.role_id
WHERE ur.user_id = $1
ORDER BY r.name`

const permissionsForRolesSQL = `SELECT DISTINCT p.name
FROM roles r
JOIN role_permissions rp ON rp.role_id = r.id
JOIN permissions p ON p.id = rp.permission_id
WHERE lower(r.name) = ANY($1)
ORDER BY p.name`

// FindRolesForPrincipal returns the role names assigned to a user.
func (s *PGStore) FindRolesForPrincipal(ctx context.Context, principalID int64) ([]string, error) {
	key := "roles:" + strconv.FormatInt(principalID, 10)
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.names(ctx, rolesForUserSQL, principalID)
	})
	if err != nil {
		return nil, fmt.Errorf("rbac: find roles for %d: %w", principalID, err)
	}
	return cloneNames(v.([]string)), nil
}

// FindPermissionsForRoles returns the union of permissions granted to roles.
func (s *PGStore) FindPermissionsForRoles(ctx context.Context, roles []string) ([]string, error) {
	roles = normalizeNames(roles)
	if len(roles) == 0 {
		return []string{}, nil
	}
	sort.Strings(roles)
	key := "perms:" + strings.Join(roles, ",")
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.names(ctx, permissionsForRolesSQL, roles)
	})
	if err != nil {
		return nil, fmt.Errorf("rbac: find permissions: %w", err)
	}
	return cloneNames(v.([]string)), nil
}

func (s *PGStore) names(ctx context.Context, sql string, arg any) ([]string, error) {
	rows, err := s.db.Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return normalizeNames(names), nil
}

func cloneNames(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

var _ Store = (*PGStore)(nil)
