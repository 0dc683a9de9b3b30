package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/parokia/parokia/internal/platform/db"
	"github.com/parokia/parokia/internal/platform/httpx"
	"github.com/parokia/parokia/internal/rbac"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// DB is the subset of pgxpool.Pool used by Repository.
type DB interface {
	db.TxBeginner
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db DB
}

// NewRepository constructs a repository.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// ListRoles returns all roles with their permission names.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.db.Query(ctx, `SELECT r.id, r.name, r.description, r.created_at, r.updated_at,
		COALESCE(array_agg(p.name ORDER BY p.name) FILTER (WHERE p.name IS NOT NULL), '{}')
	FROM roles r
	LEFT JOIN role_permissions rp ON rp.role_id = r.id
	LEFT JOIN permissions p ON p.id = rp.permission_id
	GROUP BY r.id
	ORDER BY r.name`)
	if err != nil {
		return nil, fmt.Errorf("roles: list: %w", err)
	}
	roles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Role, error) {
		var role Role
		err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt, &role.Permissions)
		return role, err
	})
	if err != nil {
		return nil, fmt.Errorf("roles: list: %w", err)
	}
	return roles, nil
}

// ListPermissions returns the permission catalog.
func (r *Repository) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("roles: list permissions: %w", err)
	}
	perms, err := pgx.CollectRows(rows, pgx.RowToStructByPos[rbac.Permission])
	if err != nil {
		return nil, fmt.Errorf("roles: list permissions: %w", err)
	}
	return perms, nil
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	var role Role
	err := r.db.QueryRow(ctx, `INSERT INTO roles (name, description) VALUES ($1, $2)
		RETURNING id, name, description, created_at, updated_at`, name, description).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return Role{}, fmt.Errorf("role %q: %w", name, httpx.ErrDuplicate)
		}
		return Role{}, fmt.Errorf("roles: create: %w", err)
	}
	role.Permissions = []string{}
	return role, nil
}

// SetRolePermissions replaces the permissions of a role. Unknown permission
// names abort the change.
func (r *Repository) SetRolePermissions(ctx context.Context, roleID int64, names []string) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx, `SELECT id FROM roles WHERE id = $1 FOR UPDATE`, roleID).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("role %d: %w", roleID, httpx.ErrNotFound)
			}
			return fmt.Errorf("roles: lock role: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return fmt.Errorf("roles: clear permissions: %w", err)
		}
		if len(names) == 0 {
			return nil
		}
		tag, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id)
			SELECT $1, id FROM permissions WHERE name = ANY($2)`, roleID, names)
		if err != nil {
			return fmt.Errorf("roles: attach permissions: %w", err)
		}
		if tag.RowsAffected() != int64(len(names)) {
			return fmt.Errorf("unknown permission in %v: %w", names, httpx.ErrValidation)
		}
		return nil
	})
}

// AssignRole grants a role to a user. Assigning an existing pair is a no-op.
func (r *Repository) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.db.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, roleID)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return fmt.Errorf("user %d or role %d: %w", userID, roleID, httpx.ErrNotFound)
		}
		return fmt.Errorf("roles: assign: %w", err)
	}
	return nil
}

// RemoveRole revokes a role from a user.
func (r *Repository) RemoveRole(ctx context.Context, userID, roleID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return fmt.Errorf("roles: remove: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d has no role %d: %w", userID, roleID, httpx.ErrNotFound)
	}
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
