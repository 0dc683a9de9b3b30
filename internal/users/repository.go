package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/parokia/parokia/internal/rbac"
	"github.com/parokia/parokia/internal/shared"
)

// DB is the subset of pgxpool.Pool used by Repository.
type DB interface {
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

const userColumns = `id, email, name, is_active, last_login_at, created_at, updated_at`

// ListUsers returns one page of users ordered by id together with the total count.
func (r *Repository) ListUsers(ctx context.Context, limit, offset int) ([]User, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("users: count: %w", err)
	}
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", err)
	}
	users, err := pgx.CollectRows(rows, pgx.RowToStructByPos[User])
	if err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", err)
	}
	return users, total, nil
}

// FindByID loads a single user.
func (r *Repository) FindByID(ctx context.Context, id int64) (User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return User{}, fmt.Errorf("users: find: %w", err)
	}
	user, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[User])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, fmt.Errorf("users: find: %w", err)
	}
	return user, nil
}

// FindPrincipal loads the authorization view of a user.
func (r *Repository) FindPrincipal(ctx context.Context, id int64) (rbac.Principal, error) {
	user, err := r.FindByID(ctx, id)
	if err != nil {
		return rbac.Principal{}, err
	}
	return user.Principal(), nil
}

// TouchLastLogin records the time of the latest authorized request.
func (r *Repository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	if _, err := r.db.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at.UTC()); err != nil {
		return fmt.Errorf("users: touch last login: %w", err)
	}
	return nil
}

// SetActive flips the active flag of a user.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("users: set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
