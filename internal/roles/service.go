package roles

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/parokia/parokia/internal/platform/httpx"
	"github.com/parokia/parokia/internal/rbac"
	"github.com/parokia/parokia/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	ListPermissions(ctx context.Context) ([]rbac.Permission, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	SetRolePermissions(ctx context.Context, roleID int64, names []string) error
	AssignRole(ctx context.Context, userID, roleID int64) error
	RemoveRole(ctx context.Context, userID, roleID int64) error
}

// AuditPort records administrative changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles role business logic.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	validate *validator.Validate
}

// NewService builds Service instance. audit may be nil.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, validate: validator.New()}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// ListPermissions returns the permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// CreateRole validates and stores a new role. Names are stored normalized.
func (s *Service) CreateRole(ctx context.Context, actorID int64, in CreateRoleInput) (Role, error) {
	in.Name = rbac.NormalizeName(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := s.validate.Struct(in); err != nil {
		return Role{}, fmt.Errorf("%s: %w", err.Error(), httpx.ErrValidation)
	}
	role, err := s.repo.CreateRole(ctx, in.Name, in.Description)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "roles.create", "role", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// SetPermissions replaces the permissions of a role.
func (s *Service) SetPermissions(ctx context.Context, actorID, roleID int64, in SetPermissionsInput) error {
	if roleID <= 0 {
		return fmt.Errorf("role id: %w", httpx.ErrValidation)
	}
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), httpx.ErrValidation)
	}
	names := normalize(in.Permissions)
	if err := s.repo.SetRolePermissions(ctx, roleID, names); err != nil {
		return err
	}
	s.record(ctx, actorID, "roles.set_permissions", "role", roleID, map[string]any{"permissions": names})
	return nil
}

// AssignRole grants a role to a user.
func (s *Service) AssignRole(ctx context.Context, actorID, userID, roleID int64) error {
	if userID <= 0 || roleID <= 0 {
		return fmt.Errorf("user and role ids: %w", httpx.ErrValidation)
	}
	if err := s.repo.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.record(ctx, actorID, "roles.assign", "user", userID, map[string]any{"role_id": roleID})
	return nil
}

// RemoveRole revokes a role from a user.
func (s *Service) RemoveRole(ctx context.Context, actorID, userID, roleID int64) error {
	if userID <= 0 || roleID <= 0 {
		return fmt.Errorf("user and role ids: %w", httpx.ErrValidation)
	}
	if err := s.repo.RemoveRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.record(ctx, actorID, "roles.remove", "user", userID, map[string]any{"role_id": roleID})
	return nil
}

// record is best-effort; the change has already been committed.
func (s *Service) record(ctx context.Context, actorID int64, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}

func normalize(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = rbac.NormalizeName(n)
		if _, ok := seen[n]; ok || n == "" {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
