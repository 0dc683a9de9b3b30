package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/parokia/parokia/internal/platform/httpx"
	"github.com/parokia/parokia/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, limit, offset int) ([]User, int, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// AuditPort records administrative changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user business logic.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// ListUsers returns one page of users.
func (s *Service) ListUsers(ctx context.Context, page, perPage int) (Page, error) {
	p := shared.NewPagination(page, perPage, 0)
	users, total, err := s.repo.ListUsers(ctx, p.PerPage, p.Offset())
	if err != nil {
		return Page{}, err
	}
	if users == nil {
		users = []User{}
	}
	return Page{Users: users, Pagination: shared.NewPagination(p.Page, p.PerPage, total)}, nil
}

// SetActive activates or deactivates an account. Deactivated users are logged
// out by the gate chain on their next request. Actors cannot deactivate
// themselves.
func (s *Service) SetActive(ctx context.Context, actorID, userID int64, active bool) error {
	if !active && actorID == userID {
		return fmt.Errorf("cannot deactivate your own account: %w", httpx.ErrValidation)
	}
	if err := s.repo.SetActive(ctx, userID, active); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("user %d: %w", userID, httpx.ErrNotFound)
		}
		return err
	}
	action := "users.deactivate"
	if active {
		action = "users.activate"
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   action,
			Entity:   "user",
			EntityID: strconv.FormatInt(userID, 10),
		})
	}
	return nil
}
