package users

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parokia/parokia/internal/gate"
	"github.com/parokia/parokia/internal/rbac"
	"github.com/parokia/parokia/internal/shared"
)

type memRepo struct {
	users      []User
	lastLimit  int
	lastOffset int
}

func (m *memRepo) ListUsers(_ context.Context, limit, offset int) ([]User, int, error) {
	m.lastLimit, m.lastOffset = limit, offset
	if offset >= len(m.users) {
		return nil, len(m.users), nil
	}
	end := offset + limit
	if end > len(m.users) {
		end = len(m.users)
	}
	return m.users[offset:end], len(m.users), nil
}

func (m *memRepo) SetActive(_ context.Context, id int64, active bool) error {
	for i := range m.users {
		if m.users[i].ID == id {
			m.users[i].IsActive = active
			return nil
		}
	}
	return shared.ErrNotFound
}

type allowAs struct{ actor int64 }

func (a allowAs) RequirePermission(string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := gate.ContextWithPrincipal(r.Context(), rbac.Principal{ID: a.actor, Active: true})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newRouter(repo *memRepo) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(repo, nil), allowAs{actor: 1})
	r := chi.NewRouter()
	r.Route("/users", h.MountRoutes)
	return r
}

func seedUsers(n int) []User {
	out := make([]User, n)
	for i := range out {
		out[i] = User{ID: int64(i + 1), Email: "u@parokia.local", IsActive: true, CreatedAt: time.Now()}
	}
	return out
}

func TestListUsersPaginates(t *testing.T) {
	repo := &memRepo{users: seedUsers(25)}
	router := newRouter(repo)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/users/?page=2&per_page=10", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var page Page
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Len(t, page.Users, 10)
	assert.Equal(t, int64(11), page.Users[0].ID)
	assert.Equal(t, 25, page.Pagination.Total)
	assert.Equal(t, 3, page.Pagination.TotalPages)
	assert.Equal(t, 10, repo.lastOffset)
}

func TestListUsersEmptyPageIsArray(t *testing.T) {
	router := newRouter(&memRepo{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/users/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"users":[]`)
}

func TestActivateAndDeactivate(t *testing.T) {
	repo := &memRepo{users: seedUsers(3)}
	router := newRouter(repo)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/users/2/deactivate", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.False(t, repo.users[1].IsActive)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/users/2/activate", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.True(t, repo.users[1].IsActive)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/users/1/deactivate", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/users/99/activate", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUserPrincipal(t *testing.T) {
	seen := time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)
	p := User{ID: 4, Email: "a@b.c", Name: "Ana", IsActive: true, LastLoginAt: &seen}.Principal()
	assert.Equal(t, rbac.Principal{ID: 4, Email: "a@b.c", Name: "Ana", Active: true, LastLoginAt: seen}, p)
}
