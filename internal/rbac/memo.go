package rbac

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type memoKey struct{}

// memo caches successful lookups for the lifetime of one request.
type memo struct {
	mu    sync.Mutex
	roles map[int64][]string
	perms map[string][]string
}

// WithMemo installs a request-scoped lookup cache on ctx. Calling it on a
// context that already carries one is a no-op.
func WithMemo(ctx context.Context) context.Context {
	if memoFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, memoKey{}, &memo{
		roles: make(map[int64][]string),
		perms: make(map[string][]string),
	})
}

func memoFrom(ctx context.Context) *memo {
	m, _ := ctx.Value(memoKey{}).(*memo)
	return m
}

func (m *memo) getRoles(id int64) ([]string, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.roles[id]
	return v, ok
}

func (m *memo) putRoles(id int64, roles []string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.roles[id] = roles
	m.mu.Unlock()
}

func (m *memo) getPerms(key string) ([]string, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.perms[key]
	return v, ok
}

func (m *memo) putPerms(key string, perms []string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.perms[key] = perms
	m.mu.Unlock()
}

func rolesKey(roles []string) string {
	sorted := cloneNames(roles)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
