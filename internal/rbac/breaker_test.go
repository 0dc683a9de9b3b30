package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerStoreWrapsFailures(t *testing.T) {
	inner := newFakeStore()
	inner.err = errors.New("connection reset")
	store := NewBreakerStore(inner, BreakerConfig{FailureThreshold: 2, Timeout: time.Minute})

	_, err := store.FindRolesForPrincipal(context.Background(), 1)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	_, err = store.FindPermissionsForRoles(context.Background(), []string{"admin"})
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, "open", store.State())

	// Open breaker short-circuits without reaching the inner store.
	calls := inner.roleCalls
	_, err = store.FindRolesForPrincipal(context.Background(), 1)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, calls, inner.roleCalls)
}

func TestBreakerStorePassesResults(t *testing.T) {
	inner := newFakeStore()
	inner.roles[1] = []string{"treasurer"}
	store := NewBreakerStore(inner, BreakerConfig{})

	roles, err := store.FindRolesForPrincipal(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"treasurer"}, roles)
	assert.Equal(t, "closed", store.State())
}

func TestResolverOverOpenBreakerUsesFallback(t *testing.T) {
	inner := newFakeStore()
	inner.err = errors.New("down")
	store := NewBreakerStore(inner, BreakerConfig{FailureThreshold: 1, Timeout: time.Minute})
	resolver := newTestResolver(store, nil)

	d := resolver.HasPermission(context.Background(), Principal{ID: 1, Email: bootstrapEmail, Active: true}, "members.manage")
	assert.True(t, d.Granted)
	assert.True(t, d.FallbackUsed)

	d = resolver.HasPermission(context.Background(), Principal{ID: 2, Email: "umat@parokia.local", Active: true}, "members.manage")
	assert.False(t, d.Granted)
	assert.Equal(t, ReasonStoreUnavailable, d.Reason)
}
