package rbac

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nameRows struct {
	names []string
	pos   int
}

func (r *nameRows) Close()                                       {}
func (r *nameRows) Err() error                                   { return nil }
func (r *nameRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *nameRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *nameRows) RawValues() [][]byte                          { return nil }
func (r *nameRows) Conn() *pgx.Conn                              { return nil }
func (r *nameRows) Values() ([]any, error)                       { return []any{r.names[r.pos-1]}, nil }

func (r *nameRows) Next() bool {
	if r.pos >= len(r.names) {
		return false
	}
	r.pos++
	return true
}

func (r *nameRows) Scan(dest ...any) error {
	*(dest[0].(*string)) = r.names[r.pos-1]
	return nil
}

type fakeQuerier struct {
	names []string
	err   error
	calls atomic.Int32
	args  []any
}

func (q *fakeQuerier) Query(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
	q.calls.Add(1)
	q.args = args
	if q.err != nil {
		return nil, q.err
	}
	return &nameRows{names: q.names}, nil
}

func TestPGStoreNormalizesRoleNames(t *testing.T) {
	q := &fakeQuerier{names: []string{"Treasurer", "secretary ", "treasurer"}}
	roles, err := NewPGStore(q).FindRolesForPrincipal(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, []string{"treasurer", "secretary"}, roles)
	assert.Equal(t, []any{int64(9)}, q.args)
}

func TestPGStorePermissionsSkipQueryForNoRoles(t *testing.T) {
	q := &fakeQuerier{}
	perms, err := NewPGStore(q).FindPermissionsForRoles(context.Background(), []string{" "})
	require.NoError(t, err)
	assert.Empty(t, perms)
	assert.Zero(t, q.calls.Load())
}

func TestPGStorePassesSortedRoles(t *testing.T) {
	q := &fakeQuerier{names: []string{"members.view"}}
	perms, err := NewPGStore(q).FindPermissionsForRoles(context.Background(), []string{"Treasurer", "admin"})
	require.NoError(t, err)
	assert.Equal(t, []string{"members.view"}, perms)
	assert.Equal(t, []any{[]string{"admin", "treasurer"}}, q.args)
}

func TestPGStoreWrapsQueryErrors(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := NewPGStore(&fakeQuerier{err: boom}).FindRolesForPrincipal(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
}

func TestPGStoreReturnsCopies(t *testing.T) {
	store := NewPGStore(&fakeQuerier{names: []string{"admin"}})
	first, err := store.FindRolesForPrincipal(context.Background(), 1)
	require.NoError(t, err)
	first[0] = "mutated"
	second, err := store.FindRolesForPrincipal(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, second)
}
