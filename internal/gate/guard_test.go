package gate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parokia/parokia/internal/platform/httpx"
	"github.com/parokia/parokia/internal/rbac"
	"github.com/parokia/parokia/internal/shared"
)

const (
	bootstrapEmail = "pastor@parokia.local"
	clientAddr     = "192.0.2.1:4100"
	clientIP       = "192.0.2.1"
)

type principalTable struct {
	mu   sync.Mutex
	rows map[int64]rbac.Principal
	err  error
}

func (p *principalTable) FindPrincipal(ctx context.Context, id int64) (rbac.Principal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return rbac.Principal{}, p.err
	}
	row, ok := p.rows[id]
	if !ok {
		return rbac.Principal{}, shared.ErrNotFound
	}
	return row, nil
}

type roleTable struct {
	mu    sync.Mutex
	roles map[int64][]string
	perms map[string][]string
	err   error
}

func (s *roleTable) FindRolesForPrincipal(ctx context.Context, id int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.roles[id], nil
}

func (s *roleTable) FindPermissionsForRoles(ctx context.Context, roles []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []string
	for _, r := range roles {
		out = append(out, s.perms[r]...)
	}
	return out, nil
}

type touchRecorder struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (t *touchRecorder) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ids = append(t.ids, id)
	return t.err
}

type auditRecorder struct {
	mu      sync.Mutex
	entries []shared.AuditLog
}

func (a *auditRecorder) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, log)
	return nil
}

type decisionCounter struct {
	mu     sync.Mutex
	states map[string]int
}

func (d *decisionCounter) ObserveDecision(gate, state string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.states == nil {
		d.states = map[string]int{}
	}
	d.states[gate+"/"+state]++
}

type harness struct {
	t          *testing.T
	sessions   *shared.SessionManager
	csrf       *shared.CSRFManager
	principals *principalTable
	store      *roleTable
	monitor    *Monitor
	touches    *touchRecorder
	audit      *auditRecorder
	observer   *decisionCounter
	now        time.Time
	router     http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := &harness{
		t:        t,
		sessions: shared.NewSessionManager(client, "parokia_session", "secret", time.Hour, false),
		csrf:     shared.NewCSRFManager("csrf-secret"),
		principals: &principalTable{rows: map[int64]rbac.Principal{
			1: {ID: 1, Email: "bendahara@parokia.local", Active: true},
			2: {ID: 2, Email: "sekretariat@parokia.local", Active: true},
			3: {ID: 3, Email: "former@parokia.local", Active: false},
			4: {ID: 4, Email: "newcomer@parokia.local", Active: true},
			5: {ID: 5, Email: bootstrapEmail, Active: true},
			6: {ID: 6, Email: "romo@parokia.local", Active: true},
		}},
		store: &roleTable{
			roles: map[int64][]string{
				1: {"treasurer"},
				2: {"secretary"},
				3: {"secretary"},
				6: {rbac.SuperAdminRole},
			},
			perms: map[string][]string{
				"treasurer": {"offerings.record", "finance.reports.view"},
				"secretary": {"members.view", "members.manage"},
			},
		},
		touches:  &touchRecorder{},
		audit:    &auditRecorder{},
		observer: &decisionCounter{},
		now:      time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC),
	}
	h.monitor = NewMonitor(IntegrityConfig{MaxAge: 8 * time.Hour, BindIP: true}, h.sessions, h.csrf, nil)
	h.monitor.now = func() time.Time { return h.now }

	resolver := rbac.NewResolver(rbac.ResolverConfig{Store: h.store, SuperAdminBootstrapIdentity: bootstrapEmail})
	guard := NewGuard(GuardConfig{
		Principals: h.principals,
		Resolver:   resolver,
		Monitor:    h.monitor,
		LastLogin:  h.touches,
		Audit:      h.audit,
		Observer:   h.observer,
		Now:        func() time.Time { return h.now },
	})

	ok := func(w http.ResponseWriter, r *http.Request) {
		p, found := PrincipalFromContext(r.Context())
		require.True(t, found)
		httpx.JSON(w, http.StatusOK, map[string]int64{"principal": p.ID})
	}
	r := chi.NewRouter()
	r.Use(h.sessionMiddleware)
	r.With(guard.RequireAuthenticated()).Get("/api/me", ok)
	r.With(guard.RequirePermission("members.manage")).Post("/api/members", ok)
	r.With(guard.RequirePermission("finance.reports.view")).Get("/api/finance/reports", ok)
	r.With(guard.RequireRole("treasurer")).Get("/api/offerings", ok)
	r.With(guard.RequirePermission("members.view")).Get("/members", ok)
	h.router = r
	return h
}

// sessionMiddleware loads the session and commits it before the first byte of
// the response, like the application stack does.
func (h *harness) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := h.sessions.Load(r.Context(), r)
		require.NoError(h.t, err)
		ctx := shared.ContextWithSession(r.Context(), sess)
		next.ServeHTTP(&committingWriter{ResponseWriter: w, commit: func() {
			_ = h.sessions.Commit(ctx, w, r, sess)
		}}, r.WithContext(ctx))
	})
}

type committingWriter struct {
	http.ResponseWriter
	commit func()
	done   bool
}

func (w *committingWriter) WriteHeader(status int) {
	if !w.done {
		w.done = true
		w.commit()
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *committingWriter) Write(b []byte) (int, error) {
	if !w.done {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// login stores an authenticated session issued at the given time from ip.
func (h *harness) login(id int64, ip string, issued time.Time) string {
	h.t.Helper()
	ctx := context.Background()
	sess, err := h.sessions.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(h.t, err)
	sess.Authenticate(strconv.FormatInt(id, 10), ip, issued)
	require.NoError(h.t, h.sessions.Commit(ctx, httptest.NewRecorder(), nil, sess))
	return sess.ID
}

func (h *harness) do(method, path, token string) *httptest.ResponseRecorder {
	h.t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = clientAddr
	if token != "" {
		req.AddCookie(&http.Cookie{Name: h.sessions.CookieName(), Value: token})
	}
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) httpx.ErrorBody {
	t.Helper()
	var body httpx.ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestTreasurerDeniedMemberManagement(t *testing.T) {
	h := newHarness(t)
	token := h.login(1, clientIP, h.now.Add(-time.Hour))

	rr := h.do(http.MethodPost, "/api/members", token)
	require.Equal(t, http.StatusForbidden, rr.Code)
	body := decodeError(t, rr)
	assert.Equal(t, "insufficient_capability", body.Error)
	assert.Equal(t, "members.manage", body.Capability)
	assert.Empty(t, h.touches.ids)

	rr = h.do(http.MethodGet, "/api/finance/reports", token)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = h.do(http.MethodGet, "/api/offerings", token)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []int64{1, 1}, h.touches.ids)
	assert.Equal(t, 1, h.observer.states["capability/insufficient_capability"])
}

func TestExpiredSessionForcesLogoutAndCannotBeReplayed(t *testing.T) {
	h := newHarness(t)
	token := h.login(2, clientIP, h.now.Add(-9*time.Hour))

	rr := h.do(http.MethodGet, "/api/me", token)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "unauthenticated", decodeError(t, rr).Error)

	var rotated string
	for _, c := range rr.Result().Cookies() {
		if c.Name == h.sessions.CookieName() {
			rotated = c.Value
		}
	}
	assert.NotEmpty(t, rotated)
	assert.NotEqual(t, token, rotated)

	replay := h.do(http.MethodGet, "/api/me", token)
	assert.Equal(t, http.StatusUnauthorized, replay.Code)
	require.Len(t, h.audit.entries, 1)
	assert.Equal(t, int64(2), h.audit.entries[0].ActorID)
	assert.Equal(t, CheckMaxAge, h.audit.entries[0].Meta["reason"])
}

func TestIPMismatchForcesLogout(t *testing.T) {
	h := newHarness(t)
	token := h.login(2, "198.51.100.7", h.now.Add(-time.Minute))

	rr := h.do(http.MethodGet, "/api/me", token)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/me", token).Code)
}

func TestMissingIssuanceMetadataForcesLogout(t *testing.T) {
	h := newHarness(t)
	token := h.login(2, clientIP, time.Time{})

	rr := h.do(http.MethodGet, "/api/me", token)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestBootstrapIdentityKeepsAccessWhileStoreIsDown(t *testing.T) {
	h := newHarness(t)
	h.store.err = errors.New("dial tcp: connection refused")
	boot := h.login(5, clientIP, h.now.Add(-time.Hour))
	other := h.login(2, clientIP, h.now.Add(-time.Hour))

	rr := h.do(http.MethodPost, "/api/members", boot)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(http.MethodPost, "/api/members", other)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "insufficient_capability", decodeError(t, rr).Error)
}

func TestInactiveAccountIsLoggedOut(t *testing.T) {
	h := newHarness(t)
	token := h.login(3, clientIP, h.now.Add(-time.Hour))

	rr := h.do(http.MethodGet, "/api/me", token)
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "account_inactive", decodeError(t, rr).Error)

	// The old token is gone, so the next request is anonymous.
	rr = h.do(http.MethodGet, "/api/me", token)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Len(t, h.audit.entries, 1)
	assert.Equal(t, int64(3), h.audit.entries[0].ActorID)
}

func TestPrincipalWithoutRole(t *testing.T) {
	h := newHarness(t)
	token := h.login(4, clientIP, h.now.Add(-time.Hour))

	rr := h.do(http.MethodGet, "/api/offerings", token)
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "no_role_assigned", decodeError(t, rr).Error)

	// The bare authentication guard does not require a role.
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/me", token).Code)
}

func TestSuperAdminPassesEveryCapability(t *testing.T) {
	h := newHarness(t)
	token := h.login(6, clientIP, h.now.Add(-time.Hour))

	for _, path := range []string{"/api/finance/reports", "/api/offerings"} {
		assert.Equal(t, http.StatusOK, h.do(http.MethodGet, path, token).Code, path)
	}
	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/members", token).Code)
}

func TestAnonymousAndUnknownPrincipals(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/me", "").Code)

	ghost := h.login(404, clientIP, h.now.Add(-time.Hour))
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/me", ghost).Code)
}

func TestPrincipalLookupFailureIsServerError(t *testing.T) {
	h := newHarness(t)
	token := h.login(1, clientIP, h.now.Add(-time.Hour))
	h.principals.err = errors.New("pool closed")

	rr := h.do(http.MethodGet, "/api/me", token)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal_error", decodeError(t, rr).Error)
}

func TestLastLoginFailureDoesNotBlock(t *testing.T) {
	h := newHarness(t)
	h.touches.err = errors.New("deadlock detected")
	token := h.login(1, clientIP, h.now.Add(-time.Hour))

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/offerings", token).Code)
}

func TestBrowserDenialRedirectsWithFlash(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodGet, "/members", "")
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/auth/login", rr.Header().Get("Location"))

	token := h.login(1, clientIP, h.now.Add(-time.Hour))
	rr = h.do(http.MethodGet, "/members", token)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))

	sess, err := h.sessions.Load(context.Background(), requestWithToken(h, token))
	require.NoError(t, err)
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Contains(t, flash.Message, "members.view")
}

func requestWithToken(h *harness, token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: h.sessions.CookieName(), Value: token})
	return req
}

func TestDecisionsAreIdempotent(t *testing.T) {
	h := newHarness(t)
	token := h.login(2, clientIP, h.now.Add(-time.Hour))

	first := h.do(http.MethodGet, "/api/finance/reports", token)
	second := h.do(http.MethodGet, "/api/finance/reports", token)
	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
}
