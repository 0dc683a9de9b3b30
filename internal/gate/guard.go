package gate

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/parokia/parokia/internal/rbac"
	"github.com/parokia/parokia/internal/shared"
)

// LastLoginToucher records successful access. Failures never block requests.
type LastLoginToucher interface {
	TouchLastLogin(ctx context.Context, principalID int64, at time.Time) error
}

// AuditSink persists security-relevant events.
type AuditSink interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// DecisionObserver receives one notification per pipeline run.
type DecisionObserver interface {
	ObserveDecision(gate, state string)
}

// GuardConfig collects Guard dependencies. Principals, Resolver and Monitor
// are required.
type GuardConfig struct {
	Principals PrincipalSource
	Resolver   *rbac.Resolver
	Monitor    *Monitor
	LastLogin  LastLoginToucher
	Audit      AuditSink
	Observer   DecisionObserver
	Logger     *slog.Logger
	Responder  *Responder
	Now        func() time.Time
}

// Guard builds route middleware running the gate chain.
type Guard struct {
	authOnly  Pipeline
	full      Pipeline
	lastLogin LastLoginToucher
	audit     AuditSink
	observer  DecisionObserver
	logger    *slog.Logger
	responder Responder
	now       func() time.Time
}

// NewGuard wires the fixed chain: authenticated, session_integrity,
// account_active, role_presence, capability.
func NewGuard(cfg GuardConfig) *Guard {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	responder := DefaultResponder()
	if cfg.Responder != nil {
		responder = *cfg.Responder
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	base := []Gate{
		Authenticated(cfg.Principals),
		SessionIntegrity(cfg.Monitor),
		AccountActive(cfg.Monitor),
	}
	full := append(append([]Gate{}, base...),
		RolePresence(cfg.Resolver),
		CapabilityCheck(cfg.Resolver),
	)
	return &Guard{
		authOnly:  NewPipeline(base...),
		full:      NewPipeline(full...),
		lastLogin: cfg.LastLogin,
		audit:     cfg.Audit,
		observer:  cfg.Observer,
		logger:    logger,
		responder: responder,
		now:       now,
	}
}

// RequireAuthenticated admits any active, authenticated principal with a sound
// session. Role and capability checks are skipped.
func (g *Guard) RequireAuthenticated() func(http.Handler) http.Handler {
	return g.middleware(g.authOnly, Capability{})
}

// RequireCapability runs the full chain for capability.
func (g *Guard) RequireCapability(capability Capability) func(http.Handler) http.Handler {
	return g.middleware(g.full, capability)
}

// RequireRole runs the full chain requiring role membership.
func (g *Guard) RequireRole(role string) func(http.Handler) http.Handler {
	return g.RequireCapability(Role(role))
}

// RequirePermission runs the full chain requiring a permission.
func (g *Guard) RequirePermission(permission string) func(http.Handler) http.Handler {
	return g.RequireCapability(Permission(permission))
}

func (g *Guard) middleware(p Pipeline, capability Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := rbac.WithMemo(r.Context())
			r = r.WithContext(ctx)
			sess := shared.SessionFromContext(ctx)
			req := &Request{
				HTTP:       r,
				Route:      routeName(r),
				Session:    sess,
				Capability: capability,
			}
			sessionUser := ""
			if sess != nil {
				sessionUser = sess.User()
			}

			d := p.Run(req)
			if g.observer != nil {
				g.observer.ObserveDecision(d.Gate, d.State.String())
			}
			if d.Halted() {
				g.logDenied(ctx, req, d, sessionUser)
				g.recordAudit(ctx, req, d, sessionUser)
				g.responder.Respond(w, r, sess, d, capability)
				return
			}

			principal := *req.Principal
			g.touchLastLogin(ctx, principal)
			g.logger.DebugContext(ctx, "access granted",
				slog.String("event", "access_granted"),
				slog.Int64("principal_id", principal.ID),
				slog.String("route", req.Route),
				slog.String("capability", capability.String()),
				slog.String("reason", d.Reason),
				slog.Bool("fallback_used", d.FallbackUsed))
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(ctx, principal)))
		})
	}
}

func (g *Guard) touchLastLogin(ctx context.Context, p rbac.Principal) {
	if g.lastLogin == nil {
		return
	}
	if err := g.lastLogin.TouchLastLogin(ctx, p.ID, g.now()); err != nil {
		g.logger.WarnContext(ctx, "last login update failed",
			slog.Int64("principal_id", p.ID),
			slog.Any("error", err))
	}
}

func (g *Guard) logDenied(ctx context.Context, req *Request, d Decision, sessionUser string) {
	level := slog.LevelInfo
	switch {
	case d.Err != nil:
		level = slog.LevelError
	case d.State == StateNoRole, d.State == StateInactive, d.State == StateSessionInvalid:
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("event", "access_denied"),
		slog.String("route", req.Route),
		slog.String("capability", req.Capability.String()),
		slog.String("gate", d.Gate),
		slog.String("state", d.State.String()),
		slog.String("reason", d.Reason),
		slog.Bool("fallback_used", d.FallbackUsed),
	}
	if id := principalID(req, sessionUser); id != 0 {
		attrs = append(attrs, slog.Int64("principal_id", id))
	}
	if d.Err != nil {
		attrs = append(attrs, slog.Any("error", d.Err))
	}
	msg := "access denied"
	if d.State == StateNoRole {
		msg = "access denied: principal has no role assigned"
	}
	g.logger.LogAttrs(ctx, level, msg, attrs...)
}

func (g *Guard) recordAudit(ctx context.Context, req *Request, d Decision, sessionUser string) {
	if g.audit == nil {
		return
	}
	if d.State != StateSessionInvalid && d.State != StateInactive {
		return
	}
	id := principalID(req, sessionUser)
	if id == 0 {
		return
	}
	entry := shared.AuditLog{
		ActorID:  id,
		Action:   "auth.forced_logout",
		Entity:   "user",
		EntityID: strconv.FormatInt(id, 10),
		Meta: map[string]any{
			"gate":   d.Gate,
			"state":  d.State.String(),
			"reason": d.Reason,
			"route":  req.Route,
		},
		At: g.now(),
	}
	if err := g.audit.Record(ctx, entry); err != nil {
		g.logger.WarnContext(ctx, "audit record failed", slog.Any("error", err))
	}
}

func principalID(req *Request, sessionUser string) int64 {
	if req.Principal != nil {
		return req.Principal.ID
	}
	id, err := strconv.ParseInt(sessionUser, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func routeName(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

type principalContextKey struct{}

// ContextWithPrincipal stores the authorized principal in context.
func ContextWithPrincipal(ctx context.Context, p rbac.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal admitted by a Guard.
func PrincipalFromContext(ctx context.Context) (rbac.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(rbac.Principal)
	return p, ok
}
