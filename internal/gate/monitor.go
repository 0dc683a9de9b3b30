package gate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/parokia/parokia/internal/shared"
)

// Integrity check names.
const (
	CheckMissingMetadata = "missing_metadata"
	CheckMaxAge          = "max_age_exceeded"
	CheckIPMismatch      = "ip_mismatch"
)

// DefaultMaxAge bounds the lifetime of an authenticated session regardless of
// activity.
const DefaultMaxAge = 8 * time.Hour

// IntegrityConfig tunes the session integrity checks.
type IntegrityConfig struct {
	MaxAge time.Duration
	BindIP bool
}

// Violation describes a failed integrity check.
type Violation struct {
	Check     string
	IssuedIP  string
	CurrentIP string
	Age       time.Duration
}

// SessionInvalidator revokes a session token and rotates it.
type SessionInvalidator interface {
	Invalidate(ctx context.Context, sess *shared.Session) error
}

// TokenRegenerator issues a fresh CSRF token for a session.
type TokenRegenerator interface {
	Regenerate(ctx context.Context, sess *shared.Session) (string, error)
}

// Monitor inspects authenticated sessions for tampering or staleness and forces
// logout when a check trips.
type Monitor struct {
	cfg      IntegrityConfig
	sessions SessionInvalidator
	csrf     TokenRegenerator
	logger   *slog.Logger
	now      func() time.Time
}

// NewMonitor builds a Monitor. A zero MaxAge falls back to DefaultMaxAge.
func NewMonitor(cfg IntegrityConfig, sessions SessionInvalidator, csrf TokenRegenerator, logger *slog.Logger) *Monitor {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Monitor{cfg: cfg, sessions: sessions, csrf: csrf, logger: logger, now: time.Now}
}

// Inspect returns the first failed check for sess, or nil when the session is
// sound.
func (m *Monitor) Inspect(sess *shared.Session, clientIP string) *Violation {
	issued := sess.IssuedAt()
	issuedIP := sess.SourceIP()
	if issued.IsZero() || (m.cfg.BindIP && issuedIP == "") {
		return &Violation{Check: CheckMissingMetadata, IssuedIP: issuedIP, CurrentIP: clientIP}
	}
	age := m.now().Sub(issued)
	if age > m.cfg.MaxAge {
		return &Violation{Check: CheckMaxAge, IssuedIP: issuedIP, CurrentIP: clientIP, Age: age}
	}
	if m.cfg.BindIP && issuedIP != clientIP {
		return &Violation{Check: CheckIPMismatch, IssuedIP: issuedIP, CurrentIP: clientIP, Age: age}
	}
	return nil
}

// ForceLogout invalidates sess and regenerates its CSRF token. The session is
// rotated in place, so the caller commits an anonymous session afterwards.
func (m *Monitor) ForceLogout(ctx context.Context, sess *shared.Session, attrs ...slog.Attr) error {
	userID := sess.User()
	oldID := sess.ID
	if err := m.sessions.Invalidate(ctx, sess); err != nil {
		return fmt.Errorf("gate: force logout: %w", err)
	}
	if m.csrf != nil {
		if _, err := m.csrf.Regenerate(ctx, sess); err != nil {
			return fmt.Errorf("gate: regenerate csrf: %w", err)
		}
	}
	args := []any{
		slog.String("event", "session_forced_logout"),
		slog.String("user_id", userID),
		slog.String("session_id", shortID(oldID)),
	}
	for _, a := range attrs {
		args = append(args, a)
	}
	m.logger.WarnContext(ctx, "session forced logout", args...)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
