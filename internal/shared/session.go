package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSessionRevoked is returned by Commit when the session token was invalidated
// while the request holding it was still in flight.
var ErrSessionRevoked = errors.New("session revoked")

// FlashMessage represents a one-time notification stored in session.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SessionManager orchestrates cookie based sessions backed by Redis.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
	secret     []byte
}

// Session holds per-request session data.
type Session struct {
	ID        string
	values    map[string]string
	userID    string
	issuedAt  time.Time
	sourceIP  string
	flashes   []FlashMessage
	manager   *SessionManager
	isNew     bool
	dirty     bool
	destroyed bool
}

type sessionPayload struct {
	Values   map[string]string `json:"values"`
	UserID   string            `json:"user_id"`
	IssuedAt time.Time         `json:"issued_at"`
	SourceIP string            `json:"source_ip"`
	Flashes  []FlashMessage    `json:"flashes"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		secret:     []byte(secret),
	}
}

// Load loads or creates a new session for request. A cookie pointing at a
// revoked token always yields a fresh anonymous session with a new ID.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}
	if cookie.Value == "" {
		return sm.newSession(), nil
	}

	revoked, err := sm.client.Exists(ctx, sm.revokedKey(cookie.Value)).Result()
	if err != nil {
		return nil, err
	}
	if revoked > 0 {
		return sm.newSession(), nil
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return sm.newSession(), nil
		}
		return nil, err
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}

	sess := sm.newSession()
	sess.ID = cookie.Value
	if stored.Values != nil {
		sess.values = stored.Values
	}
	sess.userID = stored.UserID
	sess.issuedAt = stored.IssuedAt
	sess.sourceIP = stored.SourceIP
	sess.flashes = stored.Flashes
	sess.isNew = false
	sess.dirty = false
	return sess, nil
}

// Commit persists the session and writes cookie headers as needed.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.destroyed {
		if err := sm.revoke(ctx, sess.ID); err != nil {
			return err
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sm.cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   sm.secure,
			SameSite: http.SameSiteStrictMode,
		})
		return nil
	}

	if sess.ID == "" {
		sess.ID = sm.generateSessionID()
	}

	if sess.dirty || sess.isNew {
		data, err := json.Marshal(sess.payload())
		if err != nil {
			return err
		}
		if err := sm.store(ctx, sess.ID, data); err != nil {
			return err
		}
		sess.dirty = false
		sess.isNew = false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(sm.ttl),
	})
	return nil
}

// store writes the payload unless the token has been revoked. The tombstone is
// watched so a revocation racing with this write aborts the transaction.
func (sm *SessionManager) store(ctx context.Context, id string, data []byte) error {
	tombstone := sm.revokedKey(id)
	err := sm.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, tombstone).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrSessionRevoked
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, sm.redisKey(id), data, sm.ttl)
			return nil
		})
		return err
	}, tombstone)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrSessionRevoked
	}
	return err
}

// Invalidate revokes the session token immediately and rotates sess into a
// fresh anonymous session. Later requests presenting the old token load as
// anonymous, and in-flight commits for it are refused.
func (sm *SessionManager) Invalidate(ctx context.Context, sess *Session) error {
	if sess == nil {
		return nil
	}
	if sess.ID != "" {
		if err := sm.revoke(ctx, sess.ID); err != nil {
			return err
		}
	}
	sess.reset(sm.generateSessionID())
	return nil
}

// Destroy marks the session for deletion on commit.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

func (sm *SessionManager) revoke(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	_, err := sm.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sm.revokedKey(id), "1", sm.ttl)
		pipe.Del(ctx, sm.redisKey(id))
		return nil
	})
	return err
}

// Session helpers

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	if s.values == nil {
		return ""
	}
	return s.values[key]
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	if s.values == nil {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// SetUser associates the session with a user ID.
func (s *Session) SetUser(id string) {
	s.userID = id
	s.dirty = true
}

// User returns the current user ID.
func (s *Session) User() string {
	return s.userID
}

// Authenticate binds the session to a user and records issuance metadata.
func (s *Session) Authenticate(userID, sourceIP string, issuedAt time.Time) {
	s.userID = userID
	s.sourceIP = sourceIP
	s.issuedAt = issuedAt.UTC()
	s.dirty = true
}

// IssuedAt reports when the session was bound to its user.
func (s *Session) IssuedAt() time.Time {
	return s.issuedAt
}

// SourceIP reports the client address recorded at login.
func (s *Session) SourceIP() string {
	return s.sourceIP
}

// AddFlash queues a flash message.
func (s *Session) AddFlash(msg FlashMessage) {
	s.flashes = append(s.flashes, msg)
	s.dirty = true
}

// PopFlash retrieves and clears the oldest flash message.
func (s *Session) PopFlash() *FlashMessage {
	if len(s.flashes) == 0 {
		return nil
	}
	msg := s.flashes[0]
	s.flashes = s.flashes[1:]
	s.dirty = true
	return &msg
}

func (s *Session) reset(id string) {
	s.ID = id
	s.values = make(map[string]string)
	s.userID = ""
	s.issuedAt = time.Time{}
	s.sourceIP = ""
	s.flashes = nil
	s.isNew = true
	s.dirty = true
	s.destroyed = false
}

func (s *Session) payload() sessionPayload {
	return sessionPayload{
		Values:   s.values,
		UserID:   s.userID,
		IssuedAt: s.issuedAt,
		SourceIP: s.sourceIP,
		Flashes:  s.flashes,
	}
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:      sm.generateSessionID(),
		values:  make(map[string]string),
		manager: sm,
		isNew:   true,
		dirty:   true,
	}
}

func (sm *SessionManager) redisKey(id string) string {
	return "session:" + id
}

func (sm *SessionManager) revokedKey(id string) string {
	return "session:revoked:" + id
}

func (sm *SessionManager) generateSessionID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	if len(sm.secret) > 0 {
		for i := range b {
			b[i] ^= sm.secret[i%len(sm.secret)]
		}
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
