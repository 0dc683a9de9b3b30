package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/parokia/parokia/internal/gate"
	"github.com/parokia/parokia/internal/platform/httpx"
	"github.com/parokia/parokia/internal/rbac"
	"github.com/parokia/parokia/internal/shared"
)

// Authenticator builds the bare authentication middleware. *gate.Guard
// implements it.
type Authenticator interface {
	RequireAuthenticated() func(http.Handler) http.Handler
}

// RoleLister resolves the role names of a principal.
type RoleLister interface {
	ListRoles(ctx context.Context, p rbac.Principal) []string
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	guard          Authenticator
	roles          RoleLister
	validator      *validator.Validate
	now            func() time.Time
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager, guard Authenticator, roles RoleLister) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		guard:          guard,
		roles:          roles,
		validator:      validator.New(),
		now:            time.Now,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.With(h.guard.RequireAuthenticated()).Get("/me", h.me)
}

type loginPageData struct {
	CSRFToken string               `json:"csrf_token"`
	Flash     *shared.FlashMessage `json:"flash,omitempty"`
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		h.logger.Error("csrf token", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "internal_error", http.StatusText(http.StatusInternalServerError))
		return
	}
	httpx.JSON(w, http.StatusOK, loginPageData{CSRFToken: token, Flash: sess.PopFlash()})
}

type loginResult struct {
	UserID    int64  `json:"user_id"`
	CSRFToken string `json:"csrf_token"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	in, err := h.readLogin(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_body", "email and password are required")
		return
	}
	if err := h.validator.Struct(in); err != nil {
		fields := map[string]string{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
		}
		httpx.JSON(w, http.StatusBadRequest, map[string]any{
			"error":   "validation_failed",
			"message": "check the highlighted fields",
			"fields":  fields,
		})
		return
	}

	user, err := h.service.Authenticate(r.Context(), in.Email, in.Password)
	if err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Error("authenticate", slog.Any("error", err))
		}
		httpx.Error(w, http.StatusUnauthorized, "invalid_credentials", shared.UserSafeMessage(shared.ErrInvalidCredentials))
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Error(w, http.StatusInternalServerError, "internal_error", http.StatusText(http.StatusInternalServerError))
		return
	}
	// Rotate the token so a pre-login session id can never become authenticated.
	if err := h.sessionManager.Invalidate(r.Context(), sess); err != nil {
		h.logger.Error("rotate session", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "internal_error", http.StatusText(http.StatusInternalServerError))
		return
	}
	now := h.now()
	ip := shared.ClientIP(r)
	sess.Authenticate(strconv.FormatInt(user.ID, 10), ip, now)
	token, err := h.csrfManager.Regenerate(r.Context(), sess)
	if err != nil {
		h.logger.Error("regenerate csrf", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "internal_error", http.StatusText(http.StatusInternalServerError))
		return
	}
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, now.Add(h.sessionManager.TTL()), ip, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	h.logger.Info("login succeeded", slog.Int64("principal_id", user.ID), slog.String("ip", ip))

	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, loginResult{UserID: user.ID, CSRFToken: token})
		return
	}
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back"})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) readLogin(r *http.Request) (LoginInput, error) {
	var in LoginInput
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		err := httpx.DecodeJSON(r, &in)
		return in, err
	}
	if err := r.ParseForm(); err != nil {
		return in, err
	}
	in.Email = r.PostFormValue("email")
	in.Password = r.PostFormValue("password")
	return in, nil
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	if httpx.WantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

type meResponse struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Roles       []string   `json:"roles"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p, ok := gate.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "unauthenticated", "Please sign in to continue.")
		return
	}
	resp := meResponse{ID: p.ID, Email: p.Email, Name: p.Name, Roles: h.roles.ListRoles(r.Context(), p)}
	if !p.LastLoginAt.IsZero() {
		at := p.LastLoginAt
		resp.LastLoginAt = &at
	}
	httpx.JSON(w, http.StatusOK, resp)
}
