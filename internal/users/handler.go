package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/parokia/parokia/internal/gate"
	"github.com/parokia/parokia/internal/platform/httpx"
	"github.com/parokia/parokia/internal/shared"
)

// Authorizer builds permission-gated middleware. *gate.Guard implements it.
type Authorizer interface {
	RequirePermission(permission string) func(http.Handler) http.Handler
}

// Handler manages user management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   Authorizer
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Authorizer) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequirePermission(shared.PermUsersView)).Get("/", h.listUsers)
	edit := h.guard.RequirePermission(shared.PermUsersEdit)
	r.With(edit).Post("/{userID}/activate", h.setActive(true))
	r.With(edit).Post("/{userID}/deactivate", h.setActive(false))
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromQuery(r.URL.Query())
	result, err := h.service.ListUsers(r.Context(), page, perPage)
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
		if err != nil || userID <= 0 {
			httpx.Error(w, http.StatusBadRequest, "invalid_id", "userID must be a positive integer")
			return
		}
		actor, _ := gate.PrincipalFromContext(r.Context())
		if err := h.service.SetActive(r.Context(), actor.ID, userID, active); err != nil {
			h.logger.Warn("set user active failed",
				slog.Int64("user_id", userID),
				slog.Bool("active", active),
				slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
