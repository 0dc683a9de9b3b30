package roles

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

// Handler manages role management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   Authorizer
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Authorizer) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	view := h.guard.RequirePermission(shared.PermRolesView)
	edit := h.guard.RequirePermission(shared.PermRolesEdit)

	r.With(view).Get("/", h.listRoles)
	r.With(view).Get("/permissions", h.listPermissions)
	r.With(edit).Post("/", h.createRole)
	r.With(edit).Put("/{roleID}/permissions", h.setPermissions)
	r.With(edit).Post("/users/{userID}/roles/{roleID}", h.assignRole)
	r.With(edit).Delete("/users/{userID}/roles/{roleID}", h.removeRole)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, r, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.fail(w, r, "list permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var in CreateRoleInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_body", "request body must be a JSON role")
		return
	}
	role, err := h.service.CreateRole(r.Context(), actorID(r), in)
	if err != nil {
		h.fail(w, r, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) setPermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	var in SetPermissionsInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_body", "request body must list permissions")
		return
	}
	if err := h.service.SetPermissions(r.Context(), actorID(r), roleID, in); err != nil {
		h.fail(w, r, "set role permissions", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.AssignRole(r.Context(), actorID(r), userID, roleID); err != nil {
		h.fail(w, r, "assign role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.RemoveRole(r.Context(), actorID(r), userID, roleID); err != nil {
		h.fail(w, r, "remove role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Error(op+" failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusBadRequest, "invalid_id", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func actorID(r *http.Request) int64 {
	p, _ := gate.PrincipalFromContext(r.Context())
	return p.ID
}
