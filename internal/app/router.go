package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/parokia/parokia/internal/auth"
	"github.com/parokia/parokia/internal/gate"
	"github.com/parokia/parokia/internal/observability"
	"github.com/parokia/parokia/internal/platform/httpx"
	"github.com/parokia/parokia/internal/rbac"
	"github.com/parokia/parokia/internal/roles"
	"github.com/parokia/parokia/internal/shared"
	"github.com/parokia/parokia/internal/users"
	"github.com/parokia/parokia/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Guard          *gate.Guard
	AuthHandler    *auth.Handler
	RolesHandler   *roles.Handler
	UsersHandler   *users.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
}

type homeResponse struct {
	Name  string               `json:"name"`
	Email string               `json:"email"`
	Flash *shared.FlashMessage `json:"flash,omitempty"`
}

// NewRouter constructs the chi.Router with Parokia defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Denied browser requests land here with a flash explaining why.
	r.With(params.Guard.RequireAuthenticated()).Get("/", func(w http.ResponseWriter, r *http.Request) {
		p, _ := gate.PrincipalFromContext(r.Context())
		resp := homeResponse{Name: p.Name, Email: p.Email}
		if sess := shared.SessionFromContext(r.Context()); sess != nil {
			resp.Flash = sess.PopFlash()
		}
		httpx.JSON(w, http.StatusOK, resp)
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.RolesHandler != nil {
		r.Route("/roles", params.RolesHandler.MountRoutes)
	}
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(params.Guard.RequireRole(rbac.SuperAdminRole))
			params.JobHandler.MountRoutes(r)
		})
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
