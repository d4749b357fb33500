package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quorum-hq/quorum/internal/auth"
	"github.com/quorum-hq/quorum/internal/authz"
	closurehttp "github.com/quorum-hq/quorum/internal/closure/http"
	"github.com/quorum-hq/quorum/internal/platform/httpx"
	"github.com/quorum-hq/quorum/internal/shared"
)

// RouterParams bundles the dependencies the HTTP router needs.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	AuthService    *auth.Service
	AuthHandler    *auth.Handler
	PolicyHandler  *authz.PolicyHandler
	ClosureHandler *closurehttp.Handler
}

// NewRouter assembles the application router.
func NewRouter(p RouterParams) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestTimeout(p.Config.AppRequestTimeout))
	r.Use(SecureHeaders(p.Config))
	r.Use(middleware.Compress(5))
	r.Use(RateLimiter())
	r.Use(SessionLoader(p.SessionManager, p.Logger))
	r.Use(CSRFGuard(p.CSRFManager, p.Logger))
	r.Use(auth.IdentityLoader(p.AuthService, p.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth", p.AuthHandler.MountRoutes)
	r.Route("/policy", p.PolicyHandler.MountRoutes)
	r.Group(p.ClosureHandler.MountRoutes)

	return r
}
