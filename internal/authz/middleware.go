package authz

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quorum-hq/quorum/internal/platform/httpx"
)

// Middleware wires authorization guards for HTTP handlers.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
}

// Require ensures the current identity holds the action globally.
func (m Middleware) Require(action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			if !m.Resolver.HasPermission(id, action) {
				if m.Logger != nil {
					m.Logger.Warn("permission denied",
						slog.String("user", id.ID),
						slog.String("action", string(action)))
				}
				httpx.Problem(w, http.StatusForbidden, "Forbidden", string(action)+" denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireProject ensures the current identity holds the action within the
// project named by the given chi URL parameter.
func (m Middleware) RequireProject(action Action, projectParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			projectID := chi.URLParam(r, projectParam)
			if !m.Resolver.HasProjectPermission(id, action, projectID) {
				if m.Logger != nil {
					m.Logger.Warn("project permission denied",
						slog.String("user", id.ID),
						slog.String("action", string(action)),
						slog.String("project", projectID))
				}
				httpx.Problem(w, http.StatusForbidden, "Forbidden", string(action)+" denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
