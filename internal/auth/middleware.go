package auth

import (
	"log/slog"
	"net/http"

	"github.com/quorum-hq/quorum/internal/authz"
	"github.com/quorum-hq/quorum/internal/shared"
)

// IdentityLoader resolves the session user into a full identity and stores
// it in the request context. Requests without a logged-in user pass
// through without an identity; guards downstream decide whether that is
// acceptable.
func IdentityLoader(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil || sess.User() == "" {
				next.ServeHTTP(w, r)
				return
			}
			identity, err := service.LoadIdentity(r.Context(), sess.User())
			if err != nil {
				if logger != nil {
					logger.Error("load identity", slog.String("user", sess.User()), slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			ctx := authz.ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
