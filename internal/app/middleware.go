package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/quorum-hq/quorum/internal/platform/httpx"
	"github.com/quorum-hq/quorum/internal/shared"
)

// sessionWriter commits the session right before the first byte of the
// response is written, so Set-Cookie headers never race the body.
type sessionWriter struct {
	http.ResponseWriter
	commit func()
	done   bool
}

func (w *sessionWriter) WriteHeader(status int) {
	w.flushSession()
	w.ResponseWriter.WriteHeader(status)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.flushSession()
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) flushSession() {
	if w.done {
		return
	}
	w.done = true
	w.commit()
}

// SessionLoader loads the Redis session into the request context and
// commits it on the way out.
func SessionLoader(sessions *shared.SessionManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessions.Load(r.Context(), r)
			if err != nil {
				logger.Error("load session", slog.Any("error", err))
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}

			sw := &sessionWriter{
				ResponseWriter: w,
				commit: func() {
					if err := sessions.Commit(r.Context(), w, r, sess); err != nil {
						logger.Error("commit session", slog.Any("error", err))
					}
				},
			}

			ctx := shared.ContextWithSession(r.Context(), sess)
			next.ServeHTTP(sw, r.WithContext(ctx))
			sw.flushSession()
		})
	}
}

// CSRFGuard rejects mutating requests whose X-CSRF-Token header does not
// match the token stored in the session.
func CSRFGuard(csrf *shared.CSRFManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			sess := shared.SessionFromContext(r.Context())
			if sess == nil || sess.User() == "" {
				// Login and other anonymous posts carry no token yet.
				next.ServeHTTP(w, r)
				return
			}

			token := r.Header.Get(shared.CSRFHeader)
			if err := csrf.VerifyToken(r.Context(), sess, token); err != nil {
				logger.Warn("csrf verification failed",
					slog.String("path", r.URL.Path),
					slog.Any("error", err))
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "invalid csrf token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecureHeaders applies the standard security header set.
func SecureHeaders(cfg *Config) func(http.Handler) http.Handler {
	sec := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'",
		IsDevelopment:         !cfg.IsProduction(),
	})
	return sec.Handler
}

// RateLimiter throttles per-IP request volume.
func RateLimiter() func(http.Handler) http.Handler {
	return httprate.Limit(
		300,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)
}

// RequestTimeout bounds handler execution time.
func RequestTimeout(d time.Duration) func(http.Handler) http.Handler {
	return middleware.Timeout(d)
}
