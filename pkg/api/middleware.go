package api

import (
	"context"
	"net/http"
	"time"

	"github.com/keywordoor/keywordoor/pkg/api/store"
)

type contextKey string

const serverContextKey contextKey = "mining_server"

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

// requireServerAuth authenticates a mining server credential and injects
// the server identity into the request context. Every failure mode
// (missing header, unknown digest, revoked credential, store error)
// collapses to the same generic unauthorized response.
func (s *server) requireServerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := extractCredential(r)
		if credential == "" {
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"unauthorized"})

			return
		}

		srv, err := s.store.GetServerByKeyHash(
			r.Context(), hashCredential(credential),
		)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"unauthorized"})

			return
		}

		ctx := context.WithValue(r.Context(), serverContextKey, srv)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// serverFromContext returns the authenticated mining server, or nil when
// the request did not pass requireServerAuth.
func serverFromContext(ctx context.Context) *store.MiningServer {
	srv, _ := ctx.Value(serverContextKey).(*store.MiningServer)

	return srv
}
