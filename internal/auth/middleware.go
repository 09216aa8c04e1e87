package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type claimsKey struct{}

// FromContext returns the claims the middleware attached to ctx.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok
}

// Middleware rejects requests without a valid bearer token, except on open paths.
type Middleware struct {
	cfg  Config
	open map[string]bool
}

// NewMiddleware returns a Middleware that leaves /healthz and /metrics unauthenticated.
func NewMiddleware(cfg Config) *Middleware {
	return &Middleware{cfg: cfg, open: map[string]bool{"/healthz": true, "/metrics": true}}
}

// Wrap authenticates requests before handing them to next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.open[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			unauthorized(w, ErrMissingToken)
			return
		}
		claims, err := Parse(token, m.cfg)
		if err != nil {
			unauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="attendance"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"type": "unauthorized", "detail": err.Error()})
}
