package auth

import (
	"net/http"
	"strings"
)

// Middleware authenticates bearer tokens, applies the route's minimum role and
// rejects reads of a line outside the caller's scope.
type Middleware struct {
	secret    []byte
	policy    Policy
	lineParam string
}

// MiddlewareOption customizes the middleware.
type MiddlewareOption func(*Middleware)

// WithLineParam names the query parameter that selects a production line.
func WithLineParam(name string) MiddlewareOption {
	return func(m *Middleware) {
		if name != "" {
			m.lineParam = name
		}
	}
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{secret: secret, policy: policy, lineParam: "line"}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wrap applies authentication, RBAC and the line scope to the handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		required, ok := m.policy.RequiredRole(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := ParseJWT(bearerToken(r.Header.Get("Authorization")), m.secret)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		role, ok := NormalizeRole(claims.Role)
		if !ok || !RoleAtLeast(role, required) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		ctx := WithIdentity(r.Context(), role, claims.Subject, claims.Lines)
		if line := strings.TrimSpace(r.URL.Query().Get(m.lineParam)); line != "" && !LineAllowed(ctx, line) {
			http.Error(w, "line not permitted", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken returns the token of an "Authorization: Bearer <token>" header.
func bearerToken(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
