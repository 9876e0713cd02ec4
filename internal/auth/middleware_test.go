package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuthMiddleware_NoToken(t *testing.T) {
	secret := []byte("test-secret")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/production", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ExemptHealthz(t *testing.T) {
	mw := NewMiddleware([]byte("test-secret"), NewDefaultPolicy([]string{"/healthz"}, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ViewerForbiddenExports(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "viewer", nil)
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exports/production.xlsx", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuthMiddleware_PropagatesLineScope(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "operator", []string{"CL01"})
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))

	var seen context.Context
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Context()
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/lines/snapshots", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if RoleFromContext(seen) != RoleOperator || SubjectFromContext(seen) != "user-1" {
		t.Fatalf("expected identity in context")
	}
	if !HasLineScope(seen) || !LineAllowed(seen, "CL01") || LineAllowed(seen, "CL02") {
		t.Fatalf("expected scope limited to CL01")
	}
}

func TestLineAllowedWithoutScope(t *testing.T) {
	ctx := WithIdentity(context.Background(), RoleAdmin, "admin", nil)
	if HasLineScope(ctx) || !LineAllowed(ctx, "CL09") {
		t.Fatal("expected unscoped identity to see every line")
	}
}

func TestParseJWTRejectsUnknownRole(t *testing.T) {
	secret := []byte("test-secret")
	if _, err := ParseJWT(mustToken(t, secret, "superuser", nil), secret); err == nil {
		t.Fatal("expected invalid role error")
	}
}

func mustToken(t *testing.T, secret []byte, role string, lines []string) string {
	t.Helper()
	claims := Claims{
		Role:  role,
		Lines: lines,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestNormalizeRole(t *testing.T) {
	role, ok := NormalizeRole(" Operator ")
	if !ok || role != RoleOperator {
		t.Fatalf("expected operator, got %q ok=%v", role, ok)
	}
	if _, ok := NormalizeRole("superuser"); ok {
		t.Fatal("expected unknown role")
	}
	if RoleAtLeast(Role("superuser"), RoleViewer) {
		t.Fatal("unknown role must not satisfy viewer")
	}
	if !RoleAtLeast(RoleAdmin, RoleOperator) || RoleAtLeast(RoleViewer, RoleOperator) {
		t.Fatal("unexpected role ordering")
	}
}

func TestAuthMiddleware_RejectsLineOutsideScope(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "viewer", []string{"CL01"})
	calls := 0
	handler := NewMiddleware(secret, NewDefaultPolicy(nil, nil)).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		target string
		want   int
	}{
		{"/api/v1/runtime?line=CL02", http.StatusForbidden},
		{"/api/v1/production?line=CL01", http.StatusOK},
		{"/api/v1/lines/snapshots", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.target, nil)
		req.Header.Set("Authorization", "bearer  "+token)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.target, tc.want, resp.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("expected handler reached twice, got %d", calls)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":  "abc",
		"bearer  abc": "abc",
		"Basic abc":   "",
		"Bearer":      "",
		"":            "",
	}
	for header, want := range cases {
		if got := bearerToken(header); got != want {
			t.Fatalf("bearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}
