package audit

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/exports/production.csv", nil)
	req.RemoteAddr = "10.0.0.9:51234"
	require.Equal(t, "10.0.0.9", ClientIP(req))

	req.Header.Set("X-Real-IP", " 10.0.0.7 ")
	require.Equal(t, "10.0.0.7", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "192.168.1.4, 10.0.0.1")
	require.Equal(t, "192.168.1.4", ClientIP(req))
}

func TestDigestJSON(t *testing.T) {
	require.Empty(t, DigestJSON(nil))
	digest := DigestJSON([]byte(`{"format":"csv"}`))
	require.Len(t, digest, 64)
	require.Equal(t, digest, DigestJSON([]byte(`{"format":"csv"}`)))
}

func TestNewID(t *testing.T) {
	id := NewID()
	require.True(t, strings.HasPrefix(id, "audit-"))
	require.NotEqual(t, id, NewID())
}
