package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, path, key string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestKeyVerifierAcceptsHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	v, err := NewKeyVerifier(string(hash))
	require.NoError(t, err)
	assert.True(t, v.Verify("secret"))
	assert.True(t, v.Verify("secret"), "cached")
	assert.False(t, v.Verify("Secret"))
}

func TestKeyVerifierHashesPlainKeys(t *testing.T) {
	v, err := NewKeyVerifier("plain-key")
	require.NoError(t, err)
	assert.NotEqual(t, "plain-key", string(v.hash))
	assert.True(t, v.Verify("plain-key"))
	assert.False(t, v.Verify("other"))
}

func TestAPIKeyAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	v, err := NewKeyVerifier(string(hash))
	require.NoError(t, err)
	h := APIKeyAuth(v, "X-API-Key")(okHandler())

	assert.Equal(t, http.StatusOK, serve(h, "/health", ""))
	assert.Equal(t, http.StatusOK, serve(h, "/api/health", ""))
	assert.Equal(t, http.StatusOK, serve(h, "/ws", ""))
	assert.Equal(t, http.StatusUnauthorized, serve(h, "/api/photos", ""))
	assert.Equal(t, http.StatusUnauthorized, serve(h, "/api/photos", "nope"))
	assert.Equal(t, http.StatusOK, serve(h, "/api/photos", "secret"))
}

func TestAPIKeyAuthDisabled(t *testing.T) {
	h := APIKeyAuth(nil, "X-API-Key")(okHandler())
	assert.Equal(t, http.StatusOK, serve(h, "/api/photos", ""))
}
