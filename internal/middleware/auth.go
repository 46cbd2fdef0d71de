package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/picksy/syncd/internal/observability"
)

// bcryptCost is used when the configured key is plain text
const bcryptCost = 12

// KeyVerifier checks API keys against a bcrypt hash. Accepted keys are
// remembered so bcrypt runs once per distinct key.
type KeyVerifier struct {
	hash     []byte
	mu       sync.RWMutex
	accepted map[string]struct{}
}

// NewKeyVerifier accepts either a bcrypt hash or a plain key, which is
// hashed immediately and never kept
func NewKeyVerifier(key string) (*KeyVerifier, error) {
	hash := []byte(key)
	if _, err := bcrypt.Cost(hash); err != nil {
		hash, err = bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
		if err != nil {
			return nil, err
		}
	}
	return &KeyVerifier{hash: hash, accepted: make(map[string]struct{})}, nil
}

// Verify reports whether provided matches the configured key
func (v *KeyVerifier) Verify(provided string) bool {
	v.mu.RLock()
	_, ok := v.accepted[provided]
	v.mu.RUnlock()
	if ok {
		return true
	}

	if bcrypt.CompareHashAndPassword(v.hash, []byte(provided)) != nil {
		return false
	}
	v.mu.Lock()
	v.accepted[provided] = struct{}{}
	v.mu.Unlock()
	return true
}

// APIKeyAuth guards /api routes. A nil verifier disables authentication.
func APIKeyAuth(verifier *KeyVerifier, headerName string) func(http.Handler) http.Handler {
	log := observability.WithField("component", "auth")
	return func(next http.Handler) http.Handler {
		if verifier == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if path == "/health" || path == "/api/health" {
				next.ServeHTTP(w, r)
				return
			}

			// Only authenticate API routes
			if !strings.HasPrefix(path, "/api") {
				next.ServeHTTP(w, r)
				return
			}

			providedKey := r.Header.Get(headerName)
			if providedKey == "" {
				unauthorized(w, "API key is required.")
				return
			}
			if !verifier.Verify(providedKey) {
				log.Warnf("rejected API key from %s", r.RemoteAddr)
				unauthorized(w, "Invalid API key.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
