package api

import (
	"crypto/sha256"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// HashToken returns the bcrypt hash stored in admin.token_hashes.
func HashToken(token string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// tokenAuth checks bearer tokens against bcrypt hashes. Verified tokens
// are remembered by SHA-256 digest to skip repeated bcrypt comparisons.
type tokenAuth struct {
	hashes [][]byte

	mu       sync.Mutex
	verified map[[sha256.Size]byte]bool
}

func newTokenAuth(hashes []string) *tokenAuth {
	a := &tokenAuth{verified: make(map[[sha256.Size]byte]bool)}
	for _, h := range hashes {
		if h = strings.TrimSpace(h); h != "" {
			a.hashes = append(a.hashes, []byte(h))
		}
	}
	return a
}

// privileged reports whether r carries a valid admin bearer token.
func (a *tokenAuth) privileged(r *http.Request) bool {
	token, ok := bearerToken(r)
	if !ok || len(a.hashes) == 0 {
		return false
	}

	digest := sha256.Sum256([]byte(token))
	a.mu.Lock()
	known := a.verified[digest]
	a.mu.Unlock()
	if known {
		return true
	}

	valid := false
	for _, h := range a.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(token)) == nil {
			valid = true
			break
		}
	}

	// Only successes are cached; bad tokens must not grow the map.
	if valid {
		a.mu.Lock()
		a.verified[digest] = true
		a.mu.Unlock()
	}
	return valid
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// requirePrivileged rejects requests without a valid admin token.
func (s *Server) requirePrivileged(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := bearerToken(r); !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="concierge"`)
			s.errorResponse(w, http.StatusUnauthorized, "bearer token required")
			return
		}
		if !s.auth.privileged(r) {
			s.errorResponse(w, http.StatusForbidden, "token not authorized")
			return
		}
		next(w, r)
	}
}
