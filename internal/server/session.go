package server

import (
	"crypto/rand"
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"github.com/jxskiss/base62"
)

const (
	sessionCookie = "session"
	sessionTTL    = 12 * time.Hour
)

// SessionManager is the thin, stateless-per-request cookie check in front
// of the API. Tokens live in memory only; a restart logs everyone out.
type SessionManager struct {
	mu       sync.Mutex
	password string
	tokens   map[string]time.Time // token -> expiry
}

// NewSessionManager creates a manager guarding the API with the given
// password. An empty password disables authentication entirely.
func NewSessionManager(password string) *SessionManager {
	return &SessionManager{
		password: password,
		tokens:   make(map[string]time.Time),
	}
}

// Enabled reports whether a password is configured.
func (m *SessionManager) Enabled() bool {
	return m.password != ""
}

// Login checks the password and mints a session token.
func (m *SessionManager) Login(password string) (string, bool) {
	if subtle.ConstantTimeCompare([]byte(password), []byte(m.password)) != 1 {
		return "", false
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", false
	}
	token := base62.EncodeToString(buf)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = time.Now().Add(sessionTTL)
	return token, true
}

// Validate reports whether the token names a live session.
func (m *SessionManager) Validate(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiry, ok := m.tokens[token]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(m.tokens, token)
		return false
	}
	return true
}

// Logout drops the token.
func (m *SessionManager) Logout(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
}

// require wraps a handler with the session check.
func (m *SessionManager) require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			next(w, r)
			return
		}
		cookie, err := r.Cookie(sessionCookie)
		if err != nil || !m.Validate(cookie.Value) {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r)
	}
}
