package webdav

import (
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/ozxybox/srctools/internal/config"
)

const authRealm = "srcfs WebDAV"

// AuthMiddleware wraps an http.Handler with HTTP Basic Authentication
type AuthMiddleware struct {
	next     http.Handler
	username string
	password string
}

// NewAuthMiddleware creates authentication middleware for the WebDAV server.
// If auth is disabled, returns the original handler unwrapped.
func NewAuthMiddleware(next http.Handler, cfg *config.WebDAVAuth) http.Handler {
	if cfg == nil || !cfg.Enabled {
		return next
	}

	return &AuthMiddleware{
		next:     next,
		username: cfg.Username,
		password: cfg.Password,
	}
}

// ServeHTTP implements http.Handler
func (m *AuthMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	username, password, ok := r.BasicAuth()

	if !ok {
		m.unauthorized(w, r, "missing credentials")
		return
	}

	if !m.validateCredentials(username, password) {
		m.unauthorized(w, r, "invalid credentials")
		return
	}

	log.Debug().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote_addr", r.RemoteAddr).
		Msg("webdav auth successful")

	m.next.ServeHTTP(w, r)
}

// validateCredentials performs constant-time comparison of credentials
// to prevent timing attacks
func (m *AuthMiddleware) validateCredentials(username, password string) bool {
	usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(m.username)) == 1
	passwordMatch := subtle.ConstantTimeCompare([]byte(password), []byte(m.password)) == 1

	// Both must match
	return usernameMatch && passwordMatch
}

// unauthorized sends a 401 response with proper WWW-Authenticate header
func (m *AuthMiddleware) unauthorized(w http.ResponseWriter, r *http.Request, reason string) {
	log.Warn().
		Str("reason", reason).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote_addr", r.RemoteAddr).
		Msg("webdav auth failed")

	w.Header().Set("WWW-Authenticate", `Basic realm="`+authRealm+`"`)
	http.Error(w, "401 Unauthorized", http.StatusUnauthorized)
}

// ValidateConfig checks auth config and logs warnings for potential issues
func ValidateConfig(cfg *config.WebDAVAuth) {
	if cfg == nil || !cfg.Enabled {
		log.Info().Msg("webdav authentication is disabled")
		return
	}

	if cfg.Username == "" {
		log.Warn().Msg("webdav auth enabled but username is empty")
	}

	if cfg.Password == "" {
		log.Warn().Msg("webdav auth enabled but password is empty")
	} else if len(cfg.Password) < 8 {
		log.Warn().Msg("webdav password is shorter than 8 characters, consider a stronger one")
	}
}
