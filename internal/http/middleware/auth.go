package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"fitfeed/internal/http/handlers"
)

// AdminAuth guards admin endpoints with a static bearer API key
type AdminAuth struct {
	adminAPIKey string
	logger      *slog.Logger
}

// NewAdminAuth creates the admin authentication middleware. An empty key
// leaves admin endpoints open, which is only meant for local development.
func NewAdminAuth(adminAPIKey string, logger *slog.Logger) *AdminAuth {
	if adminAPIKey == "" {
		logger.Warn("ADMIN_API_KEY not set - admin endpoints will be unprotected!")
	}

	return &AdminAuth{
		adminAPIKey: adminAPIKey,
		logger:      logger,
	}
}

// Middleware returns the authentication middleware handler
func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.adminAPIKey == "" {
			a.logger.Debug("Admin auth bypassed - no API key configured")
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			a.logger.Warn("Admin request rejected - no authorization header",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			a.unauthorized(w, "Unauthorized - missing Authorization header")
			return
		}

		expectedAuth := "Bearer " + a.adminAPIKey
		if subtle.ConstantTimeCompare([]byte(authHeader), []byte(expectedAuth)) != 1 {
			a.logger.Warn("Admin request rejected - invalid API key",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			a.unauthorized(w, "Unauthorized - invalid API key")
			return
		}

		a.logger.Debug("Admin request authenticated",
			"path", r.URL.Path,
			"method", r.Method,
		)

		next.ServeHTTP(w, r)
	})
}

func (a *AdminAuth) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	if err := json.NewEncoder(w).Encode(handlers.ErrorResponse{Error: message}); err != nil {
		a.logger.Error("Failed to encode response", "error", err)
	}
}
