// internal/auth/middleware.go
// Bearer-token middleware for REST routes and the WebSocket upgrade

package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/utils"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/logging"
)

var errInvalidTokenType = errors.New("invalid token type")

// Middleware provides authentication middleware
type Middleware struct {
	secret string
	logger *zap.Logger
}

// NewMiddleware creates a new auth middleware validating access tokens signed with secret
func NewMiddleware(secret string, logger *zap.Logger) *Middleware {
	logger = logging.OrNop(logger)
	return &Middleware{
		secret: secret,
		logger: logger,
	}
}

// Authenticate is the main middleware function that protects routes.
// It verifies the access token and adds the caller identity to the request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			utils.ErrorResponse(w, "Missing or invalid authorization header", http.StatusUnauthorized)
			return
		}

		id, err := m.Verify(token)
		if err != nil {
			m.logger.Debug("rejected access token", zap.String("path", r.URL.Path), zap.Error(err))
			utils.ErrorResponse(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// Verify validates an access token and returns the identity it carries
func (m *Middleware) Verify(token string) (Identity, error) {
	claims, err := utils.ValidateJWT(token, m.secret)
	if err != nil {
		return Identity{}, err
	}
	if claims.Type != utils.AccessTokenType {
		return Identity{}, errInvalidTokenType
	}
	return Identity{
		UserID:        claims.UserID,
		Username:      claims.Username,
		Role:          claims.Role,
		SecurityLevel: claims.SecurityLevel,
	}, nil
}

// extractToken reads "Bearer <token>" from the Authorization header.
// Browsers cannot set headers on a WebSocket upgrade, so the access_token
// query parameter is accepted as well.
func extractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return ""
		}
		return parts[1]
	}
	return r.URL.Query().Get("access_token")
}
