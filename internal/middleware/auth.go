// Package middleware provides the HTTP middleware for the directory API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	svcerr "github.com/nitemap/nitemap/internal/errors"
	"github.com/nitemap/nitemap/internal/httputil"
	"github.com/nitemap/nitemap/internal/logging"
	"github.com/nitemap/nitemap/internal/storage"
)

// Claims is the Supabase access token payload the API cares about.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware verifies Supabase-issued HS256 access tokens. The
// Optional variant lets anonymous requests through while still resolving
// identity when a token is present.
type AuthMiddleware struct {
	secret   []byte
	profiles storage.ProfileStore
	logger   *logging.Logger
	optional bool
}

// NewAuthMiddleware creates middleware that rejects requests without a
// valid token.
func NewAuthMiddleware(jwtSecret string, profiles storage.ProfileStore, logger *logging.Logger) *AuthMiddleware {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &AuthMiddleware{secret: []byte(jwtSecret), profiles: profiles, logger: logger}
}

// Optional returns a copy that lets requests without a token through
// anonymously while still resolving identity when a token is present.
func (m *AuthMiddleware) Optional() *AuthMiddleware {
	clone := *m
	clone.optional = true
	return &clone
}

// Handler returns the middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			m.respondError(w, r, svcerr.Unauthorized("missing Authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.respondError(w, r, svcerr.Unauthorized("invalid Authorization header format"))
			return
		}

		claims, err := m.validateToken(parts[1])
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Warn("token validation failed")
			m.respondError(w, r, err)
			return
		}

		userID := claims.Subject
		role := claims.Role

		// The profile carries the application role and the blocked
		// flag; the token only proves identity.
		if prof, err := m.profiles.GetProfile(r.Context(), userID); err == nil {
			if prof.Blocked {
				m.respondError(w, r, svcerr.Forbidden("account is blocked"))
				return
			}
			role = string(prof.Role)
		}

		ctx := context.WithValue(r.Context(), logging.UserIDKey, userID)
		if role != "" {
			ctx = context.WithValue(ctx, logging.RoleKey, role)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, svcerr.InvalidToken(nil).WithDetails("method", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, svcerr.InvalidToken(err)
	}
	if !token.Valid {
		return nil, svcerr.InvalidToken(nil)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return nil, svcerr.InvalidToken(nil).WithDetails("reason", "missing subject")
	}
	return claims, nil
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteError(w, r, err)
	m.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
	}).Warn("authentication failed")
}

// GetUserID extracts the authenticated user ID from context.
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// GetUserRole extracts the resolved role from context.
func GetUserRole(ctx context.Context) string {
	return logging.GetRole(ctx)
}

// RequireRole rejects requests whose resolved role is not in allowed.
func RequireRole(allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := GetUserRole(r.Context())
			for _, a := range allowed {
				if role == a {
					next.ServeHTTP(w, r)
					return
				}
			}
			httputil.WriteError(w, r, svcerr.Forbidden("insufficient role"))
		})
	}
}
