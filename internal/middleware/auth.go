package middleware

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tradepost/backend/internal/services"
)

type contextKey string

const (
	userIDKey contextKey = "userID"
	roleKey   contextKey = "role"
)

// RolePayments is held by the upstream payment-confirmation caller
const RolePayments = "payments"

var (
	revocationStore *redis.Client
	signingKey      []byte
)

var errNoSigningKey = errors.New("jwt signing key not configured")

// InitAuthMiddleware sets the HS256 signing key and enables the Redis token
// blacklist check. A nil client disables the blacklist; an empty secret makes
// every token invalid.
func InitAuthMiddleware(client *redis.Client, secret string) {
	revocationStore = client
	signingKey = []byte(secret)
}

// Claims carried by bearer tokens. The subject is the account id;
// older tokens carry it as user_id instead.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) accountID() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.UserID
}

func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			services.SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			services.SendErrorResponse(w, "Invalid authorization header format", http.StatusUnauthorized, nil)
			return
		}

		claims, err := validateToken(r.Context(), parts[1])
		if err != nil {
			log.Printf("[AUTH] Rejected token: %v", err)
			services.SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.accountID())
		ctx = context.WithValue(ctx, roleKey, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects authenticated callers that do not hold role
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if RoleFromContext(r.Context()) != role {
				services.SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext returns the authenticated account id, or "" when unauthenticated
func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleKey).(string)
	return role
}

// WithIdentity returns ctx carrying an authenticated identity
func WithIdentity(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, roleKey, role)
}

func validateToken(ctx context.Context, tokenString string) (*Claims, error) {
	if len(signingKey) == 0 {
		return nil, errNoSigningKey
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}
	if claims.accountID() == "" {
		return nil, errors.New("token has no subject")
	}

	if revocationStore != nil {
		revoked, err := revocationStore.Exists(ctx, "blacklist:"+tokenString).Result()
		if err != nil {
			return nil, fmt.Errorf("blacklist check: %w", err)
		}
		if revoked > 0 {
			return nil, errors.New("token blacklisted")
		}
	}
	return claims, nil
}

// SecurityHeaders sets conservative response headers on every API response
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
