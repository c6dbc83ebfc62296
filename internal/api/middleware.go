package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/app"
)

// UserIDContextKey is a custom type for the context key to avoid collisions.
type UserIDContextKey string

const userIDKey UserIDContextKey = "userID"

// AuthMiddleware validates HMAC-signed bearer tokens issued by the auth
// provider. The sub claim must be the member's UUID.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(key) == 0 {
				writeError(w, http.StatusServiceUnavailable, "Authentication is not configured")
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader || strings.TrimSpace(tokenString) == "" {
				writeError(w, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			token, err := parser.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				return key, nil
			})
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			sub, err := token.Claims.GetSubject()
			if err != nil || sub == "" {
				writeError(w, http.StatusUnauthorized, "User ID not found in token")
				return
			}
			userID, err := uuid.Parse(sub)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid user ID in token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext returns the authenticated member's id.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userIDKey).(uuid.UUID)
	return userID, ok
}

// InternalAuthMiddleware guards staff and server-to-server routes. Requests
// are rejected when no key is configured.
func InternalAuthMiddleware(requiredKey string) func(http.Handler) http.Handler {
	required := []byte(strings.TrimSpace(requiredKey))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := []byte(strings.TrimSpace(r.Header.Get("X-Internal-API-Key")))
			if len(required) == 0 || subtle.ConstantTimeCompare(provided, required) != 1 {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware limits an authenticated member to perMinute requests on
// scope. Limiter failures let the request through.
func RateLimitMiddleware(limiter app.RateLimiter, scope string, perMinute int, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || perMinute <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			err := app.Allow(r.Context(), limiter, scope, userID.String(), perMinute, time.Minute)
			var rateErr *app.RateLimitError
			switch {
			case errors.As(err, &rateErr):
				logger.Info("rate limit exceeded", "scope", scope, "user_id", userID, "retry_after_seconds", rateErr.RetryAfterSeconds)
				w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
				writeError(w, http.StatusTooManyRequests, fmt.Sprintf("Too many requests. Try again in %d seconds.", rateErr.RetryAfterSeconds))
				return
			case err != nil:
				logger.Warn("rate limiter unavailable; allowing request", "scope", scope, "user_id", userID, "error", err)
			}
			next.ServeHTTP(w, r)
		})
	}
}
