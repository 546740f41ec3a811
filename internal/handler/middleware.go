package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"dauth-service/internal/device"
	redisrepo "dauth-service/internal/repository/redis"
	"dauth-service/internal/session"
	"dauth-service/internal/token"
	"dauth-service/internal/util"
)

type contextKey string

const claimsContextKey contextKey = "authClaims"

// claimsFrom returns the verified access-token claims the Authenticator
// stored on the request context.
func claimsFrom(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*token.Claims)
	return claims, ok
}

// Authenticator guards a route group with bearer access tokens. The token has
// to verify, be of the access type, and name a session that still exists, so
// logout takes effect immediately rather than at token expiry.
func Authenticator(codec *token.Codec, sessions *session.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(bearer, "Bearer ") {
				respondJSON(w, http.StatusUnauthorized,
					errorResponse(http.StatusUnauthorized, "Missing access token"))
				return
			}

			claims, err := codec.Verify(strings.TrimPrefix(bearer, "Bearer "))
			if err != nil || !claims.IsAccess() {
				respondJSON(w, http.StatusUnauthorized,
					errorResponse(http.StatusUnauthorized, "Invalid access token"))
				return
			}
			if _, err := sessions.FindBySessionID(claims.UserID, claims.SessionID); err != nil {
				respondJSON(w, http.StatusUnauthorized,
					errorResponse(http.StatusUnauthorized, "Session is no longer active"))
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimit throttles by client IP. A nil limiter disables throttling, which
// keeps test routers free of a Redis dependency.
func RateLimit(limiter *redisrepo.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil {
				fp := device.FromRequest(r)
				if !limiter.Allow("ip:" + fp.IP) {
					respondJSON(w, http.StatusTooManyRequests,
						errorResponse(http.StatusTooManyRequests, "Too many requests, slow down"))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs one line per request through the shared zap logger.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			util.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)))
		}()
		next.ServeHTTP(ww, r)
	})
}
