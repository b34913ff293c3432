// Package middleware provides HTTP middleware for the inspection server.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/besikta/inspection-server/internal/auth"
	"github.com/besikta/inspection-server/internal/metrics"
	"github.com/besikta/inspection-server/internal/models"
)

// StructuredLogger returns a middleware that logs HTTP requests with zap and
// records them in m under the matched route pattern.
func StructuredLogger(logger *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r)

			latency := time.Since(start)
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			m.HTTPRequest(r.Method, route, ww.statusCode, latency)

			logger.Info("HTTP Request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", route),
				zap.Int("status", ww.statusCode),
				zap.Duration("latency", latency),
				zap.String("request_id", chimw.GetReqID(r.Context())),
			)
		})
	}
}

// SecureHeaders sets the response headers every API response carries.
func SecureHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Cache-Control", "no-store")

			next.ServeHTTP(w, r)
		})
	}
}

// Authenticator turns a bearer token into the canonical principal.
type Authenticator interface {
	Resolve(ctx context.Context, token string) (models.Principal, error)
}

type principalKey struct{}

// WithPrincipal stores the authenticated principal for the handler to build
// its permission context from.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the request's principal, or the anonymous principal
// when none was resolved.
func PrincipalFrom(ctx context.Context) models.Principal {
	if p, ok := ctx.Value(principalKey{}).(models.Principal); ok {
		return p
	}
	return models.Anonymous()
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(a Authenticator, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return authenticate(a, logger, true)
}

// OptionalAuth resolves a bearer token when one is present and otherwise
// lets the request through as anonymous.
func OptionalAuth(a Authenticator, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return authenticate(a, logger, false)
}

func authenticate(a Authenticator, logger *zap.SugaredLogger, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if required {
					writeError(w, http.StatusUnauthorized, "unauthorized", "Authorization required")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid_token", "Bearer token required")
				return
			}

			p, err := a.Resolve(r.Context(), tokenStr)
			switch {
			case errors.Is(err, auth.ErrStaleAuthorization):
				logger.Infow("Stale authorization rejected", "error", err, "request_id", chimw.GetReqID(r.Context()))
				writeError(w, http.StatusUnauthorized, "stale_authorization", "Authorization is stale, sign in again")
				return
			case errors.Is(err, auth.ErrExpiredToken):
				writeError(w, http.StatusUnauthorized, "token_expired", "Token has expired")
				return
			case errors.Is(err, auth.ErrInvalidToken):
				writeError(w, http.StatusUnauthorized, "invalid_token", "Invalid token")
				return
			case err != nil:
				logger.Errorw("Failed to resolve principal", "error", err)
				writeError(w, http.StatusInternalServerError, "internal", "Failed to authenticate")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RateLimit returns a per-client fixed window limiter. Idle clients are
// swept every five minutes until ctx is done.
func RateLimit(ctx context.Context, requestsPerMinute int) func(http.Handler) http.Handler {
	l := newRateLimiter(requestsPerMinute)
	go l.run(ctx, 5*time.Minute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(clientIP(r)) {
				writeError(w, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type rateClient struct {
	count    int
	lastSeen time.Time
}

type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	clients map[string]*rateClient
	now     func() time.Time
}

func newRateLimiter(limit int) *rateLimiter {
	return &rateLimiter{limit: limit, clients: make(map[string]*rateClient), now: time.Now}
}

func (l *rateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, exists := l.clients[key]
	if !exists {
		l.clients[key] = &rateClient{count: 1, lastSeen: now}
		return true
	}
	if now.Sub(c.lastSeen) > time.Minute {
		c.count = 1
		c.lastSeen = now
	} else {
		c.count++
	}
	return c.count <= l.limit
}

// sweep drops clients idle for more than two minutes.
func (l *rateLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) > 2*time.Minute {
			delete(l.clients, key)
		}
	}
}

func (l *rateLimiter) run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
