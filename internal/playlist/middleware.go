package playlist

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

// TokenClaims are the access-token claims issued by the auth service.
type TokenClaims struct {
	UserID    string `json:"uid"`
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

type ctxCallerKey struct{}

func callerFrom(ctx context.Context) Caller {
	c, _ := ctx.Value(ctxCallerKey{}).(Caller)
	return c
}

func withCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxCallerKey{}, c)
}

// identify puts the request's Caller into the context. With a JWT secret the
// bearer token is authoritative; otherwise the gateway headers are trusted.
// A request without any identity passes through as anonymous.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var c Caller

		if len(s.opts.JWTSecret) > 0 {
			auth := r.Header.Get("Authorization")
			if auth != "" {
				parts := strings.SplitN(auth, " ", 2)
				if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
					writeError(w, http.StatusUnauthorized, "invalid Authorization header")
					return
				}
				claims := &TokenClaims{}
				token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
					return s.opts.JWTSecret, nil
				}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
				if err != nil || !token.Valid || claims.TokenType != "access" || claims.UserID == "" {
					writeError(w, http.StatusUnauthorized, "invalid token")
					return
				}
				c = Caller{UserID: claims.UserID, Role: claims.Role}
			}
		} else {
			c = Caller{
				UserID: strings.TrimSpace(r.Header.Get("X-User-Id")),
				Role:   strings.TrimSpace(r.Header.Get("X-User-Role")),
			}
		}

		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), c)))
	})
}

func requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if callerFrom(r.Context()).UserID == "" {
			writeError(w, http.StatusUnauthorized, "missing user context")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(callerFrom(r.Context()).UserID) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("req",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"dur", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// callerLimiter keeps one token bucket per user. A zero rate disables it.
// Buckets idle for longer than idleTTL are dropped, checked at most once per
// sweepEvery.
type callerLimiter struct {
	rps   rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	limiters  map[string]*callerBucket
	lastSweep time.Time
}

type callerBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterSweepEvery = time.Minute
)

func newCallerLimiter(rps float64, burst int) *callerLimiter {
	if burst < 1 {
		burst = 1
	}
	return &callerLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
		limiters: make(map[string]*callerBucket),
	}
}

func (l *callerLimiter) Allow(key string) bool {
	if l == nil || l.rps <= 0 {
		return true
	}
	now := l.now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) >= limiterSweepEvery {
		l.sweep(now)
	}
	b, ok := l.limiters[key]
	if !ok {
		b = &callerBucket{lim: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	return b.lim.AllowN(now, 1)
}

// sweep must be called with mu held.
func (l *callerLimiter) sweep(now time.Time) {
	for key, b := range l.limiters {
		if now.Sub(b.lastSeen) > limiterIdleTTL {
			delete(l.limiters, key)
		}
	}
	l.lastSweep = now
}
