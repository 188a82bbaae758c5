package middleware

import (
	"net"
	"net/http"
	"strings"

	"shortlink/pkg/config"
	"shortlink/pkg/limiter"
	"shortlink/pkg/logging"
)

// RateLimit applies the fixed-window counter at two independent scopes:
// per source IP on public routes and per authenticated user behind Auth.
type RateLimit struct {
	limiter *limiter.Limiter
	cfg     *config.Store
	logger  *logging.Logger
}

func NewRateLimit(lim *limiter.Limiter, cfg *config.Store, logger *logging.Logger) *RateLimit {
	return &RateLimit{
		limiter: lim,
		cfg:     cfg,
		logger:  logger,
	}
}

func (rl *RateLimit) ByIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		cfg := rl.cfg.Snapshot()
		ok, err := rl.limiter.Allow(ctx, limiter.IPKey(ClientIP(r)), cfg.IPRate.Limit, cfg.IPRate.Window)
		if err != nil {
			rl.logger.Warn(ctx, "ip rate limit check failed", "error", err)
			http.Error(w, "rate limiter unavailable", http.StatusServiceUnavailable)
			return
		}
		if !ok {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimit) ByUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		user := UserFromContext(ctx)
		if user == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		cfg := rl.cfg.Snapshot()
		ok, err := rl.limiter.Allow(ctx, limiter.UserKey(user.ID), cfg.UserRate.Limit, cfg.UserRate.Window)
		if err != nil {
			rl.logger.Warn(ctx, "user rate limit check failed", "error", err)
			http.Error(w, "rate limiter unavailable", http.StatusServiceUnavailable)
			return
		}
		if !ok {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
