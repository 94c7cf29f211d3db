package api

import (
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/geoproapp/geopro-server/internal/ratelimit"
)

// CodeRateLimited is returned with 429 responses.
const CodeRateLimited = "RATE_LIMITED"

// newSessionLimiter converts a per-interval allowance to a keyed limiter.
// A non-positive allowance disables limiting.
func newSessionLimiter(perInterval int, interval time.Duration, burst int) *ratelimit.KeyedRateLimiter {
	if perInterval <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return ratelimit.New(float64(perInterval)/interval.Seconds(), burst)
}

// limitSessionCreation throttles session creation per client IP. Every
// session issues geodata queries for each of its records, so this is the
// endpoint that protects the shared backends.
func (s *Server) limitSessionCreation(ctx huma.Context, next func(huma.Context)) {
	if s.sessionLimiter == nil {
		next(ctx)
		return
	}

	key := clientIP(ctx.RemoteAddr())
	if !s.sessionLimiter.Allow(key) {
		s.logger.Warn("Rate limit exceeded",
			"ip", key,
			"path", ctx.URL().Path,
		)
		_ = huma.WriteErr(s.api, ctx, http.StatusTooManyRequests,
			"Too many sessions created. Please try again later.")
		return
	}
	next(ctx)
}

// clientIP strips the port from a remote address. X-Forwarded-For and
// X-Real-IP are already applied by the RealIP middleware.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
