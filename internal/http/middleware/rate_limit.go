package middleware

import (
	"net"
	"net/http"
	"time"

	"github.com/safecircle/safecircle-backend/internal/domain"
	"github.com/safecircle/safecircle-backend/internal/http/response"
	"github.com/safecircle/safecircle-backend/internal/repo/postgres"
	"github.com/safecircle/safecircle-backend/pkg/logger"
)

// RateLimit caps requests per client IP per window on top of the
// shared counter table, so the cap holds across instances. Counter
// failures fail open: the OTP-level quotas still stand behind this.
func RateLimit(repo postgres.RequestRateRepository, prefix string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := prefix + ":" + ClientIP(r)

			count, err := repo.Hit(r.Context(), key, window)
			if err != nil {
				logger.ErrorContext(r.Context(), "Rate limit counter unavailable", "error", err, "key", prefix)
				next.ServeHTTP(w, r)
				return
			}
			if count > limit {
				logger.WarnContext(r.Context(), "Request rate limit hit", "key", prefix, "count", count)
				response.Error(w, r, domain.CodeRateLimitExceeded, "Too many requests. Try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP resolves the caller's address, preferring the first
// X-Forwarded-For hop when the service sits behind a proxy.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
