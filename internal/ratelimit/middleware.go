package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/toko-commerce/internal/common"
	"github.com/noah-isme/toko-commerce/internal/obs"
)

// Allower decides whether one more event for key fits within max per window.
type Allower interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error)
}

// Config describes how to derive a rate limit key and thresholds. Requests
// for which Skip returns true bypass the limiter entirely.
type Config struct {
	Key    func(*http.Request) string
	Skip   func(*http.Request) bool
	Window time.Duration
	Max    int
}

// Handler enforces rate limits before delegating to the next handler. The
// limiter failing open is reported through OnError.
type Handler struct {
	Limiter Allower
	Config  Config
	OnError func(error)
}

// Middleware implements the chi middleware signature.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Config.Key == nil || h.Limiter == nil || (h.Config.Skip != nil && h.Config.Skip(r)) {
			next.ServeHTTP(w, r)
			return
		}
		allowed, remaining, resetAt, err := h.Limiter.Allow(r.Context(), h.Config.Key(r), h.Config.Window, h.Config.Max)
		if err != nil {
			count("error")
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(max(h.Config.Max, 0)))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
		if !allowed {
			count("limited")
			retryAfter := int(time.Until(resetAt).Round(time.Second) / time.Second)
			headers.Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
			return
		}
		count("allowed")
		next.ServeHTTP(w, r)
	})
}

// SkipReads exempts safe methods so only mutations are limited.
func SkipReads(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// ByClientIP keys limits by the caller's address. Proxy headers are expected
// to have been folded into RemoteAddr by chi's RealIP middleware.
func ByClientIP(prefix string) func(*http.Request) string {
	return func(r *http.Request) string {
		return prefix + "ip:" + remoteHost(r)
	}
}

// ByCustomer keys limits by the customer identity, falling back to the
// caller's address for anonymous requests.
func ByCustomer(prefix string) func(*http.Request) string {
	return func(r *http.Request) string {
		if id, ok := common.CustomerID(r.Context()); ok {
			return prefix + "customer:" + id.String()
		}
		return prefix + "ip:" + remoteHost(r)
	}
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func count(decision string) {
	if obs.RateLimitTotal != nil {
		obs.RateLimitTotal.WithLabelValues(decision).Inc()
	}
}
