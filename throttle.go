package whisper

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiter interface for rate limiting login attempts
type RateLimiter interface {
	Allow(key string) bool
}

// WindowLimiter is an in-memory fixed-window rate limiter. A key gets
// Limit attempts per Window; the counter resets when the window rolls over.
// Single-node only, which matches the rest of the deployment.
type WindowLimiter struct {
	Limit  int
	Window time.Duration

	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

// NewWindowLimiter creates a limiter allowing limit attempts per window
func NewWindowLimiter(limit int, windowSize time.Duration) *WindowLimiter {
	return &WindowLimiter{
		Limit:   limit,
		Window:  windowSize,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (l *WindowLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.windows[key]
	if w == nil || now.Sub(w.start) >= l.Window {
		l.windows[key] = &window{start: now, count: 1}
		return true
	}
	w.count++
	return w.count <= l.Limit
}

// ClientIP extracts the client address for throttle keys, preferring
// proxy-set headers over the raw peer address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if colonIdx := strings.LastIndex(ip, ":"); colonIdx != -1 {
		ip = ip[:colonIdx]
	}
	return ip
}
