package whisper

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestWindowLimiter(t *testing.T) {
	now := time.Now()
	limiter := NewWindowLimiter(3, time.Minute)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !limiter.Allow("1.2.3.4:alice") {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if limiter.Allow("1.2.3.4:alice") {
		t.Error("attempt 4 should be limited")
	}

	// a different key has its own window
	if !limiter.Allow("1.2.3.4:bob") {
		t.Error("different key should not be limited")
	}

	// window rollover resets the count
	now = now.Add(time.Minute)
	if !limiter.Allow("1.2.3.4:alice") {
		t.Error("attempt after window rollover should be allowed")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr only", "10.0.0.1:4567", nil, "10.0.0.1"},
		{"x-forwarded-for", "10.0.0.1:4567", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, "1.2.3.4"},
		{"x-real-ip", "10.0.0.1:4567", map[string]string{"X-Real-IP": "5.6.7.8"}, "5.6.7.8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
