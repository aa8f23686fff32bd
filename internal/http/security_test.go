package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"direct peer", "203.0.113.7:5555", nil, "203.0.113.7"},
		{"untrusted peer cannot spoof", "203.0.113.7:5555", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "203.0.113.7"},
		{"trusted proxy forwards", "10.0.0.2:80", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.2"}, "198.51.100.1"},
		{"trusted proxy real ip", "127.0.0.1:80", map[string]string{"X-Real-IP": "198.51.100.9"}, "198.51.100.9"},
		{"garbage forwarded header ignored", "192.168.1.1:80", map[string]string{"X-Forwarded-For": "not-an-ip"}, "192.168.1.1"},
		{"no port", "198.51.100.3", nil, "198.51.100.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, extractClientIP(r))
		})
	}
}

func TestDetectSuspiciousRequest(t *testing.T) {
	m := &securityMetrics{}

	assert.False(t, detectSuspiciousRequest(httptest.NewRequest(http.MethodGet, "/?project=101&start_date=2024-01-01", nil), m))
	assert.True(t, detectSuspiciousRequest(httptest.NewRequest(http.MethodGet, "/.env", nil), m))
	assert.True(t, detectSuspiciousRequest(httptest.NewRequest(http.MethodGet, "/?project=1%27%20UNION%20SELECT%20*", nil), m))
	assert.True(t, detectSuspiciousRequest(httptest.NewRequest("TRACE", "/", nil), m))

	assert.Equal(t, int64(3), m.snapshot().SuspiciousRequests)
}

func TestRateLimiterWindow(t *testing.T) {
	rl := &rateLimiter{limit: 2, window: time.Minute, clients: map[string]*clientWindow{}}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	m := &securityMetrics{}

	assert.True(t, rl.allow("a", m))
	assert.True(t, rl.allow("a", m))
	assert.False(t, rl.allow("a", m))
	assert.True(t, rl.allow("b", m), "clients are limited independently")

	now = now.Add(time.Minute)
	assert.True(t, rl.allow("a", m), "a new window starts")
	assert.Equal(t, int64(1), m.snapshot().RateLimitHits)

	now = now.Add(10 * time.Minute)
	assert.Equal(t, 2, rl.cleanupStaleEntries())
}
