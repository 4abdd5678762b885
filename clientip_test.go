package authgate

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"no headers", nil, UnknownClientIP},
		{"cloudflare wins", map[string]string{"CF-Connecting-IP": "1.2.3.4", "X-Real-IP": "5.6.7.8"}, "1.2.3.4"},
		{"real ip before forwarded", map[string]string{"X-Real-IP": "5.6.7.8", "X-Forwarded-For": "9.9.9.9"}, "5.6.7.8"},
		{"first forwarded entry", map[string]string{"X-Forwarded-For": " 10.0.0.1 , 10.0.0.2, 10.0.0.3"}, "10.0.0.1"},
		{"client ip", map[string]string{"X-Client-IP": "8.8.8.8"}, "8.8.8.8"},
		{"true client ip", map[string]string{"True-Client-IP": "8.8.4.4"}, "8.8.4.4"},
		{"ipv6", map[string]string{"X-Real-IP": "2001:db8::1"}, "2001:db8::1"},
		{"mapped ipv4", map[string]string{"X-Real-IP": "::ffff:1.2.3.4"}, "1.2.3.4"},
		{"garbage skipped", map[string]string{"CF-Connecting-IP": "not-an-ip", "X-Client-IP": "7.7.7.7"}, "7.7.7.7"},
		{"only garbage", map[string]string{"X-Forwarded-For": "unknown"}, UnknownClientIP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			req.RemoteAddr = "192.0.2.1:1234"
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
