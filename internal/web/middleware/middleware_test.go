package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JonMunkholm/datasheets/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.RemoteAddr))
	})
}

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name       string
		trusted    []string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"untrusted keeps remote", nil, "1.2.3.4:5555", map[string]string{"X-Real-IP": "9.9.9.9"}, "1.2.3.4:5555"},
		{"trusted uses real ip", []string{"10.0.0.0/8"}, "10.0.0.1:80", map[string]string{"X-Real-IP": "9.9.9.9"}, "9.9.9.9"},
		{"trusted uses first forwarded", []string{"10.0.0.0/8"}, "10.0.0.1:80", map[string]string{"X-Forwarded-For": "8.8.8.8, 10.0.0.2"}, "8.8.8.8"},
		{"bare ip trusted", []string{"127.0.0.1"}, "127.0.0.1:80", map[string]string{"X-Real-IP": "7.7.7.7"}, "7.7.7.7"},
		{"invalid header ignored", []string{"10.0.0.0/8"}, "10.0.0.1:80", map[string]string{"X-Real-IP": "not-an-ip"}, "10.0.0.1:80"},
		{"invalid cidr skipped", []string{"bogus"}, "10.0.0.1:80", map[string]string{"X-Real-IP": "9.9.9.9"}, "10.0.0.1:80"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			TrustedRealIP(tt.trusted)(okHandler()).ServeHTTP(rec, req)

			if got := rec.Body.String(); got != tt.want {
				t.Errorf("RemoteAddr = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIKeyAuth(t *testing.T) {
	cfg := &config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"alpha", "beta"}}

	tests := []struct {
		name     string
		cfg      *config.SecurityConfig
		key      string
		wantCode int
	}{
		{"disabled", &config.SecurityConfig{}, "", http.StatusOK},
		{"missing key", cfg, "", http.StatusUnauthorized},
		{"invalid key", cfg, "gamma", http.StatusForbidden},
		{"first key", cfg, "alpha", http.StatusOK},
		{"second key", cfg, "beta", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/datasheets", nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()

			APIKeyAuth(tt.cfg)(okHandler()).ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK && !strings.Contains(rec.Body.String(), `"code":"AUTH`) {
				t.Errorf("body = %s, want an AUTH error code", rec.Body.String())
			}
		})
	}
}

func TestLogger_CapturesStatus(t *testing.T) {
	var captured *responseWriter
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = w.(*responseWriter)
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("short"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
	if captured.status != http.StatusTeapot {
		t.Errorf("captured status = %d, want %d", captured.status, http.StatusTeapot)
	}
	if captured.bytes != len("short") {
		t.Errorf("captured bytes = %d, want %d", captured.bytes, len("short"))
	}
}
