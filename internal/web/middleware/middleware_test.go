package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JonMunkholm/jobetl/internal/config"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(r.RemoteAddr))
}

func TestAPIKeyAuth(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.SecurityConfig
		key        string
		wantStatus int
	}{
		{name: "disabled", cfg: config.SecurityConfig{}, wantStatus: http.StatusOK},
		{name: "missing key", cfg: config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1"}}, wantStatus: http.StatusUnauthorized},
		{name: "wrong key", cfg: config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1"}}, key: "nope", wantStatus: http.StatusForbidden},
		{name: "second key", cfg: config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1", "k2"}}, key: "k2", wantStatus: http.StatusOK},
		{name: "no keys configured", cfg: config.SecurityConfig{RequireAPIKey: true}, key: "k1", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/runs", nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()

			APIKeyAuth(tt.cfg)(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		remote  string
		headers map[string]string
		want    string
	}{
		{
			name:    "untrusted peer keeps remote addr",
			trusted: []string{"10.0.0.0/8"},
			remote:  "192.0.2.1:1234",
			headers: map[string]string{"X-Real-IP": "203.0.113.9"},
			want:    "192.0.2.1:1234",
		},
		{
			name:    "trusted peer uses X-Real-IP",
			trusted: []string{"10.0.0.0/8"},
			remote:  "10.1.2.3:1234",
			headers: map[string]string{"X-Real-IP": "203.0.113.9"},
			want:    "203.0.113.9",
		},
		{
			name:    "first forwarded hop",
			trusted: []string{"127.0.0.1"},
			remote:  "127.0.0.1:80",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.7, 10.0.0.1"},
			want:    "198.51.100.7",
		},
		{
			name:    "garbage header ignored",
			trusted: []string{"127.0.0.1"},
			remote:  "127.0.0.1:80",
			headers: map[string]string{"X-Real-IP": "not-an-ip"},
			want:    "127.0.0.1:80",
		},
		{
			name:    "invalid trusted entry skipped",
			trusted: []string{"bogus", " "},
			remote:  "127.0.0.1:80",
			headers: map[string]string{"X-Real-IP": "203.0.113.9"},
			want:    "127.0.0.1:80",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			TrustedRealIP(tt.trusted)(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)

			if got := rec.Body.String(); got != tt.want {
				t.Errorf("RemoteAddr = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLogger_CapturesStatus(t *testing.T) {
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}
