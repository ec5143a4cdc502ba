package daemon

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTokenAuthMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := TokenAuthMiddleware("secret", next)

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"health open", "/health", "", http.StatusOK},
		{"v1 without token", "/v1/runs", "", http.StatusUnauthorized},
		{"v1 wrong token", "/v1/runs", "Bearer wrong", http.StatusUnauthorized},
		{"v1 missing scheme", "/v1/runs", "secret", http.StatusUnauthorized},
		{"v1 with token", "/v1/runs", "Bearer secret", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: got %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}
