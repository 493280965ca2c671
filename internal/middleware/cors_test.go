package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := CORS([]string{"http://localhost:3000"})(next)

	tests := []struct {
		name        string
		method      string
		origin      string
		preflight   bool
		wantStatus  int
		wantOrigin  string
		wantCreds   string
		wantHeaders string
	}{
		{"allowed origin", http.MethodGet, "http://localhost:3000", false, http.StatusTeapot, "http://localhost:3000", "true", "Authorization, Content-Type"},
		{"unknown origin", http.MethodGet, "http://evil.example", false, http.StatusTeapot, "", "", ""},
		{"preflight", http.MethodOptions, "http://localhost:3000", true, http.StatusNoContent, "http://localhost:3000", "true", "Authorization, Content-Type"},
		{"plain options", http.MethodOptions, "http://localhost:3000", false, http.StatusTeapot, "http://localhost:3000", "true", "Authorization, Content-Type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/posts", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCreds {
				t.Errorf("Allow-Credentials = %q, want %q", got, tt.wantCreds)
			}
			if got := rr.Header().Get("Access-Control-Allow-Headers"); got != tt.wantHeaders {
				t.Errorf("Allow-Headers = %q, want %q", got, tt.wantHeaders)
			}
		})
	}
}

func TestCORSWildcardHasNoCredentials(t *testing.T) {
	h := CORS([]string{"*"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://any.example")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://any.example" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("Allow-Credentials = %q, want empty", got)
	}
}

func TestMatchOrigin(t *testing.T) {
	allowed := []string{"https://studio.example.com", "*"}

	tests := []struct {
		origin       string
		wantOK       bool
		wantExplicit bool
	}{
		{"https://studio.example.com", true, true},
		{"https://other.example.com", true, false},
		{"", false, false},
	}
	for _, tt := range tests {
		ok, explicit := MatchOrigin(allowed, tt.origin)
		if ok != tt.wantOK || explicit != tt.wantExplicit {
			t.Errorf("MatchOrigin(%q) = %v, %v; want %v, %v", tt.origin, ok, explicit, tt.wantOK, tt.wantExplicit)
		}
	}

	if ok, _ := MatchOrigin([]string{"https://studio.example.com"}, "https://evil.example.com"); ok {
		t.Error("Expected unlisted origin to be rejected")
	}
}
