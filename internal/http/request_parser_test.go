package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestBodyParser(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantErr     bool
		wantJSON    bool
		want        map[string]string
	}{
		{
			name:        "form body",
			contentType: "application/x-www-form-urlencoded",
			body:        "date=2024-01-02&count=3",
			want:        map[string]string{"date": "2024-01-02", "count": "3"},
		},
		{
			name:        "JSON body with numeric count",
			contentType: "application/json",
			body:        `{"date":"2024-01-02","count":2.5}`,
			wantJSON:    true,
			want:        map[string]string{"date": "2024-01-02", "count": "2.5"},
		},
		{
			name:     "JSON detected without content type",
			body:     `  {"count":"7"}`,
			wantJSON: true,
			want:     map[string]string{"count": "7", "date": ""},
		},
		{
			name:        "control characters and padding removed",
			contentType: "application/x-www-form-urlencoded",
			body:        "date=%202024-01-02%0A&count=%094",
			want:        map[string]string{"date": "2024-01-02", "count": "4"},
		},
		{
			name: "empty body",
			want: map[string]string{"date": "", "count": ""},
		},
		{
			name:        "malformed JSON",
			contentType: "application/json",
			body:        `{"date":`,
			wantErr:     true,
		},
		{
			name:        "JSON content type with non object",
			contentType: "application/json",
			body:        `[1,2]`,
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/days", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			p := NewRequestBodyParser(httptest.NewRecorder(), req)

			err := p.Parse()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if p.IsJSON() != tt.wantJSON {
				t.Errorf("IsJSON() = %v, want %v", p.IsJSON(), tt.wantJSON)
			}
			for key, want := range tt.want {
				if got := p.Get(key); got != want {
					t.Errorf("Get(%q) = %q, want %q", key, got, want)
				}
			}
		})
	}
}

func TestRequestBodyParser_TooLarge(t *testing.T) {
	body := "count=" + strings.Repeat("1", maxBodyBytes)
	req := httptest.NewRequest(http.MethodPost, "/api/days", strings.NewReader(body))
	p := NewRequestBodyParser(httptest.NewRecorder(), req)

	if err := p.Parse(); err == nil {
		t.Error("expected error for oversized body")
	}
}

func TestRequireMethod(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/api/days/2024-01-01", nil)
	if b := RequireMethod(req, http.MethodPut, http.MethodDelete); b != nil {
		t.Fatal("PUT should be allowed")
	}

	b := RequireMethod(req, http.MethodGet, http.MethodHead)
	if b == nil {
		t.Fatal("PUT should be rejected")
	}
	w := httptest.NewRecorder()
	b.Write(w)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
	if got := w.Header().Get("Allow"); got != "GET, HEAD" {
		t.Errorf("Allow = %q", got)
	}
}

func TestMethodOverride(t *testing.T) {
	tests := []struct {
		method string
		body   string
		want   string
	}{
		{http.MethodPost, "_method=DELETE", http.MethodDelete},
		{http.MethodPost, "_method=delete", http.MethodDelete},
		{http.MethodPost, "_method=PATCH", http.MethodPost},
		{http.MethodPost, "count=1", http.MethodPost},
		{http.MethodPut, "_method=DELETE", http.MethodPut},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, "/api/days/2024-01-01", strings.NewReader(tt.body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		p := NewRequestBodyParser(httptest.NewRecorder(), req)
		if err := p.Parse(); err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		if got := methodOverride(req, p); got != tt.want {
			t.Errorf("%s %q: methodOverride = %s, want %s", tt.method, tt.body, got, tt.want)
		}
	}
}
