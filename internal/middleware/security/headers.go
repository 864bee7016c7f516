package security

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// htmxOrigin serves the htmx script loaded by the page.
const htmxOrigin = "https://unpkg.com"

// Directive is one Content-Security-Policy directive.
type Directive struct {
	Name    string
	Sources []string
}

// Policy describes the headers sent with every response. Fixed headers with
// an empty value are skipped. HSTS is only sent over TLS and only when
// HSTS is positive.
type Policy struct {
	CSP         []Directive
	Fixed       map[string]string
	HSTS        time.Duration
	HSTSPreload bool
}

func DefaultPolicy() Policy {
	self := []string{"'self'"}
	return Policy{
		CSP: []Directive{
			{"default-src", self},
			{"script-src", []string{"'self'", htmxOrigin}},
			{"style-src", []string{"'self'", "'unsafe-inline'"}},
			{"img-src", []string{"'self'", "data:"}},
			{"connect-src", self},
			{"object-src", []string{"'none'"}},
			{"frame-ancestors", []string{"'none'"}},
			{"base-uri", self},
			{"form-action", self},
		},
		Fixed: map[string]string{
			"X-Content-Type-Options":       "nosniff",
			"X-Frame-Options":              "DENY",
			"Referrer-Policy":              "strict-origin-when-cross-origin",
			"Permissions-Policy":           "geolocation=(), microphone=(), camera=(), payment=()",
			"Cross-Origin-Opener-Policy":   "same-origin",
			"Cross-Origin-Resource-Policy": "same-origin",
		},
		HSTS:        365 * 24 * time.Hour,
		HSTSPreload: true,
	}
}

// ContentSecurityPolicy renders the CSP directives in order.
func (p Policy) ContentSecurityPolicy() string {
	parts := make([]string, 0, len(p.CSP))
	for _, d := range p.CSP {
		parts = append(parts, d.Name+" "+strings.Join(d.Sources, " "))
	}
	return strings.Join(parts, "; ")
}

func (p Policy) hstsValue() string {
	if p.HSTS <= 0 {
		return ""
	}
	v := fmt.Sprintf("max-age=%d; includeSubDomains", int64(p.HSTS/time.Second))
	if p.HSTSPreload {
		v += "; preload"
	}
	return v
}

type header struct{ name, value string }

// Headers returns middleware applying p. Header values are computed once.
func Headers(p Policy) func(http.Handler) http.Handler {
	var fixed []header
	if csp := p.ContentSecurityPolicy(); csp != "" {
		fixed = append(fixed, header{"Content-Security-Policy", csp})
	}
	names := make([]string, 0, len(p.Fixed))
	for name := range p.Fixed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if v := p.Fixed[name]; v != "" {
			fixed = append(fixed, header{name, v})
		}
	}
	hsts := p.hstsValue()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, f := range fixed {
				h.Set(f.name, f.value)
			}
			if r.TLS != nil && hsts != "" {
				h.Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CacheStatic marks responses as long-lived. Embedded assets only change
// with a new binary.
func CacheStatic(maxAge time.Duration) func(http.Handler) http.Handler {
	value := fmt.Sprintf("public, max-age=%d, immutable", int64(maxAge/time.Second))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxAge > 0 {
				w.Header().Set("Cache-Control", value)
			}
			next.ServeHTTP(w, r)
		})
	}
}
