package security

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"sync/atomic"

	applog "tally/internal/log"
)

const maxURLLength = 2048

var scanFragments = []string{
	"../", "..\\", ".env", ".git", ".ssh", "etc/passwd",
	"wp-admin", "phpmyadmin", "admin.php", "config.php", "cmd.exe",
	"<script", "javascript:", "eval(", "union select",
}

var scannerAgents = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb", "scanner"}

// Detector flags requests that look like vulnerability scans and resolves client IPs
// behind trusted proxies. It only reports; nothing is blocked.
type Detector struct {
	suspicious atomic.Int64
	trusted    []netip.Prefix
}

func NewDetector() *Detector {
	return &Detector{
		trusted: []netip.Prefix{
			netip.MustParsePrefix("127.0.0.0/8"),
			netip.MustParsePrefix("10.0.0.0/8"),
			netip.MustParsePrefix("172.16.0.0/12"),
			netip.MustParsePrefix("192.168.0.0/16"),
			netip.MustParsePrefix("::1/128"),
		},
	}
}

// Inspect returns why r looks like a scan, or "" when it does not.
func (d *Detector) Inspect(r *http.Request) string {
	reason := scanReason(r)
	if reason != "" {
		d.suspicious.Add(1)
	}
	return reason
}

func scanReason(r *http.Request) string {
	switch r.Method {
	case "TRACE", "TRACK", "DEBUG", "CONNECT":
		return "method " + r.Method
	}

	target := strings.ToLower(r.URL.Path + "?" + r.URL.RawQuery)
	for _, f := range scanFragments {
		if strings.Contains(target, f) {
			return "target contains " + f
		}
	}

	agent := strings.ToLower(r.Header.Get("User-Agent"))
	for _, a := range scannerAgents {
		if strings.Contains(agent, a) {
			return "scanner agent " + a
		}
	}

	if len(r.URL.String()) > maxURLLength {
		return "oversized URL"
	}
	if strings.Count(r.Header.Get("X-Forwarded-For"), ",") > 5 {
		return "long forwarding chain"
	}
	return ""
}

// Middleware logs suspicious requests and lets them through.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason := d.Inspect(r); reason != "" {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				"reason", reason,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path,
				applog.FieldClientIP, d.ExtractClientIP(r),
				applog.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}

// ExtractClientIP returns the peer address, or the first forwarded address
// when the peer is a trusted proxy.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	peer, err := netip.ParseAddrPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	addr := peer.Addr().Unmap()
	if !d.isTrusted(addr) {
		return addr.String()
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if fwd, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return fwd.String()
		}
	}
	if fwd, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return fwd.String()
	}
	return addr.String()
}

func (d *Detector) isTrusted(addr netip.Addr) bool {
	for _, p := range d.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// SuspiciousRequests returns how many requests were flagged.
func (d *Detector) SuspiciousRequests() int64 {
	return d.suspicious.Load()
}

// AddTrustedProxy trusts forwarded headers from peers inside cidr. Call it
// before serving.
func (d *Detector) AddTrustedProxy(cidr string) error {
	p, err := netip.ParsePrefix(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.trusted = append(d.trusted, p.Masked())
	return nil
}
