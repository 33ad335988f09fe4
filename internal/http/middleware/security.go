package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// apiCSP forbids every fetch and framing; JSON responses never need either.
const apiCSP = "default-src 'none'; frame-ancestors 'none'"

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS sends Strict-Transport-Security on HTTPS requests only.
	EnableHSTS bool
	HSTSMaxAge time.Duration // <= 0 means 180 days
	// PrivatePrefix marks per-user routes (the API base path). Responses under
	// it get Cache-Control: private, no-cache so shared caches never keep a
	// report while clients can still revalidate with ETag.
	PrivatePrefix string
	// CSPExempt lists path prefixes that serve HTML (Swagger UI) and must not
	// receive the locked-down Content-Security-Policy.
	CSPExempt []string
}

// SecurityHeaders attaches browser hardening headers to every response.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = 180 * 24 * time.Hour
	}
	hsts := "max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10) + "; includeSubDomains"
	private := strings.TrimRight(opt.PrivatePrefix, "/")

	return func(c *gin.Context) {
		h := c.Writer.Header()
		path := c.Request.URL.Path

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
		if !hasAnyPrefix(path, opt.CSPExempt) {
			h.Set("Content-Security-Policy", apiCSP)
		}
		if private != "" && (path == private || strings.HasPrefix(path, private+"/")) {
			h.Set("Cache-Control", "private, no-cache")
			h.Add("Vary", "Authorization")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		c.Next()
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// isHTTPS reports TLS on the connection or X-Forwarded-Proto: https from a proxy.
func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
