package middleware

import (
	"net/http"
)

// SecurityHeaders adds security-related HTTP headers to responses.
// The checkout surface serves an iframe page that the shop frontend
// embeds, so framing cannot be denied outright: frameAncestor names
// the single origin allowed to frame us.
type SecurityHeaders struct {
	isDevelopment bool
	frameAncestor string
}

// NewSecurityHeaders creates a new security headers middleware.
// frameAncestor is the shop origin allowed to embed checkout pages,
// e.g. "https://shop.example.com". Empty means same-origin only.
func NewSecurityHeaders(isDevelopment bool, frameAncestor string) *SecurityHeaders {
	return &SecurityHeaders{
		isDevelopment: isDevelopment,
		frameAncestor: frameAncestor,
	}
}

// Middleware wraps an HTTP handler with security headers
func (sh *SecurityHeaders) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")

		if !sh.isDevelopment {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		ancestors := "'self'"
		if sh.frameAncestor != "" {
			ancestors = "'self' " + sh.frameAncestor
		}
		// frame-src https: lets the iframe page embed the paygate form.
		w.Header().Set("Content-Security-Policy",
			"default-src 'self'; frame-src https:; frame-ancestors "+ancestors+"; base-uri 'self'")

		// Legacy equivalent of frame-ancestors for older browsers.
		// SAMEORIGIN rather than DENY because of the iframe page.
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")

		next.ServeHTTP(w, r)
	})
}
