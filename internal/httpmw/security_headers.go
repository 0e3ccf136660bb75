package httpmw

import "net/http"

// Security note: CSRF protection is not implemented because it is not applicable.
// The publish API authenticates with bearer tokens only, never cookies.

// apiCSP locks down API and error responses completely.
const apiCSP = "default-src 'none'; base-uri 'none'; form-action 'none'; frame-ancestors 'none'; object-src 'none'"

// siteCSP applies to published sites, which load their own scripts and
// styles. It only forbids plugins and framing by other origins.
const siteCSP = "object-src 'none'; frame-ancestors 'self'; upgrade-insecure-requests"

// SecurityHeaders adds common security headers to every response.
// isSiteContent selects the relaxed policy for user-published pages; nil
// treats every request as API traffic.
func SecurityHeaders(isSiteContent func(*http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()

			// Require HTTPS for one year, including subdomains, and allow preload
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")

			// Disable MIME type sniffing; stored objects declare their own type
			h.Set("X-Content-Type-Options", "nosniff")

			// Referrer policy to control information sent in Referer header
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

			// Prevent Adobe Flash and Acrobat from loading content
			h.Set("X-Permitted-Cross-Domain-Policies", "none")

			if isSiteContent != nil && isSiteContent(r) {
				h.Set("Content-Security-Policy", siteCSP)
				h.Set("X-Frame-Options", "SAMEORIGIN")
			} else {
				h.Set("Content-Security-Policy", apiCSP)
				h.Set("X-Frame-Options", "DENY")
				h.Set("Cross-Origin-Opener-Policy", "same-origin")
				h.Set("Cross-Origin-Resource-Policy", "same-origin")
				h.Set("Permissions-Policy", "accelerometer=(), camera=(), geolocation=(), gyroscope=(), magnetometer=(), microphone=(), payment=(), usb=()")
			}

			next.ServeHTTP(w, r)
		})
	}
}
