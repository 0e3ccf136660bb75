// Package httpmw provides HTTP middleware for the public server.
//
// httpserver composes them outermost first: panic recovery, security
// headers, request ID, client IP extraction, rate limiting, OTEL tracing,
// route annotation, metrics, structured logging, and the chi router.
//
// Each middleware stands alone and can be tested, reordered, or removed
// individually. Request bodies, user agents and bearer tokens are never
// logged.
package httpmw
