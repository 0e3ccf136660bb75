package pathutil

import (
	"path"
	"regexp"
	"strings"
)

// BuildObjectCandidates lists the object paths to try, in order, for a
// normalized request path. The order mirrors common static hosts: the exact
// name, then "pretty URL" .html, then a directory index.
func BuildObjectCandidates(p string) []string {
	if p == "" {
		return []string{"index.html"}
	}
	if path.Ext(p) != "" {
		return []string{p}
	}
	return []string{p, p + ".html", p + "/index.html"}
}

// Cache-Control policies applied to uploaded objects.
const (
	CacheRevalidate = "public, max-age=0, must-revalidate"
	CacheImmutable  = "public, max-age=31536000, immutable"
	CacheDefault    = "public, max-age=3600"
)

// content-addressed build output, e.g. chunk-abcdef12.js or app.3f9c2a7e1b.css
var hashedAssetRe = regexp.MustCompile(`(?i)(^|[.-])[0-9a-f]{8,}([.-]|$)`)

// InferCacheControl picks a Cache-Control value from an object path.
// Documents always revalidate, fingerprinted assets are cached forever and
// everything else gets an hour.
func InferCacheControl(p string) string {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(p), ".")) {
	case "html", "json", "txt", "xml", "webmanifest", "map":
		return CacheRevalidate
	}
	if hashedAssetRe.MatchString(path.Base(p)) {
		return CacheImmutable
	}
	return CacheDefault
}
