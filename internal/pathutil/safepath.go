// Package pathutil normalizes the untrusted names that end up in storage
// keys and URLs: site and profile slugs, uploaded object paths and the
// request paths used to look objects up again.
package pathutil

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPathTraversal is returned for "." or ".." segments and NUL bytes.
	ErrPathTraversal = errors.New("path traversal")
	// ErrPathTooLong is returned when a normalized path cannot fit in a storage key.
	ErrPathTooLong = errors.New("path too long")
)

// MaxObjectPathLen leaves room for the sites/{owner}/{site}/{key}/ prefix
// inside the 1024 byte S3 key limit.
const MaxObjectPathLen = 800

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// NormalizeObjectPath turns a client supplied path into the relative form
// used below a deployment prefix. Backslashes count as separators, leading
// and repeated slashes are dropped. An empty input yields "".
func NormalizeObjectPath(p string) (string, error) {
	if strings.IndexByte(p, 0) >= 0 {
		return "", fmt.Errorf("%w: NUL byte", ErrPathTraversal)
	}
	p = strings.ReplaceAll(p, `\`, "/")

	segs := make([]string, 0, strings.Count(p, "/")+1)
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "":
			continue
		case ".", "..":
			return "", fmt.Errorf("%w: %q segment", ErrPathTraversal, seg)
		}
		segs = append(segs, seg)
	}

	out := strings.Join(segs, "/")
	if len(out) > MaxObjectPathLen {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrPathTooLong, len(out), MaxObjectPathLen)
	}
	return out, nil
}
