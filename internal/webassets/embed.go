// Package webassets embeds the pages served when a published site cannot
// supply its own.
package webassets

import (
	"embed"
	"fmt"
	"io/fs"
)

// File names inside FallbackFS.
const (
	NotFoundPage    = "404.html"
	UnavailablePage = "unavailable.html"
)

//go:embed fallback
var embedded embed.FS

func FallbackFS() fs.FS {
	sub, err := fs.Sub(embedded, "fallback")
	if err != nil {
		panic(fmt.Errorf("webassets: fallback subfs: %w", err))
	}
	return sub
}
