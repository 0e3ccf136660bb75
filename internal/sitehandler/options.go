package sitehandler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/hrescak/Draftboard-sub002/internal/log"
	"github.com/hrescak/Draftboard-sub002/internal/model"
	"github.com/hrescak/Draftboard-sub002/internal/objstore"
)

var ErrInvalidOptions = errors.New("sitehandler: invalid options")

// SiteLookup finds the live deployment behind a public URL.
type SiteLookup interface {
	ActiveSite(ctx context.Context, ownerSlug, siteSlug string) (model.ActiveSite, error)
	ActiveSitesBySlug(ctx context.Context, siteSlug string) ([]model.ActiveSite, error)
}

// Lookup results passed to Options.OnLookup.
const (
	ResultHit         = "hit"
	ResultMiss        = "miss"
	ResultNoSite      = "no_site"
	ResultRedirect    = "redirect"
	ResultAmbiguous   = "ambiguous"
	ResultUnavailable = "unavailable"
	ResultError       = "error"
)

type Options struct {
	Logger log.Logger
	Sites  SiteLookup
	// Objects is nil when storage is not configured; every request then
	// gets 503.
	Objects objstore.Store
	// FallbackFS holds the generic 404 and unavailable pages.
	FallbackFS fs.FS

	// file names inside FallbackFS
	Fallback404File string // default: "404.html"
	UnavailableFile string // default: "unavailable.html"

	// Site404File is looked up under the deployment prefix.
	Site404File string // default: "404.html"

	// CanonicalPrefix is the route legacy requests redirect to.
	CanonicalPrefix string // default: "/sites"

	OnLookup func(result string)
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Fallback404File == "" {
		o.Fallback404File = "404.html"
	}
	if o.UnavailableFile == "" {
		o.UnavailableFile = "unavailable.html"
	}
	if o.Site404File == "" {
		o.Site404File = "404.html"
	}
	if o.CanonicalPrefix == "" {
		o.CanonicalPrefix = "/sites"
	}
	if o.OnLookup == nil {
		o.OnLookup = func(string) {}
	}
}

func (o *Options) validate() error {
	if o.Sites == nil {
		return fmt.Errorf("%w: Sites is nil", ErrInvalidOptions)
	}
	if o.FallbackFS == nil {
		return fmt.Errorf("%w: FallbackFS is nil", ErrInvalidOptions)
	}
	// fail fast on boot if mispackaged
	if _, err := fs.Stat(o.FallbackFS, o.UnavailableFile); err != nil {
		return fmt.Errorf("%w: missing %q in fallback FS: %v", ErrInvalidOptions, o.UnavailableFile, err)
	}
	return nil
}
