package sitehandler

import (
	"context"
	"net/http"

	"github.com/hrescak/Draftboard-sub002/internal/model"
	"github.com/hrescak/Draftboard-sub002/internal/objstore"
	"github.com/hrescak/Draftboard-sub002/internal/pathutil"
	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

// resolveLegacy maps a bare site slug to the one owner serving it. Zero
// matches is NotFound, more than one is Conflict.
func resolveLegacy(ctx context.Context, sites SiteLookup, slug string) (model.ActiveSite, error) {
	matches, err := sites.ActiveSitesBySlug(ctx, slug)
	if err != nil {
		return model.ActiveSite{}, err
	}
	switch len(matches) {
	case 0:
		return model.ActiveSite{}, xerrors.E(xerrors.KindNotFound, "site not found")
	case 1:
		return matches[0], nil
	default:
		return model.ActiveSite{}, xerrors.Ef(xerrors.KindConflict,
			"site slug %q is published by %d profiles", slug, len(matches))
	}
}

// objectPath turns the request remainder into a storage-relative path. ok
// is false for paths that can never name an object.
func objectPath(rest string) (p string, ok bool) {
	p, err := pathutil.NormalizeObjectPath(rest)
	if err != nil {
		return "", false
	}
	return p, true
}

// fetch reads key with GET or HEAD to match the inbound method.
func fetch(ctx context.Context, objects objstore.Store, method, key string) (*objstore.Object, error) {
	if method == http.MethodHead {
		return objects.Head(ctx, key)
	}
	return objects.Get(ctx, key)
}

// findObject probes each candidate in order and returns the first that
// exists. A storage error other than not found stops the probe.
func findObject(ctx context.Context, objects objstore.Store, method, prefix, rel string) (*objstore.Object, string, error) {
	for _, c := range pathutil.BuildObjectCandidates(rel) {
		key := prefix + "/" + c
		obj, err := fetch(ctx, objects, method, key)
		if err == nil {
			return obj, key, nil
		}
		if !objstore.IsNotFound(err) {
			return nil, "", err
		}
	}
	return nil, "", nil
}
