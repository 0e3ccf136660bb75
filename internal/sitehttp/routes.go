// Package sitehttp mounts the public site serving routes on a chi router.
package sitehttp

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
)

// SiteServer serves canonical and legacy site requests.
type SiteServer interface {
	ServeSite(w http.ResponseWriter, r *http.Request, ownerSlug, siteSlug, rest string)
	ServeLegacy(w http.ResponseWriter, r *http.Request, siteSlug, rest string)
	NotFound(w http.ResponseWriter, r *http.Request)
}

type Routes struct {
	Sites SiteServer
}

func New(sites SiteServer) *Routes {
	return &Routes{Sites: sites}
}

// RegisterRoutes mounts
//
//	/sites/{owner}/{site}/*  canonical
//	/legacy/{slug}/*         legacy, redirects to canonical
//
// Every method is routed to the handler, which answers 405 itself for
// anything but GET and HEAD. Site roots without a trailing slash redirect so
// relative asset URLs resolve under the site.
func (rt *Routes) RegisterRoutes(r chi.Router) {
	r.HandleFunc("/sites/{owner}/{site}/*", func(w http.ResponseWriter, req *http.Request) {
		p, ok := pathParams(req, "owner", "site", "*")
		if !ok {
			rt.Sites.NotFound(w, req)
			return
		}
		rt.Sites.ServeSite(w, req, p[0], p[1], p[2])
	})
	r.HandleFunc("/legacy/{slug}/*", func(w http.ResponseWriter, req *http.Request) {
		p, ok := pathParams(req, "slug", "*")
		if !ok {
			rt.Sites.NotFound(w, req)
			return
		}
		rt.Sites.ServeLegacy(w, req, p[0], p[1])
	})

	r.Get("/sites/{owner}/{site}", addSlash)
	r.Head("/sites/{owner}/{site}", addSlash)
	r.Get("/legacy/{slug}", addSlash)
	r.Head("/legacy/{slug}", addSlash)
}

// pathParams returns the named URL params decoded. chi matches against
// RawPath when the request has one, so only then do params carry escapes.
func pathParams(r *http.Request, names ...string) ([]string, bool) {
	escaped := r.URL.RawPath != ""
	out := make([]string, len(names))
	for i, name := range names {
		v := chi.URLParam(r, name)
		if escaped {
			var err error
			if v, err = url.PathUnescape(v); err != nil {
				return nil, false
			}
		}
		out[i] = v
	}
	return out, true
}

func addSlash(w http.ResponseWriter, r *http.Request) {
	target := r.URL.EscapedPath() + "/"
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusPermanentRedirect)
}

// IsSiteContent reports whether r reads user-published site content, which
// gets a CSP loose enough for arbitrary static HTML. The publish API under
// /sites/ (init, sign, finalize, deployment listings) does not count.
func IsSiteContent(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	p := r.URL.Path
	if strings.HasPrefix(p, "/legacy/") {
		return true
	}
	rest, ok := strings.CutPrefix(p, "/sites/")
	if !ok {
		return false
	}
	// owner/site[/...]; a single segment or {site}/deployments is API
	owner, site, found := strings.Cut(rest, "/")
	if !found || owner == "" || site == "" {
		return false
	}
	return site != "deployments"
}
