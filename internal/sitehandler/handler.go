// Package sitehandler serves published sites from object storage.
//
// A request names a site either canonically by owner and site slug, or by
// the legacy bare site slug, which redirects to the canonical URL when it is
// unambiguous. The remainder of the path is probed against the active
// deployment's prefix using static-host fallbacks (exact file, .html,
// directory index) and then the site's own 404 page.
package sitehandler

import (
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"strings"

	"github.com/hrescak/Draftboard-sub002/internal/httpmw"
	"github.com/hrescak/Draftboard-sub002/internal/log"
	"github.com/hrescak/Draftboard-sub002/internal/model"
	"github.com/hrescak/Draftboard-sub002/internal/objstore"
	"github.com/hrescak/Draftboard-sub002/internal/pathutil"
	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

// HeaderDeploymentKey identifies which deployment produced a response.
const HeaderDeploymentKey = httpmw.DeploymentKeyHeader

type Handler struct {
	opts Options
}

func New(opts Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Handler{opts: opts}, nil
}

// allowRead rejects anything but GET and HEAD.
func allowRead(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusMethodNotAllowed)
	return false
}

// ServeSite serves rest from the active deployment of ownerSlug/siteSlug.
func (h *Handler) ServeSite(w http.ResponseWriter, r *http.Request, ownerSlug, siteSlug, rest string) {
	if !allowRead(w, r) {
		return
	}
	if h.opts.Objects == nil {
		h.serveUnavailable(w, r)
		return
	}

	owner, err1 := pathutil.NormalizeSlug(ownerSlug)
	site, err2 := pathutil.NormalizeSlug(siteSlug)
	rel, ok := objectPath(rest)
	if err1 != nil || err2 != nil || !ok {
		h.opts.OnLookup(ResultNoSite)
		h.serveFallback404(w, r)
		return
	}

	active, err := h.opts.Sites.ActiveSite(r.Context(), owner, site)
	if err != nil {
		h.lookupFailed(w, r, err)
		return
	}
	h.serveObject(w, r, active, rel)
}

// ServeLegacy redirects /legacy/{slug}/{rest} to the canonical URL of the
// only owner publishing slug, keeping the query string.
func (h *Handler) ServeLegacy(w http.ResponseWriter, r *http.Request, siteSlug, rest string) {
	if !allowRead(w, r) {
		return
	}
	if h.opts.Objects == nil {
		h.serveUnavailable(w, r)
		return
	}

	slug, err := pathutil.NormalizeSlug(siteSlug)
	if err != nil {
		h.opts.OnLookup(ResultNoSite)
		h.serveFallback404(w, r)
		return
	}

	active, err := resolveLegacy(r.Context(), h.opts.Sites, slug)
	if err != nil {
		h.lookupFailed(w, r, err)
		return
	}

	h.opts.OnLookup(ResultRedirect)
	http.Redirect(w, r, h.canonicalURL(active, rest, r.URL.RawQuery), http.StatusTemporaryRedirect)
}

func (h *Handler) canonicalURL(a model.ActiveSite, rest, rawQuery string) string {
	u := url.URL{
		Path:     h.opts.CanonicalPrefix + "/" + a.OwnerSlug + "/" + a.SiteSlug + "/" + strings.TrimPrefix(rest, "/"),
		RawQuery: rawQuery,
	}
	return u.String()
}

func (h *Handler) lookupFailed(w http.ResponseWriter, r *http.Request, err error) {
	switch xerrors.KindOf(err) {
	case xerrors.KindNotFound:
		h.opts.OnLookup(ResultNoSite)
		h.serveFallback404(w, r)
	case xerrors.KindConflict:
		h.opts.OnLookup(ResultAmbiguous)
		w.Header().Set("Cache-Control", "no-store")
		http.Error(w, "409 ambiguous site: "+publicMessage(err), http.StatusConflict)
	default:
		h.opts.OnLookup(ResultError)
		h.opts.Logger.Error(r.Context(), err, "site lookup failed", "path", r.URL.Path)
		w.Header().Set("Cache-Control", "no-store")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func publicMessage(err error) string {
	msg, _ := xerrors.Public(err)
	return msg
}

func (h *Handler) serveObject(w http.ResponseWriter, r *http.Request, site model.ActiveSite, rel string) {
	ctx := r.Context()
	obj, key, err := findObject(ctx, h.opts.Objects, r.Method, site.Prefix, rel)
	if err != nil {
		h.storageFailed(w, r, err)
		return
	}
	if obj != nil {
		h.opts.OnLookup(ResultHit)
		h.opts.Logger.Debug(ctx, "site object served", "key", key)
		writeObject(w, r, http.StatusOK, site.DeploymentKey, obj)
		return
	}

	h.opts.OnLookup(ResultMiss)
	page, err := fetch(ctx, h.opts.Objects, r.Method, site.Prefix+"/"+h.opts.Site404File)
	switch {
	case err == nil:
		writeObject(w, r, http.StatusNotFound, site.DeploymentKey, page)
	case objstore.IsNotFound(err):
		h.serveFallback404(w, r)
	default:
		h.storageFailed(w, r, err)
	}
}

func (h *Handler) storageFailed(w http.ResponseWriter, r *http.Request, err error) {
	h.opts.OnLookup(ResultError)
	h.opts.Logger.Error(r.Context(), err, "object storage read failed", "path", r.URL.Path)
	w.Header().Set("Cache-Control", "no-store")
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// writeObject forwards only the content type, cache policy and modification
// time of a stored object.
func writeObject(w http.ResponseWriter, r *http.Request, status int, deploymentKey string, obj *objstore.Object) {
	if obj.Body != nil {
		defer obj.Body.Close()
	}

	hdr := w.Header()
	if obj.ContentType != "" {
		hdr.Set("Content-Type", obj.ContentType)
	}
	cc := obj.CacheControl
	if cc == "" {
		cc = pathutil.CacheRevalidate
	}
	hdr.Set("Cache-Control", cc)
	if !obj.LastModified.IsZero() {
		hdr.Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	}
	hdr.Set(HeaderDeploymentKey, deploymentKey)
	w.WriteHeader(status)

	if r.Method == http.MethodHead || obj.Body == nil {
		return
	}
	if _, err := io.Copy(w, obj.Body); err != nil {
		log.FromContext(r.Context()).Warn(r.Context(), "site object copy interrupted", "err", err)
	}
}

func (h *Handler) serveUnavailable(w http.ResponseWriter, r *http.Request) {
	h.opts.OnLookup(ResultUnavailable)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Retry-After", "60")
	serveFileWithStatus(w, r, http.StatusServiceUnavailable, h.opts.FallbackFS, h.opts.UnavailableFile)
}

// NotFound serves the generic 404 page for routes outside any site.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) { h.serveFallback404(w, r) }

func (h *Handler) serveFallback404(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	if existsFile(h.opts.FallbackFS, h.opts.Fallback404File) {
		serveFileWithStatus(w, r, http.StatusNotFound, h.opts.FallbackFS, h.opts.Fallback404File)
		return
	}
	// last resort: plain text
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	if r.Method != http.MethodHead {
		_, _ = w.Write([]byte("404 page not found"))
	}
}

func existsFile(fsys fs.FS, name string) bool {
	if name == "" || !fs.ValidPath(name) {
		return false
	}
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}

// we want to serve a file but force an HTTP status code (404/503)
// but http.ServeFileFS writes a status code on its own so wrapping
// ResponseWriter and overriding the first WriteHeader call here
type statusOverrideWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusOverrideWriter) WriteHeader(code int) {
	if w.wroteHeader {
		w.ResponseWriter.WriteHeader(code)
		return
	}
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(w.status)
}

func serveFileWithStatus(w http.ResponseWriter, r *http.Request, status int, fsys fs.FS, name string) {
	sw := &statusOverrideWriter{ResponseWriter: w, status: status}
	// ServeFileFS honours conditional and range headers, which must not
	// turn an error page into a 304 or 206. It also redirects any request
	// path ending in /index.html, so the page is served under its own name.
	r2 := r.Clone(r.Context())
	r2.URL.Path = "/" + name
	r2.URL.RawPath = ""
	r2.Header.Del("If-Modified-Since")
	r2.Header.Del("If-None-Match")
	r2.Header.Del("Range")
	http.ServeFileFS(sw, r2, fsys, name)
}
