package publishhttp

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hrescak/Draftboard-sub002/internal/deploy"
	"github.com/hrescak/Draftboard-sub002/internal/log"
	"github.com/hrescak/Draftboard-sub002/internal/model"
	"github.com/hrescak/Draftboard-sub002/internal/publishauth"
	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

// ---------------------------------------------------------------------------
// sessions
// ---------------------------------------------------------------------------

type sessionBody struct {
	ExpiresInMinutes int `json:"expiresInMinutes" validate:"omitempty,min=5,max=240"`
}

type sessionResponse struct {
	Token            string    `json:"token"`
	ProfileSlug      string    `json:"profileSlug"`
	ExpiresAt        time.Time `json:"expiresAt"`
	ExpiresInMinutes int       `json:"expiresInMinutes"`
}

// createSession trades an interactive sign-in token for a publish token.
func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	if a.opts.Accounts == nil {
		writeError(w, r, xerrors.E(xerrors.KindUnavailable, "publish sessions are not enabled"))
		return
	}
	acct, err := a.opts.Accounts.Verify(r.Context(), publishauth.BearerToken(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var body sessionBody
	if err := decode(r, &body, true); err != nil {
		writeError(w, r, err)
		return
	}

	issued, err := a.opts.Sessions.Issue(r.Context(), acct.ID, body.ExpiresInMinutes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.opts.OnSessionIssued()
	log.FromContext(r.Context()).Info(r.Context(), "publish session issued",
		"session_id", issued.Session.ID,
		"profile", acct.ProfileSlug,
		"expires_at", issued.Session.ExpiresAt,
	)

	writeJSON(w, http.StatusCreated, sessionResponse{
		Token:            issued.Token,
		ProfileSlug:      acct.ProfileSlug,
		ExpiresAt:        issued.Session.ExpiresAt.UTC(),
		ExpiresInMinutes: int(issued.ExpiresIn / time.Minute),
	})
}

// revokeSession revokes the publish token presented with the request.
func (a *API) revokeSession(w http.ResponseWriter, r *http.Request) {
	token := publishauth.BearerToken(r)
	if token == "" {
		writeError(w, r, xerrors.E(xerrors.KindUnauthorized, "missing publish token"))
		return
	}
	if err := a.opts.Sessions.Revoke(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// deployments
// ---------------------------------------------------------------------------

// ownedBody resolves the owner named by the body's ownerProfileSlug and then
// decodes the whole body into dst. The owner is checked first so a token
// acting for someone it may not is refused whatever else the body holds.
func (a *API) ownedBody(r *http.Request, dst any) (model.OwnerContext, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		if tooLarge := bodyTooLarge(err); tooLarge != nil {
			return model.OwnerContext{}, tooLarge
		}
		return model.OwnerContext{}, xerrors.WithKind(err, xerrors.KindValidation, "request body could not be read")
	}
	var target struct {
		OwnerProfileSlug string `json:"ownerProfileSlug"`
	}
	// a malformed body is reported by the strict decode below
	_ = json.Unmarshal(raw, &target)

	owner, err := a.owner(r, target.OwnerProfileSlug)
	if err != nil {
		return model.OwnerContext{}, err
	}
	if err := decodeJSON(bytes.NewReader(raw), dst, false); err != nil {
		return model.OwnerContext{}, err
	}
	return owner, nil
}

type initBody struct {
	SiteSlug         string `json:"siteSlug" validate:"max=128"`
	OwnerProfileSlug string `json:"ownerProfileSlug" validate:"max=128"`
	SiteName         string `json:"siteName" validate:"max=200"`
}

type ownerJSON struct {
	ProfileSlug string `json:"profileSlug"`
}

type siteJSON struct {
	ID    string    `json:"id"`
	Slug  string    `json:"slug"`
	Name  string    `json:"name"`
	Owner ownerJSON `json:"owner"`
}

type deploymentJSON struct {
	ID              string       `json:"id"`
	DeploymentKey   string       `json:"deploymentKey"`
	Prefix          string       `json:"prefix"`
	Status          model.Status `json:"status,omitempty"`
	FileCount       *int         `json:"fileCount,omitempty"`
	TotalBytes      *int64       `json:"totalBytes,omitempty"`
	PublishedPostID *string      `json:"publishedPostId,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	ActivatedAt     *time.Time   `json:"activatedAt,omitempty"`
}

type initResponse struct {
	Site       siteJSON       `json:"site"`
	Deployment deploymentJSON `json:"deployment"`
	PublishURL string         `json:"publishUrl"`
}

func (a *API) initSite(w http.ResponseWriter, r *http.Request) {
	var body initBody
	owner, err := a.ownedBody(r, &body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := a.opts.Deploy.Init(r.Context(), owner, deploy.InitRequest{
		SiteSlug: body.SiteSlug,
		SiteName: body.SiteName,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	d := res.Deployment
	writeJSON(w, http.StatusCreated, initResponse{
		Site: siteJSON{
			ID:    res.Site.ID,
			Slug:  res.Site.Slug,
			Name:  res.Site.Name,
			Owner: ownerJSON{ProfileSlug: owner.ProfileSlug},
		},
		Deployment: deploymentJSON{
			ID:            d.ID,
			DeploymentKey: d.DeploymentKey,
			Prefix:        d.Prefix,
			CreatedAt:     d.CreatedAt.UTC(),
		},
		PublishURL: res.PublicURL,
	})
}

type fileBody struct {
	Path        string `json:"path" validate:"required,max=1024"`
	ContentType string `json:"contentType" validate:"max=255"`
}

type signBody struct {
	SiteSlug         string     `json:"siteSlug" validate:"required"`
	OwnerProfileSlug string     `json:"ownerProfileSlug"`
	DeploymentID     string     `json:"deploymentId" validate:"required,uuid"`
	Files            []fileBody `json:"files" validate:"required,min=1,max=500,dive"`
}

type uploadJSON struct {
	Path      string            `json:"path"`
	Key       string            `json:"key"`
	UploadURL string            `json:"uploadUrl"`
	Headers   map[string]string `json:"headers"`
}

type signResponse struct {
	DeploymentID string       `json:"deploymentId"`
	Uploads      []uploadJSON `json:"uploads"`
}

func (a *API) signFiles(w http.ResponseWriter, r *http.Request) {
	var body signBody
	owner, err := a.ownedBody(r, &body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	files := make([]deploy.FileSpec, len(body.Files))
	for i, f := range body.Files {
		files[i] = deploy.FileSpec{Path: f.Path, ContentType: f.ContentType}
	}
	res, err := a.opts.Deploy.Sign(r.Context(), owner, deploy.SignRequest{
		SiteSlug:     body.SiteSlug,
		DeploymentID: body.DeploymentID,
		Files:        files,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := signResponse{DeploymentID: res.DeploymentID, Uploads: make([]uploadJSON, len(res.Uploads))}
	for i, u := range res.Uploads {
		// header names are lower-cased so clients can copy them verbatim
		hdr := make(map[string]string, len(u.Headers))
		for k, v := range u.Headers {
			hdr[strings.ToLower(k)] = v
		}
		out.Uploads[i] = uploadJSON{Path: u.Path, Key: u.Key, UploadURL: u.UploadURL, Headers: hdr}
	}
	writeJSON(w, http.StatusOK, out)
}

type finalizeBody struct {
	SiteSlug         string `json:"siteSlug" validate:"required"`
	OwnerProfileSlug string `json:"ownerProfileSlug"`
	DeploymentID     string `json:"deploymentId" validate:"required,uuid"`
	FileCount        *int   `json:"fileCount" validate:"omitnil,gte=0"`
	TotalBytes       *int64 `json:"totalBytes" validate:"omitnil,gte=0"`
	CreatePost       *bool  `json:"createPost"`
}

type finalizeResponse struct {
	DeploymentID         string `json:"deploymentId"`
	SiteSlug             string `json:"siteSlug"`
	OwnerProfileSlug     string `json:"ownerProfileSlug"`
	PublishedPostID      string `json:"publishedPostId,omitempty"`
	URL                  string `json:"url"`
	ArchivedDeploymentID string `json:"archivedDeploymentId,omitempty"`
}

func (a *API) finalize(w http.ResponseWriter, r *http.Request) {
	var body finalizeBody
	owner, err := a.ownedBody(r, &body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := a.opts.Deploy.Finalize(r.Context(), owner, deploy.FinalizeRequest{
		SiteSlug:     body.SiteSlug,
		DeploymentID: body.DeploymentID,
		FileCount:    body.FileCount,
		TotalBytes:   body.TotalBytes,
		CreateRecord: body.CreatePost,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, finalizeResponse{
		DeploymentID:         res.Deployment.ID,
		SiteSlug:             res.Site.Slug,
		OwnerProfileSlug:     owner.ProfileSlug,
		PublishedPostID:      res.PublishRecordID,
		URL:                  res.URL,
		ArchivedDeploymentID: res.ArchivedDeploymentID,
	})
}

type listResponse struct {
	SiteSlug    string           `json:"siteSlug"`
	Deployments []deploymentJSON `json:"deployments"`
}

func (a *API) listDeployments(w http.ResponseWriter, r *http.Request) {
	owner, err := a.owner(r, r.URL.Query().Get("ownerProfileSlug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	site := chi.URLParam(r, "site")

	deps, err := a.opts.Deploy.ListDeployments(r.Context(), owner, site)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := listResponse{SiteSlug: site, Deployments: make([]deploymentJSON, len(deps))}
	for i, d := range deps {
		out.Deployments[i] = deploymentJSON{
			ID:              d.ID,
			DeploymentKey:   d.DeploymentKey,
			Prefix:          d.Prefix,
			Status:          d.Status,
			FileCount:       d.FileCount,
			TotalBytes:      d.TotalBytes,
			PublishedPostID: d.PublishRecordID,
			CreatedAt:       d.CreatedAt.UTC(),
			ActivatedAt:     d.ActivatedAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}
