// Package deploy implements the deployment lifecycle of a published site:
// init creates an UPLOADING deployment under a fresh storage prefix, sign
// hands out presigned upload URLs for its files, and finalize atomically
// makes it the site's single ACTIVE deployment, archiving the previous one.
package deploy

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/hrescak/Draftboard-sub002/internal/cryptoutil"
	"github.com/hrescak/Draftboard-sub002/internal/events"
	"github.com/hrescak/Draftboard-sub002/internal/log"
	"github.com/hrescak/Draftboard-sub002/internal/model"
	"github.com/hrescak/Draftboard-sub002/internal/objstore"
	"github.com/hrescak/Draftboard-sub002/internal/pathutil"
	"github.com/hrescak/Draftboard-sub002/internal/store"
	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

const (
	MaxFilesPerSign        = 500
	DefaultPresignTTL      = 15 * time.Minute
	defaultSignConcurrency = 16
)

// Notifier is told about deployments that went live.
type Notifier interface {
	NotifyActivated(ctx context.Context, ev events.DeploymentActivated) error
}

// Recorder receives lifecycle counts for metrics.
type Recorder interface {
	DeploymentInitialized()
	DeploymentFinalized()
	FilesSigned(n int)
	NotifyFailed()
}

type nopRecorder struct{}

func (nopRecorder) DeploymentInitialized() {}
func (nopRecorder) DeploymentFinalized()   {}
func (nopRecorder) FilesSigned(int)        {}
func (nopRecorder) NotifyFailed()          {}

type Options struct {
	Store store.Store
	// Objects may be nil, in which case Sign reports the service unavailable.
	Objects objstore.Store
	// PublicBaseURL prefixes the public site URL, e.g. https://draftboard.example.
	PublicBaseURL   string
	PresignTTL      time.Duration
	SignConcurrency int
	Notifier        Notifier
	Recorder        Recorder
	Logger          log.Logger
	Now             func() time.Time
}

type Manager struct {
	store       store.Store
	objects     objstore.Store
	baseURL     string
	ttl         time.Duration
	concurrency int
	notifier    Notifier
	rec         Recorder
	logger      log.Logger
	now         func() time.Time
}

func New(o Options) (*Manager, error) {
	if o.Store == nil {
		return nil, xerrors.New("deploy: Store is required")
	}
	if o.PresignTTL <= 0 {
		o.PresignTTL = DefaultPresignTTL
	}
	if o.SignConcurrency <= 0 {
		o.SignConcurrency = defaultSignConcurrency
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return &Manager{
		store:       o.Store,
		objects:     o.Objects,
		baseURL:     strings.TrimRight(o.PublicBaseURL, "/"),
		ttl:         o.PresignTTL,
		concurrency: o.SignConcurrency,
		notifier:    o.Notifier,
		rec:         o.Recorder,
		logger:      o.Logger,
		now:         o.Now,
	}, nil
}

// PublicURL is where a site is served.
func (m *Manager) PublicURL(ownerSlug, siteSlug string) string {
	return m.baseURL + "/sites/" + ownerSlug + "/" + siteSlug + "/"
}

// NewDeploymentKey returns a key that sorts by creation time: base36 unix
// milliseconds, a dash, and 12 random hex characters.
func NewDeploymentKey(now time.Time) (string, error) {
	suffix, err := cryptoutil.RandomHex(6)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" + suffix, nil
}

// Prefix is the storage prefix of a deployment's files.
func Prefix(ownerSlug, siteSlug, deploymentKey string) string {
	return "sites/" + ownerSlug + "/" + siteSlug + "/" + deploymentKey
}

func normalizeSiteSlug(s string) (string, error) {
	slug, err := pathutil.NormalizeSlug(s)
	if err != nil {
		return "", xerrors.Invalid("siteSlug", "must be lowercase letters, digits and single hyphens (max 63)")
	}
	return slug, nil
}

// ---------------------------------------------------------------------------
// init
// ---------------------------------------------------------------------------

type InitRequest struct {
	SiteSlug string
	// SiteName replaces the stored name when non-empty. When SiteSlug is
	// empty the slug is derived from it.
	SiteName string
}

type InitResult struct {
	Site       model.Site
	Deployment model.Deployment
	PublicURL  string
}

// Init creates or reuses the site and opens a new UPLOADING deployment.
func (m *Manager) Init(ctx context.Context, owner model.OwnerContext, req InitRequest) (InitResult, error) {
	raw := req.SiteSlug
	if strings.TrimSpace(raw) == "" {
		raw = pathutil.SlugFromName(req.SiteName)
	}
	if raw == "" {
		return InitResult{}, xerrors.Invalid("siteSlug", "is required")
	}
	slug, err := normalizeSiteSlug(raw)
	if err != nil {
		return InitResult{}, err
	}

	now := m.now().UTC()
	key, err := NewDeploymentKey(now)
	if err != nil {
		return InitResult{}, err
	}

	var res InitResult
	err = m.store.InTx(ctx, func(ctx context.Context, q store.Queries) error {
		site, err := q.UpsertSite(ctx, owner.OwnerID, slug, strings.TrimSpace(req.SiteName), now)
		if err != nil {
			return err
		}
		d := model.Deployment{
			ID:            store.NewID(),
			SiteID:        site.ID,
			DeploymentKey: key,
			Prefix:        Prefix(owner.ProfileSlug, slug, key),
			Status:        model.StatusUploading,
			CreatedAt:     now,
		}
		if err := q.CreateDeployment(ctx, d); err != nil {
			return err
		}
		res = InitResult{Site: site, Deployment: d, PublicURL: m.PublicURL(owner.ProfileSlug, slug)}
		return nil
	})
	if err != nil {
		return InitResult{}, err
	}

	m.rec.DeploymentInitialized()
	m.logger.Info(ctx, "deployment initialized",
		"owner", owner.ProfileSlug,
		"site", slug,
		"deployment_id", res.Deployment.ID,
		"deployment_key", key,
	)
	return res, nil
}

// siteDeployment loads the site and one of its deployments. A deployment of
// another site is reported as not found.
func siteDeployment(ctx context.Context, q store.Queries, owner model.OwnerContext, siteSlug, deploymentID string) (model.Site, model.Deployment, error) {
	slug, err := normalizeSiteSlug(siteSlug)
	if err != nil {
		return model.Site{}, model.Deployment{}, err
	}
	if strings.TrimSpace(deploymentID) == "" {
		return model.Site{}, model.Deployment{}, xerrors.Invalid("deploymentId", "is required")
	}
	site, err := q.SiteBySlug(ctx, owner.OwnerID, slug)
	if err != nil {
		return model.Site{}, model.Deployment{}, err
	}
	d, err := q.DeploymentByID(ctx, deploymentID)
	if err != nil {
		return model.Site{}, model.Deployment{}, err
	}
	if d.SiteID != site.ID {
		return model.Site{}, model.Deployment{}, xerrors.WithKind(store.ErrNotFound, xerrors.KindNotFound, "deployment not found")
	}
	return site, d, nil
}

// ListDeployments returns the site's deployments, newest first.
func (m *Manager) ListDeployments(ctx context.Context, owner model.OwnerContext, siteSlug string) ([]model.Deployment, error) {
	slug, err := normalizeSiteSlug(siteSlug)
	if err != nil {
		return nil, err
	}
	site, err := m.store.SiteBySlug(ctx, owner.OwnerID, slug)
	if err != nil {
		return nil, err
	}
	return m.store.DeploymentsBySite(ctx, site.ID)
}
