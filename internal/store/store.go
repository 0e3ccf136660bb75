// Package store persists accounts, sites, deployments, publish sessions and
// publish records.
//
// Two implementations share the [Store] contract: [Postgres] for production
// and [Memory] for local development and tests. Lookups that find nothing
// return an error of kind xerrors.KindNotFound wrapping [ErrNotFound].
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hrescak/Draftboard-sub002/internal/model"
	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

var (
	// ErrNotFound is the cause of every not-found error returned by a store.
	ErrNotFound = errors.New("not found")
	// ErrActiveConflict is returned when activating a deployment would leave
	// two ACTIVE deployments on one site.
	ErrActiveConflict = errors.New("site already has an active deployment")
)

// Activation carries the fields stamped on a deployment at finalize time.
// Nil counters and record IDs leave the stored values unchanged.
type Activation struct {
	DeploymentID    string
	At              time.Time
	FileCount       *int
	TotalBytes      *int64
	PublishRecordID *string
}

// Queries are the operations available both on a store and inside a
// transaction.
type Queries interface {
	AccountByID(ctx context.Context, id string) (model.Account, error)
	AccountBySlug(ctx context.Context, profileSlug string) (model.Account, error)

	CreateSession(ctx context.Context, s model.PublishSession) error
	SessionByTokenHash(ctx context.Context, tokenHash string) (model.PublishSession, error)
	TouchSession(ctx context.Context, id string, at time.Time) error
	RevokeSession(ctx context.Context, id string, at time.Time) error

	// UpsertSite creates the site or returns the existing one. A non-empty
	// name replaces the stored name; an empty name keeps it.
	UpsertSite(ctx context.Context, ownerID, slug, name string, at time.Time) (model.Site, error)
	SiteBySlug(ctx context.Context, ownerID, slug string) (model.Site, error)
	// LockSite reads a site and holds a row lock until the transaction ends.
	LockSite(ctx context.Context, siteID string) (model.Site, error)
	SetActiveDeployment(ctx context.Context, siteID, deploymentID string, at time.Time) error

	CreateDeployment(ctx context.Context, d model.Deployment) error
	DeploymentByID(ctx context.Context, id string) (model.Deployment, error)
	DeploymentsBySite(ctx context.Context, siteID string) ([]model.Deployment, error)
	ArchiveDeployment(ctx context.Context, id string) error
	ActivateDeployment(ctx context.Context, a Activation) error

	CreatePublishRecord(ctx context.Context, r model.PublishRecord) error

	// ActiveSite resolves the live deployment of one site.
	ActiveSite(ctx context.Context, ownerSlug, siteSlug string) (model.ActiveSite, error)
	// ActiveSitesBySlug lists every owner's live site with this slug.
	ActiveSitesBySlug(ctx context.Context, siteSlug string) ([]model.ActiveSite, error)
}

// Store is a Queries implementation that can also open transactions.
type Store interface {
	Queries
	// InTx runs fn against a transactional view. Nothing fn writes is
	// visible to others unless it returns nil.
	InTx(ctx context.Context, fn func(ctx context.Context, q Queries) error) error
	Ping(ctx context.Context) error
}

// NewID returns a random primary key.
func NewID() string { return uuid.NewString() }

func notFound(what string) error {
	return xerrors.WithKind(ErrNotFound, xerrors.KindNotFound, what+" not found")
}
