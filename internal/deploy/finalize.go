package deploy

import (
	"context"

	"github.com/hrescak/Draftboard-sub002/internal/events"
	"github.com/hrescak/Draftboard-sub002/internal/model"
	"github.com/hrescak/Draftboard-sub002/internal/store"
	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

type FinalizeRequest struct {
	SiteSlug     string
	DeploymentID string
	FileCount    *int
	TotalBytes   *int64
	// CreateRecord defaults to true when nil.
	CreateRecord *bool
}

type FinalizeResult struct {
	Site            model.Site
	Deployment      model.Deployment
	PublishRecordID string
	URL             string
	// ArchivedDeploymentID is the deployment this one replaced, if any.
	ArchivedDeploymentID string
}

// Finalize makes the deployment the site's only ACTIVE one. Record
// creation, archiving the previous deployment, activation and the site
// pointer update commit together or not at all. Finalizing an ACTIVE
// deployment again is allowed; an ARCHIVED one is a conflict.
func (m *Manager) Finalize(ctx context.Context, owner model.OwnerContext, req FinalizeRequest) (FinalizeResult, error) {
	if req.FileCount != nil && *req.FileCount < 0 {
		return FinalizeResult{}, xerrors.Invalid("fileCount", "must not be negative")
	}
	if req.TotalBytes != nil && *req.TotalBytes < 0 {
		return FinalizeResult{}, xerrors.Invalid("totalBytes", "must not be negative")
	}
	createRecord := req.CreateRecord == nil || *req.CreateRecord

	var res FinalizeResult
	err := m.store.InTx(ctx, func(ctx context.Context, q store.Queries) error {
		site, d, err := siteDeployment(ctx, q, owner, req.SiteSlug, req.DeploymentID)
		if err != nil {
			return err
		}
		// serialize finalizes of the same site
		site, err = q.LockSite(ctx, site.ID)
		if err != nil {
			return err
		}
		// a finalize that held the lock before us may have archived d
		if d, err = q.DeploymentByID(ctx, d.ID); err != nil {
			return err
		}
		if d.Status == model.StatusArchived {
			return xerrors.E(xerrors.KindConflict, "deployment is archived and cannot be activated")
		}

		now := m.now().UTC()
		url := m.PublicURL(owner.ProfileSlug, site.Slug)

		recordID := d.PublishRecordID
		if createRecord && recordID == nil {
			rec := model.PublishRecord{
				ID:           store.NewID(),
				AuthorID:     owner.OwnerID,
				SiteID:       site.ID,
				DeploymentID: d.ID,
				URL:          url,
				CreatedAt:    now,
			}
			if err := q.CreatePublishRecord(ctx, rec); err != nil {
				return err
			}
			recordID = &rec.ID
		}

		var archived string
		if prev := site.ActiveDeploymentID; prev != nil && *prev != d.ID {
			if err := q.ArchiveDeployment(ctx, *prev); err != nil {
				return err
			}
			archived = *prev
		}

		if err := q.ActivateDeployment(ctx, store.Activation{
			DeploymentID:    d.ID,
			At:              now,
			FileCount:       req.FileCount,
			TotalBytes:      req.TotalBytes,
			PublishRecordID: recordID,
		}); err != nil {
			return err
		}
		if err := q.SetActiveDeployment(ctx, site.ID, d.ID, now); err != nil {
			return err
		}

		if d, err = q.DeploymentByID(ctx, d.ID); err != nil {
			return err
		}
		site.ActiveDeploymentID = &d.ID
		site.UpdatedAt = now

		res = FinalizeResult{Site: site, Deployment: d, URL: url, ArchivedDeploymentID: archived}
		if recordID != nil {
			res.PublishRecordID = *recordID
		}
		return nil
	})
	if err != nil {
		return FinalizeResult{}, err
	}

	m.rec.DeploymentFinalized()
	m.logger.Info(ctx, "deployment activated",
		"owner", owner.ProfileSlug,
		"site", res.Site.Slug,
		"deployment_id", res.Deployment.ID,
		"archived_deployment_id", res.ArchivedDeploymentID,
	)
	m.notify(ctx, owner, res)
	return res, nil
}

func (m *Manager) notify(ctx context.Context, owner model.OwnerContext, res FinalizeResult) {
	if m.notifier == nil {
		return
	}
	ev := events.DeploymentActivated{
		SiteID:               res.Site.ID,
		SiteSlug:             res.Site.Slug,
		OwnerProfileSlug:     owner.ProfileSlug,
		DeploymentID:         res.Deployment.ID,
		DeploymentKey:        res.Deployment.DeploymentKey,
		ArchivedDeploymentID: res.ArchivedDeploymentID,
		PublishRecordID:      res.PublishRecordID,
		URL:                  res.URL,
	}
	if res.Deployment.ActivatedAt != nil {
		ev.ActivatedAt = *res.Deployment.ActivatedAt
	}
	if err := m.notifier.NotifyActivated(ctx, ev); err != nil {
		m.rec.NotifyFailed()
		m.logger.Error(ctx, err, "deployment event not published", "deployment_id", res.Deployment.ID)
	}
}
