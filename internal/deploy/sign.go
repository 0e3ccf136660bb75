package deploy

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hrescak/Draftboard-sub002/internal/model"
	"github.com/hrescak/Draftboard-sub002/internal/pathutil"
	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

const defaultContentType = "application/octet-stream"

type FileSpec struct {
	Path        string
	ContentType string
}

type SignRequest struct {
	SiteSlug     string
	DeploymentID string
	Files        []FileSpec
}

// Upload is one presigned PUT. Headers must accompany the upload.
type Upload struct {
	Path      string
	Key       string
	UploadURL string
	Headers   map[string]string
}

type SignResult struct {
	DeploymentID string
	Uploads      []Upload
}

type signJob struct {
	path         string
	key          string
	contentType  string
	cacheControl string
}

// Sign presigns an upload for every file of an UPLOADING deployment. It
// writes nothing; any failure discards the whole batch.
func (m *Manager) Sign(ctx context.Context, owner model.OwnerContext, req SignRequest) (SignResult, error) {
	if m.objects == nil {
		return SignResult{}, xerrors.E(xerrors.KindUnavailable, "object storage is not configured")
	}
	if n := len(req.Files); n == 0 || n > MaxFilesPerSign {
		return SignResult{}, xerrors.Invalid("files", fmt.Sprintf("must contain between 1 and %d entries", MaxFilesPerSign))
	}

	_, d, err := siteDeployment(ctx, m.store, owner, req.SiteSlug, req.DeploymentID)
	if err != nil {
		return SignResult{}, err
	}
	if d.Status != model.StatusUploading {
		return SignResult{}, xerrors.Ef(xerrors.KindConflict, "deployment is %s and no longer accepts uploads", d.Status)
	}

	jobs, err := planUploads(d.Prefix, req.Files)
	if err != nil {
		return SignResult{}, err
	}

	uploads := make([]Upload, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, j := range jobs {
		g.Go(func() error {
			put, err := m.objects.PresignPut(gctx, j.key, j.contentType, j.cacheControl, m.ttl)
			if err != nil {
				return xerrors.Wrapf(err, "presign %s", j.path)
			}
			uploads[i] = Upload{Path: j.path, Key: j.key, UploadURL: put.URL, Headers: put.Headers}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SignResult{}, err
	}

	m.rec.FilesSigned(len(uploads))
	return SignResult{DeploymentID: d.ID, Uploads: uploads}, nil
}

// planUploads validates every path before any presign is requested.
func planUploads(prefix string, files []FileSpec) ([]signJob, error) {
	jobs := make([]signJob, 0, len(files))
	seen := make(map[string]string, len(files))
	for i, f := range files {
		field := fmt.Sprintf("files[%d].path", i)
		p, err := pathutil.NormalizeObjectPath(f.Path)
		if err != nil {
			return nil, xerrors.Invalid(field, fmt.Sprintf("invalid path %q: %v", f.Path, err))
		}
		if p == "" {
			return nil, xerrors.Invalid(field, fmt.Sprintf("invalid path %q: empty", f.Path))
		}
		if first, dup := seen[p]; dup {
			return nil, xerrors.Invalid(field, fmt.Sprintf("duplicate path %q (same file as %q)", f.Path, first))
		}
		seen[p] = f.Path

		jobs = append(jobs, signJob{
			path:         p,
			key:          prefix + "/" + p,
			contentType:  contentTypeFor(p, f.ContentType),
			cacheControl: pathutil.InferCacheControl(p),
		})
	}
	return jobs, nil
}

func contentTypeFor(p, given string) string {
	if ct := strings.TrimSpace(given); ct != "" {
		return ct
	}
	if ct := mime.TypeByExtension(path.Ext(p)); ct != "" {
		return ct
	}
	return defaultContentType
}
