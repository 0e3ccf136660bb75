// Package objstore is the object storage boundary: presigned uploads plus
// GET and HEAD reads of published site files.
package objstore

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

// ErrNotFound is returned by Get and Head when the key does not exist.
var ErrNotFound = errors.New("object not found")

// Object is a stored file. Body is nil for Head results and must be closed
// by the caller otherwise.
type Object struct {
	Body          io.ReadCloser
	ContentType   string
	CacheControl  string
	ContentLength int64
	LastModified  time.Time
}

// PresignedPut is a time-limited upload grant. Headers must be sent with the
// PUT exactly as given.
type PresignedPut struct {
	URL     string
	Headers map[string]string
}

// Store is implemented by the S3 client and by objstoretest.Fake.
type Store interface {
	PresignPut(ctx context.Context, key, contentType, cacheControl string, ttl time.Duration) (PresignedPut, error)
	Get(ctx context.Context, key string) (*Object, error)
	Head(ctx context.Context, key string) (*Object, error)
}

// IsNotFound reports whether err means the object is missing.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func notFound(key string) error {
	return xerrors.WithKind(ErrNotFound, xerrors.KindNotFound, "object "+key+" not found")
}
