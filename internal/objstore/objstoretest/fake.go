// Package objstoretest provides an in-memory objstore.Store for tests.
package objstoretest

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/hrescak/Draftboard-sub002/internal/objstore"
	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

// Call records one Get or Head.
type Call struct {
	Method string
	Key    string
}

// Fake stores objects in memory and records every read in order.
type Fake struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	calls   []Call

	// PresignErr, when set, is returned by PresignPut for keys it matches.
	PresignErr func(key string) error
	// ReadErr, when set, is returned by Get and Head for every key.
	ReadErr error
}

type fakeObject struct {
	body         []byte
	contentType  string
	cacheControl string
	modified     time.Time
}

func New() *Fake {
	return &Fake{objects: make(map[string]fakeObject)}
}

// Put stores body under key.
func (f *Fake) Put(key, contentType, cacheControl string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = fakeObject{
		body:         bytes.Clone(body),
		contentType:  contentType,
		cacheControl: cacheControl,
		modified:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// Calls returns the reads made so far.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

func (f *Fake) PresignPut(_ context.Context, key, contentType, cacheControl string, ttl time.Duration) (objstore.PresignedPut, error) {
	if f.PresignErr != nil {
		if err := f.PresignErr(key); err != nil {
			return objstore.PresignedPut{}, err
		}
	}
	q := url.Values{"expires": {ttl.String()}}
	return objstore.PresignedPut{
		URL:     "https://uploads.test/" + key + "?" + q.Encode(),
		Headers: map[string]string{"Content-Type": contentType, "Cache-Control": cacheControl},
	}, nil
}

func (f *Fake) Get(_ context.Context, key string) (*objstore.Object, error) {
	o, err := f.read("GET", key)
	if err != nil {
		return nil, err
	}
	return &objstore.Object{
		Body:          io.NopCloser(bytes.NewReader(o.body)),
		ContentType:   o.contentType,
		CacheControl:  o.cacheControl,
		ContentLength: int64(len(o.body)),
		LastModified:  o.modified,
	}, nil
}

func (f *Fake) Head(_ context.Context, key string) (*objstore.Object, error) {
	o, err := f.read("HEAD", key)
	if err != nil {
		return nil, err
	}
	return &objstore.Object{
		ContentType:   o.contentType,
		CacheControl:  o.cacheControl,
		ContentLength: int64(len(o.body)),
		LastModified:  o.modified,
	}, nil
}

func (f *Fake) read(method, key string) (fakeObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: method, Key: key})
	if f.ReadErr != nil {
		return fakeObject{}, f.ReadErr
	}
	o, ok := f.objects[key]
	if !ok {
		return fakeObject{}, xerrors.WithKind(objstore.ErrNotFound, xerrors.KindNotFound, "object "+key+" not found")
	}
	return o, nil
}

var _ objstore.Store = (*Fake)(nil)
