package store

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hrescak/Draftboard-sub002/internal/model"
	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

// Memory is an in-process Store used when no database is configured and in
// tests. Transactions run against a copy of the data that replaces the
// original only when fn succeeds, and they are serialized with all other
// access.
type Memory struct {
	mu sync.Mutex
	st *memState
}

type memState struct {
	accounts    map[string]model.Account
	sessions    map[string]model.PublishSession
	sites       map[string]model.Site
	deployments map[string]model.Deployment
	records     map[string]model.PublishRecord
}

func NewMemory() *Memory {
	return &Memory{st: &memState{
		accounts:    make(map[string]model.Account),
		sessions:    make(map[string]model.PublishSession),
		sites:       make(map[string]model.Site),
		deployments: make(map[string]model.Deployment),
		records:     make(map[string]model.PublishRecord),
	}}
}

func (s *memState) clone() *memState {
	return &memState{
		accounts:    maps.Clone(s.accounts),
		sessions:    maps.Clone(s.sessions),
		sites:       maps.Clone(s.sites),
		deployments: maps.Clone(s.deployments),
		records:     maps.Clone(s.records),
	}
}

// PutAccount inserts or replaces an account. Accounts are owned by the
// sign-in system, so this is only used to seed development and test data.
func (m *Memory) PutAccount(a model.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = NewID()
	}
	m.st.accounts[a.ID] = a
}

// PublishRecords returns a snapshot of all publish records.
func (m *Memory) PublishRecords() []model.PublishRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Collect(maps.Values(m.st.records))
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, q Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.st.clone()
	if err := fn(ctx, work); err != nil {
		return err
	}
	m.st = work
	return nil
}

// locked runs fn against the live state.
func locked[T any](m *Memory, fn func(s *memState) (T, error)) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.st)
}

func lockedErr(m *Memory, fn func(s *memState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.st)
}

func (m *Memory) AccountByID(ctx context.Context, id string) (model.Account, error) {
	return locked(m, func(s *memState) (model.Account, error) { return s.AccountByID(ctx, id) })
}

func (m *Memory) AccountBySlug(ctx context.Context, slug string) (model.Account, error) {
	return locked(m, func(s *memState) (model.Account, error) { return s.AccountBySlug(ctx, slug) })
}

func (m *Memory) CreateSession(ctx context.Context, ps model.PublishSession) error {
	return lockedErr(m, func(s *memState) error { return s.CreateSession(ctx, ps) })
}

func (m *Memory) SessionByTokenHash(ctx context.Context, h string) (model.PublishSession, error) {
	return locked(m, func(s *memState) (model.PublishSession, error) { return s.SessionByTokenHash(ctx, h) })
}

func (m *Memory) TouchSession(ctx context.Context, id string, at time.Time) error {
	return lockedErr(m, func(s *memState) error { return s.TouchSession(ctx, id, at) })
}

func (m *Memory) RevokeSession(ctx context.Context, id string, at time.Time) error {
	return lockedErr(m, func(s *memState) error { return s.RevokeSession(ctx, id, at) })
}

func (m *Memory) UpsertSite(ctx context.Context, ownerID, slug, name string, at time.Time) (model.Site, error) {
	return locked(m, func(s *memState) (model.Site, error) { return s.UpsertSite(ctx, ownerID, slug, name, at) })
}

func (m *Memory) SiteBySlug(ctx context.Context, ownerID, slug string) (model.Site, error) {
	return locked(m, func(s *memState) (model.Site, error) { return s.SiteBySlug(ctx, ownerID, slug) })
}

func (m *Memory) LockSite(ctx context.Context, siteID string) (model.Site, error) {
	return locked(m, func(s *memState) (model.Site, error) { return s.LockSite(ctx, siteID) })
}

func (m *Memory) SetActiveDeployment(ctx context.Context, siteID, depID string, at time.Time) error {
	return lockedErr(m, func(s *memState) error { return s.SetActiveDeployment(ctx, siteID, depID, at) })
}

func (m *Memory) CreateDeployment(ctx context.Context, d model.Deployment) error {
	return lockedErr(m, func(s *memState) error { return s.CreateDeployment(ctx, d) })
}

func (m *Memory) DeploymentByID(ctx context.Context, id string) (model.Deployment, error) {
	return locked(m, func(s *memState) (model.Deployment, error) { return s.DeploymentByID(ctx, id) })
}

func (m *Memory) DeploymentsBySite(ctx context.Context, siteID string) ([]model.Deployment, error) {
	return locked(m, func(s *memState) ([]model.Deployment, error) { return s.DeploymentsBySite(ctx, siteID) })
}

func (m *Memory) ArchiveDeployment(ctx context.Context, id string) error {
	return lockedErr(m, func(s *memState) error { return s.ArchiveDeployment(ctx, id) })
}

func (m *Memory) ActivateDeployment(ctx context.Context, a Activation) error {
	return lockedErr(m, func(s *memState) error { return s.ActivateDeployment(ctx, a) })
}

func (m *Memory) CreatePublishRecord(ctx context.Context, r model.PublishRecord) error {
	return lockedErr(m, func(s *memState) error { return s.CreatePublishRecord(ctx, r) })
}

func (m *Memory) ActiveSite(ctx context.Context, ownerSlug, siteSlug string) (model.ActiveSite, error) {
	return locked(m, func(s *memState) (model.ActiveSite, error) { return s.ActiveSite(ctx, ownerSlug, siteSlug) })
}

func (m *Memory) ActiveSitesBySlug(ctx context.Context, siteSlug string) ([]model.ActiveSite, error) {
	return locked(m, func(s *memState) ([]model.ActiveSite, error) { return s.ActiveSitesBySlug(ctx, siteSlug) })
}

// ---------------------------------------------------------------------------
// memState implements Queries without locking; callers hold Memory.mu.
// ---------------------------------------------------------------------------

func (s *memState) AccountByID(_ context.Context, id string) (model.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return model.Account{}, notFound("profile")
	}
	return a, nil
}

func (s *memState) AccountBySlug(_ context.Context, slug string) (model.Account, error) {
	for _, a := range s.accounts {
		if a.ProfileSlug == slug {
			return a, nil
		}
	}
	return model.Account{}, notFound("profile")
}

func (s *memState) CreateSession(_ context.Context, ps model.PublishSession) error {
	for _, existing := range s.sessions {
		if existing.TokenHash == ps.TokenHash {
			return xerrors.New("duplicate token hash")
		}
	}
	s.sessions[ps.ID] = ps
	return nil
}

func (s *memState) SessionByTokenHash(_ context.Context, h string) (model.PublishSession, error) {
	for _, ps := range s.sessions {
		if ps.TokenHash == h {
			return ps, nil
		}
	}
	return model.PublishSession{}, notFound("session")
}

func (s *memState) TouchSession(_ context.Context, id string, at time.Time) error {
	ps, ok := s.sessions[id]
	if !ok {
		return nil
	}
	ps.LastUsedAt = &at
	s.sessions[id] = ps
	return nil
}

func (s *memState) RevokeSession(_ context.Context, id string, at time.Time) error {
	ps, ok := s.sessions[id]
	if !ok || ps.RevokedAt != nil {
		return nil
	}
	ps.RevokedAt = &at
	s.sessions[id] = ps
	return nil
}

func (s *memState) UpsertSite(ctx context.Context, ownerID, slug, name string, at time.Time) (model.Site, error) {
	if site, err := s.SiteBySlug(ctx, ownerID, slug); err == nil {
		if name != "" {
			site.Name = name
			site.UpdatedAt = at
			s.sites[site.ID] = site
		}
		return site, nil
	}
	if name == "" {
		name = slug
	}
	site := model.Site{ID: NewID(), OwnerID: ownerID, Slug: slug, Name: name, CreatedAt: at, UpdatedAt: at}
	s.sites[site.ID] = site
	return site, nil
}

func (s *memState) SiteBySlug(_ context.Context, ownerID, slug string) (model.Site, error) {
	for _, site := range s.sites {
		if site.OwnerID == ownerID && site.Slug == slug {
			return site, nil
		}
	}
	return model.Site{}, notFound("site")
}

func (s *memState) LockSite(_ context.Context, siteID string) (model.Site, error) {
	site, ok := s.sites[siteID]
	if !ok {
		return model.Site{}, notFound("site")
	}
	return site, nil
}

func (s *memState) SetActiveDeployment(_ context.Context, siteID, depID string, at time.Time) error {
	site, ok := s.sites[siteID]
	if !ok {
		return notFound("site")
	}
	site.ActiveDeploymentID = &depID
	site.UpdatedAt = at
	s.sites[siteID] = site
	return nil
}

func (s *memState) CreateDeployment(_ context.Context, d model.Deployment) error {
	if _, ok := s.sites[d.SiteID]; !ok {
		return notFound("site")
	}
	s.deployments[d.ID] = d
	return nil
}

func (s *memState) DeploymentByID(_ context.Context, id string) (model.Deployment, error) {
	d, ok := s.deployments[id]
	if !ok {
		return model.Deployment{}, notFound("deployment")
	}
	return d, nil
}

func (s *memState) DeploymentsBySite(_ context.Context, siteID string) ([]model.Deployment, error) {
	var out []model.Deployment
	for _, d := range s.deployments {
		if d.SiteID == siteID {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b model.Deployment) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *memState) ArchiveDeployment(_ context.Context, id string) error {
	d, ok := s.deployments[id]
	if !ok {
		return notFound("deployment")
	}
	d.Status = model.StatusArchived
	s.deployments[id] = d
	return nil
}

func (s *memState) ActivateDeployment(_ context.Context, a Activation) error {
	d, ok := s.deployments[a.DeploymentID]
	if !ok || d.Status == model.StatusArchived {
		return notFound("deployment")
	}
	for id, other := range s.deployments {
		if id != d.ID && other.SiteID == d.SiteID && other.Status == model.StatusActive {
			return xerrors.WithKind(ErrActiveConflict, xerrors.KindConflict, "another deployment was activated concurrently")
		}
	}
	d.Status = model.StatusActive
	at := a.At
	d.ActivatedAt = &at
	if a.FileCount != nil {
		d.FileCount = a.FileCount
	}
	if a.TotalBytes != nil {
		d.TotalBytes = a.TotalBytes
	}
	if a.PublishRecordID != nil {
		d.PublishRecordID = a.PublishRecordID
	}
	s.deployments[d.ID] = d
	return nil
}

func (s *memState) CreatePublishRecord(_ context.Context, r model.PublishRecord) error {
	s.records[r.ID] = r
	return nil
}

func (s *memState) activeSites(match func(owner model.Account, site model.Site) bool) []model.ActiveSite {
	var out []model.ActiveSite
	for _, site := range s.sites {
		if site.ActiveDeploymentID == nil {
			continue
		}
		owner, ok := s.accounts[site.OwnerID]
		if !ok || !match(owner, site) {
			continue
		}
		d, ok := s.deployments[*site.ActiveDeploymentID]
		if !ok || d.Status != model.StatusActive {
			continue
		}
		out = append(out, model.ActiveSite{
			OwnerSlug:     owner.ProfileSlug,
			SiteSlug:      site.Slug,
			DeploymentID:  d.ID,
			DeploymentKey: d.DeploymentKey,
			Prefix:        d.Prefix,
		})
	}
	slices.SortFunc(out, func(a, b model.ActiveSite) int { return strings.Compare(a.OwnerSlug, b.OwnerSlug) })
	return out
}

func (s *memState) ActiveSite(_ context.Context, ownerSlug, siteSlug string) (model.ActiveSite, error) {
	found := s.activeSites(func(owner model.Account, site model.Site) bool {
		return owner.ProfileSlug == ownerSlug && site.Slug == siteSlug
	})
	if len(found) == 0 {
		return model.ActiveSite{}, notFound("site")
	}
	return found[0], nil
}

func (s *memState) ActiveSitesBySlug(_ context.Context, siteSlug string) ([]model.ActiveSite, error) {
	return s.activeSites(func(_ model.Account, site model.Site) bool { return site.Slug == siteSlug }), nil
}
