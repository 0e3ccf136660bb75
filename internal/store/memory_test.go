package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hrescak/Draftboard-sub002/internal/model"
	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

var _ Store = (*Memory)(nil)
var _ Store = (*Postgres)(nil)

func seedMemory(t *testing.T) (*Memory, model.Site) {
	t.Helper()
	m := NewMemory()
	m.PutAccount(model.Account{ID: "u1", ProfileSlug: "alice", DisplayName: "Alice"})
	site, err := m.UpsertSite(context.Background(), "u1", "blog", "", testNow)
	if err != nil {
		t.Fatalf("UpsertSite: %v", err)
	}
	return m, site
}

func addDeployment(t *testing.T, m *Memory, siteID, id string, status model.Status) {
	t.Helper()
	err := m.CreateDeployment(context.Background(), model.Deployment{
		ID: id, SiteID: siteID, DeploymentKey: "k-" + id, Prefix: "sites/alice/blog/k-" + id,
		Status: status, CreatedAt: testNow,
	})
	if err != nil {
		t.Fatalf("CreateDeployment: %v", err)
	}
}

func TestMemory_UpsertSite_KeepsIdentity(t *testing.T) {
	m, site := seedMemory(t)
	ctx := context.Background()

	if site.Name != "blog" {
		t.Fatalf("Name = %q, want slug as default", site.Name)
	}
	again, err := m.UpsertSite(ctx, "u1", "blog", "My Blog", testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("UpsertSite: %v", err)
	}
	if again.ID != site.ID || again.Name != "My Blog" {
		t.Fatalf("again = %+v, want same id with new name", again)
	}
	kept, _ := m.UpsertSite(ctx, "u1", "blog", "", testNow.Add(2*time.Minute))
	if kept.Name != "My Blog" {
		t.Fatalf("empty name replaced stored name: %q", kept.Name)
	}
}

func TestMemory_InTx_DiscardsOnError(t *testing.T) {
	m, site := seedMemory(t)
	addDeployment(t, m, site.ID, "d1", model.StatusUploading)
	ctx := context.Background()

	boom := errors.New("boom")
	err := m.InTx(ctx, func(ctx context.Context, q Queries) error {
		if err := q.ActivateDeployment(ctx, Activation{DeploymentID: "d1", At: testNow}); err != nil {
			return err
		}
		if err := q.SetActiveDeployment(ctx, site.ID, "d1", testNow); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	d, _ := m.DeploymentByID(ctx, "d1")
	if d.Status != model.StatusUploading {
		t.Fatalf("status = %s after rollback, want UPLOADING", d.Status)
	}
	s, _ := m.LockSite(ctx, site.ID)
	if s.ActiveDeploymentID != nil {
		t.Fatalf("active pointer = %v after rollback, want nil", *s.ActiveDeploymentID)
	}
}

func TestMemory_ActivateDeployment_OneActivePerSite(t *testing.T) {
	m, site := seedMemory(t)
	addDeployment(t, m, site.ID, "d1", model.StatusActive)
	addDeployment(t, m, site.ID, "d2", model.StatusUploading)

	err := m.ActivateDeployment(context.Background(), Activation{DeploymentID: "d2", At: testNow})
	if !errors.Is(err, ErrActiveConflict) || xerrors.KindOf(err) != xerrors.KindConflict {
		t.Fatalf("err = %v, want active conflict", err)
	}
}

func TestMemory_ActivateDeployment_ArchivedIsNotFound(t *testing.T) {
	m, site := seedMemory(t)
	addDeployment(t, m, site.ID, "d1", model.StatusArchived)

	err := m.ActivateDeployment(context.Background(), Activation{DeploymentID: "d1", At: testNow})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemory_ActiveSite(t *testing.T) {
	m, site := seedMemory(t)
	ctx := context.Background()
	addDeployment(t, m, site.ID, "d1", model.StatusUploading)

	if _, err := m.ActiveSite(ctx, "alice", "blog"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v before activation, want ErrNotFound", err)
	}

	err := m.InTx(ctx, func(ctx context.Context, q Queries) error {
		if err := q.ActivateDeployment(ctx, Activation{DeploymentID: "d1", At: testNow}); err != nil {
			return err
		}
		return q.SetActiveDeployment(ctx, site.ID, "d1", testNow)
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	as, err := m.ActiveSite(ctx, "alice", "blog")
	if err != nil {
		t.Fatalf("ActiveSite: %v", err)
	}
	if as.DeploymentID != "d1" || as.Prefix != "sites/alice/blog/k-d1" {
		t.Fatalf("active = %+v", as)
	}
}

func TestMemory_ActiveSitesBySlug_SortedByOwner(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, owner := range []string{"zoe", "adam"} {
		m.PutAccount(model.Account{ID: owner, ProfileSlug: owner})
		site, err := m.UpsertSite(ctx, owner, "portfolio", "", testNow)
		if err != nil {
			t.Fatalf("UpsertSite: %v", err)
		}
		addDeployment(t, m, site.ID, "d-"+owner, model.StatusActive)
		if err := m.SetActiveDeployment(ctx, site.ID, "d-"+owner, testNow); err != nil {
			t.Fatalf("SetActiveDeployment: %v", err)
		}
	}

	got, err := m.ActiveSitesBySlug(ctx, "portfolio")
	if err != nil {
		t.Fatalf("ActiveSitesBySlug: %v", err)
	}
	if len(got) != 2 || got[0].OwnerSlug != "adam" || got[1].OwnerSlug != "zoe" {
		t.Fatalf("got %+v", got)
	}
}

func TestMemory_Sessions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ps := model.PublishSession{ID: "s1", UserID: "u1", TokenHash: "h1", CreatedAt: testNow, ExpiresAt: testNow.Add(time.Hour)}
	if err := m.CreateSession(ctx, ps); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := m.CreateSession(ctx, model.PublishSession{ID: "s2", TokenHash: "h1"}); err == nil {
		t.Fatal("duplicate token hash accepted")
	}

	if err := m.TouchSession(ctx, "s1", testNow.Add(time.Minute)); err != nil {
		t.Fatalf("TouchSession: %v", err)
	}
	if err := m.RevokeSession(ctx, "s1", testNow.Add(2*time.Minute)); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}

	got, err := m.SessionByTokenHash(ctx, "h1")
	if err != nil {
		t.Fatalf("SessionByTokenHash: %v", err)
	}
	if got.LastUsedAt == nil || got.RevokedAt == nil {
		t.Fatalf("session = %+v, want touched and revoked", got)
	}
	if got.ValidAt(testNow.Add(3 * time.Minute)) {
		t.Fatal("revoked session reported valid")
	}
}
