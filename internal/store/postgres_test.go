package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hrescak/Draftboard-sub002/internal/model"
	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

func newPostgresWithMock(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// accounts
// ---------------------------------------------------------------------------

func TestPostgres_AccountBySlug(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM accounts WHERE profile_slug = $1`)).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "profile_slug", "display_name", "deactivated_at"}).
			AddRow("u1", "alice", "Alice", nil))

	a, err := p.AccountBySlug(context.Background(), "alice")
	if err != nil {
		t.Fatalf("AccountBySlug: %v", err)
	}
	if a.ID != "u1" || a.ProfileSlug != "alice" || a.Deactivated() {
		t.Fatalf("account = %+v", a)
	}
	expectationsMet(t, mock)
}

func TestPostgres_AccountBySlug_NotFound(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	mock.ExpectQuery(`FROM accounts`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := p.AccountBySlug(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) || xerrors.KindOf(err) != xerrors.KindNotFound {
		t.Fatalf("err = %v, want not found", err)
	}
	expectationsMet(t, mock)
}

func TestPostgres_AccountByID_DriverError(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	boom := errors.New("connection reset")
	mock.ExpectQuery(`FROM accounts WHERE id`).WithArgs("u1").WillReturnError(boom)

	_, err := p.AccountByID(context.Background(), "u1")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped driver error", err)
	}
	if xerrors.KindOf(err) != xerrors.KindInternal {
		t.Fatalf("kind = %v, want internal", xerrors.KindOf(err))
	}
}

// ---------------------------------------------------------------------------
// sessions
// ---------------------------------------------------------------------------

func TestPostgres_CreateAndRevokeSession(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	exp := testNow.Add(time.Hour)
	mock.ExpectExec(`INSERT INTO publish_sessions`).
		WithArgs("s1", "u1", "hash", testNow, exp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE publish_sessions SET revoked_at = $2`)).
		WithArgs("s1", testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	err := p.CreateSession(ctx, model.PublishSession{ID: "s1", UserID: "u1", TokenHash: "hash", CreatedAt: testNow, ExpiresAt: exp})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := p.RevokeSession(ctx, "s1", testNow); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	expectationsMet(t, mock)
}

func TestPostgres_SessionByTokenHash_NotFound(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	mock.ExpectQuery(`FROM publish_sessions WHERE token_hash`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	if _, err := p.SessionByTokenHash(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// sites and deployments
// ---------------------------------------------------------------------------

func TestPostgres_UpsertSite_DefaultsNameToSlug(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	mock.ExpectQuery(`INSERT INTO sites .* ON CONFLICT \(owner_id, slug\) DO UPDATE`).
		WithArgs(sqlmock.AnyArg(), "u1", "blog", "blog", "", testNow).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "slug", "name", "active_deployment_id", "created_at", "updated_at"}).
			AddRow("site1", "u1", "blog", "blog", nil, testNow, testNow))

	site, err := p.UpsertSite(context.Background(), "u1", "blog", "", testNow)
	if err != nil {
		t.Fatalf("UpsertSite: %v", err)
	}
	if site.ID != "site1" || site.Name != "blog" || site.ActiveDeploymentID != nil {
		t.Fatalf("site = %+v", site)
	}
	expectationsMet(t, mock)
}

func TestPostgres_SetActiveDeployment_MissingSite(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	mock.ExpectExec(`UPDATE sites SET active_deployment_id`).
		WithArgs("site1", "d1", testNow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := p.SetActiveDeployment(context.Background(), "site1", "d1", testNow)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPostgres_ActivateDeployment_UniqueViolationIsConflict(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	mock.ExpectExec(`UPDATE site_deployments\s+SET status = 'ACTIVE'`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "site_deployments_one_active_idx"})

	err := p.ActivateDeployment(context.Background(), Activation{DeploymentID: "d2", At: testNow})
	if !errors.Is(err, ErrActiveConflict) {
		t.Fatalf("err = %v, want ErrActiveConflict", err)
	}
	if xerrors.KindOf(err) != xerrors.KindConflict {
		t.Fatalf("kind = %v, want conflict", xerrors.KindOf(err))
	}
}

func TestPostgres_ActivateDeployment_PassesCounters(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	n, size := 3, int64(4096)
	mock.ExpectExec(`UPDATE site_deployments`).
		WithArgs("d1", testNow, 3, int64(4096), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := p.ActivateDeployment(context.Background(), Activation{DeploymentID: "d1", At: testNow, FileCount: &n, TotalBytes: &size})
	if err != nil {
		t.Fatalf("ActivateDeployment: %v", err)
	}
	expectationsMet(t, mock)
}

func TestPostgres_DeploymentsBySite(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	cols := []string{"id", "site_id", "deployment_key", "prefix", "status", "file_count", "total_bytes",
		"publish_record_id", "created_at", "activated_at"}
	mock.ExpectQuery(`FROM site_deployments WHERE site_id = \$1 ORDER BY created_at DESC`).
		WithArgs("site1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("d2", "site1", "k2", "sites/a/b/k2", "UPLOADING", nil, nil, nil, testNow, nil).
			AddRow("d1", "site1", "k1", "sites/a/b/k1", "ACTIVE", 2, int64(10), nil, testNow.Add(-time.Hour), testNow))

	ds, err := p.DeploymentsBySite(context.Background(), "site1")
	if err != nil {
		t.Fatalf("DeploymentsBySite: %v", err)
	}
	if len(ds) != 2 {
		t.Fatalf("len = %d, want 2", len(ds))
	}
	if ds[0].Status != model.StatusUploading || ds[0].FileCount != nil {
		t.Fatalf("ds[0] = %+v", ds[0])
	}
	if ds[1].Status != model.StatusActive || ds[1].FileCount == nil || *ds[1].FileCount != 2 {
		t.Fatalf("ds[1] = %+v", ds[1])
	}
	expectationsMet(t, mock)
}

// ---------------------------------------------------------------------------
// serving lookups
// ---------------------------------------------------------------------------

func TestPostgres_ActiveSitesBySlug(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	mock.ExpectQuery(`AND s.slug = \$1 ORDER BY a.profile_slug`).
		WithArgs("portfolio").
		WillReturnRows(sqlmock.NewRows([]string{"profile_slug", "slug", "id", "deployment_key", "prefix"}).
			AddRow("alice", "portfolio", "d1", "k1", "sites/alice/portfolio/k1").
			AddRow("bob", "portfolio", "d9", "k9", "sites/bob/portfolio/k9"))

	got, err := p.ActiveSitesBySlug(context.Background(), "portfolio")
	if err != nil {
		t.Fatalf("ActiveSitesBySlug: %v", err)
	}
	if len(got) != 2 || got[0].OwnerSlug != "alice" || got[1].Prefix != "sites/bob/portfolio/k9" {
		t.Fatalf("got %+v", got)
	}
}

func TestPostgres_ActiveSite_NotFound(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	mock.ExpectQuery(`d.status = 'ACTIVE' AND a.profile_slug = \$1 AND s.slug = \$2`).
		WithArgs("alice", "blog").
		WillReturnError(sql.ErrNoRows)

	if _, err := p.ActiveSite(context.Background(), "alice", "blog"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// transactions
// ---------------------------------------------------------------------------

func TestPostgres_InTx_CommitsOnSuccess(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("site1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "slug", "name", "active_deployment_id", "created_at", "updated_at"}).
			AddRow("site1", "u1", "blog", "Blog", nil, testNow, testNow))
	mock.ExpectCommit()

	err := p.InTx(context.Background(), func(ctx context.Context, q Queries) error {
		_, err := q.LockSite(ctx, "site1")
		return err
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	expectationsMet(t, mock)
}

func TestPostgres_InTx_RollsBackOnError(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	want := errors.New("stop")
	err := p.InTx(context.Background(), func(context.Context, Queries) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
	expectationsMet(t, mock)
}
