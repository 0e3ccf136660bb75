package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hrescak/Draftboard-sub002/internal/dbx"
	"github.com/hrescak/Draftboard-sub002/internal/model"
	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

// Postgres is the production Store.
type Postgres struct {
	*queries
	db *sql.DB
}

// NewPostgres wraps an open connection pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{queries: &queries{db: db}, db: db}
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// InTx runs fn at READ COMMITTED. Finalize relies on LockSite for ordering
// between concurrent writers of the same site.
func (p *Postgres) InTx(ctx context.Context, fn func(ctx context.Context, q Queries) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	return dbx.WithTx(ctx, p.db, opts, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, &queries{db: tx})
	})
}

type queries struct {
	db dbx.DBTX
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ---------------------------------------------------------------------------
// accounts
// ---------------------------------------------------------------------------

const accountColumns = `id, profile_slug, display_name, deactivated_at`

func scanAccount(row *sql.Row) (model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.ProfileSlug, &a.DisplayName, &a.DeactivatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, notFound("profile")
	}
	if err != nil {
		return model.Account{}, xerrors.Wrap(err, "scan account")
	}
	return a, nil
}

func (q *queries) AccountByID(ctx context.Context, id string) (model.Account, error) {
	return scanAccount(q.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (q *queries) AccountBySlug(ctx context.Context, profileSlug string) (model.Account, error) {
	return scanAccount(q.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE profile_slug = $1`, profileSlug))
}

// ---------------------------------------------------------------------------
// publish sessions
// ---------------------------------------------------------------------------

func (q *queries) CreateSession(ctx context.Context, s model.PublishSession) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO publish_sessions (id, user_id, token_hash, created_at, expires_at)
         VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.UserID, s.TokenHash, s.CreatedAt, s.ExpiresAt)
	if err != nil {
		return xerrors.Wrap(err, "insert publish session")
	}
	return nil
}

func (q *queries) SessionByTokenHash(ctx context.Context, tokenHash string) (model.PublishSession, error) {
	var s model.PublishSession
	err := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, created_at, expires_at, revoked_at, last_used_at
         FROM publish_sessions WHERE token_hash = $1`, tokenHash).
		Scan(&s.ID, &s.UserID, &s.TokenHash, &s.CreatedAt, &s.ExpiresAt, &s.RevokedAt, &s.LastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PublishSession{}, notFound("session")
	}
	if err != nil {
		return model.PublishSession{}, xerrors.Wrap(err, "select publish session")
	}
	return s, nil
}

func (q *queries) TouchSession(ctx context.Context, id string, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE publish_sessions SET last_used_at = $2 WHERE id = $1`, id, at)
	return xerrors.Wrap(err, "touch publish session")
}

func (q *queries) RevokeSession(ctx context.Context, id string, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE publish_sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, at)
	return xerrors.Wrap(err, "revoke publish session")
}

// ---------------------------------------------------------------------------
// sites
// ---------------------------------------------------------------------------

const siteColumns = `id, owner_id, slug, name, active_deployment_id, created_at, updated_at`

func scanSite(row *sql.Row) (model.Site, error) {
	var s model.Site
	err := row.Scan(&s.ID, &s.OwnerID, &s.Slug, &s.Name, &s.ActiveDeploymentID, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Site{}, notFound("site")
	}
	if err != nil {
		return model.Site{}, xerrors.Wrap(err, "scan site")
	}
	return s, nil
}

func (q *queries) UpsertSite(ctx context.Context, ownerID, slug, name string, at time.Time) (model.Site, error) {
	createName := name
	if createName == "" {
		createName = slug
	}
	return scanSite(q.db.QueryRowContext(ctx,
		`INSERT INTO sites (id, owner_id, slug, name, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $6, $6)
         ON CONFLICT (owner_id, slug) DO UPDATE
             SET name = COALESCE(NULLIF($5, ''), sites.name),
                 updated_at = CASE WHEN $5 <> '' THEN $6 ELSE sites.updated_at END
         RETURNING `+siteColumns,
		NewID(), ownerID, slug, createName, name, at))
}

func (q *queries) SiteBySlug(ctx context.Context, ownerID, slug string) (model.Site, error) {
	return scanSite(q.db.QueryRowContext(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE owner_id = $1 AND slug = $2`, ownerID, slug))
}

func (q *queries) LockSite(ctx context.Context, siteID string) (model.Site, error) {
	return scanSite(q.db.QueryRowContext(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE id = $1 FOR UPDATE`, siteID))
}

func (q *queries) SetActiveDeployment(ctx context.Context, siteID, deploymentID string, at time.Time) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE sites SET active_deployment_id = $2, updated_at = $3 WHERE id = $1`,
		siteID, deploymentID, at)
	if err != nil {
		return xerrors.Wrap(err, "set active deployment")
	}
	return requireRow(res, "site")
}

// ---------------------------------------------------------------------------
// deployments
// ---------------------------------------------------------------------------

const deploymentColumns = `id, site_id, deployment_key, prefix, status, file_count, total_bytes,
       publish_record_id, created_at, activated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeployment(row rowScanner) (model.Deployment, error) {
	var d model.Deployment
	var status string
	err := row.Scan(&d.ID, &d.SiteID, &d.DeploymentKey, &d.Prefix, &status, &d.FileCount, &d.TotalBytes,
		&d.PublishRecordID, &d.CreatedAt, &d.ActivatedAt)
	if err != nil {
		return model.Deployment{}, err
	}
	d.Status = model.Status(status)
	return d, nil
}

func (q *queries) CreateDeployment(ctx context.Context, d model.Deployment) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO site_deployments (id, site_id, deployment_key, prefix, status, created_at)
         VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.SiteID, d.DeploymentKey, d.Prefix, string(d.Status), d.CreatedAt)
	if err != nil {
		return xerrors.Wrap(err, "insert deployment")
	}
	return nil
}

func (q *queries) DeploymentByID(ctx context.Context, id string) (model.Deployment, error) {
	d, err := scanDeployment(q.db.QueryRowContext(ctx,
		`SELECT `+deploymentColumns+` FROM site_deployments WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Deployment{}, notFound("deployment")
	}
	if err != nil {
		return model.Deployment{}, xerrors.Wrap(err, "select deployment")
	}
	return d, nil
}

func (q *queries) DeploymentsBySite(ctx context.Context, siteID string) ([]model.Deployment, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+deploymentColumns+` FROM site_deployments WHERE site_id = $1 ORDER BY created_at DESC`, siteID)
	if err != nil {
		return nil, xerrors.Wrap(err, "list deployments")
	}
	defer rows.Close()

	var out []model.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, xerrors.Wrap(err, "scan deployment")
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(err, "iterate deployments")
	}
	return out, nil
}

func (q *queries) ArchiveDeployment(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE site_deployments SET status = 'ARCHIVED' WHERE id = $1`, id)
	if err != nil {
		return xerrors.Wrap(err, "archive deployment")
	}
	return requireRow(res, "deployment")
}

func (q *queries) ActivateDeployment(ctx context.Context, a Activation) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE site_deployments
            SET status = 'ACTIVE',
                activated_at = $2,
                file_count = COALESCE($3, file_count),
                total_bytes = COALESCE($4, total_bytes),
                publish_record_id = COALESCE($5, publish_record_id)
          WHERE id = $1 AND status <> 'ARCHIVED'`,
		a.DeploymentID, a.At, a.FileCount, a.TotalBytes, a.PublishRecordID)
	if isUniqueViolation(err) {
		return xerrors.WithKind(ErrActiveConflict, xerrors.KindConflict, "another deployment was activated concurrently")
	}
	if err != nil {
		return xerrors.Wrap(err, "activate deployment")
	}
	return requireRow(res, "deployment")
}

// ---------------------------------------------------------------------------
// publish records
// ---------------------------------------------------------------------------

func (q *queries) CreatePublishRecord(ctx context.Context, r model.PublishRecord) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO publish_records (id, author_id, site_id, deployment_id, url, created_at)
         VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.AuthorID, r.SiteID, r.DeploymentID, r.URL, r.CreatedAt)
	if err != nil {
		return xerrors.Wrap(err, "insert publish record")
	}
	return nil
}

// ---------------------------------------------------------------------------
// serving lookups
// ---------------------------------------------------------------------------

const activeSiteQuery = `SELECT a.profile_slug, s.slug, d.id, d.deployment_key, d.prefix
  FROM sites s
  JOIN accounts a ON a.id = s.owner_id
  JOIN site_deployments d ON d.id = s.active_deployment_id
 WHERE d.status = 'ACTIVE'`

func (q *queries) ActiveSite(ctx context.Context, ownerSlug, siteSlug string) (model.ActiveSite, error) {
	var as model.ActiveSite
	err := q.db.QueryRowContext(ctx, activeSiteQuery+` AND a.profile_slug = $1 AND s.slug = $2`, ownerSlug, siteSlug).
		Scan(&as.OwnerSlug, &as.SiteSlug, &as.DeploymentID, &as.DeploymentKey, &as.Prefix)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ActiveSite{}, notFound("site")
	}
	if err != nil {
		return model.ActiveSite{}, xerrors.Wrap(err, "select active site")
	}
	return as, nil
}

func (q *queries) ActiveSitesBySlug(ctx context.Context, siteSlug string) ([]model.ActiveSite, error) {
	rows, err := q.db.QueryContext(ctx, activeSiteQuery+` AND s.slug = $1 ORDER BY a.profile_slug`, siteSlug)
	if err != nil {
		return nil, xerrors.Wrap(err, "select active sites by slug")
	}
	defer rows.Close()

	var out []model.ActiveSite
	for rows.Next() {
		var as model.ActiveSite
		if err := rows.Scan(&as.OwnerSlug, &as.SiteSlug, &as.DeploymentID, &as.DeploymentKey, &as.Prefix); err != nil {
			return nil, xerrors.Wrap(err, "scan active site")
		}
		out = append(out, as)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(err, "iterate active sites")
	}
	return out, nil
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return xerrors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(what)
	}
	return nil
}
