// internal/store/store.go

// Package store is the Postgres persistence layer. It follows two conflict
// policies, one per entity kind: repositories and users are upserted by their
// stable numeric id (attributes legitimately change over time), while commits
// are insert-once by SHA (commit history is immutable, a duplicate insert is
// a silent no-op).
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"gitpulse/internal/model"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so the same queries run
// inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Querier is the full query surface, split out as an interface so callers can
// be tested against a mock.
type Querier interface {
	Ping(ctx context.Context) error

	UpsertRepository(ctx context.Context, row model.Repository) error
	UpsertUser(ctx context.Context, row *model.User) (*int64, error)
	InsertCommit(ctx context.Context, row model.Commit) error

	GetRepositoryByFullName(ctx context.Context, fullName string) (model.Repository, error)
	DeleteRepositoryByFullName(ctx context.Context, fullName string) (int64, error)
	SetRepositoryActive(ctx context.Context, fullName string, isActive bool) error
	SetRepositoryPinned(ctx context.Context, fullName string, isPinned bool) error
	ListActiveRepoFullNames(ctx context.Context) ([]string, error)

	Summary(ctx context.Context) (SummaryRow, error)
	Timeseries(ctx context.Context, days int, repoID *int64) ([]ActivityDay, error)
	TopRepos(ctx context.Context, days, limit int) ([]RepoCommitCount, error)
	RepoActivity(ctx context.Context, repoID int64, days int) ([]ActivityDay, error)
	RepoContributors(ctx context.Context, repoID int64, days, limit int) ([]ContributorCount, error)
	ListRepos(ctx context.Context, days, limit int, search string) ([]RepoListRow, error)
}

// Queries implements Querier against a DBTX.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a copy of Queries bound to an open transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

func (q *Queries) Ping(ctx context.Context) error {
	var one int
	return q.db.QueryRow(ctx, "SELECT 1").Scan(&one)
}

const upsertRepository = `
INSERT INTO repos (
  id, full_name, owner_login, name, is_fork, stars, forks, open_issues,
  default_branch, created_at, updated_at, pushed_at, last_ingested_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
ON CONFLICT (id) DO UPDATE SET
  full_name = EXCLUDED.full_name,
  owner_login = EXCLUDED.owner_login,
  name = EXCLUDED.name,
  is_fork = EXCLUDED.is_fork,
  stars = EXCLUDED.stars,
  forks = EXCLUDED.forks,
  open_issues = EXCLUDED.open_issues,
  default_branch = EXCLUDED.default_branch,
  created_at = EXCLUDED.created_at,
  updated_at = EXCLUDED.updated_at,
  pushed_at = EXCLUDED.pushed_at,
  last_ingested_at = NOW()
`

// UpsertRepository inserts or refreshes a repository row by its id. The
// operator flags is_active and is_pinned are deliberately outside the
// overwritten column set so ingestion never clobbers operator intent.
func (q *Queries) UpsertRepository(ctx context.Context, row model.Repository) error {
	_, err := q.db.Exec(ctx, upsertRepository,
		row.ID, row.FullName, row.OwnerLogin, row.Name, row.IsFork,
		row.Stars, row.Forks, row.OpenIssues, row.DefaultBranch,
		row.CreatedAt, row.UpdatedAt, row.PushedAt,
	)
	return err
}

const upsertUser = `
INSERT INTO users (id, login, type, site_admin, last_ingested_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (id) DO UPDATE SET
  login = EXCLUDED.login,
  type = EXCLUDED.type,
  site_admin = EXCLUDED.site_admin,
  last_ingested_at = NOW()
`

// UpsertUser inserts or refreshes a user row. It accepts an absent user and
// passes absence through, so the caller can link a commit to "no author".
func (q *Queries) UpsertUser(ctx context.Context, row *model.User) (*int64, error) {
	if row == nil {
		return nil, nil
	}
	_, err := q.db.Exec(ctx, upsertUser, row.ID, row.Login, row.Type, row.SiteAdmin)
	if err != nil {
		return nil, err
	}
	id := row.ID
	return &id, nil
}

const insertCommit = `
INSERT INTO commits (
  sha, repo_id, author_user_id, committer_user_id,
  author_name, author_email, committer_name, committer_email,
  message, committed_at, url, ingested_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
ON CONFLICT (sha) DO NOTHING
`

// InsertCommit inserts a commit row by SHA. A SHA that already exists is left
// untouched even when the incoming record differs.
func (q *Queries) InsertCommit(ctx context.Context, row model.Commit) error {
	_, err := q.db.Exec(ctx, insertCommit,
		row.SHA, row.RepoID, row.AuthorUserID, row.CommitterUserID,
		row.AuthorName, row.AuthorEmail, row.CommitterName, row.CommitterEmail,
		row.Message, row.CommittedAt, row.URL,
	)
	return err
}

const getRepositoryByFullName = `
SELECT id, full_name, owner_login, name, is_fork, stars, forks, open_issues,
       default_branch, created_at, updated_at, pushed_at, last_ingested_at,
       is_active, is_pinned
FROM repos
WHERE full_name = $1
`

func (q *Queries) GetRepositoryByFullName(ctx context.Context, fullName string) (model.Repository, error) {
	var r model.Repository
	err := q.db.QueryRow(ctx, getRepositoryByFullName, fullName).Scan(
		&r.ID, &r.FullName, &r.OwnerLogin, &r.Name, &r.IsFork,
		&r.Stars, &r.Forks, &r.OpenIssues, &r.DefaultBranch,
		&r.CreatedAt, &r.UpdatedAt, &r.PushedAt, &r.LastIngestedAt,
		&r.IsActive, &r.IsPinned,
	)
	return r, err
}

// DeleteRepositoryByFullName untracks a repository. The commits.repo_id
// foreign key is ON DELETE CASCADE, so its commits go with it. Returns
// pgx.ErrNoRows when the repository is unknown.
func (q *Queries) DeleteRepositoryByFullName(ctx context.Context, fullName string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		"DELETE FROM repos WHERE full_name = $1 RETURNING id", fullName,
	).Scan(&id)
	return id, err
}

func (q *Queries) SetRepositoryActive(ctx context.Context, fullName string, isActive bool) error {
	var name string
	return q.db.QueryRow(ctx,
		"UPDATE repos SET is_active = $2 WHERE full_name = $1 RETURNING full_name",
		fullName, isActive,
	).Scan(&name)
}

func (q *Queries) SetRepositoryPinned(ctx context.Context, fullName string, isPinned bool) error {
	var name string
	return q.db.QueryRow(ctx,
		"UPDATE repos SET is_pinned = $2 WHERE full_name = $1 RETURNING full_name",
		fullName, isPinned,
	).Scan(&name)
}

func (q *Queries) ListActiveRepoFullNames(ctx context.Context) ([]string, error) {
	rows, err := q.db.Query(ctx,
		"SELECT full_name FROM repos WHERE is_active = TRUE ORDER BY is_pinned DESC, full_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
