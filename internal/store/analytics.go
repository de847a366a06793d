// internal/store/analytics.go
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// SummaryRow is the payload behind the dashboard's KPI cards: one query
// surface so the frontend does not stitch numbers together itself.
type SummaryRow struct {
	TotalRepos      int64            `json:"total_repos"`
	TotalCommits    int64            `json:"total_commits"`
	Commits7d       int64            `json:"commits_7d"`
	Commits30d      int64            `json:"commits_30d"`
	LastIngestedAt  *time.Time       `json:"last_ingested_at"`
	TopRepo30d      *RepoCommitCount `json:"top_repo_30d"`
	MostActiveDay30 *ActivityDay     `json:"most_active_day_30d"`
}

// ActivityDay is one point of a commits-per-day series.
type ActivityDay struct {
	Day         string `json:"day"`
	CommitCount int64  `json:"commit_count"`
}

// RepoCommitCount ranks a repository by commit volume in some window.
type RepoCommitCount struct {
	FullName    string `json:"full_name"`
	Stars       int    `json:"stars"`
	CommitCount int64  `json:"commit_count"`
}

// ContributorCount is a per-contributor commit tally. Contributor is the
// linked login when GitHub knew the account, else the free-text author name.
type ContributorCount struct {
	Contributor string `json:"contributor"`
	CommitCount int64  `json:"commit_count"`
}

// RepoListRow is one row of the dashboard's repo table: metadata, operator
// flags, and the windowed commit count in a single call.
type RepoListRow struct {
	FullName       string     `json:"full_name"`
	Stars          int        `json:"stars"`
	Forks          int        `json:"forks"`
	OpenIssues     int        `json:"open_issues"`
	PushedAt       *time.Time `json:"pushed_at"`
	LastIngestedAt time.Time  `json:"last_ingested_at"`
	IsActive       bool       `json:"is_active"`
	IsPinned       bool       `json:"is_pinned"`
	CommitCount    int64      `json:"commit_count"`
}

const dayFormat = "2006-01-02"

func (q *Queries) Summary(ctx context.Context) (SummaryRow, error) {
	var s SummaryRow

	if err := q.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM repos WHERE is_active = TRUE").Scan(&s.TotalRepos); err != nil {
		return s, err
	}
	if err := q.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM commits").Scan(&s.TotalCommits); err != nil {
		return s, err
	}
	if err := q.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM commits c
		JOIN repos r ON r.id = c.repo_id
		WHERE r.is_active = TRUE AND c.committed_at >= NOW() - INTERVAL '7 days'`,
	).Scan(&s.Commits7d); err != nil {
		return s, err
	}
	if err := q.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM commits c
		JOIN repos r ON r.id = c.repo_id
		WHERE r.is_active = TRUE AND c.committed_at >= NOW() - INTERVAL '30 days'`,
	).Scan(&s.Commits30d); err != nil {
		return s, err
	}
	if err := q.db.QueryRow(ctx,
		"SELECT MAX(last_ingested_at) FROM repos WHERE is_active = TRUE").Scan(&s.LastIngestedAt); err != nil {
		return s, err
	}

	var top RepoCommitCount
	err := q.db.QueryRow(ctx, `
		SELECT r.full_name, r.stars, COUNT(c.sha) AS commit_count
		FROM repos r
		JOIN commits c ON c.repo_id = r.id
		WHERE c.committed_at >= NOW() - INTERVAL '30 days'
		GROUP BY r.full_name, r.stars
		ORDER BY commit_count DESC
		LIMIT 1`,
	).Scan(&top.FullName, &top.Stars, &top.CommitCount)
	switch {
	case err == nil:
		s.TopRepo30d = &top
	case !errors.Is(err, pgx.ErrNoRows):
		return s, err
	}

	var day time.Time
	var active ActivityDay
	err = q.db.QueryRow(ctx, `
		SELECT DATE_TRUNC('day', c.committed_at)::date AS day, COUNT(*) AS commit_count
		FROM commits c
		JOIN repos r ON r.id = c.repo_id
		WHERE r.is_active = TRUE AND c.committed_at >= NOW() - INTERVAL '30 days'
		GROUP BY day
		ORDER BY commit_count DESC
		LIMIT 1`,
	).Scan(&day, &active.CommitCount)
	switch {
	case err == nil:
		active.Day = day.Format(dayFormat)
		s.MostActiveDay30 = &active
	case !errors.Is(err, pgx.ErrNoRows):
		return s, err
	}

	return s, nil
}

const timeseriesAll = `
SELECT DATE_TRUNC('day', c.committed_at)::date AS day, COUNT(*) AS commit_count
FROM commits c
JOIN repos r ON r.id = c.repo_id
WHERE r.is_active = TRUE
  AND c.committed_at >= NOW() - make_interval(days => $1)
GROUP BY day
ORDER BY day
`

const timeseriesRepo = `
SELECT DATE_TRUNC('day', c.committed_at)::date AS day, COUNT(*) AS commit_count
FROM commits c
WHERE c.repo_id = $2
  AND c.committed_at >= NOW() - make_interval(days => $1)
GROUP BY day
ORDER BY day
`

// Timeseries returns commits per day over the window, globally (repoID nil,
// active repos only) or for one repository.
func (q *Queries) Timeseries(ctx context.Context, days int, repoID *int64) ([]ActivityDay, error) {
	var rows pgx.Rows
	var err error
	if repoID == nil {
		rows, err = q.db.Query(ctx, timeseriesAll, days)
	} else {
		rows, err = q.db.Query(ctx, timeseriesRepo, days, *repoID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanActivityDays(rows)
}

// RepoActivity is the per-repository daily series for the dashboard charts.
func (q *Queries) RepoActivity(ctx context.Context, repoID int64, days int) ([]ActivityDay, error) {
	rows, err := q.db.Query(ctx, timeseriesRepo, days, repoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanActivityDays(rows)
}

const topRepos = `
SELECT r.full_name, r.stars, COUNT(c.sha) AS commit_count
FROM repos r
JOIN commits c ON c.repo_id = r.id
WHERE r.is_active = TRUE
  AND c.committed_at >= NOW() - make_interval(days => $1)
GROUP BY r.full_name, r.stars
ORDER BY commit_count DESC, r.stars DESC
LIMIT $2
`

func (q *Queries) TopRepos(ctx context.Context, days, limit int) ([]RepoCommitCount, error) {
	rows, err := q.db.Query(ctx, topRepos, days, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RepoCommitCount
	for rows.Next() {
		var r RepoCommitCount
		if err := rows.Scan(&r.FullName, &r.Stars, &r.CommitCount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const repoContributors = `
SELECT COALESCE(u.login, c.author_name, 'unknown') AS contributor,
       COUNT(*) AS commit_count
FROM commits c
LEFT JOIN users u ON u.id = c.author_user_id
WHERE c.repo_id = $1
  AND c.committed_at >= NOW() - make_interval(days => $2)
GROUP BY contributor
ORDER BY commit_count DESC, contributor
LIMIT $3
`

func (q *Queries) RepoContributors(ctx context.Context, repoID int64, days, limit int) ([]ContributorCount, error) {
	rows, err := q.db.Query(ctx, repoContributors, repoID, days, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ContributorCount
	for rows.Next() {
		var c ContributorCount
		if err := rows.Scan(&c.Contributor, &c.CommitCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const listRepos = `
WITH activity AS (
  SELECT repo_id, COUNT(*) AS commit_count
  FROM commits
  WHERE committed_at >= NOW() - make_interval(days => $1)
  GROUP BY repo_id
)
SELECT r.full_name, r.stars, r.forks, r.open_issues, r.pushed_at,
       r.last_ingested_at, r.is_active, r.is_pinned,
       COALESCE(a.commit_count, 0) AS commit_count
FROM repos r
LEFT JOIN activity a ON a.repo_id = r.id
WHERE r.full_name ILIKE ('%' || $3 || '%')
ORDER BY r.is_pinned DESC, r.is_active DESC, commit_count DESC, r.stars DESC
LIMIT $2
`

func (q *Queries) ListRepos(ctx context.Context, days, limit int, search string) ([]RepoListRow, error) {
	rows, err := q.db.Query(ctx, listRepos, days, limit, search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RepoListRow
	for rows.Next() {
		var r RepoListRow
		if err := rows.Scan(&r.FullName, &r.Stars, &r.Forks, &r.OpenIssues,
			&r.PushedAt, &r.LastIngestedAt, &r.IsActive, &r.IsPinned, &r.CommitCount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanActivityDays(rows pgx.Rows) ([]ActivityDay, error) {
	var out []ActivityDay
	for rows.Next() {
		var day time.Time
		var a ActivityDay
		if err := rows.Scan(&day, &a.CommitCount); err != nil {
			return nil, err
		}
		a.Day = day.Format(dayFormat)
		out = append(out, a)
	}
	return out, rows.Err()
}
