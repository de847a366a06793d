// internal/model/models.go
package model

import "time"

// Repository is a row in the repos table. The id is GitHub's stable numeric
// repository id, reused as our primary key so re-ingestion hits the same row.
type Repository struct {
	ID             int64      `json:"id"`
	FullName       string     `json:"full_name"`
	OwnerLogin     string     `json:"owner_login"`
	Name           string     `json:"name"`
	IsFork         bool       `json:"is_fork"`
	Stars          int        `json:"stars"`
	Forks          int        `json:"forks"`
	OpenIssues     int        `json:"open_issues"`
	DefaultBranch  *string    `json:"default_branch"`
	CreatedAt      *time.Time `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
	PushedAt       *time.Time `json:"pushed_at"`
	LastIngestedAt time.Time  `json:"last_ingested_at"`

	// Operator-controlled flags, never touched by ingestion.
	IsActive bool `json:"is_active"`
	IsPinned bool `json:"is_pinned"`
}

// User is a row in the users table, keyed by GitHub's numeric account id.
type User struct {
	ID             int64     `json:"id"`
	Login          string    `json:"login"`
	Type           *string   `json:"type"`
	SiteAdmin      bool      `json:"site_admin"`
	LastIngestedAt time.Time `json:"last_ingested_at"`
}

// Commit is a row in the commits table, keyed by the commit SHA. A commit may
// reference up to two user rows; either reference is absent when GitHub has no
// linked account, in which case only the free-text name/email fields are set.
type Commit struct {
	SHA             string     `json:"sha"`
	RepoID          int64      `json:"repo_id"`
	AuthorUserID    *int64     `json:"author_user_id"`
	CommitterUserID *int64     `json:"committer_user_id"`
	AuthorName      *string    `json:"author_name"`
	AuthorEmail     *string    `json:"author_email"`
	CommitterName   *string    `json:"committer_name"`
	CommitterEmail  *string    `json:"committer_email"`
	Message         *string    `json:"message"`
	CommittedAt     *time.Time `json:"committed_at"`
	URL             string     `json:"url"`
	IngestedAt      time.Time  `json:"ingested_at"`
}
