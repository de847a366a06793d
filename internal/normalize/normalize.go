// internal/normalize/normalize.go

// Package normalize maps raw GitHub API records onto the store's row shapes.
// Every function is pure and nil-safe: a missing or malformed optional field
// degrades to an absent value, never to a panic or an error.
package normalize

import (
	"time"

	"github.com/google/go-github/v62/github"

	"gitpulse/internal/model"
)

// Repository maps a raw repository record onto a repos row. The operator
// flags (IsActive, IsPinned) are left at their zero values; the store's
// upsert never writes them.
func Repository(raw *github.Repository) model.Repository {
	return model.Repository{
		ID:            raw.GetID(),
		FullName:      raw.GetFullName(),
		OwnerLogin:    raw.GetOwner().GetLogin(),
		Name:          raw.GetName(),
		IsFork:        raw.GetFork(),
		Stars:         raw.GetStargazersCount(),
		Forks:         raw.GetForksCount(),
		OpenIssues:    raw.GetOpenIssuesCount(),
		DefaultBranch: raw.DefaultBranch,
		CreatedAt:     timestampPtr(raw.CreatedAt),
		UpdatedAt:     timestampPtr(raw.UpdatedAt),
		PushedAt:      timestampPtr(raw.PushedAt),
	}
}

// User maps a raw account record onto a users row. GitHub sometimes has no
// linked account for a commit, so the input may be nil; absent in, absent out.
func User(raw *github.User) *model.User {
	if raw == nil {
		return nil
	}
	return &model.User{
		ID:        raw.GetID(),
		Login:     raw.GetLogin(),
		Type:      raw.Type,
		SiteAdmin: raw.GetSiteAdmin(),
	}
}

// Commit maps a raw commit item onto a commits row. authorUserID and
// committerUserID are the linked user rows resolved by the caller, either of
// which may be absent; the free-text name/email come from the nested commit
// metadata block regardless. The web URL is preferred over the API URL.
func Commit(raw *github.RepositoryCommit, repoID int64, authorUserID, committerUserID *int64) model.Commit {
	row := model.Commit{
		SHA:             raw.GetSHA(),
		RepoID:          repoID,
		AuthorUserID:    authorUserID,
		CommitterUserID: committerUserID,
		URL:             raw.GetHTMLURL(),
	}
	if row.URL == "" {
		row.URL = raw.GetURL()
	}

	meta := raw.GetCommit()
	if meta == nil {
		return row
	}
	row.Message = meta.Message

	if author := meta.GetAuthor(); author != nil {
		row.AuthorName = author.Name
		row.AuthorEmail = author.Email
	}
	if committer := meta.GetCommitter(); committer != nil {
		row.CommitterName = committer.Name
		row.CommitterEmail = committer.Email
		if committer.Date != nil {
			t := committer.Date.Time
			row.CommittedAt = &t
		}
	}

	return row
}

func timestampPtr(ts *github.Timestamp) *time.Time {
	if ts == nil {
		return nil
	}
	t := ts.Time
	return &t
}
