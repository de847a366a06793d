// internal/ingest/ingest.go

// Package ingest coordinates one ingestion run: fetch the repository record,
// paginate its commit history, and apply everything to the store inside a
// single transaction. Re-invoking an ingestion after any failure is safe:
// repository and user rows are idempotently overwritten and duplicate commits
// are skipped, so the orchestrator carries no retry logic of its own.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	gogithub "github.com/google/go-github/v62/github"
	"github.com/jackc/pgx/v5"

	apperrors "gitpulse/internal/errors"
	"gitpulse/internal/model"
	"gitpulse/internal/normalize"
	"gitpulse/internal/store"
)

const (
	defaultPerPage  = 30
	defaultMaxPages = 10
)

// Source fetches raw records from the hosting API. Each call is a single
// attempt; failures arrive as the typed errors of internal/github.
type Source interface {
	FetchRepository(ctx context.Context, owner, name string) (*gogithub.Repository, error)
	FetchCommitPage(ctx context.Context, owner, name string, perPage, page int) ([]*gogithub.RepositoryCommit, error)
}

// TxBeginner opens the transaction an ingestion runs in. *pgxpool.Pool
// satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RepoIdentifier holds the owner and name of a repository.
type RepoIdentifier struct {
	Owner string
	Name  string
}

func (id RepoIdentifier) String() string {
	return id.Owner + "/" + id.Name
}

// ParseRepoIdentifier splits an 'owner/name' path.
func ParseRepoIdentifier(s string) (RepoIdentifier, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RepoIdentifier{}, &apperrors.ErrInvalidRepoFormat{Repo: s}
	}
	return RepoIdentifier{Owner: parts[0], Name: parts[1]}, nil
}

// Report summarizes a successful ingestion. CommitsFetched counts records
// fetched from the source, not rows inserted: duplicates are silently skipped
// by the store.
type Report struct {
	RepoID         int64  `json:"repo_id"`
	FullName       string `json:"full_name"`
	CommitsFetched int    `json:"commits_fetched"`
	PagesFetched   int    `json:"pages_fetched"`
}

// StoreError classifies a failure inside the transaction: constraint
// violation or connection loss. The transaction is rolled back in full.
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %v", e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Service is the ingestion orchestrator.
type Service struct {
	db     TxBeginner
	source Source
	logger *slog.Logger
}

func NewService(db TxBeginner, source Source, logger *slog.Logger) *Service {
	return &Service{db: db, source: source, logger: logger}
}

// Ingest runs one ingestion for the given repository. Fetching is fail-fast
// with zero store mutation; all pages are collected before the transaction
// opens, so a mid-pagination failure leaves the store untouched. The write
// phase is all-or-nothing behind the transaction boundary.
func (s *Service) Ingest(ctx context.Context, id RepoIdentifier, perPage, maxPages int) (*Report, error) {
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	logger := s.logger.With("owner", id.Owner, "repo", id.Name)
	logger.Info("Ingesting repository", "per_page", perPage, "max_pages", maxPages)

	rawRepo, err := s.source.FetchRepository(ctx, id.Owner, id.Name)
	if err != nil {
		return nil, err
	}

	commits, pages, err := s.collectCommits(ctx, id, perPage, maxPages)
	if err != nil {
		return nil, err
	}
	logger.Info("Collected commit history", "commits", len(commits), "pages", pages)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, &StoreError{Err: err}
	}
	defer tx.Rollback(ctx) // no-op once committed

	repo := normalize.Repository(rawRepo)
	if err := s.storeAll(ctx, store.New(tx), repo, commits); err != nil {
		return nil, &StoreError{Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, &StoreError{Err: err}
	}

	logger.Info("Ingestion committed", "repo_id", repo.ID, "commits_fetched", len(commits))
	return &Report{
		RepoID:         repo.ID,
		FullName:       repo.FullName,
		CommitsFetched: len(commits),
		PagesFetched:   pages,
	}, nil
}

// collectCommits fetches pages sequentially until an empty page signals the
// end of history or maxPages is reached. Any fetch error discards all
// progress for this invocation.
func (s *Service) collectCommits(ctx context.Context, id RepoIdentifier, perPage, maxPages int) ([]*gogithub.RepositoryCommit, int, error) {
	var all []*gogithub.RepositoryCommit
	pages := 0

	for page := 1; page <= maxPages; page++ {
		batch, err := s.source.FetchCommitPage(ctx, id.Owner, id.Name, perPage, page)
		if err != nil {
			return nil, 0, err
		}
		pages++
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
	}

	return all, pages, nil
}

// storeAll applies the normalized records: the repository row first, then for
// each commit its author and committer accounts (either may be absent) and
// finally the commit row linking to them.
func (s *Service) storeAll(ctx context.Context, q store.Querier, repo model.Repository, commits []*gogithub.RepositoryCommit) error {
	if err := q.UpsertRepository(ctx, repo); err != nil {
		return err
	}

	for _, raw := range commits {
		authorID, err := q.UpsertUser(ctx, normalize.User(raw.Author))
		if err != nil {
			return err
		}
		committerID, err := q.UpsertUser(ctx, normalize.User(raw.Committer))
		if err != nil {
			return err
		}
		if err := q.InsertCommit(ctx, normalize.Commit(raw, repo.ID, authorID, committerID)); err != nil {
			return err
		}
	}

	return nil
}
