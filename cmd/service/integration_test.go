//go:build integration

// cmd/service/integration_test.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"gitpulse/internal/api"
	"gitpulse/internal/github"
	"gitpulse/internal/ingest"
	"gitpulse/internal/store"
)

func setupTestDatabase(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("gitpulse-test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migrate.New("file://../../migrations", connStr)
	require.NoError(t, err)
	require.NoError(t, m.Up())

	dbpool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(dbpool.Close)

	return dbpool
}

// fakeGitHub serves the fastapi/fastapi fixture: three commits on one page,
// then an empty page. Two commits by the linked user alice on 2026-01-20 and
// one by bob, who has no linked account, on 2026-01-21. The sha1 message can
// be swapped between ingestions to prove commit rows are never overwritten.
type fakeGitHub struct {
	sha1Message string
}

func (f *fakeGitHub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/fastapi/fastapi", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{
			"id": 123,
			"full_name": "fastapi/fastapi",
			"name": "fastapi",
			"owner": {"login": "fastapi", "id": 1},
			"fork": false,
			"stargazers_count": 75000,
			"forks_count": 6000,
			"open_issues_count": 40,
			"default_branch": "master",
			"created_at": "2018-12-08T08:21:47Z",
			"updated_at": "2026-01-21T10:00:00Z",
			"pushed_at": "2026-01-21T09:00:00Z"
		}`)
	})
	mux.HandleFunc("/api/v3/repos/fastapi/fastapi/commits", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if page != "" && page != "1" {
			fmt.Fprintln(w, `[]`)
			return
		}
		fmt.Fprintf(w, `[
			{
				"sha": "sha1",
				"author": {"login": "alice", "id": 10, "type": "User"},
				"committer": {"login": "alice", "id": 10, "type": "User"},
				"commit": {
					"message": %q,
					"author": {"name": "alice", "email": "a@x.com", "date": "2026-01-20T10:00:00Z"},
					"committer": {"name": "alice", "email": "a@x.com", "date": "2026-01-20T10:00:00Z"}
				},
				"html_url": "https://github.example/c/sha1"
			},
			{
				"sha": "sha2",
				"author": {"login": "alice", "id": 10, "type": "User"},
				"committer": {"login": "alice", "id": 10, "type": "User"},
				"commit": {
					"author": {"name": "alice", "email": "a@x.com", "date": "2026-01-20T12:00:00Z"},
					"committer": {"name": "alice", "email": "a@x.com", "date": "2026-01-20T12:00:00Z"},
					"message": "c2"
				},
				"html_url": "https://github.example/c/sha2"
			},
			{
				"sha": "sha3",
				"author": null,
				"committer": null,
				"commit": {
					"author": {"name": "bob", "email": "b@x.com", "date": "2026-01-21T09:00:00Z"},
					"committer": {"name": "bob", "email": "b@x.com", "date": "2026-01-21T09:00:00Z"},
					"message": "c3"
				},
				"html_url": "https://github.example/c/sha3"
			}
		]`, f.sha1Message)
	})
	return mux
}

func setupApp(ctx context.Context, t *testing.T, gh *fakeGitHub) (http.Handler, *pgxpool.Pool) {
	t.Helper()

	dbpool := setupTestDatabase(ctx, t)

	server := httptest.NewServer(gh.handler())
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ghClient, err := github.NewClient("", server.URL, logger)
	require.NoError(t, err)

	ingestService := ingest.NewService(dbpool, ghClient, logger)
	return api.NewRouter(store.New(dbpool), ingestService, logger), dbpool
}

func doJSON(t *testing.T, router http.Handler, method, target string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestIngestAndAnalytics_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	gh := &fakeGitHub{sha1Message: "c1"}
	router, dbpool := setupApp(ctx, t, gh)
	queries := store.New(dbpool)

	// --- Ingest ---
	code, body := doJSON(t, router, http.MethodPost, "/api/repos/fastapi/fastapi/ingest?per_page=30&max_pages=5")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(123), body["repo_id"])
	assert.Equal(t, "fastapi/fastapi", body["full_name"])
	assert.Equal(t, float64(3), body["commits_fetched"])
	assert.Equal(t, float64(2), body["pages_fetched"], "a full page then an empty page")

	firstRepo, err := queries.GetRepositoryByFullName(ctx, "fastapi/fastapi")
	require.NoError(t, err)

	// --- Re-ingest with an upstream-amended sha1 message ---
	gh.sha1Message = "c1 amended upstream"
	time.Sleep(10 * time.Millisecond)
	code, body = doJSON(t, router, http.MethodPost, "/api/repos/fastapi/fastapi/ingest")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3), body["commits_fetched"])

	secondRepo, err := queries.GetRepositoryByFullName(ctx, "fastapi/fastapi")
	require.NoError(t, err)
	assert.Equal(t, firstRepo.ID, secondRepo.ID)
	assert.True(t, secondRepo.LastIngestedAt.After(firstRepo.LastIngestedAt))

	var commitCount int
	var sha1Message string
	require.NoError(t, dbpool.QueryRow(ctx, "SELECT COUNT(*) FROM commits").Scan(&commitCount))
	require.NoError(t, dbpool.QueryRow(ctx, "SELECT message FROM commits WHERE sha = 'sha1'").Scan(&sha1Message))
	assert.Equal(t, 3, commitCount, "re-ingestion must not duplicate commits")
	assert.Equal(t, "c1", sha1Message, "commit rows are immutable once inserted")

	// --- Top repos ---
	code, body = doJSON(t, router, http.MethodGet, "/repos/top?days=365&limit=10")
	require.Equal(t, http.StatusOK, code)
	results := body["results"].([]any)
	require.NotEmpty(t, results)
	first := results[0].(map[string]any)
	assert.Equal(t, "fastapi/fastapi", first["full_name"])
	assert.Equal(t, float64(3), first["commit_count"])

	// --- Daily activity ---
	code, body = doJSON(t, router, http.MethodGet, "/repos/fastapi/fastapi/activity?days=365")
	require.Equal(t, http.StatusOK, code)
	series := body["series"].([]any)
	assert.Contains(t, series, map[string]any{"day": "2026-01-20", "commit_count": float64(2)})
	assert.Contains(t, series, map[string]any{"day": "2026-01-21", "commit_count": float64(1)})

	// --- Contributors ---
	code, body = doJSON(t, router, http.MethodGet, "/repos/fastapi/fastapi/contributors?days=365&limit=10")
	require.Equal(t, http.StatusOK, code)
	contributors := body["results"].([]any)
	assert.Contains(t, contributors, map[string]any{"contributor": "alice", "commit_count": float64(2)})
	assert.Contains(t, contributors, map[string]any{"contributor": "bob", "commit_count": float64(1)})

	// --- Absent-user commit kept its free-text author ---
	var authorUserID *int64
	var authorName string
	require.NoError(t, dbpool.QueryRow(ctx, "SELECT author_user_id, author_name FROM commits WHERE sha = 'sha3'").Scan(&authorUserID, &authorName))
	assert.Nil(t, authorUserID)
	assert.Equal(t, "bob", authorName)

	// --- Untrack cascades ---
	code, body = doJSON(t, router, http.MethodDelete, "/api/repos/fastapi/fastapi")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, dbpool.QueryRow(ctx, "SELECT COUNT(*) FROM commits").Scan(&commitCount))
	assert.Zero(t, commitCount)
}

func TestIngest_RateLimited_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	dbpool := setupTestDatabase(ctx, t)

	reset := time.Now().Add(time.Hour).Truncate(time.Second)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/fastapi/fastapi", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset.Unix()))
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprintln(w, `{"message": "API rate limit exceeded"}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ghClient, err := github.NewClient("", server.URL, logger)
	require.NoError(t, err)
	queries := store.New(dbpool)
	router := api.NewRouter(queries, ingest.NewService(dbpool, ghClient, logger), logger)

	code, body := doJSON(t, router, http.MethodPost, "/api/repos/fastapi/fastapi/ingest")

	require.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, float64(reset.Unix()), body["reset_epoch"])
	assert.Contains(t, body["hint"], "GITHUB_TOKEN")

	var repoCount int
	require.NoError(t, dbpool.QueryRow(ctx, "SELECT COUNT(*) FROM repos").Scan(&repoCount))
	assert.Zero(t, repoCount, "a failed fetch must leave no partial store writes")
}
