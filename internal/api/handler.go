// internal/api/handler.go
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"

	"gitpulse/internal/github"
	"gitpulse/internal/ingest"
	"gitpulse/internal/model"
	"gitpulse/internal/store"
)

// Ingester is the single operation the ingestion core exposes to this layer.
type Ingester interface {
	Ingest(ctx context.Context, id ingest.RepoIdentifier, perPage, maxPages int) (*ingest.Report, error)
}

// Handler is the container for API dependencies.
type Handler struct {
	db       store.Querier
	ingester Ingester
	logger   *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(db store.Querier, ingester Ingester, logger *slog.Logger) http.Handler {
	h := &Handler{
		db:       db,
		ingester: ingester,
		logger:   logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute)) // ingestion can paginate for a while

	r.Get("/health", h.healthCheck)

	r.Route("/repos", func(r chi.Router) {
		r.Get("/top", h.getTopRepos)
		r.Get("/{owner}/{name}/activity", h.getRepoActivity)
		r.Get("/{owner}/{name}/contributors", h.getRepoContributors)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/summary", h.getSummary)
		r.Get("/timeseries", h.getTimeseries)
		r.Get("/repos", h.listRepos)
		r.Post("/repos/{owner}/{name}/ingest", h.ingestRepo)
		r.Delete("/repos/{owner}/{name}", h.deleteRepo)
		r.Patch("/repos/{owner}/{name}/active", h.setRepoActive)
		r.Patch("/repos/{owner}/{name}/pin", h.setRepoPinned)
	})

	return r
}

// healthCheck reports liveness including a database round trip.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Error("Health check failed", "error", err)
		respondWithError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"status": "ok", "db": 1})
}

// ingestRepo triggers one ingestion run.
// POST /api/repos/{owner}/{name}/ingest?per_page=N&max_pages=M
func (h *Handler) ingestRepo(w http.ResponseWriter, r *http.Request) {
	id := ingest.RepoIdentifier{
		Owner: chi.URLParam(r, "owner"),
		Name:  chi.URLParam(r, "name"),
	}

	perPage, ok := queryInt(w, r, "per_page", 30, 1, 100)
	if !ok {
		return
	}
	maxPages, ok := queryInt(w, r, "max_pages", 10, 1, 100)
	if !ok {
		return
	}

	report, err := h.ingester.Ingest(r.Context(), id, perPage, maxPages)
	if err != nil {
		h.respondIngestError(w, id, err)
		return
	}

	respondWithJSON(w, http.StatusOK, report)
}

// respondIngestError maps the ingestion error taxonomy onto HTTP statuses.
// The kinds must stay distinguishable: a scheduler needs the reset epoch from
// a 429, and an operator needs to tell "bad input" from "try again later".
func (h *Handler) respondIngestError(w http.ResponseWriter, id ingest.RepoIdentifier, err error) {
	var notFound *github.NotFoundError
	if errors.As(err, &notFound) {
		respondWithError(w, http.StatusNotFound, "Repository not found at GitHub: "+notFound.FullName)
		return
	}

	var rateLimited *github.RateLimitedError
	if errors.As(err, &rateLimited) {
		respondWithJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":       "GitHub API rate limit exhausted",
			"remaining":   rateLimited.Remaining,
			"reset_epoch": rateLimited.Reset.Unix(),
			"hint":        "set GITHUB_TOKEN to raise the quota, or retry after the reset",
		})
		return
	}

	var transport *github.TransportError
	if errors.As(err, &transport) {
		h.logger.Error("GitHub request failed", "owner", id.Owner, "repo", id.Name,
			"status", transport.StatusCode, "body", transport.Body)
		respondWithError(w, http.StatusBadGateway, "GitHub request failed")
		return
	}

	h.logger.Error("Ingestion failed", "owner", id.Owner, "repo", id.Name, "error", err)
	respondWithError(w, http.StatusInternalServerError, "Internal server error")
}

// getSummary returns the dashboard KPI payload.
// GET /api/summary
func (h *Handler) getSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.db.Summary(r.Context())
	if err != nil {
		h.logger.Error("Failed to build summary", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

// getTimeseries returns commits per day, globally or for one repository.
// GET /api/timeseries?days=N&full_name=owner/name
func (h *Handler) getTimeseries(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days", 30, 1, 365)
	if !ok {
		return
	}

	var repoID *int64
	scope := map[string]any{"repo": nil}
	if fullName := r.URL.Query().Get("full_name"); fullName != "" {
		repo, err := h.db.GetRepositoryByFullName(r.Context(), fullName)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				respondWithError(w, http.StatusNotFound, "Repo not found. Ingest it first.")
				return
			}
			h.logger.Error("Failed to get repository", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		repoID = &repo.ID
		scope["repo"] = repo.FullName
	}

	series, err := h.db.Timeseries(r.Context(), days, repoID)
	if err != nil {
		h.logger.Error("Failed to query timeseries", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"scope":  scope,
		"days":   days,
		"series": emptyIfNil(series),
	})
}

// getTopRepos ranks repositories by commit volume in the window.
// GET /repos/top?days=N&limit=N
func (h *Handler) getTopRepos(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days", 30, 1, 365)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", 10, 1, 100)
	if !ok {
		return
	}

	repos, err := h.db.TopRepos(r.Context(), days, limit)
	if err != nil {
		h.logger.Error("Failed to query top repos", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"days":    days,
		"limit":   limit,
		"results": emptyIfNil(repos),
	})
}

// getRepoActivity returns the daily commit series for one repository.
// GET /repos/{owner}/{name}/activity?days=N
func (h *Handler) getRepoActivity(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days", 30, 1, 365)
	if !ok {
		return
	}

	repo, found := h.lookupRepo(w, r)
	if !found {
		return
	}

	series, err := h.db.RepoActivity(r.Context(), repo.ID, days)
	if err != nil {
		h.logger.Error("Failed to query activity", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"repo":   repo.FullName,
		"days":   days,
		"series": emptyIfNil(series),
	})
}

// getRepoContributors returns commit counts per contributor.
// GET /repos/{owner}/{name}/contributors?days=N&limit=N
func (h *Handler) getRepoContributors(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days", 30, 1, 365)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", 10, 1, 100)
	if !ok {
		return
	}

	repo, found := h.lookupRepo(w, r)
	if !found {
		return
	}

	contributors, err := h.db.RepoContributors(r.Context(), repo.ID, days, limit)
	if err != nil {
		h.logger.Error("Failed to query contributors", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"repo":    repo.FullName,
		"days":    days,
		"limit":   limit,
		"results": emptyIfNil(contributors),
	})
}

// listRepos returns the dashboard repo table.
// GET /api/repos?days=N&limit=N&search=text
func (h *Handler) listRepos(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days", 30, 1, 365)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", 50, 1, 200)
	if !ok {
		return
	}
	search := r.URL.Query().Get("search")

	repos, err := h.db.ListRepos(r.Context(), days, limit, search)
	if err != nil {
		h.logger.Error("Failed to list repos", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"days":    days,
		"limit":   limit,
		"search":  search,
		"results": emptyIfNil(repos),
	})
}

// deleteRepo untracks a repository; its commits cascade away with it.
// DELETE /api/repos/{owner}/{name}
func (h *Handler) deleteRepo(w http.ResponseWriter, r *http.Request) {
	fullName := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "name")

	id, err := h.db.DeleteRepositoryByFullName(r.Context(), fullName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Repo not found.")
			return
		}
		h.logger.Error("Failed to delete repository", "full_name", fullName, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"deleted": map[string]any{"id": id, "full_name": fullName},
	})
}

// setRepoActive flips the operator-owned is_active flag.
// PATCH /api/repos/{owner}/{name}/active?is_active=bool
func (h *Handler) setRepoActive(w http.ResponseWriter, r *http.Request) {
	h.setRepoFlag(w, r, "is_active", h.db.SetRepositoryActive)
}

// setRepoPinned flips the operator-owned is_pinned flag.
// PATCH /api/repos/{owner}/{name}/pin?is_pinned=bool
func (h *Handler) setRepoPinned(w http.ResponseWriter, r *http.Request) {
	h.setRepoFlag(w, r, "is_pinned", h.db.SetRepositoryPinned)
}

func (h *Handler) setRepoFlag(w http.ResponseWriter, r *http.Request, param string, update func(context.Context, string, bool) error) {
	fullName := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "name")

	raw := r.URL.Query().Get(param)
	value, err := strconv.ParseBool(raw)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid '"+param+"' parameter. Must be true or false.")
		return
	}

	if err := update(r.Context(), fullName, value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Repo not found.")
			return
		}
		h.logger.Error("Failed to update repository flag", "full_name", fullName, "flag", param, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"updated": map[string]any{"full_name": fullName, param: value},
	})
}

// lookupRepo resolves the {owner}/{name} path params to a stored repository,
// writing the error response itself when that fails.
func (h *Handler) lookupRepo(w http.ResponseWriter, r *http.Request) (model.Repository, bool) {
	fullName := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "name")

	row, err := h.db.GetRepositoryByFullName(r.Context(), fullName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Repository not found")
			return model.Repository{}, false
		}
		h.logger.Error("Failed to get repository", "full_name", fullName, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return model.Repository{}, false
	}

	return row, true
}

// queryInt parses an optional integer query parameter, writing a 400 response
// and returning ok=false when it is present but out of bounds.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def, min, max int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		respondWithError(w, http.StatusBadRequest,
			"Invalid '"+name+"' parameter. Must be an integer between "+strconv.Itoa(min)+" and "+strconv.Itoa(max)+".")
		return 0, false
	}
	return v, true
}

// emptyIfNil keeps JSON arrays as [] instead of null for empty result sets.
func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
