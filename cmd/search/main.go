package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"nic-search/internal/app"
	"nic-search/internal/catalog"
	"nic-search/internal/embeddings"
	"nic-search/internal/httputil"
	"nic-search/internal/queue"
	"nic-search/internal/ranker"
	"nic-search/internal/search"
)

type searchRequest struct {
	Query string `validate:"required"`
	TopK  int    `validate:"gte=0"`
}

type searchResponse struct {
	Results []ranker.Result `json:"results"`
}

func main() {
	if err := run(); err != nil {
		slog.Default().Error("search service failed", "err", err)
		os.Exit(1)
	}
}

func run() error {
	deps, err := app.Build()
	if err != nil {
		return fmt.Errorf("failed to build dependencies: %w", err)
	}
	defer deps.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The service starts even when the first build fails; /readyz reports it.
	if _, err := deps.Indexer.Reindex(ctx); err != nil {
		deps.Log.Error("initial catalog build failed; serving empty catalog", "err", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", deps.Config.Port),
		Handler:           newRouter(ctx, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deps.Log.Info("search service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if deps.Queue != nil {
		g.Go(func() error {
			return deps.Queue.Subscribe(gctx, queue.TaskTypeReindex, reindexTaskHandler(deps))
		})
	}
	return g.Wait()
}

// newRouter mounts the HTTP surface. Rebuilds started over HTTP run on ctx,
// not on the request context, so they outlive the request timeout.
func newRouter(ctx context.Context, deps app.Deps) chi.Router {
	r := httputil.NewRouter(deps.Log, "nic-search", deps.Config.AllowedOrigins)
	r.Get("/api/search", searchHandler(deps))
	r.Post("/api/reindex", reindexHandler(ctx, deps))
	r.Get("/healthz", httputil.HealthHandler(deps.Log))
	r.Get("/readyz", readyHandler(deps))
	return r
}

func searchHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := searchRequest{Query: r.URL.Query().Get("q")}
		if raw := r.URL.Query().Get("k"); raw != "" {
			k, err := strconv.Atoi(raw)
			if err != nil {
				httputil.Fail(deps.Log, w, "invalid k", err, http.StatusBadRequest)
				return
			}
			req.TopK = k
		}
		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		results, err := deps.Search.Search(r.Context(), req.Query, req.TopK)
		if err != nil {
			httputil.Fail(deps.Log, w, "search failed", err, statusFor(err))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, searchResponse{Results: results})
	}
}

// reindexHandler hands the rebuild to every replica over the queue when one
// is configured; otherwise it starts a rebuild of this replica in the
// background. Either way the caller gets 202 and polls /readyz.
func reindexHandler(ctx context.Context, deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Queue != nil {
			task := queue.Task{ID: uuid.New(), Type: queue.TaskTypeReindex}
			if err := queue.EnqueueWithRetry(r.Context(), deps.Queue, task, 3, 100*time.Millisecond); err != nil {
				httputil.Fail(deps.Log, w, "failed to enqueue reindex", err, http.StatusBadGateway)
				return
			}
			httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
				"status":  "queued",
				"task_id": task.ID,
			})
			return
		}

		if deps.Indexer.Running() {
			httputil.Fail(deps.Log, w, "reindex already running", catalog.ErrReindexInProgress, http.StatusConflict)
			return
		}
		go runReindex(ctx, deps)
		httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
			"status":  "started",
			"catalog": deps.Search.Status(),
		})
	}
}

func runReindex(ctx context.Context, deps app.Deps) {
	ctx, cancel := context.WithTimeout(ctx, reindexTimeout(deps.Config.ReindexTimeout))
	defer cancel()

	stats, err := deps.Indexer.Reindex(ctx)
	switch {
	case errors.Is(err, catalog.ErrReindexInProgress):
		deps.Log.Info("reindex already running; request skipped")
	case err != nil:
		deps.Log.Error("reindex failed", "err", err)
	default:
		deps.Log.Info("reindex done", "rows", stats.Rows, "embedded", stats.Embedded, "failed", stats.Failed)
	}
}

func readyHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := deps.Search.Status()
		status := http.StatusOK
		if !st.Ready {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, st)
	}
}

// reindexTaskHandler runs a queued rebuild. A failed rebuild is returned to
// the queue, which logs it; the published snapshot is kept.
func reindexTaskHandler(deps app.Deps) queue.Handler {
	return func(ctx context.Context, task queue.Task) error {
		ctx, cancel := context.WithTimeout(ctx, reindexTimeout(deps.Config.ReindexTimeout))
		defer cancel()
		stats, err := deps.Indexer.Reindex(ctx)
		if errors.Is(err, catalog.ErrReindexInProgress) {
			deps.Log.Info("reindex already running; task skipped", "task_id", task.ID)
			return nil
		}
		if err != nil {
			return err
		}
		deps.Log.Info("reindex task done", "task_id", task.ID, "embedded", stats.Embedded)
		return nil
	}
}

func reindexTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(seconds) * time.Second
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, search.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, ranker.ErrNoDataAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, embeddings.ErrEmbeddingFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
