package catalog

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"nic-search/internal/embeddings"
)

// BuildOptions tunes catalog construction.
type BuildOptions struct {
	// Workers bounds concurrent embed calls. Values below 1 mean 1.
	Workers int
	Log     *slog.Logger
}

// BuildStats summarizes one build.
type BuildStats struct {
	Rows     int `json:"rows"`
	Dropped  int `json:"dropped"`
	Failed   int `json:"failed"`
	Embedded int `json:"embedded"`
}

// Build embeds every usable row exactly once and returns the resulting
// snapshot. Rows with a blank code or description are dropped before
// embedding. Rows whose embedding fails, or whose vector length differs
// from the first embedded row, are skipped and logged. Record order follows
// row order regardless of Workers. An error is returned only when ctx ends.
func Build(ctx context.Context, rows []Row, embedder embeddings.Embedder, opts BuildOptions) (*Store, BuildStats, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	stats := BuildStats{Rows: len(rows)}
	usable := make([]Row, 0, len(rows))
	for _, r := range rows {
		code := strings.TrimSpace(r.Code)
		desc := strings.TrimSpace(r.Description)
		if code == "" || desc == "" {
			stats.Dropped++
			continue
		}
		usable = append(usable, Row{Code: code, Description: desc})
	}

	vectors := make([]embeddings.Vector, len(usable))
	errs := make([]error, len(usable))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, r := range usable {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			vectors[i], errs[i] = embedder.Embed(ctx, r.Description)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	records := make([]Record, 0, len(usable))
	dim := 0
	for i, r := range usable {
		if errs[i] != nil {
			stats.Failed++
			log.Warn("skipping catalog row: embedding failed", "code", r.Code, "err", errs[i])
			continue
		}
		v := vectors[i]
		if len(v) == 0 {
			stats.Failed++
			log.Warn("skipping catalog row: empty embedding", "code", r.Code)
			continue
		}
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			stats.Failed++
			log.Warn("skipping catalog row: dimension mismatch", "code", r.Code, "dimension", len(v), "expected", dim)
			continue
		}
		records = append(records, Record{Code: r.Code, Description: r.Description, Vector: v})
	}
	stats.Embedded = len(records)

	store, err := NewStore(records)
	if err != nil {
		return nil, stats, err
	}
	log.Info("catalog built",
		"rows", stats.Rows,
		"dropped", stats.Dropped,
		"failed", stats.Failed,
		"records", stats.Embedded,
		"dimension", store.Dimension(),
	)
	return store, stats, nil
}
