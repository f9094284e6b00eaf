package ingest

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
)

// Runner executes ingestion tasks in the background, decoupled from the
// request that triggered them. A task's error or panic is logged here and
// never crosses back into the request path; the batch itself carries the
// failure state for callers that poll.
type Runner struct {
	log *slog.Logger
	wg  sync.WaitGroup
}

// NewRunner returns a Runner that logs task outcomes through log.
func NewRunner(log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{log: log}
}

// Go starts fn as an independent task. ctx should be the process context,
// not the request's, so an answered request does not cancel its upload.
func (r *Runner) Go(ctx context.Context, name string, batchID uuid.UUID, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				r.log.Error("background task panicked",
					"task", name,
					"batch_id", batchID,
					"panic", p,
					"stack", string(debug.Stack()),
				)
			}
		}()

		if err := fn(ctx); err != nil {
			// The task has already marked its batch failed; this is the
			// last place the error is seen.
			r.log.Error("background task failed", "task", name, "batch_id", batchID, "error", err)
			return
		}
		r.log.Info("background task finished", "task", name, "batch_id", batchID)
	}()
}

// Wait blocks until every started task has returned. Used during shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}
