package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jgivc/downloadr/internal/common"
	"github.com/jgivc/downloadr/internal/entity"
)

func (e *Engine) worker(ctx, netCtx context.Context, n int, q *workQueue) {
	defer e.workers.Done()

	log := e.log.With(slog.Int("worker_id", n))
	log.Debug("Started")

	for {
		item, ok := q.Pop(ctx)
		if !ok {
			log.Debug("Done")

			return
		}

		e.process(ctx, netCtx, log, item.ID)
	}
}

// process admits one dispatched item and runs its transfer. The in-flight claim is
// held for the whole call so no other worker touches the item or its sidecar.
func (e *Engine) process(ctx, netCtx context.Context, log *slog.Logger, id string) {
	if !e.admit(ctx, id) {
		return
	}
	defer e.inFlight.Remove(id)

	if e.paused.Has(id) {
		return
	}

	// The queued copy may be stale, so work from the stored one.
	item, err := e.repo.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, common.ErrItemNotFound) && ctx.Err() == nil {
			log.Error("Cannot load item", slog.String("id", id), slog.Any("error", err))
		}

		return
	}

	if !runnable(item) {
		return
	}

	if err := e.transfer(ctx, netCtx, item); err != nil {
		log.Error("Transfer failed", slog.String("id", id), slog.String("url", item.URL), slog.Any("error", err))

		item.Status = entity.StatusFailed
		if err := e.save(ctx, item); err != nil {
			log.Error("Cannot save failed item", slog.String("id", id), slog.Any("error", err))
		}
	}
}

// admit waits until the item can take a concurrency slot and claims it. Paused or
// cancelled items skip the wait so they can be resolved without a slot. It returns
// false when the item is already claimed or ctx is done.
func (e *Engine) admit(ctx context.Context, id string) bool {
	for {
		if e.paused.Has(id) || e.cancelled.Has(id) {
			return e.inFlight.TryAdd(id)
		}

		added, exists := e.inFlight.TryAddBelow(id, e.GetDesiredConcurrency())
		if added {
			return true
		}

		if exists {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(e.opts.AdmissionInterval):
		}
	}
}

func runnable(item *entity.Item) bool {
	switch item.Status {
	case entity.StatusQueued, entity.StatusPaused, entity.StatusRunning:
		return true
	}

	return false
}
