package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/jgivc/downloadr/internal/entity"
)

// dispatch rescans the repository every poll interval until ctx is done, then closes q.
func (e *Engine) dispatch(ctx context.Context, q *workQueue) {
	defer q.Close()

	log := e.log.With(slog.String("op", "dispatch"))

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	for {
		if n := e.scan(ctx, q); n > 0 {
			log.Debug("Dispatched items", slog.Int("count", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// scan pushes every dispatchable item that is not already in flight and returns how
// many were added to the queue.
func (e *Engine) scan(ctx context.Context, q *workQueue) int {
	items, err := e.repo.ListAll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.log.Error("Cannot list items", slog.Any("error", err))
		}

		return 0
	}

	var n int
	for _, item := range items {
		if !e.dispatchable(item) || e.inFlight.Has(item.ID) {
			continue
		}

		if q.Push(item) {
			n++
		}
	}

	return n
}

func (e *Engine) dispatchable(item *entity.Item) bool {
	switch item.Status {
	case entity.StatusQueued:
		return true
	case entity.StatusPaused:
		return e.opts.AutoResume && !e.paused.Has(item.ID)
	}

	return false
}
