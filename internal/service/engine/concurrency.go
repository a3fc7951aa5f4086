package engine

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jgivc/downloadr/internal/entity"
)

func (e *Engine) GetDesiredConcurrency() int {
	return int(e.desired.Load())
}

// SetDesiredConcurrency changes how many transfers may run at once (minimum 1) and
// rebalances running work right away. Extra transfers are paused, most recently
// started first. Freed slots go to partially downloaded items closest to completion,
// then to items that were never started.
func (e *Engine) SetDesiredConcurrency(ctx context.Context, n int) error {
	n = max(1, n)

	e.rebalanceMu.Lock()
	defer e.rebalanceMu.Unlock()

	e.desired.Store(int64(n))

	e.mu.Lock()
	if n > e.workerCount {
		e.spawnWorkersLocked(n - e.workerCount)
	}
	e.mu.Unlock()

	items, err := e.repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("cannot list items: %w", err)
	}

	var running []*entity.Item
	for _, item := range items {
		if item.Status == entity.StatusRunning {
			running = append(running, item)
		}
	}

	e.log.Info("Desired concurrency changed", slog.Int("desired", n), slog.Int("running", len(running)))

	switch {
	case len(running) > n:
		return e.shrink(ctx, running, len(running)-n)
	case len(running) < n:
		return e.grow(ctx, items, n-len(running))
	}

	return nil
}

func (e *Engine) shrink(ctx context.Context, running []*entity.Item, excess int) error {
	slices.SortStableFunc(running, byMostRecentlyStarted)

	for _, item := range running[:excess] {
		if err := e.pauseItem(ctx, item); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) grow(ctx context.Context, items []*entity.Item, deficit int) error {
	var partial, fresh []*entity.Item
	for _, item := range items {
		switch {
		case (item.Status == entity.StatusPaused || item.Status == entity.StatusCancelled) && item.DownloadedBytes > 0:
			partial = append(partial, item)
		case item.Status == entity.StatusQueued && !e.inFlight.Has(item.ID):
			fresh = append(fresh, item)
		}
	}

	slices.SortStableFunc(partial, byClosestToCompletion)

	for _, item := range partial {
		if deficit == 0 {
			return nil
		}

		if err := e.resumeItem(ctx, item); err != nil {
			return err
		}
		deficit--
	}

	for _, item := range fresh {
		if deficit == 0 {
			return nil
		}

		if e.enqueue(item) {
			deficit--
		}
	}

	return nil
}

// byMostRecentlyStarted orders by start time descending, then destination path descending.
// Items without a start time sort last.
func byMostRecentlyStarted(a, b *entity.Item) int {
	switch {
	case a.StartedAt == nil && b.StartedAt != nil:
		return 1
	case a.StartedAt != nil && b.StartedAt == nil:
		return -1
	case a.StartedAt != nil && b.StartedAt != nil:
		if c := b.StartedAt.Compare(*a.StartedAt); c != 0 {
			return c
		}
	}

	return cmp.Compare(b.DestinationPath, a.DestinationPath)
}

// byClosestToCompletion orders by completion fraction descending, then downloaded bytes
// descending. An unknown total counts as infinitely close.
func byClosestToCompletion(a, b *entity.Item) int {
	if c := cmp.Compare(b.CompletionFraction(), a.CompletionFraction()); c != 0 {
		return c
	}

	return cmp.Compare(b.DownloadedBytes, a.DownloadedBytes)
}
