package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jgivc/downloadr/internal/entity"
)

// Pause stops the item at its next chunk boundary and keeps its sidecar.
// Items in a terminal state are left alone.
func (e *Engine) Pause(ctx context.Context, id string) error {
	item, err := e.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	return e.pauseItem(ctx, item)
}

// Resume clears any pause or cancel signal and queues the item again.
func (e *Engine) Resume(ctx context.Context, id string) error {
	item, err := e.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	return e.resumeItem(ctx, item)
}

// Cancel stops the item and deletes its sidecar. Completed items are left alone.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	item, err := e.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	return e.cancelItem(ctx, item)
}

func (e *Engine) PauseAll(ctx context.Context) error {
	return e.forEach(ctx, func(item *entity.Item) error {
		if item.Status != entity.StatusQueued && item.Status != entity.StatusRunning {
			return nil
		}

		return e.pauseItem(ctx, item)
	})
}

// ResumeAll re-queues Failed and Paused items. Cancelled items stay cancelled.
func (e *Engine) ResumeAll(ctx context.Context) error {
	e.paused.Clear()

	return e.forEach(ctx, func(item *entity.Item) error {
		if item.Status != entity.StatusFailed && item.Status != entity.StatusPaused {
			return nil
		}

		return e.resumeItem(ctx, item)
	})
}

func (e *Engine) CancelAll(ctx context.Context) error {
	return e.forEach(ctx, func(item *entity.Item) error {
		if item.Status == entity.StatusCompleted || item.Status == entity.StatusCancelled {
			return nil
		}

		return e.cancelItem(ctx, item)
	})
}

func (e *Engine) forEach(ctx context.Context, fn func(item *entity.Item) error) error {
	items, err := e.repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("cannot list items: %w", err)
	}

	var errs []error
	for _, item := range items {
		if err := fn(item); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (e *Engine) pauseItem(ctx context.Context, item *entity.Item) error {
	if item.Status.IsTerminal() {
		return nil
	}

	e.paused.Add(item.ID)

	if item.Status == entity.StatusPaused {
		return nil
	}

	item.Status = entity.StatusPaused
	if err := e.save(ctx, item); err != nil {
		return fmt.Errorf("cannot pause item %s: %w", item.ID, err)
	}

	e.log.Info("Pause requested", slog.String("id", item.ID))

	return nil
}

func (e *Engine) resumeItem(ctx context.Context, item *entity.Item) error {
	e.paused.Remove(item.ID)
	e.cancelled.Remove(item.ID)

	if !item.Status.IsResumable() {
		return nil
	}

	item.Status = entity.StatusQueued
	if err := e.save(ctx, item); err != nil {
		return fmt.Errorf("cannot resume item %s: %w", item.ID, err)
	}

	e.enqueue(item)
	e.log.Info("Resume requested", slog.String("id", item.ID))

	return nil
}

// cancelItem signals an in-flight transfer to stop. Items nobody is working on are
// resolved right here.
func (e *Engine) cancelItem(ctx context.Context, item *entity.Item) error {
	if item.Status == entity.StatusCompleted {
		return nil
	}

	e.cancelled.Add(item.ID)

	if e.inFlight.Has(item.ID) {
		e.log.Info("Cancel requested", slog.String("id", item.ID))

		return nil
	}

	if item.Status == entity.StatusCancelled {
		return nil
	}

	return e.markCancelled(ctx, item)
}
