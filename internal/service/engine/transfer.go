package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jgivc/downloadr/internal/common"
	"github.com/jgivc/downloadr/internal/entity"
	"golang.org/x/time/rate"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	progressLogInterval = 5 * time.Second
)

type interruption int

const (
	notInterrupted interruption = iota
	interruptedByPause
	interruptedByCancel
)

// interrupted reports whether the transfer of id must stop. Shutdown of the run
// context counts as a pause so the sidecar survives for the next run.
func (e *Engine) interrupted(ctx context.Context, id string) interruption {
	if e.cancelled.Has(id) {
		return interruptedByCancel
	}

	if e.paused.Has(id) || ctx.Err() != nil {
		return interruptedByPause
	}

	return notInterrupted
}

// transfer performs one resumable fetch of item. ctx is the run context and is only
// observed at chunk boundaries; netCtx carries the network I/O and is cancelled when
// the shutdown grace period runs out. A returned error means the item failed.
func (e *Engine) transfer(ctx, netCtx context.Context, item *entity.Item) error {
	log := e.log.With(slog.String("id", item.ID))
	partPath := item.PartPath()

	if err := e.fs.MkdirAll(filepath.Dir(item.DestinationPath), dirPerm); err != nil {
		return fmt.Errorf("cannot create destination directory: %w", err)
	}

	existing, hasPart, err := e.fileSize(partPath)
	if err != nil {
		return err
	}

	if !hasPart {
		size, done, err := e.fileSize(item.DestinationPath)
		if err != nil {
			return err
		}

		if done {
			log.Info("Destination already exists, skip download", slog.String("path", item.DestinationPath))
			item.TotalBytes = &size
			item.DownloadedBytes = size

			return e.markCompleted(ctx, item)
		}
	}

	req, err := newRequest(netCtx, item, existing)
	if err != nil {
		return err
	}

	switch e.interrupted(ctx, item.ID) {
	case interruptedByCancel:
		return e.markCancelled(ctx, item)
	case interruptedByPause:
		if ctx.Err() != nil {
			return nil
		}

		return e.markPaused(ctx, item)
	}

	if item.StartedAt == nil {
		now := e.clock().UTC()
		item.StartedAt = &now
	}
	item.Status = entity.StatusRunning
	item.DownloadedBytes = existing
	if err := e.save(ctx, item); err != nil {
		return fmt.Errorf("cannot save item: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if netCtx.Err() != nil {
			return e.markPaused(ctx, item)
		}

		return fmt.Errorf("cannot send request: %w", err)
	}

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		total, known := contentRangeTotal(resp.Header.Get("Content-Range"))
		discard(resp)

		if known && existing >= total {
			log.Info("Partial file already complete", slog.Int64("bytes", existing))

			if err := e.finalizePart(partPath, item.DestinationPath, existing, total); err != nil {
				return err
			}

			item.TotalBytes = &total
			item.DownloadedBytes = total

			return e.markCompleted(ctx, item)
		}

		log.Info("Stored range is stale, restart from zero", slog.Int64("existing", existing))

		if err := e.removePart(item); err != nil {
			return err
		}
		existing = 0
		item.DownloadedBytes = 0

		if req, err = newRequest(netCtx, item, 0); err != nil {
			return err
		}

		if resp, err = e.client.Do(req); err != nil {
			if netCtx.Err() != nil {
				return e.markPaused(ctx, item)
			}

			return fmt.Errorf("cannot send request: %w", err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK && existing > 0 {
		log.Info("Server ignored range request, restart from zero", slog.Int64("existing", existing))

		if err := e.removePart(item); err != nil {
			return err
		}
		existing = 0
		item.DownloadedBytes = 0
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s", common.ErrUnexpectedStatus, resp.Status)
	}

	if resp.StatusCode == http.StatusPartialContent {
		start, ok := contentRangeStart(resp.Header.Get("Content-Range"))
		if !ok || start != existing {
			return fmt.Errorf("%w: %q for offset %d", common.ErrUnexpectedRange, resp.Header.Get("Content-Range"), existing)
		}
	}

	e.captureResponse(item, resp, existing)
	if err := e.save(ctx, item); err != nil {
		return fmt.Errorf("cannot save item: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if existing == 0 {
		flags |= os.O_TRUNC
	}

	f, err := e.fs.OpenFile(partPath, flags, filePerm)
	if err != nil {
		return fmt.Errorf("cannot open part file: %w", err)
	}

	reason, streamErr := e.stream(ctx, item, resp.Body, f, log)
	if err := f.Close(); err != nil && streamErr == nil {
		streamErr = fmt.Errorf("cannot close part file: %w", err)
	}

	if streamErr != nil {
		if netCtx.Err() != nil || ctx.Err() != nil {
			return e.markPaused(ctx, item)
		}

		return streamErr
	}

	// A signal may have arrived after the last chunk.
	if reason == notInterrupted {
		reason = e.interrupted(ctx, item.ID)
	}

	switch reason {
	case interruptedByCancel:
		return e.markCancelled(ctx, item)
	case interruptedByPause:
		return e.markPaused(ctx, item)
	}

	if item.TotalBytes != nil && item.DownloadedBytes != *item.TotalBytes {
		return fmt.Errorf("%w: got %d of %d bytes", common.ErrIncompleteTransfer, item.DownloadedBytes, *item.TotalBytes)
	}

	if err := e.fs.Rename(partPath, item.DestinationPath); err != nil {
		return fmt.Errorf("cannot finalize part file: %w", err)
	}

	if item.TotalBytes == nil {
		total := item.DownloadedBytes
		item.TotalBytes = &total
	}

	return e.markCompleted(ctx, item)
}

// stream appends body to w until EOF or until the item is paused or cancelled.
// Progress becomes visible in the repository only at rate sample points.
func (e *Engine) stream(ctx context.Context, item *entity.Item, body io.Reader, w io.Writer, log *slog.Logger) (interruption, error) {
	buf := make([]byte, e.opts.BufferSize)
	sampler := newRateSampler(e.opts.SampleInterval, e.clock())
	progress := rate.Sometimes{Interval: progressLogInterval}

	for {
		if reason := e.interrupted(ctx, item.ID); reason != notInterrupted {
			return reason, nil
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if reason := e.interrupted(ctx, item.ID); reason != notInterrupted {
				return reason, nil
			}

			if _, err := w.Write(buf[:n]); err != nil {
				return notInterrupted, fmt.Errorf("cannot write part file: %w", err)
			}
			item.DownloadedBytes += int64(n)

			if sample, ok := sampler.Add(int64(n), e.clock()); ok {
				item.AverageBytesPerSecond = smoothRate(item.AverageBytesPerSecond, sample)
				if err := e.save(ctx, item); err != nil {
					return notInterrupted, fmt.Errorf("cannot save progress: %w", err)
				}

				progress.Do(func() {
					log.Debug("Transfer progress",
						slog.Int64("downloaded", item.DownloadedBytes),
						slog.Float64("bytes_per_second", *item.AverageBytesPerSecond))
				})
			}
		}

		if errors.Is(readErr, io.EOF) {
			return notInterrupted, nil
		}

		if readErr != nil {
			return notInterrupted, fmt.Errorf("cannot read response body: %w", readErr)
		}
	}
}

// captureResponse records the total length and revalidators of a successful response.
func (e *Engine) captureResponse(item *entity.Item, resp *http.Response, existing int64) {
	if existing == 0 {
		item.TotalBytes = nil
		item.ETag = ""
		item.LastModifiedUTC = nil
	}

	if resp.ContentLength >= 0 {
		total := resp.ContentLength + existing
		item.TotalBytes = &total
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		item.ETag = etag
	}

	if lm, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		lm = lm.UTC()
		item.LastModifiedUTC = &lm
	}

	item.DownloadedBytes = existing
}

func (e *Engine) markCompleted(ctx context.Context, item *entity.Item) error {
	now := e.clock().UTC()
	item.CompletedAt = &now
	item.Status = entity.StatusCompleted

	if err := e.save(ctx, item); err != nil {
		return fmt.Errorf("cannot save completed item: %w", err)
	}

	e.log.Info("Download completed", slog.String("id", item.ID), slog.String("path", item.DestinationPath), slog.Int64("bytes", item.DownloadedBytes))

	return nil
}

// markPaused parks the item with its sidecar. If the pause was withdrawn while the
// transfer was stopping, the item goes back to Queued so the next poll picks it up.
func (e *Engine) markPaused(ctx context.Context, item *entity.Item) error {
	item.Status = entity.StatusPaused
	if e.pauseRevoked(ctx, item.ID) {
		item.Status = entity.StatusQueued
	}

	if err := e.save(ctx, item); err != nil {
		return fmt.Errorf("cannot save paused item: %w", err)
	}

	// A resume may have saved Queued while Paused was being written.
	if item.Status == entity.StatusPaused && e.pauseRevoked(ctx, item.ID) {
		item.Status = entity.StatusQueued
		if err := e.save(ctx, item); err != nil {
			return fmt.Errorf("cannot save requeued item: %w", err)
		}
	}

	if item.Status == entity.StatusQueued {
		e.log.Info("Pause withdrawn, download requeued", slog.String("id", item.ID), slog.Int64("bytes", item.DownloadedBytes))

		return nil
	}

	e.log.Info("Download paused", slog.String("id", item.ID), slog.Int64("bytes", item.DownloadedBytes))

	return nil
}

// pauseRevoked reports whether a live run has no pause signal for id. Shutdown pauses
// carry no signal and are never revoked.
func (e *Engine) pauseRevoked(ctx context.Context, id string) bool {
	return ctx.Err() == nil && !e.paused.Has(id)
}

func (e *Engine) markCancelled(ctx context.Context, item *entity.Item) error {
	if err := e.removePart(item); err != nil {
		return err
	}

	item.Status = entity.StatusCancelled

	if err := e.save(ctx, item); err != nil {
		return fmt.Errorf("cannot save cancelled item: %w", err)
	}

	e.log.Info("Download cancelled", slog.String("id", item.ID))

	return nil
}

// finalizePart moves the sidecar into place cut down to total bytes. With no sidecar
// at all the resource is empty and an empty destination is created.
func (e *Engine) finalizePart(partPath, dest string, existing, total int64) error {
	f, err := e.fs.OpenFile(partPath, os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("cannot open part file: %w", err)
	}

	if existing > total {
		if err := f.Truncate(total); err != nil {
			f.Close()

			return fmt.Errorf("cannot truncate part file: %w", err)
		}
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("cannot close part file: %w", err)
	}

	if err := e.fs.Rename(partPath, dest); err != nil {
		return fmt.Errorf("cannot finalize part file: %w", err)
	}

	return nil
}

func (e *Engine) removePart(item *entity.Item) error {
	if err := e.fs.Remove(item.PartPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cannot remove part file: %w", err)
	}

	return nil
}

// fileSize returns the size of a regular file and whether it exists.
func (e *Engine) fileSize(path string) (int64, bool, error) {
	info, err := e.fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}

		return 0, false, fmt.Errorf("cannot stat %s: %w", path, err)
	}

	if info.IsDir() {
		return 0, false, fmt.Errorf("%s is a directory", path)
	}

	return info.Size(), true, nil
}

// newRequest builds the GET for item. With existing > 0 it asks for the remaining
// range, guarded by If-Range so a changed resource comes back in full.
func newRequest(ctx context.Context, item *entity.Item, existing int64) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot create request: %w", err)
	}

	if existing > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(existing, 10)+"-")

		switch {
		case item.ETag != "":
			req.Header.Set("If-Range", item.ETag)
		case item.LastModifiedUTC != nil:
			req.Header.Set("If-Range", item.LastModifiedUTC.UTC().Format(http.TimeFormat))
		}
	}

	return req, nil
}

// contentRangeTotal parses the complete length from "bytes */1000" or "bytes 0-9/1000".
func contentRangeTotal(header string) (int64, bool) {
	_, total, ok := strings.Cut(header, "/")
	if !ok || total == "*" {
		return 0, false
	}

	n, err := strconv.ParseInt(strings.TrimSpace(total), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}

	return n, true
}

// contentRangeStart parses the first byte position from "bytes 500-999/1000".
func contentRangeStart(header string) (int64, bool) {
	rng, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes ")
	if !ok {
		return 0, false
	}

	start, _, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, false
	}

	n, err := strconv.ParseInt(strings.TrimSpace(start), 10, 64)
	if err != nil {
		return 0, false
	}

	return n, true
}

func discard(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
