// Package engine drives queued download items to completion over HTTP.
//
// A dispatcher polls the repository and feeds eligible items into an unbounded work
// queue. A resizable pool of workers drains the queue, admitting at most the desired
// number of concurrent transfers. Each transfer resumes from a ".part" sidecar file
// when one exists and renames it into place once every byte has arrived.
//
// Pause and cancel are cooperative: the transfer checks the shared signal sets at
// every chunk boundary and leaves the item in a well-defined persisted state.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jgivc/downloadr/internal/common"
	"github.com/jgivc/downloadr/internal/entity"
	"github.com/spf13/afero"
)

const (
	dialTimeout = 30 * time.Second
)

type ItemRepository interface {
	ListAll(ctx context.Context) ([]*entity.Item, error)
	Get(ctx context.Context, id string) (*entity.Item, error)
	Upsert(ctx context.Context, item *entity.Item) error
}

// Options configures the engine. Zero values are replaced by DefaultOptions.
type Options struct {
	// Concurrency is the initial desired number of simultaneous transfers.
	Concurrency int

	// RequestTimeout bounds each request until response headers arrive.
	RequestTimeout time.Duration

	PollInterval      time.Duration
	AdmissionInterval time.Duration
	SampleInterval    time.Duration
	BufferSize        int

	// ShutdownGrace is how long in-flight transfers get to reach a chunk boundary
	// after Run's context is cancelled.
	ShutdownGrace time.Duration

	// AutoResume makes the dispatcher also pick up Paused items that were not
	// paused through the control surface, e.g. items interrupted by a crash.
	AutoResume bool
}

func DefaultOptions() Options {
	return Options{
		Concurrency:       3,
		RequestTimeout:    100 * time.Second,
		PollInterval:      time.Second,
		AdmissionInterval: 100 * time.Millisecond,
		SampleInterval:    250 * time.Millisecond,
		BufferSize:        81920,
		ShutdownGrace:     5 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()

	if o.Concurrency < 1 {
		o.Concurrency = def.Concurrency
	}

	if o.RequestTimeout <= 0 {
		o.RequestTimeout = def.RequestTimeout
	}

	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}

	if o.AdmissionInterval <= 0 {
		o.AdmissionInterval = def.AdmissionInterval
	}

	if o.SampleInterval <= 0 {
		o.SampleInterval = def.SampleInterval
	}

	if o.BufferSize < 1 {
		o.BufferSize = def.BufferSize
	}

	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = def.ShutdownGrace
	}

	return o
}

// NewHTTPClient returns a client whose timeout covers connecting and waiting for
// response headers but not streaming the body.
func NewHTTPClient(requestTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: dialTimeout}).DialContext,
			TLSHandshakeTimeout:   requestTimeout,
			ResponseHeaderTimeout: requestTimeout,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   16,
			DisableCompression:    true,
		},
	}
}

type Engine struct {
	repo   ItemRepository
	fs     afero.Fs
	client *http.Client
	opts   Options
	log    *slog.Logger
	clock  func() time.Time

	inFlight  *idSet
	paused    *idSet
	cancelled *idSet

	desired atomic.Int64
	running atomic.Bool

	// rebalanceMu serializes concurrency changes.
	rebalanceMu sync.Mutex

	// mu guards the run state below.
	mu          sync.Mutex
	queue       *workQueue
	runCtx      context.Context
	netCtx      context.Context
	workerCount int
	workers     sync.WaitGroup
}

// New creates an engine. A nil client is replaced by NewHTTPClient(opts.RequestTimeout).
func New(repo ItemRepository, fs afero.Fs, client *http.Client, opts Options, log *slog.Logger) *Engine {
	opts = opts.withDefaults()
	if client == nil {
		client = NewHTTPClient(opts.RequestTimeout)
	}

	e := &Engine{
		repo:      repo,
		fs:        fs,
		client:    client,
		opts:      opts,
		log:       log.With(slog.String("item", "DownloadEngine")),
		clock:     time.Now,
		inFlight:  newIDSet(),
		paused:    newIDSet(),
		cancelled: newIDSet(),
	}
	e.desired.Store(int64(opts.Concurrency))

	return e
}

// Run drives downloads until ctx is cancelled. A positive concurrencyOverride
// replaces the desired concurrency for this run. In-flight transfers are given
// ShutdownGrace to stop at a chunk boundary before they are aborted; either way they
// end up Paused with their sidecar intact.
func (e *Engine) Run(ctx context.Context, concurrencyOverride *int) error {
	if !e.running.CompareAndSwap(false, true) {
		return common.ErrEngineRunning
	}
	defer e.running.Store(false)

	if concurrencyOverride != nil {
		e.desired.Store(int64(max(1, *concurrencyOverride)))
	}

	if err := e.recoverStale(ctx); err != nil {
		return err
	}

	netCtx, abort := context.WithCancel(context.WithoutCancel(ctx))
	defer abort()

	q := newWorkQueue()
	e.mu.Lock()
	e.queue = q
	e.runCtx = ctx
	e.netCtx = netCtx
	e.workerCount = 0
	e.spawnWorkersLocked(e.GetDesiredConcurrency())
	e.mu.Unlock()

	e.log.Info("Engine started", slog.Int("concurrency", e.GetDesiredConcurrency()))

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		e.dispatch(ctx, q)
	}()

	<-ctx.Done()
	<-dispatched

	e.mu.Lock()
	e.queue = nil
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(e.opts.ShutdownGrace):
		e.log.Warn("Shutdown grace period expired, aborting transfers", slog.Int("in_flight", e.inFlight.Len()))
		abort()
		<-done
	}

	e.log.Info("Engine stopped")

	return nil
}

func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// recoverStale turns items left Running by a previous process into Paused.
func (e *Engine) recoverStale(ctx context.Context) error {
	items, err := e.repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("cannot list items: %w", err)
	}

	for _, item := range items {
		if item.Status != entity.StatusRunning {
			continue
		}

		item.Status = entity.StatusPaused
		if err := e.repo.Upsert(ctx, item); err != nil {
			return fmt.Errorf("cannot reset item %s: %w", item.ID, err)
		}

		e.log.Info("Reset stale running item", slog.String("id", item.ID))
	}

	return nil
}

func (e *Engine) spawnWorkersLocked(n int) {
	if e.queue == nil {
		return
	}

	for range n {
		e.workers.Add(1)
		go e.worker(e.runCtx, e.netCtx, e.workerCount, e.queue)
		e.workerCount++
	}
}

// enqueue pushes item straight to the workers when the engine is running.
func (e *Engine) enqueue(item *entity.Item) bool {
	e.mu.Lock()
	q := e.queue
	e.mu.Unlock()

	if q == nil {
		return false
	}

	return q.Push(item)
}

func (e *Engine) save(ctx context.Context, item *entity.Item) error {
	return e.repo.Upsert(context.WithoutCancel(ctx), item)
}
