package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jgivc/downloadr/internal/adapter/mdadapter"
	"github.com/jgivc/downloadr/internal/adapter/tpladapter"
	"github.com/jgivc/downloadr/internal/common"
	"github.com/jgivc/downloadr/internal/config"
	"github.com/jgivc/downloadr/internal/entity"
	httphandler "github.com/jgivc/downloadr/internal/handler/http"
	"github.com/jgivc/downloadr/internal/repository/item"
	"github.com/jgivc/downloadr/internal/service/engine"
	"github.com/jgivc/downloadr/internal/service/queue"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
)

const (
	initTimeout     = 10 * time.Second
	signalTimeout   = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

type itemRepository interface {
	Initialise(ctx context.Context) error
	ListAll(ctx context.Context) ([]*entity.Item, error)
	Get(ctx context.Context, id string) (*entity.Item, error)
	Upsert(ctx context.Context, item *entity.Item) error
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) error
}

// Options come from the command line and take precedence over the config file.
type Options struct {
	// URLs are queued before the engine starts.
	URLs []string
	// Destination overrides the configured download directory for URLs.
	Destination string
	// Concurrency overrides the desired concurrency for this run.
	Concurrency *int
}

type App struct {
	cfgPath string
	opts    Options
	cfg     *config.Config
	log     *slog.Logger
	srv     *http.Server
	engine  *engine.Engine
	closers []io.Closer

	cancel    context.CancelFunc
	engineErr chan error
}

func New(cfgPath string, opts Options) *App {
	return &App{
		cfgPath: cfgPath,
		opts:    opts,
	}
}

func (a *App) Start() {
	a.cfg = config.MustLoad(a.cfgPath)

	lo := &slog.HandlerOptions{}
	switch a.cfg.LogLevel {
	case config.LogLevelInfo:
		lo.Level = slog.LevelInfo
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	default:
		panic("unknown log level")
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, lo))
	a.log = log

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	repo, err := a.openRepository(ctx)
	if err != nil {
		panic(err)
	}

	if err := repo.Initialise(ctx); err != nil {
		panic(err)
	}

	fs := afero.NewOsFs()
	qs := queue.NewQueueService(repo, fs, log)

	if len(a.opts.URLs) > 0 {
		dir := a.opts.Destination
		if dir == "" {
			dir = a.cfg.Downloads.Directory
		}

		if _, err := qs.AddRange(ctx, a.opts.URLs, dir); err != nil {
			panic(err)
		}
	}

	d := &a.cfg.Downloads
	a.engine = engine.New(repo, fs, nil, engine.Options{
		Concurrency:       d.MaxConcurrentDownloads,
		RequestTimeout:    d.RequestTimeout(),
		PollInterval:      d.PollInterval,
		AdmissionInterval: d.AdmissionInterval,
		SampleInterval:    d.SampleInterval,
		BufferSize:        d.BufferSize,
		ShutdownGrace:     d.ShutdownGrace,
		AutoResume:        d.AutoResume,
	}, log)

	runCtx, runCancel := context.WithCancel(context.Background())
	a.cancel = runCancel
	a.engineErr = make(chan error, 1)
	go func() {
		a.engineErr <- a.engine.Run(runCtx, a.opts.Concurrency)
	}()

	page, err := tpladapter.NewTplAdapter(a.cfg.ReportTemplate)
	if err != nil {
		panic(err)
	}

	a.srv = &http.Server{
		Addr:    a.cfg.Listen,
		Handler: httphandler.NewRouter(qs, a.engine, mdadapter.NewReporter(), page, a.cfg.Downloads.Directory, log),
	}

	go func() {
		log.Info("Start listen", slog.String("addr", a.cfg.Listen))

		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Could not serve", slog.String("listen_addr", a.cfg.Listen), slog.Any("error", err))
			os.Exit(2)
		}
	}()
}

func (a *App) openRepository(ctx context.Context) (itemRepository, error) {
	switch a.cfg.Storage.Type {
	case config.StorageRedis:
		opt, err := redis.ParseURL(a.cfg.Storage.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("cannot parse redis url: %w", err)
		}

		rdb := redis.NewClient(opt)
		a.closers = append(a.closers, rdb)

		return item.NewRedisRepository(rdb, a.cfg.Storage.RedisKey, a.log), nil
	case config.StorageBlob:
		bucket, err := item.OpenBucket(ctx, a.cfg.Storage.BucketURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, bucket)

		return item.NewBlobRepository(bucket, a.log), nil
	}

	return nil, fmt.Errorf("%w: %q", common.ErrUnknownStorage, a.cfg.Storage.Type)
}

func (a *App) PauseAll() {
	ctx, cancel := context.WithTimeout(context.Background(), signalTimeout)
	defer cancel()

	if err := a.engine.PauseAll(ctx); err != nil {
		a.log.Error("Cannot pause all items", slog.Any("error", err))
	}
}

func (a *App) ResumeAll() {
	ctx, cancel := context.WithTimeout(context.Background(), signalTimeout)
	defer cancel()

	if err := a.engine.ResumeAll(ctx); err != nil {
		a.log.Error("Cannot resume all items", slog.Any("error", err))
	}
}

// Stop closes the control server, then lets the engine park in-flight transfers.
func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.srv.Shutdown(ctx); err != nil {
		a.log.Error("Cannot shutdown server", slog.Any("error", err))
	}

	a.cancel()
	if err := <-a.engineErr; err != nil {
		a.log.Error("Engine stopped with error", slog.Any("error", err))
	}

	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.Error("Cannot close storage", slog.Any("error", err))
		}
	}
}
