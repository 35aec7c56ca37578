package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	_ "github.com/lib/pq"

	"TrackPublisher/internal/catalog"
	"TrackPublisher/internal/config"
	"TrackPublisher/internal/domain"
	"TrackPublisher/internal/httpserver"
	"TrackPublisher/internal/infrastructure/archive"
	"TrackPublisher/internal/infrastructure/events"
	"TrackPublisher/internal/infrastructure/llm"
	"TrackPublisher/internal/infrastructure/media"
	"TrackPublisher/internal/infrastructure/parser"
	"TrackPublisher/internal/infrastructure/scheduler"
	"TrackPublisher/internal/infrastructure/storage"
	"TrackPublisher/internal/infrastructure/telegram"
	"TrackPublisher/internal/infrastructure/youtube"
	"TrackPublisher/internal/logging"
	"TrackPublisher/internal/metadata"
	"TrackPublisher/internal/metrics"
	"TrackPublisher/internal/policy"
	"TrackPublisher/internal/ports"
	"TrackPublisher/internal/publish"
	"TrackPublisher/internal/selector"
	"TrackPublisher/internal/state"
	"TrackPublisher/internal/transform"
	"TrackPublisher/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *state.FileStore
	pipeline *usecase.Pipeline
	metrics  *metrics.Collector
	closers  []func() error
}

// New builds the application. Optional integrations (Postgres, S3, Kafka, Telegram, ChatGPT)
// are only wired when their settings are present.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger, metrics: metrics.New()}

	store, err := state.NewFileStore(cfg.State.Dir, baseLogger.With("component", "state"))
	if err != nil {
		return nil, err
	}
	a.store = store

	registry := catalog.NewRegistry()
	catalogClient := youtube.NewCatalogClient(cfg.Catalog.BaseURL, cfg.Catalog.APIKey, cfg.Catalog.Timeout, baseLogger.With("component", "catalog.youtube"))
	registry.Register(catalogClient)
	registry.Register(parser.NewChartScanner(&http.Client{Timeout: cfg.Catalog.Timeout}, catalogClient, baseLogger.With("component", "catalog.chart")))

	sel, err := selector.New(registry, store, selector.Config{
		Buckets:       cfg.DomainBuckets(),
		UploadTypes:   cfg.DomainUploadTypes(),
		MaxCandidates: cfg.Selection.MaxCandidates,
		MinDuration:   cfg.Selection.MinDuration,
		MaxDuration:   cfg.Selection.MaxDuration,
		Blocklist:     cfg.Selection.Blocklist,
		RankedLimit:   cfg.Catalog.RankedLimit,
		SearchLimit:   cfg.Catalog.SearchLimit,
	}, baseLogger.With("component", "selector"))
	if err != nil {
		return nil, err
	}

	mediaLogger := baseLogger.With("component", "media")
	audio := media.NewFFmpegAudio(
		media.ExecRunner{Timeout: cfg.Audio.Timeout, Logger: mediaLogger},
		cfg.Audio.FFmpeg,
		time.Duration(cfg.Audio.CrossfadeSec*float64(time.Second)),
		cfg.Audio.FadeInSec,
		cfg.Audio.FadeOutSec,
	)
	invoker := transform.NewInvoker(transform.Deps{
		Downloader: media.NewYtDlp(
			media.ExecRunner{Timeout: cfg.Download.Timeout, Logger: mediaLogger},
			cfg.Download.Binary, cfg.Download.CookiesPath, cfg.Download.MinCookieBytes, mediaLogger,
		),
		Processor: audio,
		Mixer:     audio,
		Renderer: media.NewFFmpegRenderer(media.ExecRunner{Timeout: cfg.Render.Timeout, Logger: mediaLogger}, media.RenderConfig{
			FFmpeg:      cfg.Render.FFmpeg,
			Width:       cfg.Render.Width,
			Height:      cfg.Render.Height,
			FPS:         cfg.Render.FPS,
			ThumbWidth:  cfg.Render.ThumbWidth,
			ThumbHeight: cfg.Render.ThumbHeight,
			FontFile:    cfg.Render.FontFile,
		}),
		Logger: baseLogger.With("component", "transform"),
	}, transform.Config{
		Variants: cfg.DomainVariants(),
		MinBytes: cfg.Download.MinBytes,
		Effects:  cfg.EffectParams(),
	})

	host, err := youtube.NewHostClient(ctx, youtube.HostConfig{
		APIBaseURL:     cfg.Publish.APIBaseURL,
		UploadBaseURL:  cfg.Publish.UploadBaseURL,
		ClientID:       cfg.Publish.OAuth.ClientID,
		ClientSecret:   cfg.Publish.OAuth.ClientSecret,
		RefreshToken:   cfg.Publish.OAuth.RefreshToken,
		TokenURL:       cfg.Publish.OAuth.TokenURL,
		RequestTimeout: cfg.Publish.RequestTimeout,
	}, baseLogger.With("component", "host.youtube"))
	if err != nil {
		return nil, err
	}

	var writer ports.DescriptionWriter
	if cfg.ChatGPT.APIKey != "" {
		writer = llm.NewChatGPTClient(cfg.ChatGPT)
	}

	sinks, err := a.sinks(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	var eventPublisher ports.EventPublisher
	if len(cfg.Events.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(events.Config{Brokers: cfg.Events.Brokers, Topic: cfg.Events.Topic})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, kp.Close)
		eventPublisher = kp
	}

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID)
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		State:     store,
		Lock:      store,
		Selector:  sel,
		Transform: invoker,
		Publisher: publish.NewDriver(host, publish.Config{
			ChunkSize:    cfg.Publish.ChunkSize,
			MaxRetries:   cfg.Publish.MaxRetries,
			RetryCodes:   cfg.Publish.RetryCodes,
			QuotaReasons: cfg.Publish.QuotaReasons,
		}, baseLogger.With("component", "publish")),
		Verifier: policy.NewVerifier(host, cfg.Policy.BlockRegionThreshold, baseLogger.With("component", "policy")),
		Metadata: metadata.NewGenerator(metadata.Defaults{
			Channel:    cfg.Channel.Name,
			CategoryID: cfg.Publish.CategoryID,
			Privacy:    cfg.Publish.Privacy,
			Language:   cfg.Publish.Language,
		}, writer, baseLogger.With("component", "metadata")),
		Sinks:    sinks,
		Events:   eventPublisher,
		Metrics:  a.metrics,
		Notifier: notifier,
		Logger:   baseLogger.With("component", "pipeline"),
	}, usecase.PipelineConfig{
		MaxCandidates: cfg.Selection.MaxCandidates,
		WorkspaceDir:  cfg.Workspace.Dir,
		Channel:       cfg.Channel.Name,
	})

	return a, nil
}

func (a *Application) sinks(ctx context.Context) ([]ports.HistorySink, error) {
	var sinks []ports.HistorySink

	if a.cfg.Database.DSN != "" {
		db, err := sql.Open("postgres", a.cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open history database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		repo := storage.NewPostgresRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate history database: %w", err)
		}
		sinks = append(sinks, repo)
	}

	if a.cfg.Archive.Bucket != "" {
		archiver, err := archive.NewS3Archiver(ctx, a.cfg.Archive.Bucket, a.cfg.Archive.Prefix)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, archiver)
	}

	return sinks, nil
}

// RunOnce performs a single cycle.
func (a *Application) RunOnce(ctx context.Context) domain.CycleResult {
	return a.pipeline.RunCycle(ctx)
}

// Daemon runs cycles on the cron schedule and serves the status endpoints until ctx is done.
func (a *Application) Daemon(ctx context.Context) error {
	if err := scheduler.Validate(a.cfg.Scheduler.CronExpression); err != nil {
		return err
	}

	server := httpserver.New(a.store, a.metrics.Handler())
	httpSrv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	cron := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Location(), a.logger.With("component", "scheduler"))
	sched := usecase.NewScheduler(cron, a.pipeline, a.logger.With("component", "scheduler"), server.Observe)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	if next, err := cron.Next(time.Now()); err == nil {
		a.logger.Info("daemon started", "addr", a.cfg.Server.Addr, "schedule", a.cfg.Scheduler.CronExpression, "next_run", next)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", "error", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler shutdown", "error", err)
	}
	return serveErr
}

// MirrorCheck lists consumed item IDs that the Postgres history mirror does not know about.
// It opens its own connections so it runs without publishing credentials.
func MirrorCheck(ctx context.Context, cfg config.Config, logger *slog.Logger) ([]string, error) {
	if cfg.Database.DSN == "" {
		return nil, errors.New("history database is not configured")
	}
	store, err := state.NewFileStore(cfg.State.Dir, logger)
	if err != nil {
		return nil, err
	}
	consumed, err := store.Consumed(ctx)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	defer db.Close()

	ids := make([]string, 0, len(consumed))
	for id := range consumed {
		ids = append(ids, id)
	}
	known, err := storage.NewPostgresRepository(db).AlreadyPublished(ctx, ids)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, id := range ids {
		if !known[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing, nil
}

// Close releases optional integrations.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
