package transform

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"TrackPublisher/internal/domain"
	"TrackPublisher/internal/ports"
)

// Error is a candidate-scoped transform failure. Fatal marks a collaborator crash
// (DSP/render) as opposed to exhausting every download variant; neither stops the run.
type Error struct {
	Fatal  bool
	Stage  string
	ItemID string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transform %s (%s): %v", e.ItemID, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config holds the transform parameters.
type Config struct {
	Variants []domain.DownloadVariant
	MinBytes int64
	Effects  domain.EffectParams
}

// Invoker calls the external download, DSP and render collaborators for candidates.
type Invoker struct {
	downloader ports.Downloader
	processor  ports.AudioProcessor
	mixer      ports.Mixer
	renderer   ports.Renderer
	cfg        Config
	logger     *slog.Logger
}

// Deps wires the collaborators.
type Deps struct {
	Downloader ports.Downloader
	Processor  ports.AudioProcessor
	Mixer      ports.Mixer
	Renderer   ports.Renderer
	Logger     *slog.Logger
}

// NewInvoker constructs the invoker.
func NewInvoker(deps Deps, cfg Config) *Invoker {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		downloader: deps.Downloader,
		processor:  deps.Processor,
		mixer:      deps.Mixer,
		renderer:   deps.Renderer,
		cfg:        cfg,
		logger:     logger,
	}
}

// Prepare downloads one candidate, walking the variants in order, then runs the DSP chain.
// Scratch files go under workspace; nothing persisted is touched.
func (i *Invoker) Prepare(ctx context.Context, c domain.Candidate, workspace string) (domain.Track, error) {
	dir := filepath.Join(workspace, c.ID())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.Track{}, fmt.Errorf("create candidate dir: %w", err)
	}
	logger := i.logger.With("item_id", c.ID())

	raw, err := i.download(ctx, c.ID(), dir, logger)
	if err != nil {
		return domain.Track{}, err
	}

	audio, err := i.processor.Process(ctx, raw, i.cfg.Effects, dir)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Track{}, ctx.Err()
		}
		return domain.Track{}, &Error{Fatal: true, Stage: "process", ItemID: c.ID(), Err: err}
	}
	logger.Info("audio processed", "path", audio)

	return domain.Track{Candidate: c, RawPath: raw, AudioPath: audio}, nil
}

func (i *Invoker) download(ctx context.Context, itemID, dir string, logger *slog.Logger) (string, error) {
	var lastErr error
	for _, variant := range i.cfg.Variants {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		logger.Debug("trying download variant", "variant", variant.Label())

		path, err := i.downloader.Download(ctx, itemID, variant, dir)
		if err != nil {
			lastErr = err
			logger.Warn("download variant failed", "variant", variant.Label(), "error", err)
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			lastErr = fmt.Errorf("stat download: %w", err)
			continue
		}
		if info.Size() < i.cfg.MinBytes {
			lastErr = fmt.Errorf("download too small: %d bytes", info.Size())
			logger.Warn("download variant produced a short file", "variant", variant.Label(), "bytes", info.Size())
			_ = os.Remove(path)
			continue
		}

		logger.Info("download succeeded", "variant", variant.Label(), "bytes", info.Size())
		return path, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no download variants configured")
	}
	return "", &Error{Fatal: false, Stage: "download", ItemID: itemID, Err: fmt.Errorf("all variants failed: %w", lastErr)}
}

// Assemble renders the publishable artifact from prepared tracks, crossfading them first when
// there is more than one.
func (i *Invoker) Assemble(ctx context.Context, tracks []domain.Track, caption ports.Caption, workspace string) (domain.Artifact, error) {
	if len(tracks) == 0 {
		return domain.Artifact{}, fmt.Errorf("assemble without tracks")
	}
	ids := make([]string, 0, len(tracks))
	for _, t := range tracks {
		ids = append(ids, t.Candidate.ID())
	}
	label := strings.Join(ids, "+")

	audio := tracks[0].AudioPath
	if len(tracks) > 1 {
		paths := make([]string, 0, len(tracks))
		for _, t := range tracks {
			paths = append(paths, t.AudioPath)
		}
		mixed, err := i.mixer.Crossfade(ctx, paths, workspace)
		if err != nil {
			return domain.Artifact{}, i.fatal(ctx, "mix", label, err)
		}
		audio = mixed
	}

	video, err := i.renderer.RenderVideo(ctx, audio, caption, workspace)
	if err != nil {
		return domain.Artifact{}, i.fatal(ctx, "render", label, err)
	}

	thumb, err := i.renderer.RenderThumbnail(ctx, caption, workspace)
	if err != nil {
		return domain.Artifact{}, i.fatal(ctx, "thumbnail", label, err)
	}

	i.logger.Info("artifact rendered", "items", ids, "video", video)
	return domain.Artifact{Tracks: tracks, VideoPath: video, ThumbnailPath: thumb}, nil
}

func (i *Invoker) fatal(ctx context.Context, stage, itemID string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &Error{Fatal: true, Stage: stage, ItemID: itemID, Err: err}
}
