package ports

import (
	"context"
	"fmt"
	"strings"
	"time"

	"TrackPublisher/internal/domain"
)

// StateStore owns the dedup set, rotation cursors and publish history.
type StateStore interface {
	// Advance moves every rotation cursor one step and persists it before returning the cursors in effect.
	Advance(ctx context.Context) (domain.Cursors, error)
	Consumed(ctx context.Context) (map[string]bool, error)
	// Commit adds the record's item IDs to the dedup set and appends the record in one durable step.
	Commit(ctx context.Context, record domain.PublishRecord) error
	History(ctx context.Context, limit int) ([]domain.PublishRecord, error)
}

// Downloader fetches raw media for a catalog item using one access variant.
type Downloader interface {
	Download(ctx context.Context, itemID string, variant domain.DownloadVariant, dir string) (string, error)
}

// AudioProcessor runs the DSP chain over raw media.
type AudioProcessor interface {
	Process(ctx context.Context, rawPath string, params domain.EffectParams, dir string) (string, error)
}

// Mixer blends several processed tracks into one composite.
type Mixer interface {
	Crossfade(ctx context.Context, audioPaths []string, dir string) (string, error)
}

// Caption is the text a renderer draws on frames and thumbnails.
type Caption struct {
	Title   string
	Author  string
	Channel string
	Label   string
}

// Renderer produces the video and cover image for a processed track.
type Renderer interface {
	RenderVideo(ctx context.Context, audioPath string, caption Caption, dir string) (string, error)
	RenderThumbnail(ctx context.Context, caption Caption, dir string) (string, error)
}

// ChunkResult reports where a resumable session stands after a chunk.
type ChunkResult struct {
	Done       bool
	Committed  int64
	ExternalID string
}

// HostPlatform is the publish/verify surface of the hosting platform.
type HostPlatform interface {
	OpenSession(ctx context.Context, meta domain.Metadata, size int64) (string, error)
	SendChunk(ctx context.Context, session string, chunk []byte, offset, total int64) (ChunkResult, error)
	Progress(ctx context.Context, session string, total int64) (ChunkResult, error)
	SetThumbnail(ctx context.Context, externalID, imagePath string) error
	AddToGroup(ctx context.Context, groupID, externalID string) error
	Status(ctx context.Context, externalID string) (domain.PlatformStatus, error)
	Delete(ctx context.Context, externalID string) error
	WatchURL(externalID string) string
}

// HostError is the structured failure returned by the host platform.
type HostError struct {
	StatusCode int
	Reasons    []string
	Message    string
}

func (e *HostError) Error() string {
	if len(e.Reasons) == 0 {
		return fmt.Sprintf("host error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("host error %d (%s): %s", e.StatusCode, strings.Join(e.Reasons, ","), e.Message)
}

// HasReason reports whether any structured reason matches one of markers.
func (e *HostError) HasReason(markers ...string) bool {
	for _, r := range e.Reasons {
		for _, m := range markers {
			if strings.EqualFold(r, m) {
				return true
			}
		}
	}
	return false
}

// HistorySink mirrors committed publish records somewhere outside the state store.
type HistorySink interface {
	Record(ctx context.Context, record domain.PublishRecord) error
}

// EventPublisher streams terminal cycle results.
type EventPublisher interface {
	PublishCycle(ctx context.Context, result domain.CycleResult) error
}

// Notifier sends short human-facing notices (Telegram, etc.).
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// DescriptionWriter produces the free-text "about" paragraph of a description.
type DescriptionWriter interface {
	Describe(ctx context.Context, title, author string, mashup bool) (string, error)
}

// Scheduler controls when cycles execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

// CycleMetrics records attempt and cycle outcomes.
type CycleMetrics interface {
	ObserveAttempt(outcome domain.AttemptOutcome)
	ObserveCycle(result domain.CycleResult)
}
