package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"TrackPublisher/internal/domain"
	"TrackPublisher/internal/logging"
	"TrackPublisher/internal/ports"
)

type fakeHost struct {
	chunkErrs    []error // consumed one per SendChunk call; nil entries mean success
	openErr      error
	thumbErr     error
	groupErr     error
	stalled      bool // SendChunk reports nothing persisted
	chunks       int
	progressHits int
	received     int64
	thumbs       []string
	groups       []string
}

func (f *fakeHost) OpenSession(ctx context.Context, meta domain.Metadata, size int64) (string, error) {
	if f.openErr != nil {
		return "", f.openErr
	}
	return "session-1", nil
}

func (f *fakeHost) SendChunk(ctx context.Context, session string, chunk []byte, offset, total int64) (ports.ChunkResult, error) {
	f.chunks++
	if len(f.chunkErrs) > 0 {
		err := f.chunkErrs[0]
		f.chunkErrs = f.chunkErrs[1:]
		if err != nil {
			return ports.ChunkResult{}, err
		}
	}
	if f.stalled {
		return ports.ChunkResult{Committed: f.received}, nil
	}
	f.received = offset + int64(len(chunk))
	if f.received >= total {
		return ports.ChunkResult{Done: true, Committed: total, ExternalID: "vid123"}, nil
	}
	return ports.ChunkResult{Committed: f.received}, nil
}

func (f *fakeHost) Progress(ctx context.Context, session string, total int64) (ports.ChunkResult, error) {
	f.progressHits++
	return ports.ChunkResult{Committed: f.received}, nil
}

func (f *fakeHost) SetThumbnail(ctx context.Context, externalID, imagePath string) error {
	f.thumbs = append(f.thumbs, externalID)
	return f.thumbErr
}

func (f *fakeHost) AddToGroup(ctx context.Context, groupID, externalID string) error {
	f.groups = append(f.groups, groupID)
	return f.groupErr
}

func (f *fakeHost) Status(ctx context.Context, externalID string) (domain.PlatformStatus, error) {
	return domain.PlatformStatus{Found: true}, nil
}

func (f *fakeHost) Delete(ctx context.Context, externalID string) error { return nil }

func (f *fakeHost) WatchURL(externalID string) string {
	return "https://www.youtube.com/watch?v=" + externalID
}

func writeArtifact(t *testing.T, size int) domain.Artifact {
	t.Helper()
	dir := t.TempDir()
	video := filepath.Join(dir, "video.mp4")
	if err := os.WriteFile(video, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}
	return domain.Artifact{VideoPath: video, ThumbnailPath: filepath.Join(dir, "thumb.jpg")}
}

func testConfig() Config {
	return Config{
		ChunkSize:    4,
		MaxRetries:   3,
		RetryCodes:   []int{500, 502, 503, 504},
		QuotaReasons: []string{"quotaExceeded", "uploadLimitExceeded"},
	}
}

type sleepRecorder struct{ waits []time.Duration }

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func TestPublishUploadsInChunksAndPlaces(t *testing.T) {
	t.Parallel()

	host := &fakeHost{}
	driver := NewDriver(host, testConfig(), logging.Discard())

	res, err := driver.Publish(context.Background(), writeArtifact(t, 10), domain.Bucket{PlaylistID: "PL1"})
	if err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if host.chunks != 3 {
		t.Fatalf("expected 3 chunks for 10 bytes, got %d", host.chunks)
	}
	if res.ExternalID != "vid123" || res.URL != "https://www.youtube.com/watch?v=vid123" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(host.thumbs) != 1 || len(host.groups) != 1 || host.groups[0] != "PL1" {
		t.Fatalf("expected thumbnail and playlist placement, got %v / %v", host.thumbs, host.groups)
	}
}

func TestPublishRetriesTransientWithExponentialBackoff(t *testing.T) {
	t.Parallel()

	host := &fakeHost{chunkErrs: []error{
		&ports.HostError{StatusCode: 503, Message: "backend"},
		&ports.HostError{StatusCode: 500, Message: "backend"},
	}}
	rec := &sleepRecorder{}
	driver := NewDriver(host, testConfig(), logging.Discard()).WithSleep(rec.sleep)

	if _, err := driver.Publish(context.Background(), writeArtifact(t, 3), domain.Bucket{}); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if len(rec.waits) != 2 || rec.waits[0] != 2*time.Second || rec.waits[1] != 4*time.Second {
		t.Fatalf("unexpected backoff waits: %v", rec.waits)
	}
	if host.progressHits != 2 {
		t.Fatalf("expected a progress resync after each transient error, got %d", host.progressHits)
	}
}

func TestPublishGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	errs := make([]error, 10)
	for i := range errs {
		errs[i] = &ports.HostError{StatusCode: 502}
	}
	host := &fakeHost{chunkErrs: errs}
	rec := &sleepRecorder{}
	driver := NewDriver(host, testConfig(), logging.Discard()).WithSleep(rec.sleep)

	_, err := driver.Publish(context.Background(), writeArtifact(t, 3), domain.Bucket{})
	var perr *Error
	if !errors.As(err, &perr) || perr.QuotaExceeded {
		t.Fatalf("expected non-quota publish error, got %v", err)
	}
	if len(rec.waits) != 3 {
		t.Fatalf("expected 3 backoff waits, got %d", len(rec.waits))
	}
	if len(host.thumbs) != 0 {
		t.Fatal("thumbnail must not be attempted after a failed upload")
	}
}

func TestPublishQuotaShortCircuits(t *testing.T) {
	t.Parallel()

	host := &fakeHost{chunkErrs: []error{
		&ports.HostError{StatusCode: 403, Reasons: []string{"quotaExceeded"}},
	}}
	rec := &sleepRecorder{}
	driver := NewDriver(host, testConfig(), logging.Discard()).WithSleep(rec.sleep)

	_, err := driver.Publish(context.Background(), writeArtifact(t, 3), domain.Bucket{})
	if !IsQuota(err) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if host.chunks != 1 || len(rec.waits) != 0 {
		t.Fatalf("quota must not be retried: chunks=%d waits=%v", host.chunks, rec.waits)
	}
}

func TestPublishQuotaOnServerCodeIsNotRetried(t *testing.T) {
	t.Parallel()

	host := &fakeHost{chunkErrs: []error{
		&ports.HostError{StatusCode: 503, Reasons: []string{"uploadLimitExceeded"}},
	}}
	rec := &sleepRecorder{}
	driver := NewDriver(host, testConfig(), logging.Discard()).WithSleep(rec.sleep)

	_, err := driver.Publish(context.Background(), writeArtifact(t, 3), domain.Bucket{})
	if !IsQuota(err) || len(rec.waits) != 0 {
		t.Fatalf("expected immediate quota stop, got %v (waits %v)", err, rec.waits)
	}
}

func TestPublishNonRetryableCodeFailsImmediately(t *testing.T) {
	t.Parallel()

	host := &fakeHost{chunkErrs: []error{&ports.HostError{StatusCode: 400, Reasons: []string{"invalidTitle"}}}}
	rec := &sleepRecorder{}
	driver := NewDriver(host, testConfig(), logging.Discard()).WithSleep(rec.sleep)

	_, err := driver.Publish(context.Background(), writeArtifact(t, 3), domain.Bucket{})
	var perr *Error
	if !errors.As(err, &perr) || perr.QuotaExceeded || perr.Code != 400 {
		t.Fatalf("expected fatal 400, got %v", err)
	}
	if len(rec.waits) != 0 {
		t.Fatalf("400 must not be retried, waits=%v", rec.waits)
	}
}

func TestPublishQuotaOnSessionOpen(t *testing.T) {
	t.Parallel()

	host := &fakeHost{openErr: &ports.HostError{StatusCode: 403, Reasons: []string{"QUOTAEXCEEDED"}}}
	driver := NewDriver(host, testConfig(), logging.Discard())

	if _, err := driver.Publish(context.Background(), writeArtifact(t, 3), domain.Bucket{}); !IsQuota(err) {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestPublishSecondaryFailuresAreBestEffort(t *testing.T) {
	t.Parallel()

	host := &fakeHost{thumbErr: errors.New("thumbnail rejected"), groupErr: errors.New("playlist missing")}
	driver := NewDriver(host, testConfig(), logging.Discard())

	res, err := driver.Publish(context.Background(), writeArtifact(t, 3), domain.Bucket{PlaylistID: "PL1"})
	if err != nil {
		t.Fatalf("secondary failures must not fail publish: %v", err)
	}
	if res.ExternalID != "vid123" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestPublishStalledSessionIsBounded(t *testing.T) {
	t.Parallel()

	host := &fakeHost{stalled: true}
	rec := &sleepRecorder{}
	driver := NewDriver(host, testConfig(), logging.Discard()).WithSleep(rec.sleep)

	_, err := driver.Publish(context.Background(), writeArtifact(t, 10), domain.Bucket{})
	var perr *Error
	if !errors.As(err, &perr) || perr.QuotaExceeded {
		t.Fatalf("expected fatal publish error, got %v", err)
	}
	if host.chunks != 4 {
		t.Fatalf("expected 1 send plus 3 retried sends, got %d", host.chunks)
	}
	if len(rec.waits) != 3 || rec.waits[2] != 8*time.Second {
		t.Fatalf("unexpected backoff waits: %v", rec.waits)
	}
	if host.progressHits != 3 {
		t.Fatalf("expected a progress resync after each stall, got %d", host.progressHits)
	}
}
