package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"TrackPublisher/internal/domain"
	"TrackPublisher/internal/ports"
)

// Error is a failed publish. QuotaExceeded marks a platform usage limit, which stops the run.
type Error struct {
	QuotaExceeded bool
	Code          int
	Err           error
}

func (e *Error) Error() string {
	if e.QuotaExceeded {
		return fmt.Sprintf("publish: quota exceeded: %v", e.Err)
	}
	return fmt.Sprintf("publish failed (code %d): %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsQuota reports whether err carries a quota-exhaustion signal.
func IsQuota(err error) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.QuotaExceeded
}

// Config tunes the resumable transfer.
type Config struct {
	ChunkSize    int64
	MaxRetries   int
	RetryCodes   []int
	QuotaReasons []string
}

// Result is a confirmed upload.
type Result struct {
	ExternalID string
	URL        string
}

// Driver pushes artifacts through the host's resumable upload protocol.
type Driver struct {
	host   ports.HostPlatform
	cfg    Config
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewDriver constructs the driver.
func NewDriver(host ports.HostPlatform, cfg Config, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 10 << 20
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 10
	}
	return &Driver{host: host, cfg: cfg, logger: logger, sleep: sleepContext}
}

// WithSleep replaces the backoff wait, mainly for tests.
func (d *Driver) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Driver {
	d.sleep = sleep
	return d
}

// Publish uploads the artifact video, then attaches the cover image and places the item into
// the bucket's group. Only the upload itself can fail the publish.
func (d *Driver) Publish(ctx context.Context, artifact domain.Artifact, bucket domain.Bucket) (Result, error) {
	externalID, err := d.upload(ctx, artifact.VideoPath, artifact.Metadata)
	if err != nil {
		return Result{}, err
	}
	logger := d.logger.With("external_id", externalID)

	if artifact.ThumbnailPath != "" {
		if err := d.host.SetThumbnail(ctx, externalID, artifact.ThumbnailPath); err != nil {
			logger.Warn("set thumbnail failed", "error", err)
		} else {
			logger.Info("thumbnail set")
		}
	}

	if bucket.PlaylistID != "" {
		if err := d.host.AddToGroup(ctx, bucket.PlaylistID, externalID); err != nil {
			logger.Warn("playlist placement failed", "playlist_id", bucket.PlaylistID, "error", err)
		} else {
			logger.Info("added to playlist", "playlist_id", bucket.PlaylistID)
		}
	}

	return Result{ExternalID: externalID, URL: d.host.WatchURL(externalID)}, nil
}

func (d *Driver) upload(ctx context.Context, path string, meta domain.Metadata) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", &Error{Err: fmt.Errorf("open artifact: %w", err)}
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", &Error{Err: fmt.Errorf("stat artifact: %w", err)}
	}
	total := info.Size()

	session, err := d.host.OpenSession(ctx, meta, total)
	if err != nil {
		return "", d.classify(err)
	}
	d.logger.Info("upload session opened", "bytes", total)

	var (
		offset  int64
		retries int
		resync  bool
		buf     = make([]byte, d.cfg.ChunkSize)
	)
	// backoff counts one retry against the whole upload and sleeps 2^retries seconds.
	backoff := func(code int, cause error) error {
		retries++
		if retries > d.cfg.MaxRetries {
			return &Error{Code: code, Err: fmt.Errorf("upload failed after %d retries: %w", d.cfg.MaxRetries, cause)}
		}
		wait := time.Duration(math.Pow(2, float64(retries))) * time.Second
		d.logger.Warn("transient upload error", "attempt", retries, "wait", wait, "error", cause)
		return d.sleep(ctx, wait)
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		var res ports.ChunkResult
		sent := !resync
		if resync {
			res, err = d.host.Progress(ctx, session, total)
		} else {
			var n int
			n, err = file.ReadAt(buf, offset)
			if err != nil && !errors.Is(err, io.EOF) {
				return "", &Error{Err: fmt.Errorf("read artifact: %w", err)}
			}
			res, err = d.host.SendChunk(ctx, session, buf[:n], offset, total)
		}

		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			perr := d.classify(err)
			if perr.QuotaExceeded || !d.transient(err) {
				return "", perr
			}
			if err := backoff(perr.Code, err); err != nil {
				return "", err
			}
			resync = true
			continue
		}

		resync = false
		if res.Done {
			if res.ExternalID == "" {
				return "", &Error{Err: errors.New("upload finished without an id")}
			}
			d.logger.Info("upload complete", "external_id", res.ExternalID)
			return res.ExternalID, nil
		}
		// A sent chunk the session did not persist is a stall, retried like a server error.
		if sent && res.Committed <= offset {
			if err := backoff(0, fmt.Errorf("session did not advance past byte %d", offset)); err != nil {
				return "", err
			}
			resync = true
			continue
		}
		offset = res.Committed
		if total > 0 {
			d.logger.Debug("upload progress", "percent", offset*100/total)
		}
	}
}

// classify wraps a host failure, flagging quota exhaustion from its structured reasons.
func (d *Driver) classify(err error) *Error {
	var herr *ports.HostError
	if errors.As(err, &herr) {
		return &Error{QuotaExceeded: herr.HasReason(d.cfg.QuotaReasons...), Code: herr.StatusCode, Err: err}
	}
	return &Error{Err: err}
}

// transient reports whether err is worth another attempt: a retry-listed status code, or a
// transport failure that never produced a response.
func (d *Driver) transient(err error) bool {
	var herr *ports.HostError
	if !errors.As(err, &herr) {
		return true
	}
	for _, code := range d.cfg.RetryCodes {
		if herr.StatusCode == code {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
