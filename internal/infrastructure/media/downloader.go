package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"TrackPublisher/internal/domain"
	"TrackPublisher/internal/ports"
)

const browserUserAgent = "User-Agent:Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// YtDlp downloads audio with yt-dlp, one access variant per call.
type YtDlp struct {
	runner         Runner
	binary         string
	cookiesPath    string
	minCookieBytes int64
	logger         *slog.Logger
}

var _ ports.Downloader = (*YtDlp)(nil)

// NewYtDlp builds the downloader. The cookies file is only passed when it is larger than
// minCookieBytes, since an empty export makes every request fail.
func NewYtDlp(runner Runner, binary, cookiesPath string, minCookieBytes int64, logger *slog.Logger) *YtDlp {
	if binary == "" {
		binary = "yt-dlp"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &YtDlp{runner: runner, binary: binary, cookiesPath: cookiesPath, minCookieBytes: minCookieBytes, logger: logger}
}

// Download fetches itemID as mp3 into dir and returns the file path.
func (y *YtDlp) Download(ctx context.Context, itemID string, variant domain.DownloadVariant, dir string) (string, error) {
	pattern := filepath.Join(dir, itemID+"_raw.*")
	stale, _ := filepath.Glob(pattern)
	for _, f := range stale {
		_ = os.Remove(f)
	}

	args := []string{
		"https://www.youtube.com/watch?v=" + itemID,
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", "0",
		"-o", filepath.Join(dir, itemID+"_raw.%(ext)s"),
		"--no-playlist",
		"--quiet",
		"--no-warnings",
		"--geo-bypass",
		"--extractor-args", "youtube:player_client=" + variant.Client,
		"--add-header", browserUserAgent,
	}
	if variant.Format != "" {
		args = append(args, "-f", variant.Format)
	}
	if y.cookiesUsable() {
		args = append(args, "--cookies", y.cookiesPath)
	}

	if _, err := y.runner.Run(ctx, y.binary, args...); err != nil {
		return "", err
	}

	found, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("glob download: %w", err)
	}
	if len(found) == 0 {
		return "", fmt.Errorf("downloaded file not found in %s", dir)
	}
	return found[0], nil
}

func (y *YtDlp) cookiesUsable() bool {
	if y.cookiesPath == "" {
		return false
	}
	info, err := os.Stat(y.cookiesPath)
	return err == nil && info.Size() > y.minCookieBytes
}
