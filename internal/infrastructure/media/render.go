package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"TrackPublisher/internal/ports"
)

const (
	backgroundColor = "0x140d2b"
	accentColor     = "0xc9a7ff"
)

// RenderConfig sizes the frames and the cover image.
type RenderConfig struct {
	FFmpeg      string
	Width       int
	Height      int
	FPS         int
	ThumbWidth  int
	ThumbHeight int
	FontFile    string
}

// FFmpegRenderer draws a waveform video and a cover image with the caption on a flat background.
type FFmpegRenderer struct {
	runner Runner
	cfg    RenderConfig
}

var _ ports.Renderer = (*FFmpegRenderer)(nil)

// NewFFmpegRenderer fills in 1080p/24fps and a 1280x720 cover when sizes are unset.
func NewFFmpegRenderer(runner Runner, cfg RenderConfig) *FFmpegRenderer {
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = "ffmpeg"
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 1920, 1080
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 24
	}
	if cfg.ThumbWidth <= 0 || cfg.ThumbHeight <= 0 {
		cfg.ThumbWidth, cfg.ThumbHeight = 1280, 720
	}
	return &FFmpegRenderer{runner: runner, cfg: cfg}
}

// RenderVideo encodes H.264/AAC with a waveform strip under the caption.
func (r *FFmpegRenderer) RenderVideo(ctx context.Context, audioPath string, caption ports.Caption, dir string) (string, error) {
	text, err := writeCaption(dir, "video_caption.txt", caption)
	if err != nil {
		return "", err
	}

	w, h := r.cfg.Width, r.cfg.Height
	waveH := h / 5
	graph := fmt.Sprintf(
		"[1:a]showwaves=s=%dx%d:mode=cline:rate=%d:colors=%s[wave];[0:v][wave]overlay=0:%d,%s[v]",
		w, waveH, r.cfg.FPS, accentColor, h-waveH-h/10,
		r.drawText(text, h/14, "(h-text_h)/3"),
	)

	out := filepath.Join(dir, "video.mp4")
	_, err = r.runner.Run(ctx, r.cfg.FFmpeg,
		"-y", "-loglevel", "error",
		"-f", "lavfi", "-i", fmt.Sprintf("color=c=%s:s=%dx%d:r=%d", backgroundColor, w, h, r.cfg.FPS),
		"-i", audioPath,
		"-filter_complex", graph,
		"-map", "[v]", "-map", "1:a",
		"-c:v", "libx264", "-preset", "medium", "-profile:v", "high", "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", "320k",
		"-movflags", "+faststart",
		"-shortest",
		out,
	)
	if err != nil {
		return "", err
	}
	return out, nil
}

// RenderThumbnail writes a single JPEG frame with the caption.
func (r *FFmpegRenderer) RenderThumbnail(ctx context.Context, caption ports.Caption, dir string) (string, error) {
	text, err := writeCaption(dir, "thumb_caption.txt", caption)
	if err != nil {
		return "", err
	}

	out := filepath.Join(dir, "thumbnail.jpg")
	_, err = r.runner.Run(ctx, r.cfg.FFmpeg,
		"-y", "-loglevel", "error",
		"-f", "lavfi", "-i", fmt.Sprintf("color=c=%s:s=%dx%d", backgroundColor, r.cfg.ThumbWidth, r.cfg.ThumbHeight),
		"-vf", r.drawText(text, r.cfg.ThumbHeight/10, "(h-text_h)/2"),
		"-frames:v", "1",
		"-q:v", "2",
		out,
	)
	if err != nil {
		return "", err
	}
	return out, nil
}

func (r *FFmpegRenderer) drawText(textFile string, size int, y string) string {
	opts := []string{
		"textfile=" + escapeFilterPath(textFile),
		"fontcolor=white",
		fmt.Sprintf("fontsize=%d", size),
		"line_spacing=12",
		"x=(w-text_w)/2",
		"y=" + y,
		"shadowcolor=black@0.6",
		"shadowx=3",
		"shadowy=3",
	}
	if r.cfg.FontFile != "" {
		opts = append(opts, "fontfile="+escapeFilterPath(r.cfg.FontFile))
	}
	return "drawtext=" + strings.Join(opts, ":")
}

// CaptionLines lays out the caption: title, author, then the edit label and channel.
func CaptionLines(c ports.Caption) []string {
	lines := []string{c.Title}
	if c.Author != "" {
		lines = append(lines, c.Author)
	}
	footer := c.Label
	if c.Channel != "" {
		if footer != "" {
			footer += " | "
		}
		footer += c.Channel
	}
	if footer != "" {
		lines = append(lines, footer)
	}
	return lines
}

// writeCaption stores the caption in a file so drawtext never has to escape user text.
func writeCaption(dir, name string, c ports.Caption) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(CaptionLines(c), "\n")), 0o644); err != nil {
		return "", fmt.Errorf("write caption: %w", err)
	}
	return path, nil
}

func escapeFilterPath(p string) string {
	r := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`)
	return r.Replace(p)
}
