package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"TrackPublisher/internal/domain"
	"TrackPublisher/internal/ports"
)

const sampleRate = 44100

// FFmpegAudio runs the slowed + reverb chain and the mashup crossfade through ffmpeg.
type FFmpegAudio struct {
	runner    Runner
	ffmpeg    string
	ffprobe   string
	crossfade time.Duration
	fadeIn    float64
	fadeOut   float64
}

var (
	_ ports.AudioProcessor = (*FFmpegAudio)(nil)
	_ ports.Mixer          = (*FFmpegAudio)(nil)
)

// NewFFmpegAudio builds the adapter. ffprobe is looked up next to ffmpeg by name.
func NewFFmpegAudio(runner Runner, ffmpeg string, crossfade time.Duration, fadeIn, fadeOut float64) *FFmpegAudio {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	return &FFmpegAudio{
		runner:    runner,
		ffmpeg:    ffmpeg,
		ffprobe:   strings.TrimSuffix(ffmpeg, "ffmpeg") + "ffprobe",
		crossfade: crossfade,
		fadeIn:    fadeIn,
		fadeOut:   fadeOut,
	}
}

// Process slows the track, adds EQ, compression and reverb, normalises loudness and fades.
func (a *FFmpegAudio) Process(ctx context.Context, rawPath string, p domain.EffectParams, dir string) (string, error) {
	if p.SlowFactor <= 0 || p.SlowFactor > 1 {
		return "", fmt.Errorf("slow factor %.2f out of range", p.SlowFactor)
	}
	length, err := probeDuration(ctx, a.runner, a.ffprobe, rawPath)
	if err != nil {
		return "", fmt.Errorf("probe input: %w", err)
	}
	slowed := time.Duration(float64(length) / p.SlowFactor)

	out := filepath.Join(dir, strings.TrimSuffix(filepath.Base(rawPath), filepath.Ext(rawPath))+"_slowed_reverb.mp3")
	_, err = a.runner.Run(ctx, a.ffmpeg,
		"-y", "-loglevel", "error",
		"-i", rawPath,
		"-af", EffectChain(p, slowed),
		"-ar", fmt.Sprint(sampleRate), "-ac", "2", "-b:a", "320k",
		out,
	)
	if err != nil {
		return "", err
	}
	return out, nil
}

// EffectChain renders the ffmpeg audio filter graph for the parameters. total is the length
// of the slowed output, used to place the fade-out.
func EffectChain(p domain.EffectParams, total time.Duration) string {
	delay1 := 40 + p.ReverbRoom*60
	delay2 := delay1 * 1.9
	decay1 := 0.3 + p.ReverbRoom*0.3
	decay2 := decay1 * 0.6

	filters := []string{
		fmt.Sprintf("asetrate=%d*%.4f", sampleRate, p.SlowFactor),
		fmt.Sprintf("aresample=%d", sampleRate),
		"acompressor=threshold=-18dB:ratio=3:attack=5:release=100",
		"bass=g=3:f=200",
		"treble=g=-2.5:f=8000",
		fmt.Sprintf("aecho=%.2f:%.2f:%.0f|%.0f:%.2f|%.2f", 1-p.ReverbWet/2, 1-p.ReverbWet, delay1, delay2, decay1, decay2),
		fmt.Sprintf("loudnorm=I=%.1f:TP=-1.5:LRA=11", p.TargetLoudness),
	}
	if p.FadeInSec > 0 {
		filters = append(filters, fmt.Sprintf("afade=t=in:st=0:d=%.1f", p.FadeInSec))
	}
	if p.FadeOutSec > 0 && total.Seconds() > p.FadeOutSec {
		filters = append(filters, fmt.Sprintf("afade=t=out:st=%.3f:d=%.1f", total.Seconds()-p.FadeOutSec, p.FadeOutSec))
	}
	return strings.Join(filters, ",")
}

// Crossfade joins the first half of the first track to the second half of the second one.
func (a *FFmpegAudio) Crossfade(ctx context.Context, audioPaths []string, dir string) (string, error) {
	if len(audioPaths) != 2 {
		return "", fmt.Errorf("crossfade needs 2 tracks, got %d", len(audioPaths))
	}
	first, err := probeDuration(ctx, a.runner, a.ffprobe, audioPaths[0])
	if err != nil {
		return "", fmt.Errorf("probe first track: %w", err)
	}
	second, err := probeDuration(ctx, a.runner, a.ffprobe, audioPaths[1])
	if err != nil {
		return "", fmt.Errorf("probe second track: %w", err)
	}

	cf := a.crossfade
	firstEnd := first/2 + cf/2
	secondStart := second/2 - cf/2
	if secondStart < 0 {
		secondStart = 0
	}
	total := firstEnd + (second - secondStart) - cf

	graph := fmt.Sprintf(
		"[0:a]atrim=0:%s,asetpts=PTS-STARTPTS[a0];[1:a]atrim=start=%s,asetpts=PTS-STARTPTS[a1];[a0][a1]acrossfade=d=%s:c1=tri:c2=tri,afade=t=in:st=0:d=%.1f,afade=t=out:st=%s:d=%.1f[out]",
		seconds(firstEnd), seconds(secondStart), seconds(cf), a.fadeIn, seconds(total-time.Duration(a.fadeOut*float64(time.Second))), a.fadeOut,
	)

	out := filepath.Join(dir, "mashup.mp3")
	_, err = a.runner.Run(ctx, a.ffmpeg,
		"-y", "-loglevel", "error",
		"-i", audioPaths[0], "-i", audioPaths[1],
		"-filter_complex", graph,
		"-map", "[out]",
		"-b:a", "320k",
		out,
	)
	if err != nil {
		return "", err
	}
	return out, nil
}
