package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/you-humble/audioclip/internal/domain"
)

type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	runner      CommandRunner
}

type FFmpegOption func(*FFmpeg)

func WithFFmpegPath(path string) FFmpegOption {
	return func(f *FFmpeg) {
		f.ffmpegPath = path
	}
}

func WithFFprobePath(path string) FFmpegOption {
	return func(f *FFmpeg) {
		f.ffprobePath = path
	}
}

func WithFFmpegRunner(runner CommandRunner) FFmpegOption {
	return func(f *FFmpeg) {
		f.runner = runner
	}
}

func NewFFmpeg(opts ...FFmpegOption) *FFmpeg {
	f := &FFmpeg{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		runner:      &ExecCommandRunner{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns the media duration reported by ffprobe.
func (f *FFmpeg) Probe(ctx context.Context, path string) (time.Duration, error) {
	out, err := f.runner.Output(ctx, f.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	var po probeOutput
	if err := json.Unmarshal(out, &po); err != nil {
		return 0, fmt.Errorf("decode ffprobe output: %w", err)
	}
	if po.Format.Duration == "" {
		return 0, fmt.Errorf("ffprobe reported no duration for %s", path)
	}

	secs, err := strconv.ParseFloat(po.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", po.Format.Duration, err)
	}

	return time.Duration(secs * float64(time.Second)), nil
}

// Transcode cuts [Start, Start+Duration) out of the input as mono 44.1 kHz MP3.
func (f *FFmpeg) Transcode(ctx context.Context, req domain.TranscodeRequest) error {
	if err := f.runner.Run(ctx, f.ffmpegPath, TranscodeArgs(req)...); err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}

	info, err := os.Stat(req.Output)
	if err != nil {
		return fmt.Errorf("ffmpeg produced no output: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("ffmpeg produced an empty file")
	}
	return nil
}

func TranscodeArgs(req domain.TranscodeRequest) []string {
	bitrate := req.Bitrate
	if bitrate == "" {
		bitrate = domain.DefaultBitrate
	}

	return []string{
		"-ss", seconds(req.Start),
		"-i", req.Input,
		"-t", seconds(req.Duration),
		"-vn",
		"-acodec", "libmp3lame",
		"-ab", bitrate,
		"-ac", "1",
		"-ar", "44100",
		"-avoid_negative_ts", "make_zero",
		"-y",
		req.Output,
	}
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
