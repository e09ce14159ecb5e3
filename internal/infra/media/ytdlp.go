package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/you-humble/audioclip/internal/domain"
)

const sourceBase = "source"

var (
	permanentSignals = []string{
		"private video",
		"video unavailable",
		"copyright",
		"removed",
		"deleted",
	}

	authSignals = []string{
		"sign in to confirm",
		"not a bot",
		"login required",
		"confirm your age",
		"age-restricted",
		"members-only",
		"use --cookies",
		"http error 401",
		"http error 403",
	}
)

// YTDLP downloads sources with the yt-dlp binary.
type YTDLP struct {
	path   string
	runner CommandRunner
}

type YTDLPOption func(*YTDLP)

func WithYTDLPPath(path string) YTDLPOption {
	return func(y *YTDLP) {
		y.path = path
	}
}

func WithYTDLPRunner(runner CommandRunner) YTDLPOption {
	return func(y *YTDLP) {
		y.runner = runner
	}
}

func NewYTDLP(opts ...YTDLPOption) *YTDLP {
	y := &YTDLP{
		path:   "yt-dlp",
		runner: &ExecCommandRunner{},
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

// Fetch downloads the best audio stream into req.Dir. Failures wrap
// domain.ErrSourceUnavailable or domain.ErrUnauthorized when the tool output
// says so.
func (y *YTDLP) Fetch(ctx context.Context, req domain.FetchRequest) (domain.FetchResult, error) {
	args := []string{
		"--no-playlist",
		"--no-progress",
		"--no-warnings",
		"--quiet",
		"--retries", "3",
		"--socket-timeout", "30",
		"-f", "bestaudio/best",
		"-o", filepath.Join(req.Dir, sourceBase+".%(ext)s"),
	}

	if req.Auth != nil && !req.Auth.Empty() {
		cookieFile, err := WriteCookieFile(req.Dir, req.Auth.Cookies)
		if err != nil {
			return domain.FetchResult{}, err
		}
		defer os.Remove(cookieFile)

		args = append(args, "--cookies", cookieFile)
		if req.Auth.UserAgent != "" {
			args = append(args, "--user-agent", req.Auth.UserAgent)
		}
	}
	args = append(args, req.Locator)

	if err := y.runner.Run(ctx, y.path, args...); err != nil {
		return domain.FetchResult{}, classify(err)
	}

	path, err := findSource(req.Dir)
	if err != nil {
		return domain.FetchResult{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return domain.FetchResult{}, fmt.Errorf("stat source: %w", err)
	}

	slog.Debug("source fetched",
		slog.String("path", path),
		slog.Int64("size", info.Size()),
		slog.Bool("authenticated", req.Auth != nil),
	)
	return domain.FetchResult{Path: path, Size: info.Size()}, nil
}

func classify(err error) error {
	msg := strings.ToLower(err.Error())

	for _, s := range permanentSignals {
		if strings.Contains(msg, s) {
			return fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
		}
	}
	for _, s := range authSignals {
		if strings.Contains(msg, s) {
			return fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
		}
	}
	return err
}

func findSource(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, sourceBase+".*"))
	if err != nil {
		return "", fmt.Errorf("glob source: %w", err)
	}

	for _, m := range matches {
		if strings.HasSuffix(m, ".part") || strings.HasSuffix(m, ".ytdl") {
			continue
		}
		return m, nil
	}
	return "", fmt.Errorf("yt-dlp finished but no source file in %s", dir)
}
