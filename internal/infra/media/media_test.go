package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-humble/audioclip/internal/domain"
)

type fakeRunner struct {
	calls  [][]string
	runFn  func(name string, args []string) error
	output []byte
	err    error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) error {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.runFn != nil {
		return f.runFn(name, args)
	}
	return f.err
}

func (f *fakeRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.output, f.err
}

func argAfter(args []string, flag string) string {
	i := slices.Index(args, flag)
	if i < 0 || i+1 >= len(args) {
		return ""
	}
	return args[i+1]
}

func TestYTDLPFetch(t *testing.T) {
	dir := t.TempDir()
	var cookieBody string

	runner := &fakeRunner{runFn: func(_ string, args []string) error {
		if cf := argAfter(args, "--cookies"); cf != "" {
			data, err := os.ReadFile(cf)
			if err != nil {
				return err
			}
			cookieBody = string(data)
		}
		out := strings.Replace(argAfter(args, "-o"), "%(ext)s", "webm", 1)
		return os.WriteFile(out, []byte("media"), 0o644)
	}}

	y := NewYTDLP(WithYTDLPPath("/bin/yt-dlp"), WithYTDLPRunner(runner))

	res, err := y.Fetch(context.Background(), domain.FetchRequest{
		Locator: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Dir:     dir,
		Auth: &domain.AuthMaterial{
			Cookies:   domain.ParseCookieString("SID=abc"),
			UserAgent: "UA/1",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "source.webm"), res.Path)
	assert.Equal(t, int64(5), res.Size)

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.Equal(t, "/bin/yt-dlp", call[0])
	assert.Equal(t, "UA/1", argAfter(call, "--user-agent"))
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", call[len(call)-1])

	assert.Contains(t, cookieBody, "# Netscape HTTP Cookie File")
	assert.Contains(t, cookieBody, ".youtube.com\tTRUE\t/\tFALSE\t9999999999\tSID\tabc")

	_, err = os.Stat(argAfter(call, "--cookies"))
	assert.True(t, os.IsNotExist(err), "cookie file is removed after the fetch")
}

func TestYTDLPFetchClassifiesFailures(t *testing.T) {
	cases := []struct {
		stderr string
		want   error
	}{
		{"ERROR: [youtube] x: Sign in to confirm you're not a bot", domain.ErrUnauthorized},
		{"ERROR: unable to download: HTTP Error 403: Forbidden", domain.ErrUnauthorized},
		{"ERROR: [youtube] x: Private video. Sign in if you've been granted access", domain.ErrSourceUnavailable},
		{"ERROR: [youtube] x: Video unavailable", domain.ErrSourceUnavailable},
	}

	for _, tc := range cases {
		runner := &fakeRunner{err: errors.New("yt-dlp: exit status 1: " + tc.stderr)}
		y := NewYTDLP(WithYTDLPRunner(runner))

		_, err := y.Fetch(context.Background(), domain.FetchRequest{Locator: "u", Dir: t.TempDir()})
		assert.ErrorIs(t, err, tc.want, tc.stderr)
	}

	runner := &fakeRunner{err: errors.New("yt-dlp: exit status 1: network is unreachable")}
	_, err := NewYTDLP(WithYTDLPRunner(runner)).Fetch(context.Background(), domain.FetchRequest{Locator: "u", Dir: t.TempDir()})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrUnauthorized)
	assert.NotErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestYTDLPFetchWithoutOutput(t *testing.T) {
	y := NewYTDLP(WithYTDLPRunner(&fakeRunner{}))
	_, err := y.Fetch(context.Background(), domain.FetchRequest{Locator: "u", Dir: t.TempDir()})
	assert.ErrorContains(t, err, "no source file")
}

func TestFFmpegProbe(t *testing.T) {
	runner := &fakeRunner{output: []byte(`{"format": {"duration": "212.500000"}}`)}
	f := NewFFmpeg(WithFFprobePath("/usr/bin/ffprobe"), WithFFmpegRunner(runner))

	d, err := f.Probe(context.Background(), "/tmp/source.webm")
	require.NoError(t, err)
	assert.Equal(t, 212500*time.Millisecond, d)
	assert.Equal(t, "/usr/bin/ffprobe", runner.calls[0][0])

	runner.output = []byte(`{"format": {}}`)
	_, err = f.Probe(context.Background(), "/tmp/source.webm")
	assert.ErrorContains(t, err, "no duration")
}

func TestTranscodeArgs(t *testing.T) {
	args := TranscodeArgs(domain.TranscodeRequest{
		Input:    "in.webm",
		Output:   "out.mp3",
		Start:    90 * time.Second,
		Duration: 30500 * time.Millisecond,
	})

	assert.Equal(t, []string{
		"-ss", "90.000",
		"-i", "in.webm",
		"-t", "30.500",
		"-vn",
		"-acodec", "libmp3lame",
		"-ab", "96k",
		"-ac", "1",
		"-ar", "44100",
		"-avoid_negative_ts", "make_zero",
		"-y",
		"out.mp3",
	}, args)
}

func TestFFmpegTranscode(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "clip.mp3")

	runner := &fakeRunner{runFn: func(_ string, args []string) error {
		return os.WriteFile(args[len(args)-1], []byte("ID3"), 0o644)
	}}
	f := NewFFmpeg(WithFFmpegRunner(runner))

	err := f.Transcode(context.Background(), domain.TranscodeRequest{Input: "in", Output: out, Duration: time.Second, Bitrate: "128k"})
	require.NoError(t, err)
	assert.Equal(t, "128k", argAfter(runner.calls[0], "-ab"))

	empty := filepath.Join(dir, "empty.mp3")
	runner.runFn = func(_ string, args []string) error {
		return os.WriteFile(args[len(args)-1], nil, 0o644)
	}
	err = f.Transcode(context.Background(), domain.TranscodeRequest{Input: "in", Output: empty, Duration: time.Second})
	assert.ErrorContains(t, err, "empty file")
}

func TestWriteCookieFileSkipsUnsafeCookies(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteCookieFile(dir, []domain.Cookie{
		{Name: "SID", Value: "ok", Domain: ".youtube.com", Path: "/"},
		{Name: "EVIL", Value: "x\n.evil.com\tTRUE\t/\tFALSE\t0\tINJ\tv", Domain: ".youtube.com", Path: "/"},
		{Name: "TAB\tNAME", Value: "v", Domain: ".youtube.com", Path: "/"},
		{Name: "CR", Value: "v\r", Domain: ".youtube.com", Path: "/"},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "# Netscape HTTP Cookie File", lines[0])
	assert.Equal(t, ".youtube.com\tTRUE\t/\tFALSE\t0\tSID\tok", lines[1])
	assert.NotContains(t, string(data), "evil.com")
}
