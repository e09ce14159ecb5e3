package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/you-humble/audioclip/internal/domain"
	"github.com/you-humble/audioclip/internal/infra/media"
	"github.com/you-humble/audioclip/internal/infra/queue"
	"github.com/you-humble/audioclip/internal/infra/secret"
	artifactstore "github.com/you-humble/audioclip/internal/infra/store/artifact"
	jobstore "github.com/you-humble/audioclip/internal/infra/store/job"
	"github.com/you-humble/audioclip/internal/pipeline"
	"github.com/you-humble/audioclip/internal/usecase"
)

type extractOptions struct {
	Bitrate string
	Output  string
	WorkDir string
	Cookies string
	Budget  time.Duration

	YTDLPPath   string
	FFmpegPath  string
	FFprobePath string
}

type extractDeps struct {
	fetcher    pipeline.ContentFetcher
	transcoder pipeline.Transcoder
	secrets    pipeline.SecretProvider
}

var extractOpts extractOptions

var extractCmd = &cobra.Command{
	Use:   "extract URL START END",
	Short: "Run the whole pipeline locally and save the clip",
	Long: `Run fetch, extract and store in this process and copy the resulting MP3 to --output.

START and END accept SS, MM:SS or HH:MM:SS. yt-dlp, ffmpeg and ffprobe must be installed.

Example:
  clipctl extract https://youtu.be/dQw4w9WgXcQ 1:30 2:00 --bitrate 128k --output chorus.mp3`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var secrets pipeline.SecretProvider = secret.NewNoneProvider()
		if extractOpts.Cookies != "" {
			secrets = secret.NewFileProvider(extractOpts.Cookies)
		}

		deps := extractDeps{
			fetcher: media.NewYTDLP(media.WithYTDLPPath(extractOpts.YTDLPPath)),
			transcoder: media.NewFFmpeg(
				media.WithFFmpegPath(extractOpts.FFmpegPath),
				media.WithFFprobePath(extractOpts.FFprobePath),
			),
			secrets: secrets,
		}
		return runExtract(cmd.Context(), deps, extractOpts, args, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
	f := extractCmd.Flags()
	f.StringVar(&extractOpts.Bitrate, "bitrate", domain.DefaultBitrate, "MP3 bitrate: 64k, 96k, 128k, 160k or 192k")
	f.StringVarP(&extractOpts.Output, "output", "o", "", "where to write the clip (default clip-<job id>.mp3)")
	f.StringVar(&extractOpts.WorkDir, "work-dir", "", "scratch directory (default a temporary one)")
	f.StringVar(&extractOpts.Cookies, "cookies", "", "json or yaml file with auth material for gated sources")
	f.DurationVar(&extractOpts.Budget, "budget", 15*time.Minute, "wall-clock budget of the job")
	f.StringVar(&extractOpts.YTDLPPath, "ytdlp", "yt-dlp", "yt-dlp binary")
	f.StringVar(&extractOpts.FFmpegPath, "ffmpeg", "ffmpeg", "ffmpeg binary")
	f.StringVar(&extractOpts.FFprobePath, "ffprobe", "ffprobe", "ffprobe binary")
}

func runExtract(ctx context.Context, deps extractDeps, opts extractOptions, args []string, out io.Writer) error {
	req, err := submitRequest(args, opts.Bitrate)
	if err != nil {
		return err
	}

	workDir := opts.WorkDir
	if workDir == "" {
		if workDir, err = os.MkdirTemp("", "clipctl-"); err != nil {
			return fmt.Errorf("create work dir: %w", err)
		}
		defer os.RemoveAll(workDir)
	}

	artifacts, err := artifactstore.NewLocalStore(filepath.Join(workDir, "artifacts"))
	if err != nil {
		return err
	}
	jobs := jobstore.NewMemoryJobStore()

	budget := opts.Budget
	if budget <= 0 {
		budget = 15 * time.Minute
	}
	worker := pipeline.NewWorker(
		pipeline.Config{
			WorkDir:   filepath.Join(workDir, "jobs"),
			Budget:    pipeline.Budget{Total: budget, TerminalReserve: budget / 30},
			Retention: time.Hour,
		},
		jobs,
		artifacts,
		pipeline.NewFetchPolicy(deps.fetcher, deps.secrets),
		deps.transcoder,
	)

	q := queue.NewLocal(ctx, 1, worker.Process)
	defer q.Close()

	uc := usecase.New(usecase.Config{MaxClipDuration: 2 * time.Hour}, jobs, artifacts, q)

	jobID, err := uc.Submit(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "job %s submitted\n", jobID)
	q.Wait()

	st, err := uc.Status(ctx, jobID)
	if err != nil {
		return err
	}
	if st.State != domain.StateComplete {
		if st.Error != nil {
			return fmt.Errorf("job %s: %w", st.State, st.Error)
		}
		return fmt.Errorf("job ended in state %s", st.State)
	}

	res, err := uc.Artifact(ctx, jobID)
	if err != nil {
		return err
	}
	defer res.Content.Close()

	output := opts.Output
	if output == "" {
		output = res.FileName
	}
	if err := writeFile(output, res.Content); err != nil {
		return err
	}

	fmt.Fprintf(out, "saved %s (%d bytes, %.1fs)\n", output, st.ArtifactSize, st.ClipDuration)
	return nil
}

func submitRequest(args []string, bitrate string) (domain.SubmitRequest, error) {
	start, err := domain.ParseTimecode(args[1])
	if err != nil {
		return domain.SubmitRequest{}, fmt.Errorf("start: %w", err)
	}
	end, err := domain.ParseTimecode(args[2])
	if err != nil {
		return domain.SubmitRequest{}, fmt.Errorf("end: %w", err)
	}

	return domain.SubmitRequest{
		SourceLocator: args[0],
		Start:         domain.Timecode{Duration: start, Set: true},
		End:           domain.Timecode{Duration: end, Set: true},
		Bitrate:       bitrate,
	}, nil
}

func writeFile(path string, r io.Reader) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			err = errors.Join(err, os.Remove(path))
		}
	}()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
