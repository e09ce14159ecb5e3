package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/you-humble/audioclip/internal/domain"
	artifactstore "github.com/you-humble/audioclip/internal/infra/store/artifact"
)

const defaultTerminalTimeout = 10 * time.Second

type JobStore interface {
	Get(ctx context.Context, id string) (domain.Job, error)
	Transition(ctx context.Context, id string, from, to domain.State, fields domain.TransitionFields) error
}

type ArtifactStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, meta artifactstore.Meta) (artifactstore.Object, error)
	Delete(ctx context.Context, ref string) error
}

type Transcoder interface {
	Probe(ctx context.Context, path string) (time.Duration, error)
	Transcode(ctx context.Context, req domain.TranscodeRequest) error
}

type Config struct {
	WorkDir   string
	Budget    Budget
	Retention time.Duration

	// TerminalTimeout bounds the final state write. It runs detached from
	// the job budget.
	TerminalTimeout time.Duration
}

type Worker struct {
	cfg        Config
	jobs       JobStore
	artifacts  ArtifactStore
	fetch      FetchPolicy
	transcoder Transcoder
	now        func() time.Time
}

func NewWorker(
	cfg Config,
	jobs JobStore,
	artifacts ArtifactStore,
	fetch FetchPolicy,
	transcoder Transcoder,
) *Worker {
	if cfg.TerminalTimeout <= 0 {
		cfg.TerminalTimeout = defaultTerminalTimeout
	}
	return &Worker{
		cfg:        cfg,
		jobs:       jobs,
		artifacts:  artifacts,
		fetch:      fetch,
		transcoder: transcoder,
		now:        time.Now,
	}
}

// run is the per-job state threaded through the stages.
type run struct {
	job   domain.Job
	state domain.State
	dir   string
	log   *slog.Logger
}

// Process drives one job to a terminal state. Stage failures are recorded on
// the job and are not returned. A returned error means the job was never
// claimed and the message may be redelivered.
func (w *Worker) Process(ctx context.Context, jobID string) error {
	job, err := w.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	log := slog.With(slog.String("job_id", jobID))
	if job.State != domain.StatePending {
		log.Info("job already picked up, skipping", slog.String("state", string(job.State)))
		return nil
	}

	start := w.now()
	workCtx, cancel := context.WithDeadline(ctx, w.cfg.Budget.WorkDeadline(start))
	defer cancel()

	if err := w.jobs.Transition(workCtx, jobID, domain.StatePending, domain.StateFetching, domain.TransitionFields{}); err != nil {
		if errors.Is(err, domain.ErrTransitionConflict) {
			log.Info("job claimed elsewhere or cancelled")
			return nil
		}
		return fmt.Errorf("claim job: %w", err)
	}

	r := &run{job: job, state: domain.StateFetching, log: log}

	r.dir = filepath.Join(w.cfg.WorkDir, "job-"+jobID)
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		w.fail(ctx, r, domain.KindFetch, fmt.Errorf("create workspace: %w", err))
		return nil
	}
	defer func() {
		if err := os.RemoveAll(r.dir); err != nil {
			log.Warn("remove workspace", slog.String("error", err.Error()))
		}
	}()

	log.Info("job started", slog.String("source", job.SourceLocator))

	source, authenticated, err := w.fetch.Fetch(workCtx, domain.FetchRequest{
		Locator: job.SourceLocator,
		Dir:     r.dir,
	})
	if err != nil {
		w.fail(ctx, r, w.kindFor(workCtx, domain.KindFetch), err)
		return nil
	}

	if !w.advance(ctx, workCtx, r, domain.StateExtracting, domain.TransitionFields{Authenticated: authenticated}) {
		return nil
	}

	clip, clipDuration, err := w.extract(workCtx, r, source.Path)
	if err != nil {
		w.fail(ctx, r, w.kindFor(workCtx, domain.KindExtraction), err)
		return nil
	}

	if !w.advance(ctx, workCtx, r, domain.StateUploading, domain.TransitionFields{}) {
		return nil
	}

	obj, err := w.upload(workCtx, r, clip)
	if err != nil {
		w.fail(ctx, r, w.kindFor(workCtx, domain.KindUpload), err)
		return nil
	}

	tctx, tcancel := w.terminalContext(ctx)
	defer tcancel()

	err = w.jobs.Transition(tctx, jobID, domain.StateUploading, domain.StateComplete, domain.TransitionFields{
		ArtifactRef:  obj.Ref,
		ArtifactSize: obj.Size,
		ClipDuration: clipDuration,
		ExpiresAt:    obj.ExpiresAt,
	})
	if err != nil {
		log.Error("complete job", slog.String("error", err.Error()))
		if derr := w.artifacts.Delete(tctx, obj.Ref); derr != nil {
			log.Warn("delete orphaned artifact", slog.String("error", derr.Error()))
		}
		if errors.Is(err, domain.ErrTransitionConflict) {
			w.logCurrent(tctx, r, "job changed before completion")
			return nil
		}
		w.fail(ctx, r, domain.KindUpload, fmt.Errorf("complete job: %w", err))
		return nil
	}

	log.Info("job complete",
		slog.String("artifact", obj.Ref),
		slog.Int64("size", obj.Size),
		slog.Duration("clip", clipDuration),
		slog.Duration("elapsed", w.now().Sub(start)),
	)
	return nil
}

func (w *Worker) extract(ctx context.Context, r *run, source string) (string, time.Duration, error) {
	total, err := w.transcoder.Probe(ctx, source)
	if err != nil {
		return "", 0, fmt.Errorf("probe source: %w", err)
	}

	rng := r.job.Range
	if rng.Start >= total {
		return "", 0, fmt.Errorf("start %s is beyond the source duration %s",
			domain.FormatTimecode(rng.Start), domain.FormatTimecode(total))
	}
	if rng.End > total {
		r.log.Info("clamping end to source duration",
			slog.Duration("requested_end", rng.End),
			slog.Duration("source_duration", total),
		)
		rng.End = total
	}

	out := filepath.Join(r.dir, "clip.mp3")
	err = w.transcoder.Transcode(ctx, domain.TranscodeRequest{
		Input:    source,
		Output:   out,
		Start:    rng.Start,
		Duration: rng.Duration(),
		Bitrate:  r.job.Bitrate,
	})
	if err != nil {
		return "", 0, fmt.Errorf("transcode: %w", err)
	}

	return out, rng.Duration(), nil
}

func (w *Worker) upload(ctx context.Context, r *run, clip string) (artifactstore.Object, error) {
	f, err := os.Open(clip)
	if err != nil {
		return artifactstore.Object{}, fmt.Errorf("open clip: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return artifactstore.Object{}, fmt.Errorf("stat clip: %w", err)
	}

	key := artifactstore.Key(r.job.ID)
	obj, err := w.artifacts.Put(ctx, key, f, info.Size(), artifactstore.Meta{
		ExpiresAt: r.job.CreatedAt.Add(w.cfg.Retention),
		Attrs: map[string]string{
			"job-id":     r.job.ID,
			"source-url": r.job.SourceLocator,
			"start-time": domain.FormatTimecode(r.job.Range.Start),
			"end-time":   domain.FormatTimecode(r.job.Range.End),
			"bitrate":    r.job.Bitrate,
			"created-at": r.job.CreatedAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		dctx, cancel := w.terminalContext(ctx)
		defer cancel()
		if derr := w.artifacts.Delete(dctx, key); derr != nil {
			r.log.Warn("delete partial artifact", slog.String("error", derr.Error()))
		}
		return artifactstore.Object{}, fmt.Errorf("put artifact: %w", err)
	}
	if obj.ExpiresAt.IsZero() {
		obj.ExpiresAt = r.job.CreatedAt.Add(w.cfg.Retention)
	}

	return obj, nil
}

// advance moves the job to the next stage. It reports false when the job
// must stop, either because it was cancelled or because it was failed.
func (w *Worker) advance(ctx, workCtx context.Context, r *run, to domain.State, fields domain.TransitionFields) bool {
	err := w.jobs.Transition(workCtx, r.job.ID, r.state, to, fields)
	if err == nil {
		r.state = to
		return true
	}

	if errors.Is(err, domain.ErrTransitionConflict) {
		w.logCurrent(ctx, r, "job changed under the worker, stopping")
		return false
	}

	w.fail(ctx, r, w.kindFor(workCtx, stageKind(r.state)), fmt.Errorf("advance to %s: %w", to, err))
	return false
}

func (w *Worker) fail(ctx context.Context, r *run, kind domain.ErrorKind, cause error) {
	if kind == domain.KindTimeoutExceeded {
		cause = fmt.Errorf("stage %s exceeded the job budget of %s: %w", r.state, w.cfg.Budget.Total, cause)
	}
	jerr := domain.NewJobError(kind, r.state, cause)

	tctx, cancel := w.terminalContext(ctx)
	defer cancel()

	err := w.jobs.Transition(tctx, r.job.ID, r.state, domain.StateFailed, domain.TransitionFields{Error: jerr})
	if err != nil {
		if errors.Is(err, domain.ErrTransitionConflict) {
			w.logCurrent(tctx, r, "job changed before failure could be recorded")
			return
		}
		r.log.Error("record failure", slog.String("error", err.Error()), slog.String("cause", jerr.Error()))
		return
	}

	r.log.Warn("job failed",
		slog.String("kind", string(kind)),
		slog.String("stage", string(r.state)),
		slog.String("error", jerr.Message),
	)
}

func (w *Worker) logCurrent(ctx context.Context, r *run, msg string) {
	cur, err := w.jobs.Get(ctx, r.job.ID)
	if err != nil {
		r.log.Warn(msg, slog.String("error", err.Error()))
		return
	}
	r.log.Info(msg, slog.String("state", string(cur.State)))
}

// terminalContext survives cancellation of the parent and the job budget.
func (w *Worker) terminalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), w.cfg.TerminalTimeout)
}

func (w *Worker) kindFor(workCtx context.Context, kind domain.ErrorKind) domain.ErrorKind {
	if errors.Is(workCtx.Err(), context.DeadlineExceeded) {
		return domain.KindTimeoutExceeded
	}
	return kind
}

func stageKind(s domain.State) domain.ErrorKind {
	switch s {
	case domain.StateFetching:
		return domain.KindFetch
	case domain.StateExtracting:
		return domain.KindExtraction
	}
	return domain.KindUpload
}
