package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/you-humble/audioclip/internal/domain"
	artifactstore "github.com/you-humble/audioclip/internal/infra/store/artifact"

	"github.com/google/uuid"
)

type JobStore interface {
	Create(ctx context.Context, j domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, error)
	Transition(ctx context.Context, id string, from, to domain.State, fields domain.TransitionFields) error
}

type ArtifactStore interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, int64, error)
	URL(ctx context.Context, ref string, ttl time.Duration) (string, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

type Config struct {
	MaxClipDuration  time.Duration
	DefaultBitrate   string
	PresignDownloads bool
}

type usecase struct {
	cfg       Config
	jobs      JobStore
	artifacts ArtifactStore
	queue     Dispatcher
	now       func() time.Time
}

func New(cfg Config, jobs JobStore, artifacts ArtifactStore, queue Dispatcher) *usecase {
	if cfg.MaxClipDuration <= 0 {
		cfg.MaxClipDuration = 2 * time.Hour
	}
	if cfg.DefaultBitrate == "" {
		cfg.DefaultBitrate = domain.DefaultBitrate
	}
	return &usecase{
		cfg:       cfg,
		jobs:      jobs,
		artifacts: artifacts,
		queue:     queue,
		now:       time.Now,
	}
}

// Submit validates the request, records a PENDING job and dispatches it once.
// It never touches the source.
func (uc *usecase) Submit(ctx context.Context, req domain.SubmitRequest) (string, error) {
	job, err := uc.newJob(req)
	if err != nil {
		return "", err
	}

	if err := uc.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	slog.Debug("dispatch job", slog.String("job_id", job.ID))
	if err := uc.queue.Dispatch(ctx, job.ID); err != nil {
		slog.Error("dispatch failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)

		jerr := domain.NewJobError(domain.KindFetch, domain.StatePending, fmt.Errorf("dispatch: %w", err))
		if terr := uc.jobs.Transition(context.WithoutCancel(ctx), job.ID, domain.StatePending, domain.StateFailed,
			domain.TransitionFields{Error: jerr}); terr != nil {
			slog.Warn("mark undispatched job failed", slog.String("job_id", job.ID), slog.String("error", terr.Error()))
		}
		return "", fmt.Errorf("dispatch: %w", err)
	}

	slog.Info("job submitted",
		slog.String("job_id", job.ID),
		slog.String("source", job.SourceLocator),
		slog.Duration("start", job.Range.Start),
		slog.Duration("end", job.Range.End),
	)
	return job.ID, nil
}

func (uc *usecase) newJob(req domain.SubmitRequest) (domain.Job, error) {
	verr := validateRequest(req)

	var locator string
	if !verr.Has("source_locator") {
		var err error
		if locator, err = domain.ParseLocator(req.SourceLocator); err != nil {
			verr.Add("source_locator", "%v", err)
		}
	}

	start, end := req.Start.Duration, req.End.Duration
	rangeOK := true
	for _, f := range []struct {
		name string
		tc   domain.Timecode
	}{{"start", req.Start}, {"end", req.End}} {
		switch {
		case !f.tc.Set:
			verr.Add(f.name, "is required")
			rangeOK = false
		case f.tc.Err() != nil:
			verr.Add(f.name, "%v", f.tc.Err())
			rangeOK = false
		}
	}

	if rangeOK {
		switch {
		case start < 0:
			verr.Add("start", "must not be negative")
		case end <= start:
			verr.Add("end", "must be after start")
		case end-start > uc.cfg.MaxClipDuration:
			verr.Add("end", "clip is longer than the maximum of %s", domain.FormatTimecode(uc.cfg.MaxClipDuration))
		}
	}

	if !verr.Empty() {
		return domain.Job{}, verr
	}

	bitrate := req.Bitrate
	if bitrate == "" {
		bitrate = uc.cfg.DefaultBitrate
	}

	now := uc.now()
	return domain.Job{
		ID:            uuid.NewString(),
		SourceLocator: locator,
		Range:         domain.Range{Start: start, End: end},
		Bitrate:       bitrate,
		State:         domain.StatePending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Status is a read-only snapshot.
func (uc *usecase) Status(ctx context.Context, jobID string) (domain.StatusResponse, error) {
	job, err := uc.jobs.Get(ctx, jobID)
	if err != nil {
		return domain.StatusResponse{}, err
	}

	return domain.Snapshot(job, uc.now()), nil
}

// Artifact opens the clip of a completed job, or returns a presigned URL
// when downloads are redirected to the object store.
func (uc *usecase) Artifact(ctx context.Context, jobID string) (domain.DownloadResult, error) {
	job, err := uc.jobs.Get(ctx, jobID)
	if err != nil {
		return domain.DownloadResult{}, err
	}

	switch job.State {
	case domain.StateComplete:
	case domain.StateFailed:
		return domain.DownloadResult{}, domain.ErrJobFailed
	case domain.StateCancelled:
		return domain.DownloadResult{}, domain.ErrJobCancelled
	default:
		return domain.DownloadResult{}, domain.ErrNotReady
	}

	now := uc.now()
	if job.ArtifactExpired(now) {
		return domain.DownloadResult{}, domain.ErrArtifactExpired
	}

	res := domain.DownloadResult{FileName: "clip-" + path.Base(job.ID) + ".mp3"}

	if uc.cfg.PresignDownloads {
		url, err := uc.artifacts.URL(ctx, job.ArtifactRef, job.ExpiresAt.Sub(now))
		if err == nil {
			res.RedirectURL = url
			return res, nil
		}
		if !errors.Is(err, artifactstore.ErrPresignUnsupported) {
			return domain.DownloadResult{}, fmt.Errorf("presign artifact: %w", err)
		}
	}

	rc, size, err := uc.artifacts.Open(ctx, job.ArtifactRef)
	if err != nil {
		return domain.DownloadResult{}, fmt.Errorf("open artifact: %w", err)
	}

	res.Size = size
	res.Content = rc
	return res, nil
}

// Cancel stops a job that has not started writing its artifact.
func (uc *usecase) Cancel(ctx context.Context, jobID string) (domain.StatusResponse, error) {
	job, err := uc.jobs.Get(ctx, jobID)
	if err != nil {
		return domain.StatusResponse{}, err
	}

	// the worker may advance between the read and the write, so retry on
	// conflicts while the state still allows cancelling
	cancelled := false
	for attempt := 0; attempt < 3 && !cancelled; attempt++ {
		if !domain.CanTransition(job.State, domain.StateCancelled) {
			return domain.Snapshot(job, uc.now()), fmt.Errorf("%w: job is %s", domain.ErrIllegalTransition, job.State)
		}

		err = uc.jobs.Transition(ctx, jobID, job.State, domain.StateCancelled, domain.TransitionFields{})
		switch {
		case err == nil:
			cancelled = true
		case errors.Is(err, domain.ErrTransitionConflict):
			if job, err = uc.jobs.Get(ctx, jobID); err != nil {
				return domain.StatusResponse{}, err
			}
		default:
			return domain.StatusResponse{}, err
		}
	}
	if !cancelled {
		return domain.StatusResponse{}, fmt.Errorf("%w: job kept changing state", domain.ErrTransitionConflict)
	}

	slog.Info("job cancelled", slog.String("job_id", jobID), slog.String("from", string(job.State)))

	job, err = uc.jobs.Get(ctx, jobID)
	if err != nil {
		return domain.StatusResponse{}, err
	}
	return domain.Snapshot(job, uc.now()), nil
}
