package distributor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/you-humble/audioclip/internal/domain"
	artifactstore "github.com/you-humble/audioclip/internal/infra/store/artifact"

	"golang.org/x/sync/errgroup"
)

type SweepStore interface {
	Transition(ctx context.Context, id string, from, to domain.State, fields domain.TransitionFields) error
	StaleCandidates(ctx context.Context, before time.Time) ([]domain.Job, error)
	PurgeCreatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type ArtifactCleaner interface {
	Delete(ctx context.Context, ref string) error
	CleanupOlderThan(ctx context.Context, maxAge time.Duration) error
}

type SweepConfig struct {
	Interval  time.Duration
	Budget    time.Duration
	Grace     time.Duration
	RecordTTL time.Duration
	Retention time.Duration
}

type SweepReport struct {
	Stale  int
	Purged int
}

type Sweeper struct {
	cfg       SweepConfig
	jobs      SweepStore
	artifacts ArtifactCleaner
}

func NewSweeper(cfg SweepConfig, jobs SweepStore, artifacts ArtifactCleaner) *Sweeper {
	return &Sweeper{cfg: cfg, jobs: jobs, artifacts: artifacts}
}

// Sweep fails orphaned jobs, purges old records and old artifacts.
// The three passes are independent and run concurrently.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	var stale, purged atomic.Int64

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := s.failStale(ctx, now)
		stale.Store(int64(n))
		return err
	})

	if s.cfg.RecordTTL > 0 {
		g.Go(func() error {
			n, err := s.jobs.PurgeCreatedBefore(ctx, now.Add(-s.cfg.RecordTTL))
			if err != nil {
				return fmt.Errorf("purge records: %w", err)
			}
			purged.Store(int64(n))
			return nil
		})
	}

	if s.cfg.Retention > 0 {
		g.Go(func() error {
			if err := s.artifacts.CleanupOlderThan(ctx, s.cfg.Retention); err != nil {
				return fmt.Errorf("cleanup artifacts: %w", err)
			}
			return nil
		})
	}

	err := g.Wait()
	return SweepReport{Stale: int(stale.Load()), Purged: int(purged.Load())}, err
}

func (s *Sweeper) failStale(ctx context.Context, now time.Time) (int, error) {
	candidates, err := s.jobs.StaleCandidates(ctx, now.Add(-(s.cfg.Budget + s.cfg.Grace)))
	if err != nil {
		return 0, fmt.Errorf("stale candidates: %w", err)
	}

	failed := 0
	for _, j := range candidates {
		if !domain.IsStale(j, now, s.cfg.Budget, s.cfg.Grace) {
			continue
		}

		jerr := domain.NewJobError(domain.KindTimeoutExceeded, j.State,
			fmt.Errorf("no progress since %s", j.UpdatedAt.UTC().Format(time.RFC3339)))

		err := s.jobs.Transition(ctx, j.ID, j.State, domain.StateFailed, domain.TransitionFields{Error: jerr})
		if err != nil {
			// the worker got there first
			if errors.Is(err, domain.ErrTransitionConflict) || errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return failed, fmt.Errorf("fail stale job %s: %w", j.ID, err)
		}
		failed++

		slog.Warn("stale job failed",
			slog.String("job_id", j.ID),
			slog.String("stage", string(j.State)),
			slog.Time("updated_at", j.UpdatedAt),
		)

		if j.State == domain.StateUploading {
			if err := s.artifacts.Delete(ctx, artifactstore.Key(j.ID)); err != nil {
				slog.Warn("delete partial artifact", slog.String("job_id", j.ID), slog.String("error", err.Error()))
			}
		}
	}

	return failed, nil
}

// StartCleanup runs Sweep every interval until ctx is done.
func (s *Sweeper) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				rep, err := s.Sweep(ctx, now)
				if err != nil && !errors.Is(err, context.Canceled) {
					slog.Warn("cleanup", slog.String("error", err.Error()))
				}
				if rep.Stale > 0 || rep.Purged > 0 {
					slog.Info("cleanup",
						slog.Int("stale_jobs_failed", rep.Stale),
						slog.Int("records_purged", rep.Purged),
					)
				}
			}
		}
	}()
}
