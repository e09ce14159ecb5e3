package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	mio "github.com/you-humble/audioclip/core/libs/minio"
	rediscli "github.com/you-humble/audioclip/core/libs/redis"
	"github.com/you-humble/audioclip/internal/distributor"
	"github.com/you-humble/audioclip/internal/domain"
	"github.com/you-humble/audioclip/internal/infra/config"
	artifactstore "github.com/you-humble/audioclip/internal/infra/store/artifact"
	jobstore "github.com/you-humble/audioclip/internal/infra/store/job"
)

var (
	sweepConfig string
	sweepDryRun bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one reconciliation pass against the job store",
	Long: `Mark stale jobs FAILED with TimeoutExceeded, purge old job records and expired artifacts.

With --dry-run only the jobs that would be failed are listed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.MustLoadDistributor(sweepConfig)

		rdb, err := rediscli.NewClient(ctx, rediscli.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()

		jobs := jobstore.NewRedisJobStore(rdb)
		sc := sweepSettings(cfg)

		if sweepDryRun {
			return listStale(ctx, jobs, sc, time.Now(), cmd.OutOrStdout())
		}

		var artifacts distributor.ArtifactCleaner
		if cfg.Artifact.Backend == config.BackendLocal {
			artifacts, err = artifactstore.NewLocalStore(cfg.Artifact.LocalDir)
		} else {
			artifacts, err = artifactstore.NewMinIOStore(ctx, mio.Config{
				Endpoint:        cfg.MinIO.Endpoint,
				AccessKeyID:     cfg.MinIO.AccessKeyID,
				SecretAccessKey: cfg.MinIO.SecretAccessKey,
				UseSSL:          cfg.MinIO.UseSSL,
				Bucket:          cfg.MinIO.Bucket,
				BasePath:        cfg.MinIO.BasePath,
			})
		}
		if err != nil {
			return err
		}

		rep, err := distributor.NewSweeper(sc, jobs, artifacts).Sweep(ctx, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stale jobs failed: %d\nrecords purged: %d\n", rep.Stale, rep.Purged)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepConfig, "config", "./configs/distributor.yaml", "distributor config file")
	sweepCmd.Flags().BoolVar(&sweepDryRun, "dry-run", false, "only list stale jobs")
}

func sweepSettings(cfg *config.Distributor) distributor.SweepConfig {
	return distributor.SweepConfig{
		Interval:  cfg.CleanupInterval,
		Budget:    cfg.JobBudget,
		Grace:     cfg.StaleGrace,
		RecordTTL: cfg.RecordTTL,
		Retention: cfg.Artifact.Retention,
	}
}

type staleLister interface {
	StaleCandidates(ctx context.Context, before time.Time) ([]domain.Job, error)
}

func listStale(ctx context.Context, jobs staleLister, sc distributor.SweepConfig, now time.Time, out io.Writer) error {
	candidates, err := jobs.StaleCandidates(ctx, now.Add(-(sc.Budget + sc.Grace)))
	if err != nil {
		return err
	}

	n := 0
	for _, j := range candidates {
		if !domain.IsStale(j, now, sc.Budget, sc.Grace) {
			continue
		}
		n++
		fmt.Fprintf(out, "%s\t%s\tidle %s\n", j.ID, j.State, now.Sub(j.UpdatedAt).Truncate(time.Second))
	}
	fmt.Fprintf(out, "%d stale jobs\n", n)
	return nil
}
