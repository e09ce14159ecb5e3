package distributor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-humble/audioclip/internal/domain"
	artifactstore "github.com/you-humble/audioclip/internal/infra/store/artifact"
	jobstore "github.com/you-humble/audioclip/internal/infra/store/job"
)

func TestSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	jobs := jobstore.NewMemoryJobStore()
	artifacts, err := artifactstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	mk := func(id string, state domain.State, created, updated time.Time) {
		require.NoError(t, jobs.Create(ctx, domain.Job{
			ID:            id,
			SourceLocator: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			Range:         domain.Range{End: 10 * time.Second},
			State:         state,
			CreatedAt:     created,
			UpdatedAt:     updated,
		}))
	}

	mk("orphan", domain.StateExtracting, now.Add(-time.Hour), now.Add(-time.Hour))
	mk("uploading", domain.StateUploading, now.Add(-time.Hour), now.Add(-20*time.Minute))
	mk("busy", domain.StateFetching, now.Add(-time.Minute), now.Add(-time.Minute))
	mk("old-done", domain.StateCancelled, now.Add(-72*time.Hour), now.Add(-72*time.Hour))
	mk("old-running", domain.StatePending, now.Add(-72*time.Hour), now)

	_, err = artifacts.Put(ctx, artifactstore.Key("uploading"), strings.NewReader("partial"), 7, artifactstore.Meta{})
	require.NoError(t, err)

	s := NewSweeper(SweepConfig{
		Interval:  time.Minute,
		Budget:    15 * time.Minute,
		Grace:     time.Minute,
		RecordTTL: 48 * time.Hour,
		Retention: 24 * time.Hour,
	}, jobs, artifacts)

	rep, err := s.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Stale)
	assert.Equal(t, 1, rep.Purged)

	for _, id := range []string{"orphan", "uploading"} {
		j, err := jobs.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StateFailed, j.State, id)
		require.NotNil(t, j.Error, id)
		assert.Equal(t, domain.KindTimeoutExceeded, j.Error.Kind)
	}

	j, err := jobs.Get(ctx, "uploading")
	require.NoError(t, err)
	assert.Equal(t, domain.StateUploading, j.Error.Stage)
	_, _, err = artifacts.Open(ctx, artifactstore.Key("uploading"))
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound, "partial artifact of a stale upload is removed")

	j, err = jobs.Get(ctx, "busy")
	require.NoError(t, err)
	assert.Equal(t, domain.StateFetching, j.State)

	_, err = jobs.Get(ctx, "old-done")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = jobs.Get(ctx, "old-running")
	assert.NoError(t, err, "non-terminal records are never purged")

	rep, err = s.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, rep.Stale, "sweep is idempotent")
}
