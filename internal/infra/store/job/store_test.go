package jobstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-humble/audioclip/internal/domain"
)

type store interface {
	Create(ctx context.Context, j domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, error)
	Transition(ctx context.Context, id string, from, to domain.State, fields domain.TransitionFields) error
	StaleCandidates(ctx context.Context, before time.Time) ([]domain.Job, error)
	PurgeCreatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

var base = time.Unix(1_700_000_000, 0)

func stores(t *testing.T) map[string]store {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	rs := NewRedisJobStore(rdb)
	rs.now = func() time.Time { return base.Add(time.Minute) }

	ms := NewMemoryJobStore()
	ms.now = func() time.Time { return base.Add(time.Minute) }

	return map[string]store{"redis": rs, "memory": ms}
}

func newJob(id string) domain.Job {
	return domain.Job{
		ID:            id,
		SourceLocator: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Range:         domain.Range{Start: 10 * time.Second, End: 40 * time.Second},
		Bitrate:       "96k",
		State:         domain.StatePending,
		CreatedAt:     base,
		UpdatedAt:     base,
	}
}

func TestCreateAndGet(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.Create(ctx, newJob("a")))
			assert.ErrorIs(t, s.Create(ctx, newJob("a")), domain.ErrAlreadyExists)

			got, err := s.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, domain.StatePending, got.State)
			assert.Equal(t, 10*time.Second, got.Range.Start)
			assert.Equal(t, 40*time.Second, got.Range.End)
			assert.Equal(t, "96k", got.Bitrate)
			assert.True(t, got.CreatedAt.Equal(base))
			assert.Empty(t, got.ArtifactRef)
			assert.Nil(t, got.Error)

			_, err = s.Get(ctx, "missing")
			assert.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

func TestTransitionForwardPath(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Create(ctx, newJob("a")))

			require.NoError(t, s.Transition(ctx, "a", domain.StatePending, domain.StateFetching, domain.TransitionFields{}))
			require.NoError(t, s.Transition(ctx, "a", domain.StateFetching, domain.StateExtracting,
				domain.TransitionFields{Authenticated: true}))
			require.NoError(t, s.Transition(ctx, "a", domain.StateExtracting, domain.StateUploading, domain.TransitionFields{}))

			expires := base.Add(24 * time.Hour)
			require.NoError(t, s.Transition(ctx, "a", domain.StateUploading, domain.StateComplete, domain.TransitionFields{
				ArtifactRef:  "clips/a.mp3",
				ArtifactSize: 4096,
				ClipDuration: 30 * time.Second,
				ExpiresAt:    expires,
			}))

			got, err := s.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, domain.StateComplete, got.State)
			assert.Equal(t, "clips/a.mp3", got.ArtifactRef)
			assert.Equal(t, int64(4096), got.ArtifactSize)
			assert.Equal(t, 30*time.Second, got.ClipDuration)
			assert.True(t, got.Authenticated)
			assert.True(t, got.ExpiresAt.Equal(expires))
			assert.True(t, got.UpdatedAt.Equal(base.Add(time.Minute)))

			err = s.Transition(ctx, "a", domain.StateComplete, domain.StateFailed, domain.TransitionFields{})
			assert.ErrorIs(t, err, domain.ErrIllegalTransition)
		})
	}
}

func TestTransitionConflictAndFailure(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Create(ctx, newJob("a")))

			err := s.Transition(ctx, "a", domain.StateFetching, domain.StateExtracting, domain.TransitionFields{})
			assert.ErrorIs(t, err, domain.ErrTransitionConflict)

			err = s.Transition(ctx, "missing", domain.StatePending, domain.StateFetching, domain.TransitionFields{})
			assert.ErrorIs(t, err, domain.ErrNotFound)

			jerr := domain.NewJobError(domain.KindFetch, domain.StatePending, errors.New("boom"))
			require.NoError(t, s.Transition(ctx, "a", domain.StatePending, domain.StateFailed, domain.TransitionFields{Error: jerr}))

			got, err := s.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, domain.StateFailed, got.State)
			require.NotNil(t, got.Error)
			assert.Equal(t, domain.KindFetch, got.Error.Kind)
			assert.Equal(t, "boom", got.Error.Message)
			assert.Empty(t, got.ArtifactRef)
		})
	}
}

func TestTransitionSingleWriter(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Create(ctx, newJob("a")))

			var wins atomic.Int32
			var wg sync.WaitGroup
			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if s.Transition(ctx, "a", domain.StatePending, domain.StateFetching, domain.TransitionFields{}) == nil {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), wins.Load())
		})
	}
}

func TestStaleCandidatesAndPurge(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			old := newJob("old")
			old.CreatedAt = base.Add(-72 * time.Hour)
			old.UpdatedAt = old.CreatedAt
			require.NoError(t, s.Create(ctx, old))
			require.NoError(t, s.Create(ctx, newJob("fresh")))

			stale, err := s.StaleCandidates(ctx, base.Add(-time.Hour))
			require.NoError(t, err)
			require.Len(t, stale, 1)
			assert.Equal(t, "old", stale[0].ID)

			n, err := s.PurgeCreatedBefore(ctx, base.Add(-48*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 0, n, "non-terminal records are kept")

			require.NoError(t, s.Transition(ctx, "old", domain.StatePending, domain.StateFailed,
				domain.TransitionFields{Error: domain.NewJobError(domain.KindTimeoutExceeded, domain.StatePending, errors.New("stale"))}))

			stale, err = s.StaleCandidates(ctx, base.Add(time.Hour))
			require.NoError(t, err)
			require.Len(t, stale, 1)
			assert.Equal(t, "fresh", stale[0].ID)

			n, err = s.PurgeCreatedBefore(ctx, base.Add(-48*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			_, err = s.Get(ctx, "old")
			assert.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}
