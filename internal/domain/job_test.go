package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StatePending, StateFetching, true},
		{StateFetching, StateExtracting, true},
		{StateExtracting, StateUploading, true},
		{StateUploading, StateComplete, true},

		{StatePending, StateExtracting, false},
		{StatePending, StateComplete, false},
		{StateExtracting, StateFetching, false},
		{StateUploading, StateUploading, false},

		{StatePending, StateFailed, true},
		{StateUploading, StateFailed, true},
		{StateFailed, StateComplete, false},
		{StateComplete, StateFailed, false},

		{StatePending, StateCancelled, true},
		{StateExtracting, StateCancelled, true},
		{StateUploading, StateCancelled, false},
		{StateCancelled, StateFetching, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestIsStale(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	budget := 300 * time.Second
	grace := 60 * time.Second

	fresh := Job{State: StateFetching, UpdatedAt: now.Add(-5 * time.Minute)}
	assert.False(t, IsStale(fresh, now, budget, grace))

	old := Job{State: StateExtracting, UpdatedAt: now.Add(-7 * time.Minute)}
	assert.True(t, IsStale(old, now, budget, grace))

	done := Job{State: StateComplete, UpdatedAt: now.Add(-time.Hour)}
	assert.False(t, IsStale(done, now, budget, grace))
}

func TestArtifactExpired(t *testing.T) {
	now := time.Now()
	j := Job{State: StateComplete, ExpiresAt: now.Add(time.Minute)}
	assert.False(t, j.ArtifactExpired(now))
	assert.True(t, j.ArtifactExpired(now.Add(time.Minute)))

	failed := Job{State: StateFailed, ExpiresAt: now.Add(-time.Minute)}
	assert.False(t, failed.ArtifactExpired(now))
}

func TestJobError(t *testing.T) {
	cause := errors.New("ffmpeg exited 1")
	je := NewJobError(KindExtraction, StateExtracting, cause)

	assert.Equal(t, "ExtractionError at EXTRACTING: ffmpeg exited 1", je.Error())
	assert.ErrorIs(t, je, cause)

	var target *JobError
	require.ErrorAs(t, error(je), &target)
	assert.Equal(t, KindExtraction, target.Kind)
}

func TestJobErrorTruncatesOnRuneBoundary(t *testing.T) {
	msg := strings.Repeat("a", 1023) + "é tail"
	je := NewJobError(KindFetch, StateFetching, errors.New(msg))

	assert.Len(t, je.Message, 1023)
	assert.True(t, utf8.ValidString(je.Message))

	short := NewJobError(KindFetch, StateFetching, errors.New(strings.Repeat("b", 1024)))
	assert.Len(t, short.Message, 1024)
}

func TestValidationError(t *testing.T) {
	var ve ValidationError
	assert.True(t, ve.Empty())

	ve.Add("end", "must be after start (%ds)", 20)
	assert.False(t, ve.Empty())
	assert.Equal(t, "validation failed: end: must be after start (20s)", ve.Error())
}
