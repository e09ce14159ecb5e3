package domain

import (
	"time"
)

type State string

const (
	StatePending    State = "PENDING"
	StateFetching   State = "FETCHING"
	StateExtracting State = "EXTRACTING"
	StateUploading  State = "UPLOADING"
	StateComplete   State = "COMPLETE"
	StateFailed     State = "FAILED"
	StateCancelled  State = "CANCELLED"
)

// stageOrder is the forward path of a successful job. FAILED and CANCELLED
// branch off it.
var stageOrder = map[State]int{
	StatePending:    0,
	StateFetching:   1,
	StateExtracting: 2,
	StateUploading:  3,
	StateComplete:   4,
}

func (s State) Valid() bool {
	switch s {
	case StatePending, StateFetching, StateExtracting, StateUploading,
		StateComplete, StateFailed, StateCancelled:
		return true
	}
	return false
}

func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateCancelled
}

// Label is a short human readable progress hint for pollers.
func (s State) Label() string {
	switch s {
	case StatePending:
		return "queued"
	case StateFetching:
		return "downloading source"
	case StateExtracting:
		return "extracting audio"
	case StateUploading:
		return "storing result"
	case StateComplete:
		return "ready"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return ""
}

// CanTransition reports whether from -> to is a legal single step.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}

	switch to {
	case StateFailed:
		return true
	case StateCancelled:
		// no cancellation once the artifact write has begun
		return from == StatePending || from == StateFetching || from == StateExtracting
	}

	fi, ok := stageOrder[from]
	if !ok {
		return false
	}
	ti, ok := stageOrder[to]
	if !ok {
		return false
	}
	return ti == fi+1
}

type Range struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

func (r Range) Duration() time.Duration {
	return r.End - r.Start
}

type Job struct {
	ID            string `json:"id"`
	SourceLocator string `json:"source_locator"`
	Range         Range  `json:"range"`
	Bitrate       string `json:"bitrate"`

	State State `json:"state"`

	ArtifactRef  string        `json:"artifact_ref,omitempty"`
	ArtifactSize int64         `json:"artifact_size,omitempty"`
	ClipDuration time.Duration `json:"clip_duration,omitempty"`

	// set when the fetch needed injected credentials
	Authenticated bool `json:"authenticated,omitempty"`

	Error *JobError `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// ArtifactExpired reports whether a completed job's artifact is past its
// retention horizon. The record may still say COMPLETE.
func (j Job) ArtifactExpired(now time.Time) bool {
	if j.State != StateComplete || j.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(j.ExpiresAt)
}

// TransitionFields carries the optional columns written together with a
// state change.
type TransitionFields struct {
	ArtifactRef   string
	ArtifactSize  int64
	ClipDuration  time.Duration
	ExpiresAt     time.Time
	Authenticated bool
	Error         *JobError
}

// IsStale reports whether a non-terminal job has not been touched for longer
// than the worker budget plus a grace margin, meaning its worker was killed
// before it could write a terminal state.
func IsStale(j Job, now time.Time, budget, grace time.Duration) bool {
	if j.State.Terminal() {
		return false
	}
	return now.Sub(j.UpdatedAt) > budget+grace
}
