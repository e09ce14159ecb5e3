package jobstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/you-humble/audioclip/internal/domain"
)

type memoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]domain.Job
	now  func() time.Time
}

func NewMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{
		jobs: make(map[string]domain.Job),
		now:  time.Now,
	}
}

func (s *memoryJobStore) Create(_ context.Context, j domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[j.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.jobs[j.ID] = j
	return nil
}

func (s *memoryJobStore) Get(_ context.Context, id string) (domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return j, nil
}

func (s *memoryJobStore) Transition(
	_ context.Context,
	id string,
	from, to domain.State,
	fields domain.TransitionFields,
) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, from, to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if j.State != from {
		return fmt.Errorf("%w: expected %s", domain.ErrTransitionConflict, from)
	}

	j.State = to
	j.UpdatedAt = s.now()
	if fields.ArtifactRef != "" {
		j.ArtifactRef = fields.ArtifactRef
	}
	if fields.ArtifactSize > 0 {
		j.ArtifactSize = fields.ArtifactSize
	}
	if fields.ClipDuration > 0 {
		j.ClipDuration = fields.ClipDuration
	}
	if !fields.ExpiresAt.IsZero() {
		j.ExpiresAt = fields.ExpiresAt
	}
	if fields.Authenticated {
		j.Authenticated = true
	}
	if fields.Error != nil {
		e := *fields.Error
		j.Error = &e
	}

	s.jobs[id] = j
	return nil
}

func (s *memoryJobStore) StaleCandidates(_ context.Context, before time.Time) ([]domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Job
	for _, j := range s.jobs {
		if !j.State.Terminal() && !j.UpdatedAt.After(before) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *memoryJobStore) PurgeCreatedBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, j := range s.jobs {
		if j.State.Terminal() && j.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}
