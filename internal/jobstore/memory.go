package jobstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/cuongbtq/simulation-jobs/internal/domain"
)

// MemoryStore is an in-process Store used for local runs and tests
type MemoryStore struct {
	mu    sync.Mutex
	jobs  map[string]*domain.Job
	clock clock.Clock
}

// NewMemoryStore creates an empty MemoryStore. A nil clock uses the wall clock.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryStore{
		jobs:  make(map[string]*domain.Job),
		clock: clk,
	}
}

// Create implements Store
func (s *MemoryStore) Create(_ context.Context, in domain.NewJob) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UTC()
	job := &domain.Job{
		JobID:            uuid.New().String(),
		Status:           domain.JobStatusPending,
		InputRef:         in.InputRef,
		OriginalFilename: in.OriginalFilename,
		Params:           in.Params,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	// the caller keeps its Params; detach the seed pointer and advanced map
	job = job.Clone()
	s.jobs[job.JobID] = job

	return job.Clone(), nil
}

// Get implements Store
func (s *MemoryStore) Get(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job.Clone(), nil
}

// Transition implements Store
func (s *MemoryStore) Transition(_ context.Context, jobID string, target domain.JobStatus, fields domain.TransitionFields) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}

	// Apply to a copy so a rejected transition cannot leave partial state
	next := job.Clone()
	if err := next.Apply(target, fields, s.clock.Now().UTC()); err != nil {
		return nil, err
	}
	s.jobs[jobID] = next

	return next.Clone(), nil
}

// ListByStatus implements Store
func (s *MemoryStore) ListByStatus(_ context.Context, status domain.JobStatus) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Job
	for _, job := range s.jobs {
		if job.Status == status {
			out = append(out, job.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return less(out[i].CreatedAt, out[i].JobID, out[j].CreatedAt, out[j].JobID)
	})
	return out, nil
}

// List implements Store
func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Job
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.Cursor != nil && !less(job.CreatedAt, job.JobID, filter.Cursor.CreatedAt, filter.Cursor.JobID) {
			continue
		}
		out = append(out, job.Clone())
	}

	// Newest first
	sort.Slice(out, func(i, j int) bool {
		return less(out[j].CreatedAt, out[j].JobID, out[i].CreatedAt, out[i].JobID)
	})

	if filter.PageSize > 0 && len(out) > filter.PageSize+1 {
		out = out[:filter.PageSize+1]
	}
	return out, nil
}

// less orders jobs by (created_at, job_id), matching the SQL row comparison
func less(at time.Time, id string, bt time.Time, bid string) bool {
	if at.Equal(bt) {
		return id < bid
	}
	return at.Before(bt)
}
