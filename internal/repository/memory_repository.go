// internal/repository/memory_repository.go
package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ql-service/internal/model"
)

// memoryJobRepository keeps job history in process memory. It is used when
// no database is configured and forgets everything on restart.
type memoryJobRepository struct {
	jobs map[uuid.UUID]*model.PrintJob
	mu   sync.RWMutex
}

// NewMemoryJobRepository creates an empty in-memory job repository
func NewMemoryJobRepository() JobRepository {
	return &memoryJobRepository{jobs: make(map[uuid.UUID]*model.PrintJob)}
}

func (r *memoryJobRepository) Create(ctx context.Context, job *model.PrintJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; exists {
		return fmt.Errorf("print job %s already exists", job.ID)
	}
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *memoryJobRepository) Update(ctx context.Context, job *model.PrintJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *memoryJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.PrintJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, exists := r.jobs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return cloneJob(job), nil
}

func (r *memoryJobRepository) List(ctx context.Context, filter *JobFilter) ([]*model.PrintJob, int, error) {
	filter.Normalize()

	r.mu.RLock()
	matched := make([]*model.PrintJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		if filter.matches(job) {
			matched = append(matched, cloneJob(job))
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := min((filter.Page-1)*filter.PerPage, total)
	end := min(start+filter.PerPage, total)
	return matched[start:end], total, nil
}

func (r *memoryJobRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, job := range r.jobs {
		if job.CreatedAt.Before(olderThan) {
			delete(r.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

func cloneJob(job *model.PrintJob) *model.PrintJob {
	c := *job
	c.Items = append(model.StringList(nil), job.Items...)
	c.Pages = append(model.PageList(nil), job.Pages...)
	c.DeviceErrors = append(model.StringList(nil), job.DeviceErrors...)
	return &c
}
