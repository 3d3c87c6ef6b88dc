// internal/repository/interfaces.go
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"ql-service/internal/model"
)

// ErrJobNotFound is returned when no job has the requested ID
var ErrJobNotFound = errors.New("print job not found")

// JobRepository defines print job history access
type JobRepository interface {
	// CRUD operations
	Create(ctx context.Context, job *model.PrintJob) error
	Update(ctx context.Context, job *model.PrintJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.PrintJob, error)

	// Listing and filtering
	List(ctx context.Context, filter *JobFilter) ([]*model.PrintJob, int, error)

	// Cleanup
	DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
}

// JobFilter represents job listing filters
type JobFilter struct {
	Device    *string          `json:"device,omitempty"`
	Status    *model.JobStatus `json:"status,omitempty"`
	StartDate *time.Time       `json:"start_date,omitempty"`
	EndDate   *time.Time       `json:"end_date,omitempty"`
	Page      int              `json:"page"`
	PerPage   int              `json:"per_page"`
}

// Normalize clamps paging to sane values
func (f *JobFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = 20
	}
	if f.PerPage > 100 {
		f.PerPage = 100
	}
}

func (f *JobFilter) matches(job *model.PrintJob) bool {
	if f.Device != nil && job.Device != *f.Device {
		return false
	}
	if f.Status != nil && job.Status != *f.Status {
		return false
	}
	if f.StartDate != nil && job.CreatedAt.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && job.CreatedAt.After(*f.EndDate) {
		return false
	}
	return true
}
