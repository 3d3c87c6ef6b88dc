// internal/repository/job_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ql-service/internal/database"
	"ql-service/internal/model"
	"ql-service/internal/utils"
)

const jobColumns = `id, device, items, copies, options, status, pages,
		error_message, device_errors, started_at, completed_at, duration_ms, created_at`

// jobRepository implements JobRepository on PostgreSQL
type jobRepository struct {
	db     *database.DB
	logger *utils.ServiceLogger
}

// NewJobRepository creates a new PostgreSQL job repository
func NewJobRepository(db *database.DB, logger *zap.Logger) JobRepository {
	return &jobRepository{
		db:     db,
		logger: utils.NewServiceLogger(logger, "job-repository"),
	}
}

// Create inserts a new job
func (r *jobRepository) Create(ctx context.Context, job *model.PrintJob) error {
	query := `
		INSERT INTO print_jobs (
			id, device, items, copies, options, status, pages,
			error_message, device_errors, started_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.Device, job.Items, job.Copies, job.Options, job.Status,
		job.Pages, job.ErrorMessage, job.DeviceErrors, job.StartedAt, job.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create print job", zap.Error(err), zap.String("job_id", job.ID.String()))
		return fmt.Errorf("failed to create print job: %w", err)
	}

	return nil
}

// Update stores the job outcome
func (r *jobRepository) Update(ctx context.Context, job *model.PrintJob) error {
	query := `
		UPDATE print_jobs SET
			status = $2, pages = $3, error_message = $4, device_errors = $5,
			completed_at = $6, duration_ms = $7
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		job.ID, job.Status, job.Pages, job.ErrorMessage, job.DeviceErrors,
		job.CompletedAt, job.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to update print job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}

	return nil
}

// GetByID retrieves a job by ID
func (r *jobRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.PrintJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM print_jobs WHERE id = $1`, jobColumns)

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("failed to get print job: %w", err)
	}

	return job, nil
}

// List retrieves jobs with filtering and pagination, newest first
func (r *jobRepository) List(ctx context.Context, filter *JobFilter) ([]*model.PrintJob, int, error) {
	filter.Normalize()

	// Build WHERE clause
	whereConditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.Device != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("device = $%d", argIndex))
		args = append(args, *filter.Device)
		argIndex++
	}

	if filter.Status != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	if filter.StartDate != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("created_at >= $%d", argIndex))
		args = append(args, *filter.StartDate)
		argIndex++
	}

	if filter.EndDate != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("created_at <= $%d", argIndex))
		args = append(args, *filter.EndDate)
		argIndex++
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM print_jobs %s", whereClause)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count print jobs: %w", err)
	}

	offset := (filter.Page - 1) * filter.PerPage
	query := fmt.Sprintf(`
		SELECT %s
		FROM print_jobs %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, jobColumns, whereClause, argIndex, argIndex+1)

	args = append(args, filter.PerPage, offset)

	queryStart := time.Now()
	rows, err := r.db.QueryContext(ctx, query, args...)
	r.logger.LogDatabaseQuery(query, time.Since(queryStart), err)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list print jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*model.PrintJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			r.logger.Error("Failed to scan print job row", zap.Error(err))
			continue
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate print jobs: %w", err)
	}

	return jobs, total, nil
}

// DeleteOlderThan removes job records created before olderThan
func (r *jobRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM print_jobs WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old print jobs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Info("Deleted old print jobs",
		zap.Int64("rows_deleted", rowsAffected),
		zap.Time("older_than", olderThan),
	)

	return rowsAffected, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*model.PrintJob, error) {
	job := &model.PrintJob{}
	err := row.Scan(
		&job.ID, &job.Device, &job.Items, &job.Copies, &job.Options, &job.Status,
		&job.Pages, &job.ErrorMessage, &job.DeviceErrors, &job.StartedAt,
		&job.CompletedAt, &job.DurationMs, &job.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}
