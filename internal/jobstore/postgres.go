package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cuongbtq/simulation-jobs/internal/domain"
)

const jobColumns = `
	job_id, status, input_ref, original_filename,
	duration, temperature, frame_interval, seed, advanced_params,
	external_handle, metrics, error_message,
	created_at, started_at, completed_at, updated_at`

// jobRow mirrors the jobs table
type jobRow struct {
	JobID            string         `db:"job_id"`
	Status           string         `db:"status"`
	InputRef         string         `db:"input_ref"`
	OriginalFilename string         `db:"original_filename"`
	Duration         int            `db:"duration"`
	Temperature      float64        `db:"temperature"`
	FrameInterval    int            `db:"frame_interval"`
	Seed             sql.NullInt64  `db:"seed"`
	AdvancedParams   []byte         `db:"advanced_params"`
	ExternalHandle   sql.NullString `db:"external_handle"`
	Metrics          []byte         `db:"metrics"`
	ErrorMessage     sql.NullString `db:"error_message"`
	CreatedAt        time.Time      `db:"created_at"`
	StartedAt        sql.NullTime   `db:"started_at"`
	CompletedAt      sql.NullTime   `db:"completed_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r *jobRow) toDomain() (*domain.Job, error) {
	job := &domain.Job{
		JobID:            r.JobID,
		Status:           domain.JobStatus(r.Status),
		InputRef:         r.InputRef,
		OriginalFilename: r.OriginalFilename,
		Params: domain.Params{
			Duration:      r.Duration,
			Temperature:   r.Temperature,
			FrameInterval: r.FrameInterval,
		},
		ExternalHandle: r.ExternalHandle.String,
		ErrorMessage:   r.ErrorMessage.String,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}

	if r.Seed.Valid {
		seed := r.Seed.Int64
		job.Params.Seed = &seed
	}
	if len(r.AdvancedParams) > 0 {
		if err := json.Unmarshal(r.AdvancedParams, &job.Params.Advanced); err != nil {
			return nil, fmt.Errorf("failed to unmarshal advanced_params of job %s: %w", r.JobID, err)
		}
	}
	if len(r.Metrics) > 0 {
		var m domain.Metrics
		if err := json.Unmarshal(r.Metrics, &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics of job %s: %w", r.JobID, err)
		}
		job.Metrics = &m
	}
	if r.StartedAt.Valid {
		t := r.StartedAt.Time
		job.StartedAt = &t
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		job.CompletedAt = &t
	}

	return job, nil
}

// PostgresStore handles all job persistence in PostgreSQL
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
	clock  clock.Clock
}

// NewPostgresStore creates a new PostgresStore instance
func NewPostgresStore(db *sqlx.DB, logger *slog.Logger, clk clock.Clock) *PostgresStore {
	if clk == nil {
		clk = clock.New()
	}
	return &PostgresStore{
		db:     db,
		logger: logger,
		clock:  clk,
	}
}

// Create implements Store
func (s *PostgresStore) Create(ctx context.Context, in domain.NewJob) (*domain.Job, error) {
	query := `
		INSERT INTO jobs (
			job_id, status, input_ref, original_filename,
			duration, temperature, frame_interval, seed, advanced_params,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9::jsonb,
			$10, $11
		)
	`

	advanced, err := marshalNullJSON(in.Params.Advanced, len(in.Params.Advanced) > 0)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal advanced params: %w", err)
	}

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

	_, err = s.db.ExecContext(ctx, query,
		job.JobID,
		string(job.Status),
		job.InputRef,
		job.OriginalFilename,
		job.Params.Duration,
		job.Params.Temperature,
		job.Params.FrameInterval,
		nullInt64(job.Params.Seed),
		advanced,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return nil, domain.NewStoreError("create job", err)
	}

	s.logger.Info("Job created",
		slog.String("job_id", job.JobID),
		slog.String("status", job.Status.String()),
	)

	return job, nil
}

// Get implements Store
func (s *PostgresStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	var row jobRow
	if err := s.db.GetContext(ctx, &row, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, domain.NewStoreError("get job", err)
	}

	return row.toDomain()
}

// Transition implements Store. The status guard in the WHERE clause makes
// the update a compare-and-swap, so a concurrent transition of the same job
// is rejected rather than overwritten.
func (s *PostgresStore) Transition(ctx context.Context, jobID string, target domain.JobStatus, fields domain.TransitionFields) (*domain.Job, error) {
	now := s.clock.Now().UTC()
	f := fields.ForTarget(target, now)
	if target == domain.JobStatusRunning && f.ExternalHandle == "" {
		return nil, domain.ErrMissingHandle
	}

	from := domain.Predecessors(target)
	if len(from) == 0 {
		return nil, s.rejectTransition(ctx, jobID, target)
	}
	fromStrings := make([]string, len(from))
	for i, st := range from {
		fromStrings[i] = string(st)
	}

	metrics, err := marshalNullJSON(f.Metrics, f.Metrics != nil)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metrics: %w", err)
	}

	query := `
		UPDATE jobs
		SET status = $1,
			external_handle = COALESCE($2, external_handle),
			started_at = CASE
				WHEN $3::timestamptz IS NULL THEN started_at
				ELSE GREATEST($3::timestamptz, created_at)
			END,
			metrics = COALESCE($4::jsonb, metrics),
			error_message = COALESCE($5, error_message),
			completed_at = CASE
				WHEN $6::timestamptz IS NULL THEN completed_at
				ELSE GREATEST($6::timestamptz, COALESCE(started_at, created_at))
			END,
			updated_at = $7
		WHERE job_id = $8
		  AND status = ANY($9)
		RETURNING ` + jobColumns

	var row jobRow
	err = s.db.GetContext(ctx, &row, query,
		string(target),
		nullString(f.ExternalHandle),
		nullTime(f.StartedAt),
		metrics,
		nullString(f.ErrorMessage),
		nullTime(f.CompletedAt),
		now,
		jobID,
		pq.Array(fromStrings),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.rejectTransition(ctx, jobID, target)
		}
		return nil, domain.NewStoreError("transition job", err)
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", string(target)),
	)

	return row.toDomain()
}

// rejectTransition reports why a guarded update matched no row
func (s *PostgresStore) rejectTransition(ctx context.Context, jobID string, target domain.JobStatus) error {
	current, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}

	s.logger.Warn("Rejected job status transition",
		slog.String("job_id", jobID),
		slog.String("from", current.Status.String()),
		slog.String("to", target.String()),
	)

	return &domain.TransitionError{JobID: jobID, From: current.Status, To: target}
}

// ListByStatus implements Store
func (s *PostgresStore) ListByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = $1 ORDER BY created_at ASC, job_id ASC`

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, string(status)); err != nil {
		return nil, domain.NewStoreError("list jobs by status", err)
	}

	return rowsToDomain(rows)
}

// List implements Store
func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Order by created_at DESC, job_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, job_id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, domain.NewStoreError("list jobs", err)
	}

	return rowsToDomain(rows)
}

func rowsToDomain(rows []jobRow) ([]*domain.Job, error) {
	jobs := make([]*domain.Job, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// marshalNullJSON encodes v as a JSON text parameter. lib/pq sends []byte
// as bytea, so JSON is passed as a string and cast in SQL.
func marshalNullJSON(v any, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
