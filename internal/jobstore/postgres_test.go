package jobstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/benbjohnson/clock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/simulation-jobs/internal/domain"
)

const testJobID = "6f1c1b8e-2c1e-4c55-9d55-0c4f7a3a2b10"

var rowColumns = []string{
	"job_id", "status", "input_ref", "original_filename",
	"duration", "temperature", "frame_interval", "seed", "advanced_params",
	"external_handle", "metrics", "error_message",
	"created_at", "started_at", "completed_at", "updated_at",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, *clock.Mock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPostgresStore(sqlx.NewDb(db, "postgres"), logger, clk), mock, clk
}

func jobRowValues(status domain.JobStatus, created time.Time, extra map[string]driver.Value) []driver.Value {
	values := map[string]driver.Value{
		"job_id":            testJobID,
		"status":            string(status),
		"input_ref":         "uploads/1ubq.pdb",
		"original_filename": "1ubq.pdb",
		"duration":          int64(1000),
		"temperature":       0.8,
		"frame_interval":    int64(100),
		"seed":              nil,
		"advanced_params":   nil,
		"external_handle":   nil,
		"metrics":           nil,
		"error_message":     nil,
		"created_at":        created,
		"started_at":        nil,
		"completed_at":      nil,
		"updated_at":        created,
	}
	for k, v := range extra {
		values[k] = v
	}

	out := make([]driver.Value, len(rowColumns))
	for i, col := range rowColumns {
		out[i] = values[col]
	}
	return out
}

func TestPostgresStore_Create(t *testing.T) {
	store, mock, clk := newMockStore(t)
	seed := int64(7)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO jobs")).
		WithArgs(
			sqlmock.AnyArg(),
			"PENDING",
			"uploads/1ubq.pdb",
			"1ubq.pdb",
			1000,
			0.8,
			100,
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
			clk.Now().UTC(),
			clk.Now().UTC(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	job, err := store.Create(context.Background(), domain.NewJob{
		InputRef:         "uploads/1ubq.pdb",
		OriginalFilename: "1ubq.pdb",
		Params: domain.Params{
			Duration:      1000,
			Temperature:   0.8,
			FrameInterval: 100,
			Seed:          &seed,
			Advanced:      map[string]any{"force_field": "ff_2.1"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.NotEmpty(t, job.JobID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateStoreError(t *testing.T) {
	store, mock, _ := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO jobs")).WillReturnError(errors.New("connection refused"))

	_, err := store.Create(context.Background(), domain.NewJob{Params: newParams()})
	require.ErrorIs(t, err, domain.ErrStore)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock, clk := newMockStore(t)
	created := clk.Now().Add(-time.Hour)
	started := created.Add(time.Minute)

	rows := sqlmock.NewRows(rowColumns).AddRow(jobRowValues(domain.JobStatusRunning, created, map[string]driver.Value{
		"seed":            int64(42),
		"advanced_params": []byte(`{"force_field":"ff_2.1","hb_scale":1.5}`),
		"external_handle": "batch-123",
		"started_at":      started,
	})...)
	mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE job_id = $1")).
		WithArgs(testJobID).
		WillReturnRows(rows)

	job, err := store.Get(context.Background(), testJobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, job.Status)
	assert.Equal(t, "batch-123", job.ExternalHandle)
	require.NotNil(t, job.Params.Seed)
	assert.Equal(t, int64(42), *job.Params.Seed)
	assert.Equal(t, "ff_2.1", job.Params.Advanced["force_field"])
	require.NotNil(t, job.StartedAt)
	assert.True(t, started.Equal(*job.StartedAt))
	assert.Nil(t, job.Metrics)
	assert.Nil(t, job.CompletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	store, mock, _ := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE job_id = $1")).
		WithArgs(testJobID).
		WillReturnRows(sqlmock.NewRows(rowColumns))

	_, err := store.Get(context.Background(), testJobID)
	require.ErrorIs(t, err, domain.ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TransitionCompleted(t *testing.T) {
	store, mock, clk := newMockStore(t)
	created := clk.Now().Add(-time.Hour)
	started := created.Add(time.Minute)

	rows := sqlmock.NewRows(rowColumns).AddRow(jobRowValues(domain.JobStatusCompleted, created, map[string]driver.Value{
		"external_handle": "batch-123",
		"metrics":         []byte(`{"atom_count":300,"residue_count":100,"frame_count":null}`),
		"started_at":      started,
		"completed_at":    clk.Now(),
	})...)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE jobs")).
		WithArgs(
			"COMPLETED",
			sqlmock.AnyArg(), // external_handle
			sqlmock.AnyArg(), // started_at
			sqlmock.AnyArg(), // metrics
			sqlmock.AnyArg(), // error_message
			sqlmock.AnyArg(), // completed_at
			clk.Now().UTC(),
			testJobID,
			sqlmock.AnyArg(), // allowed predecessors
		).
		WillReturnRows(rows)

	atoms, residues := 300, 100
	job, err := store.Transition(context.Background(), testJobID, domain.JobStatusCompleted, domain.TransitionFields{
		Metrics: &domain.Metrics{AtomCount: &atoms, ResidueCount: &residues},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Metrics)
	assert.Equal(t, 300, *job.Metrics.AtomCount)
	assert.Equal(t, 100, *job.Metrics.ResidueCount)
	assert.Nil(t, job.Metrics.FrameCount)
	require.NotNil(t, job.CompletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TransitionIllegal(t *testing.T) {
	store, mock, clk := newMockStore(t)
	created := clk.Now().Add(-time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE jobs")).WillReturnRows(sqlmock.NewRows(rowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE job_id = $1")).
		WithArgs(testJobID).
		WillReturnRows(sqlmock.NewRows(rowColumns).AddRow(jobRowValues(domain.JobStatusFailed, created, map[string]driver.Value{
			"error_message": "OutOfMemory",
			"completed_at":  created.Add(time.Minute),
		})...))

	_, err := store.Transition(context.Background(), testJobID, domain.JobStatusCompleted, domain.TransitionFields{})
	require.ErrorIs(t, err, domain.ErrIllegalTransition)

	var terr *domain.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, domain.JobStatusFailed, terr.From)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TransitionNotFound(t *testing.T) {
	store, mock, _ := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE jobs")).WillReturnRows(sqlmock.NewRows(rowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE job_id = $1")).
		WithArgs(testJobID).
		WillReturnRows(sqlmock.NewRows(rowColumns))

	_, err := store.Transition(context.Background(), testJobID, domain.JobStatusQueued, domain.TransitionFields{})
	require.ErrorIs(t, err, domain.ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TransitionRunningRequiresHandle(t *testing.T) {
	store, mock, _ := newMockStore(t)

	_, err := store.Transition(context.Background(), testJobID, domain.JobStatusRunning, domain.TransitionFields{})
	require.ErrorIs(t, err, domain.ErrMissingHandle)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TransitionStoreError(t *testing.T) {
	store, mock, _ := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE jobs")).WillReturnError(errors.New("deadlock detected"))

	_, err := store.Transition(context.Background(), testJobID, domain.JobStatusFailed, domain.TransitionFields{ErrorMessage: "x"})
	require.ErrorIs(t, err, domain.ErrStore)
	assert.NotErrorIs(t, err, domain.ErrIllegalTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListByStatus(t *testing.T) {
	store, mock, clk := newMockStore(t)
	created := clk.Now().Add(-time.Hour)

	rows := sqlmock.NewRows(rowColumns).
		AddRow(jobRowValues(domain.JobStatusRunning, created, map[string]driver.Value{"external_handle": "batch-1"})...).
		AddRow(jobRowValues(domain.JobStatusRunning, created, map[string]driver.Value{
			"job_id":          "0b1e6a57-7c43-4d1c-a8a1-3b6f1f5c9e22",
			"external_handle": "batch-2",
		})...)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = $1 ORDER BY created_at ASC")).
		WithArgs("RUNNING").
		WillReturnRows(rows)

	jobs, err := store.ListByStatus(context.Background(), domain.JobStatusRunning)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "batch-1", jobs[0].ExternalHandle)
	assert.Equal(t, "batch-2", jobs[1].ExternalHandle)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListWithCursor(t *testing.T) {
	store, mock, clk := newMockStore(t)
	cursorTime := clk.Now().Add(-time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("AND status = $1 AND (created_at, job_id) < ($2, $3) ORDER BY created_at DESC, job_id DESC LIMIT $4")).
		WithArgs("COMPLETED", cursorTime, testJobID, 21).
		WillReturnRows(sqlmock.NewRows(rowColumns))

	jobs, err := store.List(context.Background(), ListFilter{
		Status:   domain.JobStatusCompleted,
		PageSize: 20,
		Cursor:   &JobCursor{CreatedAt: cursorTime, JobID: testJobID},
	})
	require.NoError(t, err)
	assert.Empty(t, jobs)
	require.NoError(t, mock.ExpectationsWereMet())
}
