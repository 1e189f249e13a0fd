package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/simulation-jobs/internal/api/dto"
	"github.com/cuongbtq/simulation-jobs/internal/domain"
	"github.com/cuongbtq/simulation-jobs/internal/jobstore"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CreateJob handles POST /api/v1/jobs
// Records the job, hands it to the work queue and marks it QUEUED
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	params := req.Params()
	if err := params.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	ctx := c.Request.Context()

	job, err := h.store.Create(ctx, domain.NewJob{
		InputRef:         req.InputRef,
		OriginalFilename: req.OriginalFilename,
		Params:           params,
	})
	if err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	logger := h.logger.With(slog.String("job_id", job.JobID))

	if err := h.queue.Enqueue(ctx, job.Message()); err != nil {
		logger.Error("Failed to enqueue job", slog.String("error", err.Error()))
		h.failUnqueued(ctx, logger, job.JobID, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":  "Job queue unavailable",
			"job_id": job.JobID,
		})
		return
	}

	queued, err := h.store.Transition(ctx, job.JobID, domain.JobStatusQueued, domain.TransitionFields{})
	switch {
	case err == nil:
		job = queued
	case errors.Is(err, domain.ErrIllegalTransition):
		// the worker drained the message first
		logger.Debug("Job advanced before it was marked queued")
		if current, getErr := h.store.Get(ctx, job.JobID); getErr == nil {
			job = current
		}
	default:
		// the message is already on the queue; the worker accepts PENDING jobs
		logger.Warn("Failed to mark job queued", slog.String("error", err.Error()))
	}

	logger.Info("Job submitted", slog.String("status", job.Status.String()))

	c.JSON(http.StatusCreated, dto.CreateJobResponse{
		JobID:     job.JobID,
		Status:    job.Status.String(),
		CreatedAt: job.CreatedAt,
	})
}

func (h *JobHandler) failUnqueued(ctx context.Context, logger *slog.Logger, jobID string, cause error) {
	_, err := h.store.Transition(ctx, jobID, domain.JobStatusFailed, domain.TransitionFields{
		ErrorMessage: "failed to enqueue job: " + cause.Error(),
	})
	if err != nil {
		logger.Error("Failed to mark unqueued job as failed", slog.String("error", err.Error()))
	}
}

// GetJob handles GET /api/v1/jobs/:job_id
// Returns parameters, results and timestamps of one job
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.store.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDetail(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with optional status filter and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	var status domain.JobStatus
	if req.Status != "" {
		st, ok := domain.ParseJobStatus(strings.ToUpper(req.Status))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid status",
			})
			return
		}
		status = st
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.store.List(c.Request.Context(), jobstore.ListFilter{
		Status:   status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	items := make([]dto.JobListItem, len(jobs))
	for i, job := range jobs {
		items[i] = dto.NewJobListItem(job)
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&jobstore.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       items,
		NextCursor: nextCursor,
	})
}
