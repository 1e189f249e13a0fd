package dto

import (
	"time"

	"github.com/cuongbtq/simulation-jobs/internal/domain"
)

type CreateJobRequest struct {
	InputRef         string         `json:"input_ref" binding:"required"`
	OriginalFilename string         `json:"original_filename" binding:"required"`
	Duration         *int           `json:"duration" binding:"omitempty,gte=1"`
	Temperature      *float64       `json:"temperature" binding:"omitempty,gt=0"`
	FrameInterval    *int           `json:"frame_interval" binding:"omitempty,gte=1"`
	Seed             *int64         `json:"seed"`
	AdvancedParams   map[string]any `json:"advanced_params"`
}

// Params applies the defaults to omitted parameters
func (r *CreateJobRequest) Params() domain.Params {
	p := domain.Params{
		Duration:      domain.DefaultDuration,
		Temperature:   domain.DefaultTemperature,
		FrameInterval: domain.DefaultFrameInterval,
		Seed:          r.Seed,
		Advanced:      r.AdvancedParams,
	}
	if r.Duration != nil {
		p.Duration = *r.Duration
	}
	if r.Temperature != nil {
		p.Temperature = *r.Temperature
	}
	if r.FrameInterval != nil {
		p.FrameInterval = *r.FrameInterval
	}
	return p
}

type CreateJobResponse struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type ListJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobListItem `json:"jobs"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type JobListItem struct {
	JobID            string     `json:"job_id"`
	OriginalFilename string     `json:"original_filename"`
	Status           string     `json:"status"`
	Duration         int        `json:"duration"`
	Temperature      float64    `json:"temperature"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

type JobDetail struct {
	JobID            string          `json:"job_id"`
	OriginalFilename string          `json:"original_filename"`
	Status           string          `json:"status"`
	Params           domain.Params   `json:"params"`
	Results          *domain.Metrics `json:"results,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

func NewJobListItem(job *domain.Job) JobListItem {
	return JobListItem{
		JobID:            job.JobID,
		OriginalFilename: job.OriginalFilename,
		Status:           job.Status.String(),
		Duration:         job.Params.Duration,
		Temperature:      job.Params.Temperature,
		CreatedAt:        job.CreatedAt,
		CompletedAt:      job.CompletedAt,
	}
}

func NewJobDetail(job *domain.Job) JobDetail {
	return JobDetail{
		JobID:            job.JobID,
		OriginalFilename: job.OriginalFilename,
		Status:           job.Status.String(),
		Params:           job.Params,
		Results:          job.Metrics,
		ErrorMessage:     job.ErrorMessage,
		CreatedAt:        job.CreatedAt,
		StartedAt:        job.StartedAt,
		CompletedAt:      job.CompletedAt,
	}
}
