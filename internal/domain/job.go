package domain

import (
	"fmt"
	"time"
)

// Params are the simulation parameters of a job
type Params struct {
	Duration      int            `json:"duration"`
	Temperature   float64        `json:"temperature"`
	FrameInterval int            `json:"frame_interval"`
	Seed          *int64         `json:"seed,omitempty"`
	Advanced      map[string]any `json:"advanced_params,omitempty"`
}

// Validate checks that the numeric parameters are in range
func (p Params) Validate() error {
	if p.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %d", ErrInvalidParams, p.Duration)
	}
	if p.Temperature <= 0 {
		return fmt.Errorf("%w: temperature must be positive, got %g", ErrInvalidParams, p.Temperature)
	}
	if p.FrameInterval <= 0 {
		return fmt.Errorf("%w: frame_interval must be positive, got %d", ErrInvalidParams, p.FrameInterval)
	}
	return nil
}

// Metrics is the structured summary extracted from a run log.
// Every field is independently optional.
type Metrics struct {
	ResidueCount   *int     `json:"residue_count"`
	AtomCount      *int     `json:"atom_count"`
	FrameCount     *int     `json:"frame_count"`
	FinalPotential *float64 `json:"final_potential"`
	FinalRg        *float64 `json:"final_rg"`
	FinalHBonds    *int     `json:"final_hbonds"`
}

// IsEmpty reports whether no field was extracted
func (m *Metrics) IsEmpty() bool {
	return m == nil || (m.ResidueCount == nil && m.AtomCount == nil && m.FrameCount == nil &&
		m.FinalPotential == nil && m.FinalRg == nil && m.FinalHBonds == nil)
}

// NewJob is the input for creating a job
type NewJob struct {
	InputRef         string
	OriginalFilename string
	Params           Params
}

// Job represents a tracked simulation job
type Job struct {
	JobID            string
	Status           JobStatus
	InputRef         string
	OriginalFilename string
	Params           Params
	ExternalHandle   string
	Metrics          *Metrics
	ErrorMessage     string
	CreatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
	UpdatedAt        time.Time
}

// Message projects the job onto the queue message submitted to the worker
func (j *Job) Message() QueueMessage {
	return QueueMessage{
		JobID:            j.JobID,
		OriginalFilename: j.OriginalFilename,
		Duration:         j.Params.Duration,
		Temperature:      j.Params.Temperature,
		FrameInterval:    j.Params.FrameInterval,
		Seed:             j.Params.Seed,
		Advanced:         j.Params.Advanced,
	}
}

// Clone returns a deep copy of the job
func (j *Job) Clone() *Job {
	c := *j
	if j.Params.Seed != nil {
		seed := *j.Params.Seed
		c.Params.Seed = &seed
	}
	if j.Params.Advanced != nil {
		c.Params.Advanced = make(map[string]any, len(j.Params.Advanced))
		for k, v := range j.Params.Advanced {
			c.Params.Advanced[k] = v
		}
	}
	if j.Metrics != nil {
		m := *j.Metrics
		c.Metrics = &m
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
