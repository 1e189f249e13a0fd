package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// QueueMessage is the flat record carried by the work queue.
// It holds only what is needed to submit the job, never results.
type QueueMessage struct {
	JobID            string         `json:"job_id"`
	OriginalFilename string         `json:"original_filename"`
	Duration         int            `json:"duration"`
	Temperature      float64        `json:"temperature"`
	FrameInterval    int            `json:"frame_interval"`
	Seed             *int64         `json:"seed"`
	Advanced         map[string]any `json:"advanced_params,omitempty"`
}

// Params returns the simulation parameters carried by the message
func (m QueueMessage) Params() Params {
	return Params{
		Duration:      m.Duration,
		Temperature:   m.Temperature,
		FrameInterval: m.FrameInterval,
		Seed:          m.Seed,
		Advanced:      m.Advanced,
	}
}

// Encode serializes the message as JSON
func (m QueueMessage) Encode() ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal queue message: %w", err)
	}
	return body, nil
}

// DecodeQueueMessage parses a queue message body. It fails with
// ErrInvalidMessage when the body is not JSON or the job id is not a UUID.
func DecodeQueueMessage(body []byte) (QueueMessage, error) {
	var msg QueueMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return QueueMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	if _, err := uuid.Parse(msg.JobID); err != nil {
		return QueueMessage{}, fmt.Errorf("%w: job_id %q is not a UUID", ErrInvalidMessage, msg.JobID)
	}

	return msg, nil
}
