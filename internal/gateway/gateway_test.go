package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/simulation-jobs/internal/domain"
)

const testJobID = "6f1c1b8e-2c1e-4c55-9d55-0c4f7a3a2b10"

func TestMapStatus(t *testing.T) {
	tests := []struct {
		code string
		want Status
	}{
		{"SUBMITTED", StatusQueued},
		{"PENDING", StatusQueued},
		{"RUNNABLE", StatusQueued},
		{"STARTING", StatusRunning},
		{"RUNNING", StatusRunning},
		{"SUCCEEDED", StatusCompleted},
		{"FAILED", StatusFailed},
		{"", StatusUnknown},
		{"succeeded", StatusUnknown},
		{"CANCELLED", StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, MapStatus(tt.code))
		})
	}
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "queued", StatusQueued.String())
	assert.Equal(t, "completed", StatusCompleted.String())
	assert.Equal(t, "unknown", Status(42).String())
}

type fakeBatch struct {
	submitIn    *batch.SubmitJobInput
	submitOut   *batch.SubmitJobOutput
	submitErr   error
	describeIn  *batch.DescribeJobsInput
	describeOut *batch.DescribeJobsOutput
	describeErr error
}

func (f *fakeBatch) SubmitJob(_ context.Context, in *batch.SubmitJobInput, _ ...func(*batch.Options)) (*batch.SubmitJobOutput, error) {
	f.submitIn = in
	return f.submitOut, f.submitErr
}

func (f *fakeBatch) DescribeJobs(_ context.Context, in *batch.DescribeJobsInput, _ ...func(*batch.Options)) (*batch.DescribeJobsOutput, error) {
	f.describeIn = in
	return f.describeOut, f.describeErr
}

func newTestGateway(client BatchAPI) *BatchGateway {
	return NewBatchGateway(client, BatchConfig{
		JobQueue:      "upside-job-queue",
		JobDefinition: "upside-simulation-job",
		InputBucket:   "pdb-files",
		OutputBucket:  "run-results",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBatchGateway_Submit(t *testing.T) {
	seed := int64(42)

	tests := []struct {
		name     string
		params   domain.Params
		wantTail []string
	}{
		{
			name:   "defaults",
			params: domain.Params{Duration: 1000, Temperature: 0.8, FrameInterval: 100},
		},
		{
			name:     "seed",
			params:   domain.Params{Duration: 500, Temperature: 0.85, FrameInterval: 50, Seed: &seed},
			wantTail: []string{"--seed", "42"},
		},
		{
			name: "advanced",
			params: domain.Params{
				Duration: 1000, Temperature: 0.8, FrameInterval: 100,
				Advanced: map[string]any{
					"force_field": "ff_2.1",
					"hb_scale":    1.5,
					"env_scale":   0.0,
					"rot_scale":   float64(2),
					"ignored":     "x",
				},
			},
			wantTail: []string{"--force-field", "ff_2.1", "--hb-scale", "1.5", "--rot-scale", "2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeBatch{submitOut: &batch.SubmitJobOutput{JobId: aws.String("batch-123")}}
			gw := newTestGateway(client)

			handle, err := gw.Submit(context.Background(), testJobID, tt.params)
			require.NoError(t, err)
			assert.Equal(t, "batch-123", handle)

			in := client.submitIn
			require.NotNil(t, in)
			assert.Equal(t, "upside-6f1c1b8e", aws.ToString(in.JobName))
			assert.Equal(t, "upside-job-queue", aws.ToString(in.JobQueue))
			assert.Equal(t, "upside-simulation-job", aws.ToString(in.JobDefinition))

			head := []string{
				"python", "/upside/run_simulation.py",
				"--job-id", testJobID,
				"--input-bucket", "pdb-files",
				"--output-bucket", "run-results",
				"--duration", itoa(tt.params.Duration),
				"--temperature", formatFloat(tt.params.Temperature),
				"--frame-interval", itoa(tt.params.FrameInterval),
			}
			assert.Equal(t, append(head, tt.wantTail...), in.ContainerOverrides.Command)

			require.Len(t, in.ContainerOverrides.Environment, 1)
			assert.Equal(t, "OMP_NUM_THREADS", aws.ToString(in.ContainerOverrides.Environment[0].Name))
			assert.Equal(t, "2", aws.ToString(in.ContainerOverrides.Environment[0].Value))
		})
	}
}

func TestBatchGateway_SubmitErrors(t *testing.T) {
	params := domain.Params{Duration: 1000, Temperature: 0.8, FrameInterval: 100}

	t.Run("rejected", func(t *testing.T) {
		gw := newTestGateway(&fakeBatch{submitErr: errors.New("ClientException: queue disabled")})
		_, err := gw.Submit(context.Background(), testJobID, params)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSubmission)
		assert.NotErrorIs(t, err, ErrLookup)

		var subErr *SubmissionError
		require.ErrorAs(t, err, &subErr)
		assert.Equal(t, testJobID, subErr.JobID)
		assert.Contains(t, err.Error(), "queue disabled")
	})

	t.Run("empty handle", func(t *testing.T) {
		gw := newTestGateway(&fakeBatch{submitOut: &batch.SubmitJobOutput{}})
		_, err := gw.Submit(context.Background(), testJobID, params)
		assert.ErrorIs(t, err, ErrSubmission)
	})
}

func TestBatchGateway_Describe(t *testing.T) {
	tests := []struct {
		name       string
		detail     types.JobDetail
		wantStatus Status
		wantReason string
	}{
		{
			name:       "succeeded",
			detail:     types.JobDetail{Status: types.JobStatusSucceeded},
			wantStatus: StatusCompleted,
		},
		{
			name: "failed with reason",
			detail: types.JobDetail{
				Status:       types.JobStatusFailed,
				StatusReason: aws.String("Essential container in task exited"),
			},
			wantStatus: StatusFailed,
			wantReason: "Essential container in task exited",
		},
		{
			name:       "runnable",
			detail:     types.JobDetail{Status: types.JobStatusRunnable},
			wantStatus: StatusQueued,
		},
		{
			name:       "starting",
			detail:     types.JobDetail{Status: types.JobStatusStarting},
			wantStatus: StatusRunning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeBatch{describeOut: &batch.DescribeJobsOutput{Jobs: []types.JobDetail{tt.detail}}}
			gw := newTestGateway(client)

			desc, err := gw.Describe(context.Background(), "batch-123")
			require.NoError(t, err)
			assert.Equal(t, []string{"batch-123"}, client.describeIn.Jobs)
			assert.Equal(t, "batch-123", desc.Handle)
			assert.Equal(t, tt.wantStatus, desc.Status)
			assert.Equal(t, tt.wantReason, desc.Reason)
		})
	}
}

func TestBatchGateway_DescribeErrors(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeBatch
	}{
		{"api error", &fakeBatch{describeErr: errors.New("throttled")}},
		{"unknown handle", &fakeBatch{describeOut: &batch.DescribeJobsOutput{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestGateway(tt.client).Describe(context.Background(), "batch-404")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrLookup)

			var lookupErr *LookupError
			require.ErrorAs(t, err, &lookupErr)
			assert.Equal(t, "batch-404", lookupErr.Handle)
		})
	}
}

func TestJobName(t *testing.T) {
	assert.Equal(t, "upside-6f1c1b8e", JobName(testJobID))
	assert.Equal(t, "upside-short", JobName("short"))
}

func itoa(i int) string {
	return formatFloat(float64(i))
}
