package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"

	"github.com/cuongbtq/simulation-jobs/internal/domain"
)

const (
	jobNamePrefix  = "upside-"
	simulationPath = "/upside/run_simulation.py"
	ompThreads     = "2"
)

var errEmptyJobID = errors.New("compute service returned no job id")

// BatchAPI is the subset of the AWS Batch client used by BatchGateway
type BatchAPI interface {
	SubmitJob(ctx context.Context, params *batch.SubmitJobInput, optFns ...func(*batch.Options)) (*batch.SubmitJobOutput, error)
	DescribeJobs(ctx context.Context, params *batch.DescribeJobsInput, optFns ...func(*batch.Options)) (*batch.DescribeJobsOutput, error)
}

// BatchConfig names the AWS Batch and S3 resources a simulation uses
type BatchConfig struct {
	JobQueue      string
	JobDefinition string
	InputBucket   string
	OutputBucket  string
}

// BatchGateway runs simulations as AWS Batch jobs
type BatchGateway struct {
	client BatchAPI
	config BatchConfig
	logger *slog.Logger
}

// NewBatchGateway creates a BatchGateway
func NewBatchGateway(client BatchAPI, config BatchConfig, logger *slog.Logger) *BatchGateway {
	return &BatchGateway{
		client: client,
		config: config,
		logger: logger,
	}
}

// Submit implements Gateway
func (g *BatchGateway) Submit(ctx context.Context, jobID string, params domain.Params) (string, error) {
	input := &batch.SubmitJobInput{
		JobName:       aws.String(JobName(jobID)),
		JobQueue:      aws.String(g.config.JobQueue),
		JobDefinition: aws.String(g.config.JobDefinition),
		ContainerOverrides: &types.ContainerOverrides{
			Command: g.command(jobID, params),
			Environment: []types.KeyValuePair{
				{Name: aws.String("OMP_NUM_THREADS"), Value: aws.String(ompThreads)},
			},
		},
	}

	out, err := g.client.SubmitJob(ctx, input)
	if err != nil {
		return "", &SubmissionError{JobID: jobID, Err: err}
	}

	handle := aws.ToString(out.JobId)
	if handle == "" {
		return "", &SubmissionError{JobID: jobID, Err: errEmptyJobID}
	}

	g.logger.Info("Submitted compute job",
		slog.String("job_id", jobID),
		slog.String("handle", handle),
		slog.String("job_queue", g.config.JobQueue),
	)
	return handle, nil
}

// Describe implements Gateway
func (g *BatchGateway) Describe(ctx context.Context, handle string) (*Description, error) {
	out, err := g.client.DescribeJobs(ctx, &batch.DescribeJobsInput{Jobs: []string{handle}})
	if err != nil {
		return nil, &LookupError{Handle: handle, Err: err}
	}
	if len(out.Jobs) == 0 {
		return nil, &LookupError{Handle: handle, Err: errors.New("job not found")}
	}

	detail := out.Jobs[0]
	code := string(detail.Status)
	return &Description{
		Handle: handle,
		Code:   code,
		Status: MapStatus(code),
		Reason: aws.ToString(detail.StatusReason),
	}, nil
}

func (g *BatchGateway) command(jobID string, params domain.Params) []string {
	cmd := []string{
		"python", simulationPath,
		"--job-id", jobID,
		"--input-bucket", g.config.InputBucket,
		"--output-bucket", g.config.OutputBucket,
		"--duration", strconv.Itoa(params.Duration),
		"--temperature", formatFloat(params.Temperature),
		"--frame-interval", strconv.Itoa(params.FrameInterval),
	}

	if params.Seed != nil {
		cmd = append(cmd, "--seed", strconv.FormatInt(*params.Seed, 10))
	}

	for _, opt := range advancedFlags {
		if v, ok := advancedArg(params.Advanced[opt.key]); ok {
			cmd = append(cmd, opt.flag, v)
		}
	}
	return cmd
}

var advancedFlags = []struct {
	key  string
	flag string
}{
	{"force_field", "--force-field"},
	{"hb_scale", "--hb-scale"},
	{"env_scale", "--env-scale"},
	{"rot_scale", "--rot-scale"},
}

// advancedArg renders an advanced parameter. Zero values are omitted.
func advancedArg(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, val != ""
	case float64:
		return formatFloat(val), val != 0
	case int:
		return strconv.Itoa(val), val != 0
	case int64:
		return strconv.FormatInt(val, 10), val != 0
	case bool:
		return strconv.FormatBool(val), val
	case nil:
		return "", false
	default:
		s := fmt.Sprint(val)
		return s, s != ""
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// JobName derives the compute job name from the job id
func JobName(jobID string) string {
	if len(jobID) > 8 {
		jobID = jobID[:8]
	}
	return jobNamePrefix + jobID
}
