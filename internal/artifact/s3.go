package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// DefaultMaxBytes caps the size of a fetched artifact
const DefaultMaxBytes int64 = 64 << 20

// S3API is the subset of the S3 client used by S3Store
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store fetches artifacts from one bucket
type S3Store struct {
	client   S3API
	bucket   string
	maxBytes int64
	logger   *slog.Logger
}

// NewS3Store creates an S3Store. maxBytes <= 0 selects DefaultMaxBytes.
func NewS3Store(client S3API, bucket string, maxBytes int64, logger *slog.Logger) *S3Store {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &S3Store{
		client:   client,
		bucket:   bucket,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Fetch implements Fetcher. An object larger than the cap is reduced to
// whole lines from its head and its tail. The tail is read with a ranged
// GET; bytes between the two are never downloaded.
func (s *S3Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.wrapError(key, err)
	}

	body, err := io.ReadAll(io.LimitReader(out.Body, s.maxBytes+1))
	out.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", s.bucket, key, err)
	}
	if int64(len(body)) <= s.maxBytes {
		return body, nil
	}

	head := body[:s.maxBytes/2]
	head = head[:bytes.LastIndexByte(head, '\n')+1]

	tail, err := s.fetchTail(ctx, key, s.maxBytes-int64(len(head)))
	if err != nil {
		return nil, err
	}

	attrs := []any{
		slog.String("key", key),
		slog.Int64("max_bytes", s.maxBytes),
		slog.Int("head_bytes", len(head)),
		slog.Int("tail_bytes", len(tail)),
	}
	if out.ContentLength != nil {
		attrs = append(attrs, slog.Int64("size", *out.ContentLength))
	}
	s.logger.Warn("Artifact exceeds cap, keeping head and tail", attrs...)

	result := make([]byte, 0, len(head)+len(tail))
	result = append(result, head...)
	return append(result, tail...), nil
}

// fetchTail returns the whole lines within the last n bytes of the object.
// One extra byte is requested so a tail that starts on a line boundary
// keeps its first line.
func (s *S3Store) fetchTail(ctx context.Context, key string, n int64) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=-%d", n+1)),
	})
	if err != nil {
		return nil, s.wrapError(key, err)
	}
	defer out.Body.Close()

	tail, err := io.ReadAll(io.LimitReader(out.Body, n+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read tail of s3://%s/%s: %w", s.bucket, key, err)
	}

	i := bytes.IndexByte(tail, '\n')
	if i < 0 {
		return nil, nil
	}
	return tail[i+1:], nil
}

func (s *S3Store) wrapError(key string, err error) error {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return fmt.Errorf("s3://%s/%s: %w", s.bucket, key, ErrNotFound)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("s3://%s/%s: %w", s.bucket, key, ErrNotFound)
		}
	}

	return fmt.Errorf("failed to get s3://%s/%s: %w", s.bucket, key, err)
}
