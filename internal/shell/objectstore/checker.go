// Package objectstore verifies the fallback object storage bucket used by the
// rollup's data availability fallback.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithy "github.com/aws/smithy-go"
)

var (
	// ErrNotConfigured is returned when bucket or credentials are missing.
	ErrNotConfigured = errors.New("fallback storage not configured")

	// ErrBucketNotFound is returned when the bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrAccessDenied is returned when the credentials cannot reach the bucket.
	ErrAccessDenied = errors.New("bucket access denied")
)

// DefaultRegion is used when no region is configured.
const DefaultRegion = "us-east-1"

// Config describes the fallback bucket.
type Config struct {
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	Endpoint  string // Custom S3-compatible endpoint, "" for AWS
	Timeout   time.Duration
}

// Checker checks the fallback bucket with HeadBucket.
type Checker struct {
	client  *s3.Client
	bucket  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewChecker creates a checker. It returns ErrNotConfigured when the bucket or
// either key is empty.
func NewChecker(cfg Config, logger *slog.Logger) (*Checker, error) {
	if cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = slog.Default()
	}
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	opts := s3.Options{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	return &Checker{
		client:  s3.New(opts),
		bucket:  cfg.Bucket,
		timeout: timeout,
		logger:  logger.With("component", "objectstore", "bucket", cfg.Bucket),
	}, nil
}

// Name identifies the check in prerequisite reports.
func (c *Checker) Name() string {
	return "fallback_s3"
}

// Check reports whether the bucket exists and is reachable with the
// configured credentials.
func (c *Checker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err == nil {
		c.logger.Debug("fallback bucket reachable")
		return nil
	}

	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", ErrBucketNotFound, c.bucket)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch code := apiErr.ErrorCode(); {
		case code == "NoSuchBucket":
			return fmt.Errorf("%w: %s", ErrBucketNotFound, c.bucket)
		case code == "Forbidden" || strings.HasPrefix(code, "AccessDenied"):
			return fmt.Errorf("%w: %s", ErrAccessDenied, c.bucket)
		}
	}
	return fmt.Errorf("head bucket %s: %w", c.bucket, err)
}
