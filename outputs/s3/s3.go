// Package s3 implements a durable output.Sink backed by AWS S3, grounded
// on the teacher's lode/client_s3.go AWS config/client wiring. Unlike the
// teacher, which delegated object layout to its private lode/s3 store,
// this sink talks to the S3 SDK directly: each flushed chunk becomes one
// object under Prefix/Key/ChunkID.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/justapithecus/conduit/chunk"
)

// Config configures the S3 sink.
type Config struct {
	// Bucket is the destination bucket. Required.
	Bucket string
	// Prefix is prepended to every object key.
	Prefix string
	// Region overrides the SDK's default credential-chain region.
	Region string
	// Endpoint overrides the default AWS endpoint, for S3-compatible
	// providers (R2, MinIO).
	Endpoint string
	// UsePathStyle forces path-style addressing, required by most
	// S3-compatible providers.
	UsePathStyle bool
	// PutTimeout bounds each PutObject call. Default 30s.
	PutTimeout time.Duration
}

func (c *Config) validate() error {
	if c.Bucket == "" {
		return errors.New("s3 output: Config.Bucket is required")
	}
	return nil
}

// Sink uploads each flushed chunk as one S3 object.
type Sink struct {
	cfg    Config
	client *s3.Client
}

// New creates an S3 sink, loading AWS credentials from the SDK's default
// chain (env vars, shared config, IAM role).
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.PutTimeout <= 0 {
		cfg.PutTimeout = 30 * time.Second
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 output: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = &endpoint })
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	return &Sink{
		cfg:    cfg,
		client: s3.NewFromConfig(awsCfg, s3Opts...),
	}, nil
}

// Write uploads c's payload as object "<Prefix>/<c.Key()>/<c.ID()>".
func (s *Sink) Write(c chunk.Chunk) error {
	data, err := c.Read()
	if err != nil {
		return fmt.Errorf("s3 output: read chunk: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PutTimeout)
	defer cancel()

	key := objectKey(s.cfg.Prefix, c.Key(), c.ID().String())
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3 output: put object %s: %w", key, err)
	}
	return nil
}

func objectKey(prefix, key, id string) string {
	if prefix == "" {
		return fmt.Sprintf("%s/%s", key, id)
	}
	return fmt.Sprintf("%s/%s/%s", prefix, key, id)
}

// Close is a no-op; the S3 SDK client holds no resources worth releasing.
func (s *Sink) Close() error { return nil }
