// Package redis implements a Redis pub/sub output.Sink, grounded on the
// teacher's adapter/redis package: each flushed chunk's payload is
// PUBLISHed to a configured channel.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/justapithecus/conduit/chunk"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "conduit:events"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// Config configures the Redis sink.
type Config struct {
	// URL is the Redis connection URL (redis://[:password@]host:port[/db]).
	// Required.
	URL string
	// Channel is the pub/sub channel payloads are published to. Default
	// "conduit:events".
	Channel string
	// Timeout is the per-publish timeout. Default 5s.
	Timeout time.Duration
}

// Sink PUBLISHes each flushed chunk's raw payload to a Redis channel.
type Sink struct {
	cfg    Config
	client *goredis.Client
}

// New creates a Redis sink from cfg.
func New(cfg Config) (*Sink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis output: Config.URL is required")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis output: invalid URL: %w", err)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Sink{cfg: cfg, client: goredis.NewClient(opts)}, nil
}

// Write publishes c's payload to the configured channel.
func (s *Sink) Write(c chunk.Chunk) error {
	data, err := c.Read()
	if err != nil {
		return fmt.Errorf("redis output: read chunk: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	if err := s.client.Publish(ctx, s.cfg.Channel, data).Err(); err != nil {
		return fmt.Errorf("redis output: publish: %w", err)
	}
	return nil
}

// Close releases the Redis client connection.
func (s *Sink) Close() error {
	return s.client.Close()
}
