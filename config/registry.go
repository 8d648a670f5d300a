package config

import (
	"context"
	"time"

	"github.com/justapithecus/conduit/output"
	"github.com/justapithecus/conduit/outputs/file"
	"github.com/justapithecus/conduit/outputs/memory"
	"github.com/justapithecus/conduit/outputs/redis"
	"github.com/justapithecus/conduit/outputs/s3"
	"github.com/justapithecus/conduit/outputs/webhook"
)

// DefaultRegistry returns a Registry wired to every built-in output
// plugin under outputs/.
func DefaultRegistry() Registry {
	return Registry{
		"memory":  memoryFactory,
		"file":    fileFactory,
		"webhook": webhookFactory,
		"redis":   redisFactory,
		"s3":      s3Factory,
	}
}

func memoryFactory(_ map[string]any) (output.Sink, error) {
	return memory.New(), nil
}

func fileFactory(cfg map[string]any) (output.Sink, error) {
	dir, _ := cfg["dir"].(string)
	return file.New(file.Config{Dir: dir})
}

func webhookFactory(cfg map[string]any) (output.Sink, error) {
	url, _ := cfg["url"].(string)
	headers := map[string]string{}
	if raw, ok := cfg["headers"].(map[string]any); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				headers[k] = s
			}
		}
	}
	timeout := durationField(cfg, "timeout")
	return webhook.New(webhook.Config{URL: url, Headers: headers, Timeout: timeout})
}

func redisFactory(cfg map[string]any) (output.Sink, error) {
	url, _ := cfg["url"].(string)
	channel, _ := cfg["channel"].(string)
	timeout := durationField(cfg, "timeout")
	return redis.New(redis.Config{URL: url, Channel: channel, Timeout: timeout})
}

func s3Factory(cfg map[string]any) (output.Sink, error) {
	bucket, _ := cfg["bucket"].(string)
	prefix, _ := cfg["prefix"].(string)
	region, _ := cfg["region"].(string)
	endpoint, _ := cfg["endpoint"].(string)
	pathStyle, _ := cfg["path_style"].(bool)
	return s3.New(context.Background(), s3.Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       region,
		Endpoint:     endpoint,
		UsePathStyle: pathStyle,
	})
}

func durationField(cfg map[string]any, key string) time.Duration {
	s, ok := cfg[key].(string)
	if !ok || s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
