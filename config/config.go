package config

import (
	"fmt"
	"time"
)

// Config is the root of a conduit.yaml configuration file: buffer/output
// defaults plus the root Agent's ordered match/filter rules and any named
// labels, mirroring spec.md §6's `<match PATTERN>`, `<filter PATTERN>`,
// and `<label @NAME>` configuration elements.
type Config struct {
	Buffer  BufferConfig        `yaml:"buffer"`
	Output  OutputDefaults      `yaml:"output"`
	Match   []MatchConfig       `yaml:"match"`
	Filter  []FilterConfig      `yaml:"filter"`
	Label   map[string]ScopeConfig `yaml:"label"`
	Cache   CacheConfig         `yaml:"cache"`
}

// ScopeConfig is one named label's match/filter rules.
type ScopeConfig struct {
	Match  []MatchConfig  `yaml:"match"`
	Filter []FilterConfig `yaml:"filter"`
}

// BufferConfig holds the Buffer's size limits (spec.md §6: "buffer_chunk_limit",
// "buffer_queue_limit") and optional durable-backing directory.
type BufferConfig struct {
	ChunkLimit Size `yaml:"chunk_limit"`
	QueueLimit int  `yaml:"queue_limit"`

	// Dir, if set, selects the file-backed chunk.FileChunk instead of the
	// default in-process chunk.MemoryChunk for every output's Buffer, and
	// enables crash recovery (spec.md §6: "the file backing MUST keep one
	// file per chunk with two lifecycle names... so a crash can reliably
	// reconstruct Map and Queue on restart"). Each output gets its own
	// subdirectory under Dir, keyed by plugin name and match pattern.
	Dir string `yaml:"dir,omitempty"`
}

// OutputDefaults holds the flusher/retry defaults applied to every Output
// plugin unless a MatchConfig overrides them (spec.md §6: "flush_interval",
// "retry_wait", "max_retry_wait", "retry_limit").
type OutputDefaults struct {
	FlushInterval Duration `yaml:"flush_interval"`
	RetryWait     Duration `yaml:"retry_wait"`
	MaxRetryWait  Duration `yaml:"max_retry_wait"`
	RetryLimit    int      `yaml:"retry_limit"`
	ParallelPop   *bool    `yaml:"parallel_pop,omitempty"`
}

// CacheConfig configures the EventRouter's tag-to-rule match cache
// (spec.md §4.4).
type CacheConfig struct {
	MatchCacheSize int `yaml:"match_cache_size"`
}

// MatchConfig is one `<match PATTERN>` element: a pattern bound either to
// a plugin instance, a fan-out list of plugins, or a label re-dispatch.
type MatchConfig struct {
	Pattern string `yaml:"pattern"`

	// Plugin names the Output plugin type ("memory", "file", "webhook",
	// "redis", "s3") and Config carries its plugin-specific settings.
	// Mutually exclusive with Outputs and Label.
	Plugin string         `yaml:"plugin,omitempty"`
	Config map[string]any `yaml:"config,omitempty"`

	// Outputs fans out to multiple plugin instances (MultiOutput,
	// spec.md §4.4.2). Mutually exclusive with Plugin and Label.
	Outputs []MatchConfig `yaml:"outputs,omitempty"`

	// Label re-dispatches to a named label (spec.md §4.6). Mutually
	// exclusive with Plugin and Outputs.
	Label string `yaml:"label,omitempty"`

	// Output overrides OutputDefaults for this plugin instance.
	Output OutputDefaults `yaml:"output,omitempty"`
}

// FilterConfig is one `<filter PATTERN>` element.
type FilterConfig struct {
	Pattern string         `yaml:"pattern"`
	Type    string         `yaml:"type"`
	Config  map[string]any `yaml:"config,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "1m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Size wraps a byte count for YAML string parsing (e.g. "8m", "512k").
type Size int64

// UnmarshalYAML parses a size string like "8m" (mebibytes) or "512k"
// (kibibytes), or a bare integer (bytes).
func (s *Size) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case int:
		*s = Size(v)
		return nil
	case string:
		n, err := ParseSize(v)
		if err != nil {
			return err
		}
		*s = n
		return nil
	default:
		return fmt.Errorf("invalid size value %v", raw)
	}
}

// ParseSize parses a byte-count string with an optional k/m/g suffix
// (case-insensitive), e.g. "8m" == 8*1024*1024.
func ParseSize(s string) (Size, error) {
	if s == "" {
		return 0, nil
	}
	mult := Size(1)
	last := s[len(s)-1]
	switch last {
	case 'k', 'K':
		mult = 1024
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1024 * 1024
		s = s[:len(s)-1]
	case 'g', 'G':
		mult = 1024 * 1024 * 1024
		s = s[:len(s)-1]
	}
	var n int64
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return Size(n) * mult, nil
}
