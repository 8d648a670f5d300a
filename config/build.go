// Package config's Build wires a parsed Config into the live object
// graph: Buffers, BufferedOutputs, filter Chains, and the agent.Registry
// that resolves label re-dispatch, per spec.md §6's description of
// configuration as an external collaborator the core only consumes
// through Name()/Arg()/Each()/Children()-shaped values.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/justapithecus/conduit/agent"
	"github.com/justapithecus/conduit/buffer"
	"github.com/justapithecus/conduit/chunk"
	"github.com/justapithecus/conduit/filter"
	"github.com/justapithecus/conduit/log"
	"github.com/justapithecus/conduit/metrics"
	"github.com/justapithecus/conduit/output"
	"github.com/justapithecus/conduit/router"
)

// PluginFactory constructs an output.Sink from a plugin's YAML config
// block (already env-expanded and decoded into a generic map).
type PluginFactory func(pluginConfig map[string]any) (output.Sink, error)

// Registry maps a `plugin:` name to its factory. DefaultRegistry returns
// one holding every built-in plugin package (outputs/memory, outputs/file,
// outputs/webhook, outputs/redis, outputs/s3).
type Registry map[string]PluginFactory

// NamedOutput pairs a constructed BufferedOutput with the plugin name it
// was built from and its metrics Collector, so a consumer (the TUI,
// shutdown logging, an external monitor) can label it without
// re-deriving the name from the Sink's concrete type.
type NamedOutput struct {
	Plugin  string
	Output  *output.BufferedOutput
	Metrics *metrics.Collector
}

// Built is the fully wired object graph produced by Build.
type Built struct {
	Agents  *agent.Registry
	Outputs []NamedOutput
}

// Build constructs Buffers/BufferedOutputs for every plugin instance
// named in cfg, one filter.Chain per scope (root or label) holding that
// scope's FilterConfigs in order, and an agent.Registry tying the root
// Agent and every label together. Each scope's chain is attached to every
// match rule of that scope; a FilterConfig's Pattern is not used to
// select which tags it applies to.
func Build(cfg *Config, registry Registry, logger *log.Logger) (*Built, error) {
	if logger == nil {
		logger = log.Noop()
	}

	built := &Built{}

	rootRules, err := buildRules(cfg.Match, cfg.Filter, cfg.Buffer, cfg.Output, registry, logger, built, "")
	if err != nil {
		return nil, fmt.Errorf("config: build root rules: %w", err)
	}

	var labels []agent.LabelSpec
	for name, scope := range cfg.Label {
		rules, err := buildRules(scope.Match, scope.Filter, cfg.Buffer, cfg.Output, registry, logger, built, name)
		if err != nil {
			return nil, fmt.Errorf("config: build label %q rules: %w", name, err)
		}
		labels = append(labels, agent.LabelSpec{Name: name, Rules: rules})
	}

	reg, err := agent.Build(rootRules, labels, cfg.Cache.MatchCacheSize)
	if err != nil {
		return nil, err
	}
	built.Agents = reg
	return built, nil
}

func buildRules(matches []MatchConfig, filters []FilterConfig, bufCfg BufferConfig, outDefaults OutputDefaults, registry Registry, logger *log.Logger, built *Built, scope string) ([]router.MatchRule, error) {
	filterChain, err := buildFilterChain(filters)
	if err != nil {
		return nil, err
	}

	rules := make([]router.MatchRule, 0, len(matches))
	for _, m := range matches {
		pattern, err := router.CompilePattern(m.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", m.Pattern, err)
		}

		collector, err := buildCollector(m, bufCfg, outDefaults, registry, logger, built, scope)
		if err != nil {
			return nil, fmt.Errorf("build collector for pattern %q: %w", m.Pattern, err)
		}

		rules = append(rules, router.MatchRule{Pattern: pattern, Filters: filterChain, Collector: collector})
	}
	return rules, nil
}

func buildCollector(m MatchConfig, bufCfg BufferConfig, outDefaults OutputDefaults, registry Registry, logger *log.Logger, built *Built, scope string) (router.Collector, error) {
	switch {
	case m.Label != "":
		return router.Collector{Label: m.Label}, nil

	case len(m.Outputs) > 0:
		emitters := make([]router.Emitter, 0, len(m.Outputs))
		for _, sub := range m.Outputs {
			out, _, err := buildOutput(sub, bufCfg, outDefaults, registry, logger, built, scope)
			if err != nil {
				return router.Collector{}, err
			}
			emitters = append(emitters, out)
		}
		return router.Collector{Outputs: emitters, Metrics: metrics.NewCollector("multi", scope)}, nil

	case m.Plugin != "":
		out, collector, err := buildOutput(m, bufCfg, outDefaults, registry, logger, built, scope)
		if err != nil {
			return router.Collector{}, err
		}
		return router.Collector{Output: out, Metrics: collector}, nil

	default:
		return router.Collector{}, fmt.Errorf("match rule has none of plugin/outputs/label set")
	}
}

func buildOutput(m MatchConfig, bufCfg BufferConfig, outDefaults OutputDefaults, registry Registry, logger *log.Logger, built *Built, scope string) (*output.BufferedOutput, *metrics.Collector, error) {
	factory, ok := registry[m.Plugin]
	if !ok {
		return nil, nil, fmt.Errorf("unknown output plugin %q", m.Plugin)
	}
	sink, err := factory(m.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("plugin %q: %w", m.Plugin, err)
	}

	collector := metrics.NewCollector(m.Plugin, scope)

	chunkLimit := int64(bufCfg.ChunkLimit)
	if chunkLimit <= 0 {
		chunkLimit = buffer.DefaultChunkLimit
	}
	queueLimit := bufCfg.QueueLimit
	if queueLimit <= 0 {
		queueLimit = buffer.DefaultQueueLimit
	}

	var newChunk buffer.NewChunkFunc
	var resumeMap map[string]chunk.Chunk
	var resumeQueue []chunk.Chunk

	if bufCfg.Dir != "" {
		outDir := filepath.Join(bufCfg.Dir, outputDirName(m.Plugin, m.Pattern))
		newChunk = func(key string) (chunk.Chunk, error) {
			return chunk.NewFileChunk(outDir, key)
		}
		resumed, queued, err := chunk.ResumeDir(outDir)
		if err != nil {
			return nil, nil, fmt.Errorf("plugin %q: resume %s: %w", m.Plugin, outDir, err)
		}
		resumeMap, resumeQueue = resumed, queued
	} else {
		newChunk = func(key string) (chunk.Chunk, error) {
			return chunk.NewMemoryChunk(key), nil
		}
	}

	b, err := buffer.New(buffer.Config{
		ChunkLimit: chunkLimit,
		QueueLimit: queueLimit,
		NewChunk:   newChunk,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, err
	}
	if resumeMap != nil || len(resumeQueue) > 0 {
		b.Resume(resumeMap, resumeQueue)
	}

	effective := outDefaults
	if m.Output.FlushInterval.Duration > 0 {
		effective.FlushInterval = m.Output.FlushInterval
	}
	if m.Output.RetryWait.Duration > 0 {
		effective.RetryWait = m.Output.RetryWait
	}
	if m.Output.MaxRetryWait.Duration > 0 {
		effective.MaxRetryWait = m.Output.MaxRetryWait
	}
	if m.Output.RetryLimit > 0 {
		effective.RetryLimit = m.Output.RetryLimit
	}
	if m.Output.ParallelPop != nil {
		effective.ParallelPop = m.Output.ParallelPop
	}

	parallelPop := true
	if effective.ParallelPop != nil {
		parallelPop = *effective.ParallelPop
	}

	out, err := output.New(output.Config{
		Buffer:        b,
		Sink:          sink,
		FlushInterval: effective.FlushInterval.Duration,
		RetryWait:     effective.RetryWait.Duration,
		MaxRetryWait:  effective.MaxRetryWait.Duration,
		RetryLimit:    effective.RetryLimit,
		ParallelPop:   parallelPop,
		Logger:        logger,
		Metrics:       collector,
	})
	if err != nil {
		return nil, nil, err
	}

	built.Outputs = append(built.Outputs, NamedOutput{Plugin: m.Plugin, Output: out, Metrics: collector})
	return out, collector, nil
}

// outputDirName derives a filesystem-safe, per-rule subdirectory name
// from a plugin name and match pattern, so multiple file-backed outputs
// sharing BufferConfig.Dir don't collide or cross-resume each other's
// chunks on restart.
func outputDirName(plugin, pattern string) string {
	sanitize := func(s string) string {
		var b strings.Builder
		for _, r := range s {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
				b.WriteRune(r)
			default:
				b.WriteRune('_')
			}
		}
		return b.String()
	}
	return sanitize(plugin) + "-" + sanitize(pattern)
}

func buildFilterChain(filters []FilterConfig) (filter.Chain, error) {
	chain := make(filter.Chain, 0, len(filters))
	for _, f := range filters {
		switch f.Type {
		case "grep":
			field, _ := f.Config["field"].(string)
			include, _ := f.Config["regexp"].(string)
			exclude, _ := f.Config["exclude_regexp"].(string)
			g, err := filter.NewGrep(filter.GrepConfig{Field: field, Regexp: include, ExcludeRegexp: exclude})
			if err != nil {
				return nil, fmt.Errorf("filter %q: %w", f.Pattern, err)
			}
			chain = append(chain, g)
		default:
			return nil, fmt.Errorf("unknown filter type %q", f.Type)
		}
	}
	return chain, nil
}
