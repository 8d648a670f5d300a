// Package router implements the tag-matching EventRouter (spec.md §4.4):
// first-match-wins dispatch from a tag to a filter chain and terminal
// collector (Output, MultiOutput fan-out, or label re-dispatch).
package router

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/justapithecus/conduit/filter"
	"github.com/justapithecus/conduit/log"
	"github.com/justapithecus/conduit/metrics"
	"github.com/justapithecus/conduit/types"
)

// Emitter is anything an EventRouter can dispatch a matched stream to: a
// BufferedOutput, or another Agent's EventRouter (for label re-dispatch).
type Emitter interface {
	Emit(tag string, stream types.EventStream) error
}

// Collector is what a MatchRule dispatches a matched, filtered stream to.
// Exactly one of Output, Outputs, or Label should be set.
type Collector struct {
	// Output is a single terminal output.
	Output Emitter
	// Outputs fans the stream out to every entry, each receiving an
	// independent re-iterable copy (spec.md §4.4.2 MultiOutput).
	Outputs []Emitter
	// Label re-dispatches (tag, stream) through a named Agent's
	// EventRouter, restarting matching from the top.
	Label string
	// Metrics receives routing counters (received/routed/discarded) for
	// this rule's target. Optional; nil-receiver safe. Not populated for
	// Label collectors, since the target Agent's own rules already carry
	// their own Metrics.
	Metrics *metrics.Collector
}

// MatchRule binds a Pattern to a Filter chain and Collector. Rules are
// evaluated in insertion order; the first match wins.
type MatchRule struct {
	Pattern   *Pattern
	Filters   filter.Chain
	Collector Collector
}

// LabelResolver looks up the Emitter for a named label, used to implement
// Collector.Label re-dispatch. Agent implements this.
type LabelResolver interface {
	ResolveLabel(name string) (Emitter, bool)
}

// Config configures an EventRouter.
type Config struct {
	Rules []MatchRule
	// Labels resolves @LABEL collector targets. May be nil if no rule
	// uses label dispatch.
	Labels LabelResolver
	// CacheSize bounds the tag → matched-rule LRU cache (spec.md §4.4:
	// "Implementations SHOULD cache tag → matched rule for recent
	// tags"). Zero disables caching.
	CacheSize int
	// Logger receives no-match warnings.
	Logger *log.Logger
	// NoMatchWarnInterval throttles the no-match log line per distinct
	// tag. Default 1 minute.
	NoMatchWarnInterval time.Duration
}

// EventRouter dispatches tags to matching rules. Stateless aside from its
// rule list, no-match counters, and optional match cache — safe for
// concurrent Emit calls from multiple Input workers (spec.md §5: "the
// router itself is stateless and re-entrant").
type EventRouter struct {
	rules  []MatchRule
	labels LabelResolver
	logger *log.Logger

	cache *lru.Cache[string, int] // tag -> index into rules

	noMatchMu       sync.Mutex
	noMatchCount    map[string]int64
	noMatchLastWarn map[string]time.Time
	warnInterval    time.Duration
}

// New creates an EventRouter from cfg.
func New(cfg Config) (*EventRouter, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.Noop()
	}
	if cfg.NoMatchWarnInterval <= 0 {
		cfg.NoMatchWarnInterval = time.Minute
	}

	r := &EventRouter{
		rules:           cfg.Rules,
		labels:          cfg.Labels,
		logger:          cfg.Logger,
		noMatchCount:    make(map[string]int64),
		noMatchLastWarn: make(map[string]time.Time),
		warnInterval:    cfg.NoMatchWarnInterval,
	}

	if cfg.CacheSize > 0 {
		c, err := lru.New[string, int](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("router: create match cache: %w", err)
		}
		r.cache = c
	}

	return r, nil
}

// Emit finds the first rule matching tag and dispatches stream through
// its filter chain to its collector. A filter chain that empties the
// stream ends delivery: the collector is not called. If no rule matches,
// the stream is counted and discarded with a throttled warning (spec.md
// §4.4 default no-match handler).
func (r *EventRouter) Emit(tag string, stream types.EventStream) error {
	rule, ok := r.findRule(tag)
	if !ok {
		r.noMatch(tag)
		return nil
	}

	filtered, err := rule.Filters.Apply(tag, stream)
	if err != nil {
		return fmt.Errorf("router: filter chain for tag %q: %w", tag, err)
	}
	if len(rule.Filters) > 0 {
		// Chain.Apply has already materialized its result, so collecting
		// it here only checks for emptiness.
		entries := types.Collect(filtered)
		if len(entries) == 0 {
			rule.Collector.Metrics.IncEmitReceived()
			rule.Collector.Metrics.IncEmitDiscarded()
			return nil
		}
		filtered = types.NewMultiStream(entries)
	}

	return r.dispatch(tag, filtered, rule.Collector)
}

func (r *EventRouter) dispatch(tag string, stream types.EventStream, c Collector) error {
	switch {
	case c.Label != "":
		if r.labels == nil {
			return fmt.Errorf("router: label %q referenced but no label resolver configured", c.Label)
		}
		target, ok := r.labels.ResolveLabel(c.Label)
		if !ok {
			return fmt.Errorf("router: unknown label %q", c.Label)
		}
		return target.Emit(tag, stream)

	case len(c.Outputs) > 0:
		c.Metrics.IncEmitReceived()
		var firstErr error
		for _, out := range c.Outputs {
			if err := out.Emit(tag, types.Copy(stream)); err != nil {
				r.logger.Warn("multi-output sub-output failed", map[string]any{
					"tag": tag, "error": err.Error(),
				})
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		if firstErr != nil {
			c.Metrics.IncEmitDiscarded()
		} else {
			c.Metrics.IncEmitRouted()
		}
		return firstErr

	case c.Output != nil:
		c.Metrics.IncEmitReceived()
		if err := c.Output.Emit(tag, stream); err != nil {
			c.Metrics.IncEmitDiscarded()
			return err
		}
		c.Metrics.IncEmitRouted()
		return nil

	default:
		return fmt.Errorf("router: rule matched tag %q but its collector is empty", tag)
	}
}

// findRule looks up the match cache, falling back to a linear first-match
// scan and populating the cache on a cache miss.
func (r *EventRouter) findRule(tag string) (MatchRule, bool) {
	if r.cache != nil {
		if idx, ok := r.cache.Get(tag); ok {
			if idx < 0 {
				return MatchRule{}, false
			}
			return r.rules[idx], true
		}
	}

	for i, rule := range r.rules {
		if rule.Pattern.Match(tag) {
			if r.cache != nil {
				r.cache.Add(tag, i)
			}
			return rule, true
		}
	}

	if r.cache != nil {
		r.cache.Add(tag, -1)
	}
	return MatchRule{}, false
}

func (r *EventRouter) noMatch(tag string) {
	r.noMatchMu.Lock()
	defer r.noMatchMu.Unlock()

	r.noMatchCount[tag]++
	last := r.noMatchLastWarn[tag]
	now := time.Now()
	if now.Sub(last) < r.warnInterval {
		return
	}
	r.noMatchLastWarn[tag] = now
	r.logger.Warn("no match rule for tag, discarding", map[string]any{
		"tag": tag, "total_discarded": r.noMatchCount[tag],
	})
}

// NoMatchCount returns the number of Emit calls discarded for tag due to
// no matching rule.
func (r *EventRouter) NoMatchCount(tag string) int64 {
	r.noMatchMu.Lock()
	defer r.noMatchMu.Unlock()
	return r.noMatchCount[tag]
}

// InvalidateCache drops the match cache, e.g. after a configuration
// reload changes the rule set (spec.md §4.4: cache is "invalidated on
// configuration reload").
func (r *EventRouter) InvalidateCache() {
	if r.cache != nil {
		r.cache.Purge()
	}
}
