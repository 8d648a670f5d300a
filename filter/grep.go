package filter

import (
	"fmt"
	"regexp"

	"github.com/justapithecus/conduit/types"
)

// GrepConfig configures a Grep filter: a record passes only if Field's
// string value matches Regexp (when set) and does not match ExcludeRegexp
// (when set).
type GrepConfig struct {
	Field         string
	Regexp        string
	ExcludeRegexp string
}

// Grep keeps or drops whole records based on a single field's value,
// the filter_grep equivalent referenced by spec.md §4.5's generic Filter
// interface.
type Grep struct {
	field   string
	include *regexp.Regexp
	exclude *regexp.Regexp
}

// NewGrep compiles a GrepConfig into a Grep filter.
func NewGrep(cfg GrepConfig) (*Grep, error) {
	if cfg.Field == "" {
		return nil, fmt.Errorf("filter: grep requires Field")
	}
	g := &Grep{field: cfg.Field}
	if cfg.Regexp != "" {
		re, err := regexp.Compile(cfg.Regexp)
		if err != nil {
			return nil, fmt.Errorf("filter: grep: compile regexp: %w", err)
		}
		g.include = re
	}
	if cfg.ExcludeRegexp != "" {
		re, err := regexp.Compile(cfg.ExcludeRegexp)
		if err != nil {
			return nil, fmt.Errorf("filter: grep: compile exclude regexp: %w", err)
		}
		g.exclude = re
	}
	return g, nil
}

// FilterStream keeps only entries whose Field value matches include (if
// set) and does not match exclude (if set). Entries missing Field never
// match include and are dropped whenever include is configured.
func (g *Grep) FilterStream(_ string, stream types.EventStream) (types.EventStream, error) {
	var kept []types.Entry
	for {
		e, ok := stream.Next()
		if !ok {
			break
		}
		if g.keep(e.Record) {
			kept = append(kept, e)
		}
	}
	return types.NewMultiStream(kept), nil
}

func (g *Grep) keep(rec types.Record) bool {
	val, ok := rec[g.field]
	s, _ := val.(string)

	if g.include != nil {
		if !ok || !g.include.MatchString(s) {
			return false
		}
	}
	if g.exclude != nil && ok && g.exclude.MatchString(s) {
		return false
	}
	return true
}
