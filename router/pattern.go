package router

import (
	"fmt"
	"strings"
)

// Pattern is a space-separated list of Globs; a rule matches a tag if ANY
// of its globs match (spec.md §3 MatchRule: "Patterns are a list of
// space-separated globs; a rule matches if ANY glob matches the tag.").
type Pattern struct {
	source string
	globs  []*Glob
}

// CompilePattern parses a space-separated pattern string into a Pattern.
func CompilePattern(pattern string) (*Pattern, error) {
	fields := strings.Fields(pattern)
	if len(fields) == 0 {
		return nil, fmt.Errorf("router: empty match pattern")
	}
	globs := make([]*Glob, 0, len(fields))
	for _, f := range fields {
		g, err := CompileGlob(f)
		if err != nil {
			return nil, fmt.Errorf("router: compile glob %q: %w", f, err)
		}
		globs = append(globs, g)
	}
	return &Pattern{source: pattern, globs: globs}, nil
}

// Match reports whether tag matches any glob in p.
func (p *Pattern) Match(tag string) bool {
	for _, g := range p.globs {
		if g.Match(tag) {
			return true
		}
	}
	return false
}

// String returns the original pattern text.
func (p *Pattern) String() string { return p.source }
