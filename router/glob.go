package router

import "strings"

// Glob is a compiled tag-matching pattern, spec.md §3/§4.4:
//
//	*        matches exactly one non-empty dot-delimited segment
//	**       matches zero or more segments
//	{a,b,c}  alternation within a segment
//	literal  matches byte-for-byte
//
// Compilation is segment-wise rather than a translation to regexp.
// Matching walks the segments recursively; each "**" tries every split
// point of the remaining tag, so a pattern with several "**" segments
// backtracks over the tag's segments.
type Glob struct {
	source   string
	segments []segment
}

type segment struct {
	kind segmentKind
	// alts holds the literal alternatives for kindLiteral (len 1) and
	// kindAlternation (len > 1).
	alts []string
}

type segmentKind int

const (
	kindLiteral segmentKind = iota
	kindStar
	kindDoubleStar
	kindAlternation
)

// CompileGlob parses one space-free glob pattern into a Glob.
func CompileGlob(pattern string) (*Glob, error) {
	parts := strings.Split(pattern, ".")
	segs := make([]segment, 0, len(parts))
	for _, p := range parts {
		seg, err := compileSegment(p)
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
	}
	return &Glob{source: pattern, segments: segs}, nil
}

func compileSegment(p string) (segment, error) {
	switch {
	case p == "**":
		return segment{kind: kindDoubleStar}, nil
	case p == "*":
		return segment{kind: kindStar}, nil
	case strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") && len(p) >= 2:
		alts := strings.Split(p[1:len(p)-1], ",")
		return segment{kind: kindAlternation, alts: alts}, nil
	default:
		return segment{kind: kindLiteral, alts: []string{p}}, nil
	}
}

// Match reports whether tag satisfies g.
func (g *Glob) Match(tag string) bool {
	tagSegs := strings.Split(tag, ".")
	return matchSegments(g.segments, tagSegs)
}

func matchSegments(pat []segment, tag []string) bool {
	if len(pat) == 0 {
		return len(tag) == 0
	}

	head := pat[0]
	if head.kind == kindDoubleStar {
		// ** matches zero or more segments: try every split point.
		for i := 0; i <= len(tag); i++ {
			if matchSegments(pat[1:], tag[i:]) {
				return true
			}
		}
		return false
	}

	if len(tag) == 0 {
		return false
	}

	switch head.kind {
	case kindStar:
		if tag[0] == "" {
			return false
		}
	case kindLiteral:
		if tag[0] != head.alts[0] {
			return false
		}
	case kindAlternation:
		matched := false
		for _, alt := range head.alts {
			if tag[0] == alt {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return matchSegments(pat[1:], tag[1:])
}

// String returns the original pattern text.
func (g *Glob) String() string { return g.source }
