// Package filter implements the record-transformation chain dispatched
// between an EventRouter match and its terminal collector (spec.md
// §4.5).
package filter

import "github.com/justapithecus/conduit/types"

// Filter transforms a stream of records for tag. Returning an empty
// stream terminates delivery for that batch. Filters MUST be pure with
// respect to router state — to re-emit under a different tag, a filter
// must go through the Agent's EventRouter rather than mutate in place.
type Filter interface {
	FilterStream(tag string, stream types.EventStream) (types.EventStream, error)
}

// Chain composes Filters left-to-right.
type Chain []Filter

// Apply runs every filter in order, feeding each one's output to the
// next. It stops early and returns an empty stream once any filter
// empties the pipeline, matching spec.md's "empty stream terminates
// delivery" rule without running downstream filters pointlessly.
func (c Chain) Apply(tag string, stream types.EventStream) (types.EventStream, error) {
	cur := stream
	for _, f := range c {
		out, err := f.FilterStream(tag, cur)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return types.NewMultiStream(nil), nil
		}
		// Materialize so an empty result can be detected without losing
		// the first entry of a non-empty one (EventStream.Next is
		// single-pass and has no peek/pushback).
		entries := types.Collect(out)
		if len(entries) == 0 {
			return types.NewMultiStream(nil), nil
		}
		cur = types.NewMultiStream(entries)
	}
	return cur, nil
}
