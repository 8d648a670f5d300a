// Package agent implements the Agent/label scope (spec.md §4.6, C7): a
// namespace holding an ordered rule list and filter chains, addressable
// either as the root scope or as a named label reachable through the
// pseudo-tag @LABEL_NAME. Label resolution and cycle detection are
// static, performed once at configuration time — grounded on the
// teacher's runtime/fanout.go dedup-via-seen-set pattern, applied here to
// graph traversal instead of run dedup.
package agent

import (
	"fmt"

	"github.com/justapithecus/conduit/router"
	"github.com/justapithecus/conduit/types"
)

// Agent is a named (or root) routing scope: an EventRouter plus the
// label name it is reachable under.
type Agent struct {
	name   string
	router *router.EventRouter
}

// Emit dispatches tag through this Agent's EventRouter.
func (a *Agent) Emit(tag string, stream types.EventStream) error {
	return a.router.Emit(tag, stream)
}

// Name returns "" for the root Agent, or the label name otherwise.
func (a *Agent) Name() string { return a.name }

// Registry holds every Agent in a configuration (root plus named labels)
// and resolves Collector.Label references for the router package.
type Registry struct {
	root   *Agent
	agents map[string]*Agent
}

// LabelSpec is one named label's configuration, supplied by the config
// loader before rules are compiled (rules reference other labels by
// name, so the whole set must be known before any one EventRouter is
// built).
type LabelSpec struct {
	Name  string
	Rules []router.MatchRule
}

// Build compiles rootRules plus every label in labels into a Registry,
// wiring each EventRouter's LabelResolver to the same Registry so
// Collector.Label dispatch reaches any other label, and rejecting label
// graphs that contain a cycle (spec.md §4.6: "cycles are detected and
// rejected at configuration time").
func Build(rootRules []router.MatchRule, labels []LabelSpec, cacheSize int) (*Registry, error) {
	reg := &Registry{agents: make(map[string]*Agent, len(labels))}

	if err := checkCycles(rootRules, labels); err != nil {
		return nil, err
	}

	rootRouter, err := router.New(router.Config{Rules: rootRules, Labels: reg, CacheSize: cacheSize})
	if err != nil {
		return nil, fmt.Errorf("agent: build root router: %w", err)
	}
	reg.root = &Agent{router: rootRouter}

	for _, spec := range labels {
		r, err := router.New(router.Config{Rules: spec.Rules, Labels: reg, CacheSize: cacheSize})
		if err != nil {
			return nil, fmt.Errorf("agent: build label %q router: %w", spec.Name, err)
		}
		reg.agents[spec.Name] = &Agent{name: spec.Name, router: r}
	}

	return reg, nil
}

// Root returns the root Agent.
func (r *Registry) Root() *Agent { return r.root }

// Label returns the named label Agent, or (nil, false) if undefined.
func (r *Registry) Label(name string) (*Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// ResolveLabel implements router.LabelResolver.
func (r *Registry) ResolveLabel(name string) (router.Emitter, bool) {
	a, ok := r.agents[name]
	if !ok {
		return nil, false
	}
	return a, true
}

// checkCycles performs a static DFS over the label-reference graph
// (root and every label, following each MatchRule's Collector.Label edge)
// and rejects any cycle before a single EventRouter is constructed.
func checkCycles(rootRules []router.MatchRule, labels []LabelSpec) error {
	edges := make(map[string][]string, len(labels)+1)
	edges[""] = labelTargets(rootRules)
	for _, spec := range labels {
		edges[spec.Name] = labelTargets(spec.Rules)
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(edges))

	var visit func(node string, path []string) error
	visit = func(node string, path []string) error {
		switch state[node] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("agent: label cycle detected: %v -> %s", path, node)
		}
		state[node] = visiting
		for _, next := range edges[node] {
			if err := visit(next, append(append([]string{}, path...), node)); err != nil {
				return err
			}
		}
		state[node] = done
		return nil
	}

	for node := range edges {
		if err := visit(node, nil); err != nil {
			return err
		}
	}
	return nil
}

func labelTargets(rules []router.MatchRule) []string {
	var out []string
	for _, rule := range rules {
		if rule.Collector.Label != "" {
			out = append(out, rule.Collector.Label)
		}
	}
	return out
}
