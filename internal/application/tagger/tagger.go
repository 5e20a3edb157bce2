// Package tagger evaluates the set of tags that apply to a server,
// resolving declared tag dependencies into evaluation order ahead of time.
package tagger

import (
	"errors"
	"fmt"

	"serverstf/internal/domain/players"
	"serverstf/internal/domain/tagset"
	"serverstf/internal/infrastructure/a2s"
)

// Predicate decides whether a tag applies given the server's A2S info,
// player roster, console rules, and the tags already applied by
// earlier-evaluated rules (its resolved prerequisites are guaranteed to
// have run first, but are not guaranteed to be present in applied -- the
// predicate itself must check for that).
type Predicate func(info a2s.Info, players players.Players, rules a2s.Rules, applied tagset.Set) bool

// Rule is one named tag implementation plus the tags it depends on.
type Rule struct {
	Tag          string
	Dependencies []string
	Predicate    Predicate
}

// ErrCyclicDependency is wrapped by the error NewEngine returns when rule
// dependencies form a cycle.
var ErrCyclicDependency = errors.New("cyclic dependencies")

// Engine evaluates a fixed, topologically sorted set of rules against one
// server observation.
type Engine struct {
	ordered []Rule
}

// NewEngine resolves rule dependencies into evaluation order. It rejects
// duplicate tag names, dependencies on tags no rule declares, and cyclic
// dependency chains.
func NewEngine(rules ...Rule) (*Engine, error) {
	byTag := make(map[string]Rule, len(rules))
	for _, r := range rules {
		if _, exists := byTag[r.Tag]; exists {
			return nil, fmt.Errorf("tagger: duplicate implementation of tag %q", r.Tag)
		}
		byTag[r.Tag] = r
	}
	for _, r := range rules {
		for _, dep := range r.Dependencies {
			if _, ok := byTag[dep]; !ok {
				return nil, fmt.Errorf("tagger: cannot resolve dependency %q for tag %q: no such tag", dep, r.Tag)
			}
		}
	}

	ordered, err := topoSort(rules, byTag)
	if err != nil {
		return nil, err
	}
	return &Engine{ordered: ordered}, nil
}

// topoSort performs a depth-first topological sort, using temporary and
// permanent marks to detect cycles.
func topoSort(rules []Rule, byTag map[string]Rule) ([]Rule, error) {
	var ordered []Rule
	marked := make(map[string]bool)
	tempMarked := make(map[string]bool)

	var visit func(r Rule) error
	visit = func(r Rule) error {
		if tempMarked[r.Tag] {
			return fmt.Errorf("tagger: %q has %w", r.Tag, ErrCyclicDependency)
		}
		if marked[r.Tag] {
			return nil
		}
		tempMarked[r.Tag] = true
		for _, dep := range r.Dependencies {
			if err := visit(byTag[dep]); err != nil {
				return err
			}
		}
		delete(tempMarked, r.Tag)
		marked[r.Tag] = true
		ordered = append(ordered, r)
		return nil
	}

	for _, r := range rules {
		if !marked[r.Tag] {
			if err := visit(r); err != nil {
				return nil, err
			}
		}
	}
	return ordered, nil
}

// Evaluate runs every rule, in dependency order, against one observation
// and returns the set of tags that apply.
func (e *Engine) Evaluate(info a2s.Info, p players.Players, rules a2s.Rules) tagset.Set {
	applied := tagset.New()
	for _, r := range e.ordered {
		if r.Predicate(info, p, rules, applied) {
			applied[r.Tag] = struct{}{}
		}
	}
	return applied
}
