package retention

import (
	"context"
	"fmt"
	"sort"
)

// Policy bounds how far relevance spreads from the anchor.
type Policy struct {
	// FollowDepth is the number of follow hops from the anchor whose
	// authors are kept. 0 keeps only the anchor.
	FollowDepth int
	// ReferenceDepth is the number of reference hops from kept events
	// whose targets are kept too.
	ReferenceDepth int
}

// DefaultPolicy keeps the anchor's direct follows and two levels of
// referenced events.
func DefaultPolicy() Policy {
	return Policy{FollowDepth: 1, ReferenceDepth: 2}
}

// Validate rejects negative depths.
func (p Policy) Validate() error {
	if p.FollowDepth < 0 {
		return fmt.Errorf("retention: follow depth %d is negative", p.FollowDepth)
	}
	if p.ReferenceDepth < 0 {
		return fmt.Errorf("retention: reference depth %d is negative", p.ReferenceDepth)
	}
	return nil
}

// Graph is the read-only view of the social graph the planner walks.
// Every method takes a set of keys and returns the distinct related keys.
type Graph interface {
	Followees(ctx context.Context, authors []string) ([]string, error)
	EventsByAuthors(ctx context.Context, authors []string) ([]string, error)
	ReferencedEvents(ctx context.Context, events []string) ([]string, error)
	AuthorsOfEvents(ctx context.Context, events []string) ([]string, error)
	AllAuthors(ctx context.Context) ([]string, error)
	AllEvents(ctx context.Context) ([]string, error)
}

// Set is the relevance set: the authors and events to keep.
type Set struct {
	Authors map[string]struct{}
	Events  map[string]struct{}
}

// KeepsAuthor reports whether key is relevant.
func (s Set) KeepsAuthor(key string) bool {
	_, ok := s.Authors[key]
	return ok
}

// KeepsEvent reports whether id is relevant.
func (s Set) KeepsEvent(id string) bool {
	_, ok := s.Events[id]
	return ok
}

// Plan lists what a sweep deletes.
type Plan struct {
	Anchor        string
	Policy        Policy
	KeptAuthors   int
	KeptEvents    int
	DeleteAuthors []string
	DeleteEvents  []string
}

// Empty reports whether the plan deletes nothing.
func (p Plan) Empty() bool {
	return len(p.DeleteAuthors) == 0 && len(p.DeleteEvents) == 0
}

// Relevance computes the relevance set for anchor.
func Relevance(ctx context.Context, g Graph, anchor string, p Policy) (Set, error) {
	if err := p.Validate(); err != nil {
		return Set{}, err
	}
	set := Set{Authors: map[string]struct{}{}, Events: map[string]struct{}{}}
	if anchor == "" {
		return set, nil
	}

	// Authors within FollowDepth hops.
	set.Authors[anchor] = struct{}{}
	frontier := []string{anchor}
	for depth := 0; depth < p.FollowDepth && len(frontier) > 0; depth++ {
		next, err := g.Followees(ctx, frontier)
		if err != nil {
			return Set{}, fmt.Errorf("followees at depth %d: %w", depth+1, err)
		}
		frontier = addNew(set.Authors, next)
	}

	// Events those authors wrote.
	authored, err := g.EventsByAuthors(ctx, keys(set.Authors))
	if err != nil {
		return Set{}, fmt.Errorf("events by authors: %w", err)
	}
	frontier = addNew(set.Events, authored)

	// Events referenced from kept events.
	for depth := 0; depth < p.ReferenceDepth && len(frontier) > 0; depth++ {
		next, err := g.ReferencedEvents(ctx, frontier)
		if err != nil {
			return Set{}, fmt.Errorf("referenced events at depth %d: %w", depth+1, err)
		}
		frontier = addNew(set.Events, next)
	}

	// Kept notes keep their author's profile.
	authors, err := g.AuthorsOfEvents(ctx, keys(set.Events))
	if err != nil {
		return Set{}, fmt.Errorf("authors of events: %w", err)
	}
	addNew(set.Authors, authors)

	return set, nil
}

// PlanSweep computes what a sweep anchored at anchor deletes. An empty
// anchor yields an empty plan.
func PlanSweep(ctx context.Context, g Graph, anchor string, p Policy) (Plan, error) {
	plan := Plan{Anchor: anchor, Policy: p}
	if anchor == "" {
		return plan, nil
	}

	set, err := Relevance(ctx, g, anchor, p)
	if err != nil {
		return Plan{}, err
	}

	allAuthors, err := g.AllAuthors(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("all authors: %w", err)
	}
	for _, a := range allAuthors {
		if set.KeepsAuthor(a) {
			plan.KeptAuthors++
		} else {
			plan.DeleteAuthors = append(plan.DeleteAuthors, a)
		}
	}

	allEvents, err := g.AllEvents(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("all events: %w", err)
	}
	for _, e := range allEvents {
		if set.KeepsEvent(e) {
			plan.KeptEvents++
		} else {
			plan.DeleteEvents = append(plan.DeleteEvents, e)
		}
	}

	sort.Strings(plan.DeleteAuthors)
	sort.Strings(plan.DeleteEvents)
	return plan, nil
}

// addNew adds items to set and returns the ones that were not there yet.
func addNew(set map[string]struct{}, items []string) []string {
	var added []string
	for _, it := range items {
		if it == "" {
			continue
		}
		if _, ok := set[it]; ok {
			continue
		}
		set[it] = struct{}{}
		added = append(added, it)
	}
	return added
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
