package engine

import (
	"sort"

	"trader/types"
)

type TargetSet map[types.SecurityID]struct{}

func NewTargetSet(ids ...types.SecurityID) TargetSet {
	set := make(TargetSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s TargetSet) Contains(id types.SecurityID) bool {
	_, ok := s[id]
	return ok
}

func (s TargetSet) Sorted() []types.SecurityID {
	out := make([]types.SecurityID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s TargetSet) clone() TargetSet {
	out := make(TargetSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// TargetCache holds the latest target set of every level. A level's view is
// replaced on each refresh, never merged.
type TargetCache struct {
	levels map[types.Level]TargetSet
}

func NewTargetCache() *TargetCache {
	return &TargetCache{levels: make(map[types.Level]TargetSet)}
}

func (c *TargetCache) Set(level types.Level, targets TargetSet) {
	c.levels[level] = targets.clone()
}

func (c *TargetCache) Get(level types.Level) TargetSet {
	targets, ok := c.levels[level]
	if !ok {
		return TargetSet{}
	}
	return targets.clone()
}

// Fuse intersects the requested levels. A level that never produced a
// result counts as empty, so nothing is selected until every level has
// given an opinion.
func (c *TargetCache) Fuse(levels []types.Level) TargetSet {
	if len(levels) == 0 {
		return TargetSet{}
	}
	fused := c.Get(levels[0])
	for _, level := range levels[1:] {
		other := c.levels[level]
		for id := range fused {
			if !other.Contains(id) {
				delete(fused, id)
			}
		}
	}
	return fused
}
