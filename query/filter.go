// Package query implements the pathfinding engine over a navigation
// mesh: nearest-point lookup, polygon graph search with string
// pulling, raycasts and random sampling, all gated by a mutable
// area/flag filter.
package query

import (
	"math"

	"github.com/pthm-cable/navkit/navmesh"
)

// Filter decides which polygons a query may traverse and how much
// each area type costs. Flag masks act on polygon flags; the area
// masks and cost table act on the 64 area types.
type Filter struct {
	IncludeFlags uint16 // polygon must carry at least one of these
	ExcludeFlags uint16 // polygon must carry none of these

	areaInclude uint64
	areaExclude uint64
	costs       [navmesh.MaxAreas]float32
}

// NewFilter returns a filter that passes every flagged polygon except
// obstructed ones, with all areas enabled at cost 1.
func NewFilter() *Filter {
	f := &Filter{
		IncludeFlags: 0xffff &^ navmesh.FlagObstructed,
		ExcludeFlags: navmesh.FlagObstructed,
		areaInclude:  ^uint64(0),
	}
	for i := range f.costs {
		f.costs[i] = 1
	}
	return f
}

// Pass reports whether the polygon is traversable under the filter.
func (f *Filter) Pass(p *navmesh.Poly) bool {
	if p.Flags&f.IncludeFlags == 0 || p.Flags&f.ExcludeFlags != 0 {
		return false
	}
	bit := uint64(1) << p.Area
	return f.areaInclude&bit != 0 && f.areaExclude&bit == 0
}

// Cost returns the traversal-cost multiplier for an area. Zero is a
// legal cost; exclusion goes through SetAreaEnabled, never costs.
func (f *Filter) Cost(area uint8) float32 {
	if area >= navmesh.MaxAreas {
		return float32(math.Inf(1))
	}
	return f.costs[area]
}

// SetCost sets the traversal-cost multiplier for an area.
func (f *Filter) SetCost(area uint8, cost float32) {
	if area < navmesh.MaxAreas && cost >= 0 {
		f.costs[area] = cost
	}
}

// SetCosts replaces the whole cost table.
func (f *Filter) SetCosts(costs [navmesh.MaxAreas]float32) {
	f.costs = costs
}

// SetAreaEnabled toggles an area. Enabling sets its include bit and
// clears its exclude bit; disabling does the reverse.
func (f *Filter) SetAreaEnabled(area uint8, enabled bool) {
	if area >= navmesh.MaxAreas {
		return
	}
	bit := uint64(1) << area
	if enabled {
		f.areaInclude |= bit
		f.areaExclude &^= bit
	} else {
		f.areaInclude &^= bit
		f.areaExclude |= bit
	}
}

// AreaEnabled reports whether an area is traversable.
func (f *Filter) AreaEnabled(area uint8) bool {
	if area >= navmesh.MaxAreas {
		return false
	}
	bit := uint64(1) << area
	return f.areaInclude&bit != 0 && f.areaExclude&bit == 0
}

// passAll is a permissive filter used by maintenance operations that
// must see obstructed polygons too.
var passAll = &Filter{
	IncludeFlags: 0xffff,
	areaInclude:  ^uint64(0),
	costs: func() [navmesh.MaxAreas]float32 {
		var c [navmesh.MaxAreas]float32
		for i := range c {
			c[i] = 1
		}
		return c
	}(),
}
