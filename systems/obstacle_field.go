// Package systems implements the navigation systems: obstacle and flow
// fields, footprints, the flow-field cache, seeking, and local avoidance.
package systems

import (
	"github.com/pthm-cable/crowd/components"
	"github.com/pthm-cable/crowd/field"
)

// Cost is the obstacle field's per-cell value: blocked outright, or
// traversable by agents up to (and including) Size.
type Cost struct {
	Blocked bool
	Size    components.AgentSize
}

// CostTraversable admits agents of the given size and smaller.
func CostTraversable(size components.AgentSize) Cost { return Cost{Size: size} }

// CostBlocked admits nothing.
func CostBlocked() Cost { return Cost{Blocked: true} }

// Admits reports whether an agent of the given size may stand on a cell
// with this cost.
func (c Cost) Admits(size components.AgentSize) bool {
	return !c.Blocked && size <= c.Size
}

// Stricter reports whether c blocks at least as much as o.
func (c Cost) Stricter(o Cost) bool {
	if c.Blocked {
		return true
	}
	if o.Blocked {
		return false
	}
	return c.Size <= o.Size
}

// ExpandedTraversable maps a splatted size class to the cost written into
// the field: a footprint expanded for size S is impassable for S but still
// admits the next size down. Small leaves no room at all.
func ExpandedTraversable(size components.AgentSize) Cost {
	if size == components.SizeSmall {
		return CostBlocked()
	}
	return CostTraversable(size - 1)
}

// Occupant records what splatted a cell, so the flow-field build can route
// through crowds (agents) but never through structures.
type Occupant uint8

const (
	OccupantNone Occupant = iota
	OccupantAgent
	OccupantObstacle
)

// ObstacleField is the shared per-cell cost field all size classes read.
// It is fully rebuilt (Clear + Splat everything) whenever any footprint
// changes; Version is bumped per rebuild so caches can invalidate.
type ObstacleField struct {
	layout    field.Layout
	costs     *field.Field[Cost]
	occupants *field.Field[Occupant]
	version   uint64
}

// NewObstacleField creates an all-traversable field over the layout.
func NewObstacleField(layout field.Layout) *ObstacleField {
	f := &ObstacleField{
		layout:    layout,
		costs:     field.NewField[Cost](layout.Width, layout.Height),
		occupants: field.NewField[Occupant](layout.Width, layout.Height),
	}
	f.Clear()
	return f
}

// Layout returns the field's layout.
func (f *ObstacleField) Layout() field.Layout { return f.layout }

// Version identifies the current rebuild generation.
func (f *ObstacleField) Version() uint64 { return f.version }

// Bump marks a completed rebuild.
func (f *ObstacleField) Bump() { f.version++ }

// Clear resets every cell to the default cost (traversable by the largest
// size class) and clears occupants.
func (f *ObstacleField) Clear() {
	f.costs.Fill(CostTraversable(components.LargestAgentSize))
	f.occupants.Fill(OccupantNone)
}

// Splat writes the expanded-traversable cost for the given size class over
// the cells. Callers splat size classes from largest to smallest; a cell
// only ever tightens, never loosens, regardless of order. An obstacle cell
// never relabels as an agent: flow builds must keep pricing it as a wall,
// not a crowd, even when a blocking agent's footprint overlaps it.
func (f *ObstacleField) Splat(cells []field.Cell, size components.AgentSize, occ Occupant) {
	cost := ExpandedTraversable(size)
	for _, c := range cells {
		if !f.costs.InBounds(c) {
			continue
		}
		if !cost.Stricter(f.costs.At(c)) {
			continue
		}
		f.costs.Set(c, cost)
		if occ == OccupantAgent && f.occupants.At(c) == OccupantObstacle {
			continue
		}
		f.occupants.Set(c, occ)
	}
}

// SplatBounds blocks the boundary ring for each size class so flow fields
// never route agents half-off the field.
func (f *ObstacleField) SplatBounds() {
	for size := components.AgentSize(0); size < components.NumAgentSizes; size++ {
		inset := size.Cells() / 2
		f.Splat(f.layout.Bounds(inset), size, OccupantObstacle)
	}
}

// Traversable reports whether an agent of the given size may stand on the
// cell. Out-of-bounds cells are never traversable.
func (f *ObstacleField) Traversable(c field.Cell, size components.AgentSize) bool {
	if !f.costs.InBounds(c) {
		return false
	}
	return f.costs.At(c).Admits(size)
}

// CostAt returns the cell's cost. The cell must be in bounds.
func (f *ObstacleField) CostAt(c field.Cell) Cost { return f.costs.At(c) }

// OccupantAt returns what splatted the cell, or OccupantNone.
func (f *ObstacleField) OccupantAt(c field.Cell) Occupant {
	if !f.occupants.InBounds(c) {
		return OccupantNone
	}
	return f.occupants.At(c)
}

// Snapshot deep-copies the field for a background flow build.
func (f *ObstacleField) Snapshot() *ObstacleField {
	return &ObstacleField{
		layout:    f.layout,
		costs:     f.costs.Clone(),
		occupants: f.occupants.Clone(),
		version:   f.version,
	}
}
