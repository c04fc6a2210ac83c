package systems

import (
	"testing"

	"github.com/pthm-cable/crowd/components"
	"github.com/pthm-cable/crowd/field"
)

func TestCostAdmits(t *testing.T) {
	if CostBlocked().Admits(components.SizeSmall) {
		t.Error("blocked cost admits small")
	}
	for size := components.AgentSize(0); size < components.NumAgentSizes; size++ {
		cost := CostTraversable(size)
		for probe := components.AgentSize(0); probe < components.NumAgentSizes; probe++ {
			want := probe <= size
			if got := cost.Admits(probe); got != want {
				t.Errorf("CostTraversable(%v).Admits(%v) = %v, want %v", size, probe, got, want)
			}
		}
	}
}

func TestExpandedTraversable(t *testing.T) {
	tests := []struct {
		size components.AgentSize
		want Cost
	}{
		{components.SizeSmall, CostBlocked()},
		{components.SizeMedium, CostTraversable(components.SizeSmall)},
		{components.SizeLarge, CostTraversable(components.SizeMedium)},
		{components.SizeHuge, CostTraversable(components.SizeLarge)},
	}
	for _, tc := range tests {
		if got := ExpandedTraversable(tc.size); got != tc.want {
			t.Errorf("ExpandedTraversable(%v) = %+v, want %+v", tc.size, got, tc.want)
		}
	}
}

// TestSplatOrderIndependent verifies a cell only ever tightens: splatting
// size classes in any order ends at the strictest cost.
func TestSplatOrderIndependent(t *testing.T) {
	layout := field.NewLayout(8, 8, 1.0)
	cell := []field.Cell{field.At(4, 4)}

	orders := [][]components.AgentSize{
		{components.SizeHuge, components.SizeLarge, components.SizeMedium, components.SizeSmall},
		{components.SizeSmall, components.SizeMedium, components.SizeLarge, components.SizeHuge},
		{components.SizeMedium, components.SizeHuge, components.SizeSmall, components.SizeLarge},
	}
	for _, order := range orders {
		f := NewObstacleField(layout)
		for _, size := range order {
			f.Splat(cell, size, OccupantObstacle)
		}
		if got := f.CostAt(cell[0]); got != CostBlocked() {
			t.Errorf("order %v: cost %+v, want blocked", order, got)
		}
	}

	// Without the small splat the strictest survivor admits only small.
	f := NewObstacleField(layout)
	f.Splat(cell, components.SizeHuge, OccupantObstacle)
	f.Splat(cell, components.SizeMedium, OccupantObstacle)
	f.Splat(cell, components.SizeLarge, OccupantObstacle)
	if got := f.CostAt(cell[0]); got != CostTraversable(components.SizeSmall) {
		t.Errorf("cost %+v, want traversable by small only", got)
	}
}

// TestSplatKeepsStricterOccupant verifies a looser splat does not overwrite
// the occupant of a stricter one.
func TestSplatKeepsStricterOccupant(t *testing.T) {
	layout := field.NewLayout(8, 8, 1.0)
	f := NewObstacleField(layout)
	c := field.At(3, 3)

	f.Splat([]field.Cell{c}, components.SizeSmall, OccupantObstacle)
	f.Splat([]field.Cell{c}, components.SizeHuge, OccupantAgent)

	if got := f.CostAt(c); got != CostBlocked() {
		t.Errorf("cost %+v, want blocked", got)
	}
	if got := f.OccupantAt(c); got != OccupantObstacle {
		t.Errorf("occupant %d, want obstacle", got)
	}

	// Equal cost must not relabel a wall as a crowd either: a blocking
	// agent's footprint over an obstacle cell leaves the obstacle in place.
	f = NewObstacleField(layout)
	f.Splat([]field.Cell{c}, components.SizeSmall, OccupantObstacle)
	f.Splat([]field.Cell{c}, components.SizeSmall, OccupantAgent)
	if got := f.OccupantAt(c); got != OccupantObstacle {
		t.Errorf("equal-cost agent splat relabeled the wall: occupant %d, want obstacle", got)
	}

	// The reverse order ends at the obstacle too.
	f = NewObstacleField(layout)
	f.Splat([]field.Cell{c}, components.SizeSmall, OccupantAgent)
	f.Splat([]field.Cell{c}, components.SizeSmall, OccupantObstacle)
	if got := f.OccupantAt(c); got != OccupantObstacle {
		t.Errorf("obstacle splat over an agent: occupant %d, want obstacle", got)
	}
}

func TestObstacleFieldTraversable(t *testing.T) {
	layout := field.NewLayout(6, 6, 1.0)
	f := NewObstacleField(layout)

	if !f.Traversable(field.At(2, 2), components.LargestAgentSize) {
		t.Error("fresh field should admit the largest size everywhere")
	}
	if f.Traversable(field.At(-1, 2), components.SizeSmall) {
		t.Error("out-of-bounds cell reported traversable")
	}
	if f.Traversable(field.At(2, 6), components.SizeSmall) {
		t.Error("out-of-bounds cell reported traversable")
	}

	f.Splat([]field.Cell{field.At(2, 2)}, components.SizeMedium, OccupantObstacle)
	if f.Traversable(field.At(2, 2), components.SizeMedium) {
		t.Error("medium admitted onto a medium-expanded cell")
	}
	if !f.Traversable(field.At(2, 2), components.SizeSmall) {
		t.Error("small rejected from a medium-expanded cell")
	}
}

// TestSplatBounds verifies each size class is fenced off the boundary ring
// at its own inset.
func TestSplatBounds(t *testing.T) {
	layout := field.NewLayout(16, 16, 1.0)
	f := NewObstacleField(layout)
	f.SplatBounds()

	edge := field.At(0, 8)
	if f.Traversable(edge, components.SizeSmall) {
		t.Error("outermost ring admits small")
	}

	// SizeHuge spans 7 cells, so its center must keep 3 cells off the edge.
	for inset := 0; inset <= 3; inset++ {
		c := field.At(inset, 8)
		if f.Traversable(c, components.SizeHuge) {
			t.Errorf("huge admitted at inset %d", inset)
		}
	}
	if !f.Traversable(field.At(4, 8), components.SizeHuge) {
		t.Error("huge rejected past its boundary inset")
	}
	if !f.Traversable(field.At(1, 8), components.SizeSmall) {
		t.Error("small rejected just inside the outermost ring")
	}
}

func TestObstacleFieldClearAndVersion(t *testing.T) {
	layout := field.NewLayout(6, 6, 1.0)
	f := NewObstacleField(layout)

	v := f.Version()
	f.Splat([]field.Cell{field.At(1, 1)}, components.SizeSmall, OccupantAgent)
	f.Bump()
	if f.Version() != v+1 {
		t.Errorf("version %d, want %d", f.Version(), v+1)
	}

	f.Clear()
	if !f.Traversable(field.At(1, 1), components.LargestAgentSize) {
		t.Error("cell still restricted after Clear")
	}
	if f.OccupantAt(field.At(1, 1)) != OccupantNone {
		t.Error("occupant survived Clear")
	}
}

// TestSnapshotIsIndependent verifies background builds see a frozen copy.
func TestSnapshotIsIndependent(t *testing.T) {
	layout := field.NewLayout(6, 6, 1.0)
	f := NewObstacleField(layout)
	f.Splat([]field.Cell{field.At(2, 2)}, components.SizeSmall, OccupantObstacle)

	snap := f.Snapshot()
	f.Clear()

	if snap.Traversable(field.At(2, 2), components.SizeSmall) {
		t.Error("snapshot lost the splat after the live field was cleared")
	}
	if snap.OccupantAt(field.At(2, 2)) != OccupantObstacle {
		t.Error("snapshot lost the occupant")
	}
	if !f.Traversable(field.At(2, 2), components.SizeSmall) {
		t.Error("live field still splatted after Clear")
	}
}
