package systems

import (
	"testing"

	"github.com/pthm-cable/crowd/components"
	"github.com/pthm-cable/crowd/field"
)

// TestAgentFootprintCentered verifies a cell-sized agent at a cell center
// claims that cell, and the claim grows with the radius.
func TestAgentFootprintCentered(t *testing.T) {
	layout := field.NewLayout(16, 16, 1.0)
	c := field.At(8, 8)
	x, y := layout.PositionOf(c)

	small := AgentFootprint(layout, x, y, components.SizeSmall.Radius(layout.CellSize), nil)
	if len(small) == 0 {
		t.Fatal("small footprint claimed nothing")
	}
	found := false
	for _, fc := range small {
		if fc == c {
			found = true
		}
	}
	if !found {
		t.Errorf("footprint %v misses the cell under the agent", small)
	}

	large := AgentFootprint(layout, x, y, components.SizeLarge.Radius(layout.CellSize), nil)
	if len(large) <= len(small) {
		t.Errorf("large footprint (%d cells) not bigger than small (%d cells)", len(large), len(small))
	}
}

// TestAgentFootprintBorderPadding verifies the half-cell padding claims the
// neighbors the bare radius would miss.
func TestAgentFootprintBorderPadding(t *testing.T) {
	layout := field.NewLayout(16, 16, 1.0)
	c := field.At(8, 8)
	x, y := layout.PositionOf(c)

	// radius 0.8 plus the 0.25 padding reaches the orthogonal neighbor
	// centers one cell away; the diagonals stay out of reach.
	cells := AgentFootprint(layout, x, y, 0.8, nil)
	set := make(map[field.Cell]struct{}, len(cells))
	for _, fc := range cells {
		set[fc] = struct{}{}
	}
	for _, d := range field.DirectionsAdjacent {
		if _, ok := set[c.Neighbor(d)]; !ok {
			t.Errorf("padded footprint misses orthogonal neighbor %v", c.Neighbor(d))
		}
	}
	for _, d := range field.DirectionsDiagonal {
		if _, ok := set[c.Neighbor(d)]; ok {
			t.Errorf("footprint claims diagonal neighbor %v beyond the padded radius", c.Neighbor(d))
		}
	}
}

// TestAgentFootprintSymmetric verifies a centered disc claims a symmetric
// cell set.
func TestAgentFootprintSymmetric(t *testing.T) {
	layout := field.NewLayout(17, 17, 1.0)
	c := layout.Center()
	x, y := layout.PositionOf(c)

	cells := AgentFootprint(layout, x, y, components.SizeMedium.Radius(layout.CellSize), nil)
	set := make(map[field.Cell]struct{}, len(cells))
	for _, fc := range cells {
		set[fc] = struct{}{}
	}
	for _, fc := range cells {
		mirror := field.At(2*c.X-fc.X, 2*c.Y-fc.Y)
		if _, ok := set[mirror]; !ok {
			t.Errorf("footprint contains %v but not its mirror %v", fc, mirror)
		}
	}
}

func TestAgentFootprintSkipsOutOfBounds(t *testing.T) {
	layout := field.NewLayout(8, 8, 1.0)
	x, y := layout.PositionOf(field.At(0, 0))

	cells := AgentFootprint(layout, x, y, components.SizeLarge.Radius(layout.CellSize), nil)
	for _, c := range cells {
		if !layout.InBounds(c) {
			t.Errorf("footprint contains out-of-bounds cell %v", c)
		}
	}
}

// TestObstacleFootprintCoversOutline verifies the rasterized hull covers the
// outline's interior and its corners (after inflation by one cell).
func TestObstacleFootprintCoversOutline(t *testing.T) {
	layout := field.NewLayout(32, 32, 1.0)
	obs := &components.Obstacle{
		Outline: [][2]float32{{-3, -2}, {3, -2}, {3, 2}, {-3, 2}},
		Bottom:  0,
		Top:     2,
	}
	pos := components.Position{X: 1, Y: -1}

	cells := ObstacleFootprint(layout, pos, obs, 2.0, nil)
	if len(cells) == 0 {
		t.Fatal("obstacle footprint claimed nothing")
	}

	set := make(map[field.Cell]struct{}, len(cells))
	for _, c := range cells {
		set[c] = struct{}{}
	}
	if _, ok := set[layout.CellAt(pos.X, pos.Y)]; !ok {
		t.Error("footprint misses the obstacle center")
	}
	for _, v := range obs.Outline {
		corner := layout.CellAt(v[0]+pos.X, v[1]+pos.Y)
		if _, ok := set[corner]; !ok {
			t.Errorf("footprint misses outline corner cell %v", corner)
		}
	}
}

// TestObstacleFootprintHeightBand verifies obstacles outside the agents'
// vertical band contribute nothing.
func TestObstacleFootprintHeightBand(t *testing.T) {
	layout := field.NewLayout(16, 16, 1.0)
	outline := [][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}
	pos := components.Position{}

	tests := []struct {
		name        string
		bottom, top float32
		wantCells   bool
	}{
		{"ground level", 0, 2, true},
		{"overhead", 3, 5, false},
		{"underground", -4, -1, false},
		{"straddling the floor", -1, 1, true},
		{"exactly at head height", 2, 4, true},
	}
	for _, tc := range tests {
		obs := &components.Obstacle{Outline: outline, Bottom: tc.bottom, Top: tc.top}
		cells := ObstacleFootprint(layout, pos, obs, 2.0, nil)
		if got := len(cells) > 0; got != tc.wantCells {
			t.Errorf("%s: got %d cells, wantCells=%v", tc.name, len(cells), tc.wantCells)
		}
	}
}

func TestObstacleFootprintDegenerateOutline(t *testing.T) {
	layout := field.NewLayout(16, 16, 1.0)
	obs := &components.Obstacle{Outline: [][2]float32{{0, 0}, {1, 1}}, Top: 2}
	if cells := ObstacleFootprint(layout, components.Position{}, obs, 2.0, nil); len(cells) != 0 {
		t.Errorf("two-point outline produced %d cells", len(cells))
	}
}

// TestExpandFootprint verifies Chebyshev dilation with deduplication.
func TestExpandFootprint(t *testing.T) {
	base := []field.Cell{field.At(5, 5)}

	if got := ExpandFootprint(base, 0, nil); len(got) != 1 || got[0] != base[0] {
		t.Errorf("radius 0 expansion = %v, want the footprint unchanged", got)
	}

	one := ExpandFootprint(base, 1, nil)
	if len(one) != 9 {
		t.Fatalf("radius 1 expansion of one cell = %d cells, want 9", len(one))
	}
	for _, c := range one {
		if base[0].ChebyshevDist(c) > 1 {
			t.Errorf("expanded cell %v farther than radius", c)
		}
	}

	// Two adjacent cells share most of their dilation; dedup keeps it tight.
	pair := []field.Cell{field.At(5, 5), field.At(6, 5)}
	expanded := ExpandFootprint(pair, 1, nil)
	if len(expanded) != 12 {
		t.Errorf("radius 1 expansion of a pair = %d cells, want 12", len(expanded))
	}
	seen := make(map[field.Cell]struct{}, len(expanded))
	for _, c := range expanded {
		if _, dup := seen[c]; dup {
			t.Errorf("duplicate cell %v in expansion", c)
		}
		seen[c] = struct{}{}
	}
}

func TestExpansionCells(t *testing.T) {
	tests := []struct {
		size components.AgentSize
		want int
	}{
		{components.SizeSmall, 0},
		{components.SizeMedium, 1},
		{components.SizeLarge, 2},
		{components.SizeHuge, 3},
	}
	for _, tc := range tests {
		if got := ExpansionCells(tc.size); got != tc.want {
			t.Errorf("ExpansionCells(%v) = %d, want %d", tc.size, got, tc.want)
		}
	}
}

// TestConvexHull verifies interior and collinear points are dropped and the
// winding is counterclockwise.
func TestConvexHull(t *testing.T) {
	points := [][2]float32{
		{0, 0}, {4, 0}, {4, 4}, {0, 4}, // square
		{2, 2},         // interior
		{2, 0}, {4, 2}, // collinear on edges
	}
	hull := ConvexHull(points)
	if len(hull) != 4 {
		t.Fatalf("hull has %d vertices, want 4", len(hull))
	}

	area := float32(0)
	for i := range hull {
		j := (i + 1) % len(hull)
		area += hull[i][0]*hull[j][1] - hull[j][0]*hull[i][1]
	}
	if area <= 0 {
		t.Errorf("hull winding not counterclockwise (signed area %f)", area)
	}
	if area/2 != 16 {
		t.Errorf("hull area %f, want 16", area/2)
	}
}

func TestPointInPolygon(t *testing.T) {
	square := [][2]float32{{0, 0}, {4, 0}, {4, 4}, {0, 4}}

	inside := [][2]float32{{2, 2}, {0.5, 3.5}, {3.9, 0.1}}
	for _, p := range inside {
		if !PointInPolygon(p[0], p[1], square) {
			t.Errorf("point %v reported outside", p)
		}
	}
	outside := [][2]float32{{-1, 2}, {5, 2}, {2, -0.5}, {2, 4.5}}
	for _, p := range outside {
		if PointInPolygon(p[0], p[1], square) {
			t.Errorf("point %v reported inside", p)
		}
	}

	// Concave: the notch is outside.
	notched := [][2]float32{{0, 0}, {4, 0}, {4, 4}, {2, 1}, {0, 4}}
	if PointInPolygon(2, 3, notched) {
		t.Error("point in the notch reported inside")
	}
	if !PointInPolygon(0.5, 1, notched) {
		t.Error("point in the solid wing reported outside")
	}
}
