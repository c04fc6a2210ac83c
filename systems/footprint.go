package systems

import (
	"math"
	"sort"

	"github.com/pthm-cable/crowd/components"
	"github.com/pthm-cable/crowd/field"
)

// borderPaddingFactor scales the half-cell padding added around an agent's
// radius when rasterizing its footprint, so agents sitting on a cell edge
// still claim both cells.
const borderPaddingFactor = 0.5

// AgentFootprint appends the cells covered by a disc of the given radius
// centered at (x, y) to dst and returns it. Cells outside the layout are
// skipped.
func AgentFootprint(layout field.Layout, x, y, radius float32, dst []field.Cell) []field.Cell {
	limit := radius + layout.CellSize/2*borderPaddingFactor
	limitSq := limit * limit

	min := layout.CellAt(x-limit, y-limit)
	max := layout.CellAt(x+limit, y+limit)

	for cy := min.Y; cy <= max.Y; cy++ {
		for cx := min.X; cx <= max.X; cx++ {
			c := field.At(cx, cy)
			if !layout.InBounds(c) {
				continue
			}
			px, py := layout.PositionOf(c)
			dx, dy := px-x, py-y
			if dx*dx+dy*dy <= limitSq {
				dst = append(dst, c)
			}
		}
	}
	return dst
}

// ObstacleFootprint rasterizes an obstacle's inflated convex hull into
// cells, appended to dst. Obstacles whose height band misses
// [0, agentHeight] contribute nothing.
func ObstacleFootprint(layout field.Layout, pos components.Position, obs *components.Obstacle, agentHeight float32, dst []field.Cell) []field.Cell {
	if obs.Bottom > agentHeight || obs.Top < 0 {
		return dst
	}
	if len(obs.Outline) < 3 {
		return dst
	}

	world := make([][2]float32, len(obs.Outline))
	for i, v := range obs.Outline {
		world[i] = [2]float32{v[0] + pos.X, v[1] + pos.Y}
	}

	hull := ConvexHull(world)
	if len(hull) < 3 {
		return dst
	}
	hull = inflatePolygon(hull, layout.CellSize)

	minX, minY := hull[0][0], hull[0][1]
	maxX, maxY := minX, minY
	for _, v := range hull[1:] {
		minX = minF32(minX, v[0])
		minY = minF32(minY, v[1])
		maxX = maxF32(maxX, v[0])
		maxY = maxF32(maxY, v[1])
	}

	half := layout.CellSize / 2
	min := layout.CellAt(minX-half, minY-half)
	max := layout.CellAt(maxX+half, maxY+half)

	for cy := min.Y; cy <= max.Y; cy++ {
		for cx := min.X; cx <= max.X; cx++ {
			c := field.At(cx, cy)
			if !layout.InBounds(c) {
				continue
			}
			px, py := layout.PositionOf(c)
			if PointInPolygon(px, py, hull) {
				dst = append(dst, c)
			}
		}
	}
	return dst
}

// ExpandFootprint dilates the footprint by radiusCells in Chebyshev
// distance, deduplicated, appended to dst. radiusCells <= 0 copies the
// footprint unchanged.
func ExpandFootprint(cells []field.Cell, radiusCells int, dst []field.Cell) []field.Cell {
	if radiusCells <= 0 {
		return append(dst, cells...)
	}

	seen := make(map[field.Cell]struct{}, len(cells)*(2*radiusCells+1))
	for _, c := range cells {
		for dy := -radiusCells; dy <= radiusCells; dy++ {
			for dx := -radiusCells; dx <= radiusCells; dx++ {
				e := c.Add(dx, dy)
				if _, ok := seen[e]; ok {
					continue
				}
				seen[e] = struct{}{}
				dst = append(dst, e)
			}
		}
	}
	return dst
}

// ExpansionCells returns how many cells a footprint grows for a size class:
// the floor of the class radius in cells.
func ExpansionCells(size components.AgentSize) int {
	return size.Cells() / 2
}

// ConvexHull returns the convex hull of the points in counterclockwise
// order (Andrew's monotone chain). Collinear points are dropped. The input
// slice is sorted in place.
func ConvexHull(points [][2]float32) [][2]float32 {
	if len(points) < 3 {
		return points
	}

	sort.Slice(points, func(i, j int) bool {
		if points[i][0] != points[j][0] {
			return points[i][0] < points[j][0]
		}
		return points[i][1] < points[j][1]
	})

	cross := func(o, a, b [2]float32) float32 {
		return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
	}

	hull := make([][2]float32, 0, len(points)+1)
	// lower
	for _, p := range points {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	// upper
	lower := len(hull) + 1
	for i := len(points) - 2; i >= 0; i-- {
		p := points[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// PointInPolygon reports whether (x, y) lies inside the polygon using the
// even-odd rule. Points on the boundary may land on either side.
func PointInPolygon(x, y float32, poly [][2]float32) bool {
	inside := false
	n := len(poly)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := poly[i][0], poly[i][1]
		xj, yj := poly[j][0], poly[j][1]
		if (yi > y) != (yj > y) &&
			x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// inflatePolygon pushes every vertex radially away from the centroid by
// border world units.
func inflatePolygon(poly [][2]float32, border float32) [][2]float32 {
	var cx, cy float32
	for _, v := range poly {
		cx += v[0]
		cy += v[1]
	}
	n := float32(len(poly))
	cx /= n
	cy /= n

	out := make([][2]float32, len(poly))
	for i, v := range poly {
		dx, dy := v[0]-cx, v[1]-cy
		d := float32(math.Sqrt(float64(dx*dx + dy*dy)))
		if d > 1e-6 {
			dx, dy = dx/d, dy/d
		}
		out[i] = [2]float32{v[0] + dx*border, v[1] + dy*border}
	}
	return out
}

func minF32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxF32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
