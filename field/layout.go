package field

import "math"

// Layout maps between world positions and grid cells. The grid is centered
// on the world origin: cell (0,0)'s center sits at the bottom-left, offset so
// the field as a whole is symmetric around (0,0).
type Layout struct {
	Width    int
	Height   int
	CellSize float32
	OffsetX  float32
	OffsetY  float32
}

// NewLayout creates a centered layout of width x height cells.
func NewLayout(width, height int, cellSize float32) Layout {
	return Layout{
		Width:    width,
		Height:   height,
		CellSize: cellSize,
		OffsetX:  centeredOffset(width, cellSize),
		OffsetY:  centeredOffset(height, cellSize),
	}
}

func centeredOffset(n int, cellSize float32) float32 {
	return -(float32(n)/2)*cellSize + cellSize/2
}

// CellAt returns the cell containing the world position. The result may be
// out of bounds; check with InBounds or Index.
func (l Layout) CellAt(x, y float32) Cell {
	return Cell{
		X: int(math.Round(float64((x - l.OffsetX) / l.CellSize))),
		Y: int(math.Round(float64((y - l.OffsetY) / l.CellSize))),
	}
}

// PositionOf returns the world-space center of the cell.
func (l Layout) PositionOf(c Cell) (x, y float32) {
	return float32(c.X)*l.CellSize + l.OffsetX, float32(c.Y)*l.CellSize + l.OffsetY
}

// InBounds reports whether the cell lies inside the layout.
func (l Layout) InBounds(c Cell) bool {
	return c.X >= 0 && c.X < l.Width && c.Y >= 0 && c.Y < l.Height
}

// Index returns the flat index for the cell and whether it is in bounds.
func (l Layout) Index(c Cell) (int, bool) {
	if !l.InBounds(c) {
		return 0, false
	}
	return c.Y*l.Width + c.X, true
}

// Center returns the cell at the middle of the layout.
func (l Layout) Center() Cell { return Cell{X: l.Width / 2, Y: l.Height / 2} }

// Bounds returns the ring of boundary cells inset by inset cells. These are
// splatted blocked per size class so agents cannot path half-off the field.
func (l Layout) Bounds(inset int) []Cell {
	if inset < 0 {
		inset = 0
	}
	minX, minY := inset, inset
	maxX, maxY := l.Width-1-inset, l.Height-1-inset
	if minX > maxX || minY > maxY {
		return nil
	}

	cells := make([]Cell, 0, 2*(maxX-minX+1)+2*(maxY-minY+1))
	for x := minX; x <= maxX; x++ {
		cells = append(cells, Cell{X: x, Y: minY})
		if maxY != minY {
			cells = append(cells, Cell{X: x, Y: maxY})
		}
	}
	for y := minY + 1; y < maxY; y++ {
		cells = append(cells, Cell{X: minX, Y: y})
		if maxX != minX {
			cells = append(cells, Cell{X: maxX, Y: y})
		}
	}
	return cells
}
