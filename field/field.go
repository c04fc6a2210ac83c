// Package field provides the grid primitives for flow-field navigation:
// cells, directions, generic 2D fields, and the world<->grid layout.
package field

import "math"

// Cell is a grid coordinate. Cells outside a layout are rejected by
// Layout.Index rather than wrapped.
type Cell struct {
	X, Y int
}

// At constructs a cell.
func At(x, y int) Cell { return Cell{X: x, Y: y} }

// Add offsets the cell by dx, dy.
func (c Cell) Add(dx, dy int) Cell { return Cell{X: c.X + dx, Y: c.Y + dy} }

// Neighbor returns the adjacent cell in the given direction.
// DirNone returns the cell itself.
func (c Cell) Neighbor(d Direction) Cell {
	dx, dy := d.Offset()
	return c.Add(dx, dy)
}

// ChebyshevDist returns the chessboard distance between two cells.
func (c Cell) ChebyshevDist(o Cell) int {
	dx := absInt(c.X - o.X)
	dy := absInt(c.Y - o.Y)
	if dx > dy {
		return dx
	}
	return dy
}

// ManhattanDist returns the taxicab distance between two cells.
func (c Cell) ManhattanDist(o Cell) int {
	return absInt(c.X-o.X) + absInt(c.Y-o.Y)
}

// EuclideanDist returns the straight-line distance between cell coordinates.
func (c Cell) EuclideanDist(o Cell) float32 {
	dx := float64(c.X - o.X)
	dy := float64(c.Y - o.Y)
	return float32(math.Sqrt(dx*dx + dy*dy))
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Direction is one of the eight grid directions, or none.
type Direction uint8

const (
	DirNone Direction = iota
	DirN
	DirNE
	DirE
	DirSE
	DirS
	DirSW
	DirW
	DirNW
)

// DirectionsAdjacent lists the four orthogonal directions.
var DirectionsAdjacent = [4]Direction{DirN, DirE, DirS, DirW}

// DirectionsDiagonal lists the four diagonal directions.
var DirectionsDiagonal = [4]Direction{DirNE, DirSE, DirSW, DirNW}

var dirOffsets = [9][2]int{
	DirNone: {0, 0},
	DirN:    {0, 1},
	DirNE:   {1, 1},
	DirE:    {1, 0},
	DirSE:   {1, -1},
	DirS:    {0, -1},
	DirSW:   {-1, -1},
	DirW:    {-1, 0},
	DirNW:   {-1, 1},
}

const invSqrt2 = float32(0.70710678118654752440)

var dirVelocities = [9][2]float32{
	DirNone: {0, 0},
	DirN:    {0, 1},
	DirNE:   {invSqrt2, invSqrt2},
	DirE:    {1, 0},
	DirSE:   {invSqrt2, -invSqrt2},
	DirS:    {0, -1},
	DirSW:   {-invSqrt2, -invSqrt2},
	DirW:    {-1, 0},
	DirNW:   {-invSqrt2, invSqrt2},
}

// Offset returns the cell-space step for the direction.
func (d Direction) Offset() (dx, dy int) {
	o := dirOffsets[d]
	return o[0], o[1]
}

// Velocity returns the unit direction vector (diagonals normalized).
// DirNone returns the zero vector.
func (d Direction) Velocity() [2]float32 { return dirVelocities[d] }

// IsDiagonal reports whether the direction steps on both axes.
func (d Direction) IsDiagonal() bool {
	return d == DirNE || d == DirSE || d == DirSW || d == DirNW
}

// Opposite returns the reversed direction. DirNone is its own opposite.
func (d Direction) Opposite() Direction {
	switch d {
	case DirN:
		return DirS
	case DirNE:
		return DirSW
	case DirE:
		return DirW
	case DirSE:
		return DirNW
	case DirS:
		return DirN
	case DirSW:
		return DirNE
	case DirW:
		return DirE
	case DirNW:
		return DirSE
	}
	return DirNone
}

// Toward returns the direction of the single-cell step from c to its
// neighbor n, or DirNone when n is not one of the eight neighbors.
func Toward(c, n Cell) Direction {
	dx := n.X - c.X
	dy := n.Y - c.Y
	for d := DirN; d <= DirNW; d++ {
		o := dirOffsets[d]
		if o[0] == dx && o[1] == dy {
			return d
		}
	}
	return DirNone
}

// Field is a dense row-major 2D grid of T.
type Field[T any] struct {
	width, height int
	data          []T
}

// NewField allocates a width x height field of zero values.
func NewField[T any](width, height int) *Field[T] {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Field[T]{width: width, height: height, data: make([]T, width*height)}
}

// Width returns the field width in cells.
func (f *Field[T]) Width() int { return f.width }

// Height returns the field height in cells.
func (f *Field[T]) Height() int { return f.height }

// Len returns the number of cells.
func (f *Field[T]) Len() int { return len(f.data) }

// InBounds reports whether the cell lies inside the field.
func (f *Field[T]) InBounds(c Cell) bool {
	return c.X >= 0 && c.X < f.width && c.Y >= 0 && c.Y < f.height
}

// Index returns the flat index for an in-bounds cell.
func (f *Field[T]) Index(c Cell) int { return c.Y*f.width + c.X }

// At returns the value at the cell. The cell must be in bounds.
func (f *Field[T]) At(c Cell) T { return f.data[c.Y*f.width+c.X] }

// AtIndex returns the value at a flat index.
func (f *Field[T]) AtIndex(i int) T { return f.data[i] }

// Set stores a value at the cell. The cell must be in bounds.
func (f *Field[T]) Set(c Cell, v T) { f.data[c.Y*f.width+c.X] = v }

// SetIndex stores a value at a flat index.
func (f *Field[T]) SetIndex(i int, v T) { f.data[i] = v }

// Fill sets every cell to v.
func (f *Field[T]) Fill(v T) {
	for i := range f.data {
		f.data[i] = v
	}
}

// Clone returns a deep copy of the field.
func (f *Field[T]) Clone() *Field[T] {
	data := make([]T, len(f.data))
	copy(data, f.data)
	return &Field[T]{width: f.width, height: f.height, data: data}
}

// CopyFrom overwrites this field's contents from src.
// Both fields must have the same dimensions.
func (f *Field[T]) CopyFrom(src *Field[T]) {
	copy(f.data, src.data)
}

// CellAtIndex converts a flat index back to a cell.
func (f *Field[T]) CellAtIndex(i int) Cell {
	return Cell{X: i % f.width, Y: i / f.width}
}
