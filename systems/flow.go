package systems

import (
	"container/heap"
	"errors"
	"math"

	"github.com/pthm-cable/crowd/components"
	"github.com/pthm-cable/crowd/field"
)

// ErrGoalOutOfBounds is returned when none of a build's goal cells lie
// inside the field.
var ErrGoalOutOfBounds = errors.New("flow field: no goal cell inside the field")

// GoalDepth marks occupied cells directly adjacent to the goal: the goal is
// surrounded by agents and traversal should keep moving toward it instead
// of pricing the crowd as deep territory.
const GoalDepth uint8 = math.MaxUint8

// Tier orders integration costs by territory kind. Lower tiers are always
// preferred over higher ones.
type Tier uint8

const (
	TierGoal Tier = iota
	TierTraversable
	TierOccupied
	TierBlocked
)

// IntegrationCost is the per-cell cost accumulated by the flow-field build.
// Depth counts consecutive occupied/blocked cells crossed; Cost is the
// accumulated step distance.
type IntegrationCost struct {
	Tier  Tier
	Depth uint8
	Cost  uint8
}

// IntegrationGoal is the seed cost of goal cells.
func IntegrationGoal() IntegrationCost { return IntegrationCost{Tier: TierGoal} }

// IntegrationTraversable is open territory at the given accumulated cost.
func IntegrationTraversable(cost uint8) IntegrationCost {
	return IntegrationCost{Tier: TierTraversable, Cost: cost}
}

// IntegrationOccupied is territory covered by agent footprints.
func IntegrationOccupied(depth, cost uint8) IntegrationCost {
	return IntegrationCost{Tier: TierOccupied, Depth: depth, Cost: cost}
}

// IntegrationBlocked is territory covered by structures (or never reached).
func IntegrationBlocked(depth, cost uint8) IntegrationCost {
	return IntegrationCost{Tier: TierBlocked, Depth: depth, Cost: cost}
}

func defaultIntegration() IntegrationCost {
	return IntegrationBlocked(GoalDepth, math.MaxUint8)
}

// Scalar flattens the cost for distance accumulation. Depth multiplies cost
// inside occupied/blocked territory, except occupied cells at GoalDepth
// which stay cheap so crowds around the goal stay attractive.
func (ic IntegrationCost) Scalar() uint8 {
	switch ic.Tier {
	case TierBlocked:
		return satMul(ic.Depth, ic.Cost)
	case TierOccupied:
		if ic.Depth == GoalDepth {
			return ic.Cost
		}
		return satMul(ic.Depth, ic.Cost)
	case TierTraversable:
		return ic.Cost
	}
	return 0
}

// DepthAndCost returns the components used when stepping into
// occupied/blocked territory from this cell.
func (ic IntegrationCost) DepthAndCost() (uint8, uint8) {
	switch ic.Tier {
	case TierBlocked, TierOccupied:
		return ic.Depth, ic.Cost
	case TierTraversable:
		return 0, ic.Cost
	}
	return GoalDepth, 0
}

// ValidTraversal reports whether the build may relax a neighbor with the
// candidate cost from this cell. Blocked territory only spreads through
// blocked territory; occupied territory cannot tunnel back into the open,
// except from the crowd ring around the goal.
func (ic IntegrationCost) ValidTraversal(candidate IntegrationCost) bool {
	switch ic.Tier {
	case TierBlocked:
		return candidate.Tier == TierBlocked || candidate.Tier == TierGoal
	case TierOccupied:
		if ic.Depth == GoalDepth {
			return candidate.Tier == TierTraversable || candidate.Tier == TierOccupied || candidate.Tier == TierGoal
		}
		return candidate.Tier == TierOccupied || candidate.Tier == TierGoal
	}
	return true
}

// Compare orders costs: Goal < Traversable < Occupied < Blocked; within a
// tier lower depth, then lower cost. Returns -1, 0, or 1.
func (ic IntegrationCost) Compare(o IntegrationCost) int {
	if ic.Tier != o.Tier {
		if ic.Tier < o.Tier {
			return -1
		}
		return 1
	}
	switch ic.Tier {
	case TierOccupied, TierBlocked:
		if ic.Depth != o.Depth {
			if ic.Depth < o.Depth {
				return -1
			}
			return 1
		}
		fallthrough
	case TierTraversable:
		if ic.Cost != o.Cost {
			if ic.Cost < o.Cost {
				return -1
			}
			return 1
		}
	}
	return 0
}

func satAdd(a, b uint8) uint8 {
	s := uint16(a) + uint16(b)
	if s > math.MaxUint8 {
		return math.MaxUint8
	}
	return uint8(s)
}

func satMul(a, b uint8) uint8 {
	p := uint16(a) * uint16(b)
	if p > math.MaxUint8 {
		return math.MaxUint8
	}
	return uint8(p)
}

// FlowField holds the per-goal, per-size direction field plus the
// integration field and a reusable build heap.
type FlowField struct {
	flow        *field.Field[field.Direction]
	integration *field.Field[IntegrationCost]
	heap        *buildHeap
	built       bool
}

// NewFlowField allocates an unbuilt flow field over the layout.
func NewFlowField(layout field.Layout) *FlowField {
	return &FlowField{
		flow:        field.NewField[field.Direction](layout.Width, layout.Height),
		integration: field.NewField[IntegrationCost](layout.Width, layout.Height),
		heap:        newBuildHeap(layout.Width, layout.Height),
	}
}

// Built reports whether the field has completed at least one build.
func (f *FlowField) Built() bool { return f.built }

// DirectionAt returns the stored direction, DirNone out of bounds.
func (f *FlowField) DirectionAt(c field.Cell) field.Direction {
	if !f.flow.InBounds(c) {
		return field.DirNone
	}
	return f.flow.At(c)
}

// IntegrationAt returns the stored integration cost. The cell must be in
// bounds.
func (f *FlowField) IntegrationAt(c field.Cell) IntegrationCost {
	return f.integration.At(c)
}

// Sample returns the direction at the cell and whether it is a repulse
// direction (the cell sits in occupied or blocked territory, so the
// direction pushes out rather than along a path).
func (f *FlowField) Sample(c field.Cell) (field.Direction, bool) {
	if !f.built || !f.flow.InBounds(c) {
		return field.DirNone, false
	}
	tier := f.integration.At(c).Tier
	return f.flow.At(c), tier == TierOccupied || tier == TierBlocked
}

// Build runs the uniform-cost search from the goal cells over the obstacle
// field for one size class, then derives the direction field. Reuses the
// field's internal buffers; safe to call repeatedly.
func (f *FlowField) Build(goals []field.Cell, obstacles *ObstacleField, size components.AgentSize) error {
	f.flow.Fill(field.DirNone)
	f.integration.Fill(defaultIntegration())
	f.heap.clear()

	seeded := false
	for _, g := range goals {
		if !f.integration.InBounds(g) {
			continue
		}
		f.integration.Set(g, IntegrationGoal())
		f.heap.push(g, IntegrationGoal())
		seeded = true
	}
	if !seeded {
		f.built = false
		return ErrGoalOutOfBounds
	}

	traversable := func(c field.Cell) bool { return obstacles.Traversable(c, size) }

	// Diagonal steps are allowed only when both shared orthogonal
	// neighbors are traversable, so paths never cut corners.
	diagonalOpen := func(c field.Cell, d field.Direction) bool {
		switch d {
		case field.DirNE:
			return traversable(c.Neighbor(field.DirN)) && traversable(c.Neighbor(field.DirE))
		case field.DirSE:
			return traversable(c.Neighbor(field.DirS)) && traversable(c.Neighbor(field.DirE))
		case field.DirSW:
			return traversable(c.Neighbor(field.DirS)) && traversable(c.Neighbor(field.DirW))
		case field.DirNW:
			return traversable(c.Neighbor(field.DirN)) && traversable(c.Neighbor(field.DirW))
		}
		return false
	}

	for f.heap.Len() > 0 {
		cell := f.heap.pop()
		current := f.integration.At(cell)

		process := func(neighbor field.Cell) {
			if !f.integration.InBounds(neighbor) {
				return
			}
			stored := f.integration.At(neighbor)
			if stored.Tier == TierGoal {
				return
			}

			dist := uint8(cell.ManhattanDist(neighbor))
			var candidate IntegrationCost
			if traversable(neighbor) {
				candidate = IntegrationTraversable(satAdd(current.Scalar(), dist))
			} else {
				depth, cost := current.DepthAndCost()
				if obstacles.OccupantAt(neighbor) == OccupantAgent {
					candidate = IntegrationOccupied(satAdd(depth, 1), satAdd(cost, dist))
				} else {
					candidate = IntegrationBlocked(satAdd(depth, 1), satAdd(cost, dist))
				}
			}

			if current.ValidTraversal(candidate) && candidate.Compare(stored) < 0 {
				f.integration.Set(neighbor, candidate)
				if !f.heap.contains(neighbor) {
					f.heap.push(neighbor, candidate)
				}
			}
		}

		for _, d := range field.DirectionsAdjacent {
			process(cell.Neighbor(d))
		}
		for _, d := range field.DirectionsDiagonal {
			if diagonalOpen(cell, d) {
				process(cell.Neighbor(d))
			}
		}
	}

	// Direction pass: point each cell at its strictly cheapest neighbor.
	// No improving neighbor (unreachable cells, goals) stays DirNone. Open
	// cells may steer into occupied crowds but never into blocked
	// territory; blocked and occupied cells point anywhere improving,
	// which is the repulse direction out.
	for i := 0; i < f.integration.Len(); i++ {
		cell := f.integration.CellAtIndex(i)
		current := f.integration.AtIndex(i)
		if current.Tier == TierGoal {
			continue
		}
		open := traversable(cell)

		best := current
		bestDir := field.DirNone
		consider := func(d field.Direction) {
			n := cell.Neighbor(d)
			if !f.integration.InBounds(n) {
				return
			}
			c := f.integration.At(n)
			if open && c.Tier == TierBlocked {
				return
			}
			if c.Compare(best) < 0 {
				best = c
				bestDir = d
			}
		}
		for _, d := range field.DirectionsAdjacent {
			consider(d)
		}
		for _, d := range field.DirectionsDiagonal {
			if diagonalOpen(cell, d) {
				consider(d)
			}
		}
		f.flow.SetIndex(i, bestDir)
	}

	f.built = true
	return nil
}

// buildHeap is a min-heap of cells keyed by integration cost, with a
// membership field to avoid duplicate pushes.
type buildHeap struct {
	nodes    heapNodes
	presence *field.Field[bool]
}

type heapNode struct {
	cell field.Cell
	cost IntegrationCost
}

type heapNodes []heapNode

func (h heapNodes) Len() int { return len(h) }

func (h heapNodes) Less(i, j int) bool {
	if c := h[i].cost.Compare(h[j].cost); c != 0 {
		return c < 0
	}
	if h[i].cell.Y != h[j].cell.Y {
		return h[i].cell.Y < h[j].cell.Y
	}
	return h[i].cell.X < h[j].cell.X
}

func (h heapNodes) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *heapNodes) Push(x any) { *h = append(*h, x.(heapNode)) }

func (h *heapNodes) Pop() any {
	old := *h
	n := len(old)
	node := old[n-1]
	*h = old[:n-1]
	return node
}

func newBuildHeap(width, height int) *buildHeap {
	return &buildHeap{
		nodes:    make(heapNodes, 0, 256),
		presence: field.NewField[bool](width, height),
	}
}

func (h *buildHeap) Len() int { return len(h.nodes) }

func (h *buildHeap) push(c field.Cell, cost IntegrationCost) {
	heap.Push(&h.nodes, heapNode{cell: c, cost: cost})
	h.presence.Set(c, true)
}

func (h *buildHeap) pop() field.Cell {
	node := heap.Pop(&h.nodes).(heapNode)
	h.presence.Set(node.cell, false)
	return node.cell
}

func (h *buildHeap) contains(c field.Cell) bool { return h.presence.At(c) }

func (h *buildHeap) clear() {
	h.nodes = h.nodes[:0]
	h.presence.Fill(false)
}
