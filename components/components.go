// Package components defines the ECS component types for crowd navigation.
// Components are plain data; all behavior lives in the systems and game
// packages.
package components

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/crowd/field"
)

// AgentSize classifies agents by footprint diameter, measured in field cells.
type AgentSize uint8

const (
	SizeSmall AgentSize = iota
	SizeMedium
	SizeLarge
	SizeHuge

	// NumAgentSizes is the number of size classes.
	NumAgentSizes = 4
)

// LargestAgentSize is the widest size class; the obstacle field's default
// cost admits it everywhere.
const LargestAgentSize = SizeHuge

// Cells returns the footprint diameter in cells.
func (s AgentSize) Cells() int {
	switch s {
	case SizeSmall:
		return 1
	case SizeMedium:
		return 3
	case SizeLarge:
		return 5
	case SizeHuge:
		return 7
	}
	return 1
}

// Radius returns the world-space radius for the given cell size.
func (s AgentSize) Radius(cellSize float32) float32 {
	return float32(s.Cells()) * cellSize / 2
}

func (s AgentSize) String() string {
	switch s {
	case SizeSmall:
		return "small"
	case SizeMedium:
		return "medium"
	case SizeLarge:
		return "large"
	case SizeHuge:
		return "huge"
	}
	return "unknown"
}

// Position is a world-space position.
type Position struct {
	X, Y float32
}

// Velocity is the agent's current velocity in world units per second.
type Velocity struct {
	X, Y float32
}

// Body holds an agent's physical parameters.
type Body struct {
	Size   AgentSize
	Radius float32 // world units, derived from Size at spawn
	Speed  float32 // cruise speed, world units per second
}

// GoalKind discriminates the Goal union.
type GoalKind uint8

const (
	GoalNone GoalKind = iota
	GoalEntity
	GoalCell
)

// Goal is a navigation destination: nothing, another entity, or a fixed
// cell. Goal is comparable and used as the flow-field cache key.
type Goal struct {
	Kind   GoalKind
	Entity ecs.Entity
	Cell   field.Cell
}

// NoGoal returns the empty goal.
func NoGoal() Goal { return Goal{Kind: GoalNone} }

// GoalAt targets a fixed cell.
func GoalAt(c field.Cell) Goal { return Goal{Kind: GoalCell, Cell: c} }

// GoalOf targets another entity.
func GoalOf(e ecs.Entity) Goal { return Goal{Kind: GoalEntity, Entity: e} }

// Pathing is the per-agent seek state written by the pathing system.
type Pathing struct {
	Cell      field.Cell // cell under the agent, valid only when CellValid
	CellValid bool

	DesiredX, DesiredY float32 // unit desired direction, zero when no path
	Repulse            bool    // last sampled direction was a repulse

	TargetDistance float32
	TargetReached  bool
	Blocking       bool // reached agents splat their footprint as occupancy
}

// Avoidance holds the per-agent local-avoidance state. DesiredX/Y is the
// avoidance output velocity, consumed by the motor.
type Avoidance struct {
	Responsibility float32 // share of mutual avoidance this agent takes on
	Neighborhood   float32 // neighbor query radius, world units
	DesiredX       float32
	DesiredY       float32
}

// Obstacle is a static blocker: a local-space outline plus the vertical
// band its collider spans. Outlines are convex-hulled and inflated by the
// footprint system.
type Obstacle struct {
	Outline     [][2]float32
	Bottom, Top float32 // height band; obstacles outside [0, agent height] are ignored
}

// Footprint caches the cells an entity covers, plus the Chebyshev-expanded
// variant per agent size class. Dirty footprints trigger an obstacle-field
// rebuild.
type Footprint struct {
	Cells    []field.Cell
	Expanded [NumAgentSizes][]field.Cell
	Dirty    bool
}
