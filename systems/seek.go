package systems

import (
	"math"

	"github.com/pthm-cable/crowd/components"
	"github.com/pthm-cable/crowd/field"
)

// ksi controls how quickly a repulse direction bleeds into the agent's
// current desired direction instead of replacing it outright, so agents
// inside crowds ease out rather than snap.
const ksi = 0.1

// ApplyFlowSample folds a sampled flow direction into the agent's pathing
// state. Repulse samples are blended; regular samples replace the desired
// direction.
func ApplyFlowSample(p *components.Pathing, dir field.Direction, repulse bool) {
	v := dir.Velocity()
	if repulse && (p.DesiredX != 0 || p.DesiredY != 0) {
		x := p.DesiredX + (v[0]-p.DesiredX)*ksi
		y := p.DesiredY + (v[1]-p.DesiredY)*ksi
		n := float32(math.Sqrt(float64(x*x + y*y)))
		if n > 1e-6 {
			p.DesiredX, p.DesiredY = x/n, y/n
		} else {
			p.DesiredX, p.DesiredY = 0, 0
		}
	} else {
		p.DesiredX, p.DesiredY = v[0], v[1]
	}
	p.Repulse = repulse
}

// ClearPath resets the seek state for agents with no usable flow (no goal,
// off-field, cache miss, unbuilt field).
func ClearPath(p *components.Pathing) {
	p.DesiredX, p.DesiredY = 0, 0
	p.Repulse = false
	p.TargetDistance = 0
}

// MinFootprintDistance returns the distance from (x, y) to the closest cell
// center of the footprint, or +Inf when the footprint is empty.
func MinFootprintDistance(layout field.Layout, x, y float32, cells []field.Cell) float32 {
	best := float32(math.Inf(1))
	for _, c := range cells {
		px, py := layout.PositionOf(c)
		dx, dy := px-x, py-y
		if d := float32(math.Sqrt(float64(dx*dx + dy*dy))); d < best {
			best = d
		}
	}
	return best
}

// HasReachedTarget is the distance-based arrival condition: within the two
// radii plus a slack that scales with the agent but never collapses below
// half a world unit.
func HasReachedTarget(distance, radius, targetRadius float32) bool {
	slack := 0.1 * radius
	if slack < 0.5 {
		slack = 0.5
	}
	return distance <= radius+targetRadius+slack
}
