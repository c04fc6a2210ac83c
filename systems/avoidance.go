package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/crowd/components"
)

// Local avoidance solves hybrid reciprocal velocity obstacles (HRVO): each
// nearby agent forbids a cone of velocities that would collide, the desired
// velocity is kept when it is outside every cone, and otherwise the closest
// velocity on the cone boundaries is taken. Runs in float64 because the
// tangent/intersection geometry is the numerically delicate part of the
// pipeline.

const (
	// MinAvoidanceResponsibility is what standing (target reached,
	// blocking) agents carry: they stay put and others route around.
	MinAvoidanceResponsibility = 1.0
	// MaxAvoidanceResponsibility caps how much of a mutual dodge a single
	// agent takes on.
	MaxAvoidanceResponsibility = 100.0

	// minTimeHorizon floors the agent-agent lookahead so a zero config
	// value cannot collapse every cone to its cutoff disc.
	minTimeHorizon = 0.1

	respSizeWeight  = 20.0
	respDistanceCap = 8.0

	voEpsilon = 1e-4
)

// Responsibility scores how much of a mutual dodge this agent takes on.
// Larger agents and agents close to their goal yield less; standing agents
// yield the minimum.
func Responsibility(size components.AgentSize, targetDistance float32, standing bool) float32 {
	if standing {
		return MinAvoidanceResponsibility
	}
	d := targetDistance
	if d < 0 {
		d = 0
	}
	if d > respDistanceCap {
		d = respDistanceCap
	}
	r := respSizeWeight*float32(components.NumAgentSizes-int(size)) + d*d
	if r < MinAvoidanceResponsibility {
		return MinAvoidanceResponsibility
	}
	if r > MaxAvoidanceResponsibility {
		return MaxAvoidanceResponsibility
	}
	return r
}

// ObstacleMargin is the clearance kept from static geometry.
func ObstacleMargin(radius float64) float64 {
	m := 0.5 * radius
	if m < 0.1 {
		return 0.1
	}
	return m
}

// VOAgent is one agent in velocity-obstacle space.
type VOAgent struct {
	Position       r2.Vec
	Velocity       r2.Vec
	Radius         float64
	MaxVelocity    float64
	Responsibility float64
}

// VOCircle is a stationary circular blocker sampled from obstacle geometry.
type VOCircle struct {
	Center r2.Vec
	Radius float64
}

// voCone is a forbidden region in velocity space: two boundary rays out of
// an apex. Overlapping agents degenerate it to a half-plane (rays opposite).
// A nonzero cutoff radius truncates the tip: the forbidden region starts at
// the cutoff disc (tangent to both legs), so relative velocities that close
// the gap later than the time horizon stay allowed.
type voCone struct {
	apex    r2.Vec
	left    r2.Vec // unit, counterclockwise boundary
	right   r2.Vec // unit, clockwise boundary
	cutoff  r2.Vec // disc center, relative to the apex
	cutoffR float64
}

func (c voCone) contains(v r2.Vec) bool {
	p := r2.Sub(v, c.apex)
	if r2.Cross(c.left, p) >= -voEpsilon || r2.Cross(c.right, p) <= voEpsilon {
		return false
	}
	if c.cutoffR == 0 {
		return true
	}
	w := r2.Sub(p, c.cutoff)
	if r2.Dot(w, c.cutoff) >= 0 {
		return true
	}
	// Between the apex and the cutoff disc only the disc itself is forbidden.
	return r2.Norm2(w) < (c.cutoffR-voEpsilon)*(c.cutoffR-voEpsilon)
}

// hrvoCone builds the hybrid cone a imposes on itself against b, truncated
// at the collision time horizon.
func hrvoCone(a, b *VOAgent, timeHorizon, dt float64) (voCone, bool) {
	rel := r2.Sub(b.Position, a.Position)
	d := r2.Norm(rel)
	if d < 1e-9 {
		// Coincident centers carry no usable geometry.
		return voCone{}, false
	}

	combined := a.Radius + b.Radius
	center := r2.Scale(1/d, rel)

	s := a.Responsibility / (a.Responsibility + b.Responsibility)
	rvoApex := r2.Add(r2.Scale(1-s, a.Velocity), r2.Scale(s, b.Velocity))

	if d <= combined {
		// Already overlapping: forbid everything toward b and shift the
		// apex so candidates push the overlap apart within one step.
		apex := r2.Sub(rvoApex, r2.Scale((combined-d)/dt, center))
		return voCone{
			apex:  apex,
			left:  r2.Rotate(center, math.Pi/2, r2.Vec{}),
			right: r2.Rotate(center, -math.Pi/2, r2.Vec{}),
		}, true
	}

	theta := math.Asin(clamp01(combined / d))
	left := r2.Rotate(center, theta, r2.Vec{})
	right := r2.Rotate(center, -theta, r2.Vec{})

	// Hybrid apex: the boundary on vA's side of the centerline comes from
	// the reciprocal cone, the far side from the plain cone rooted at vB.
	voApex := b.Velocity
	var apex r2.Vec
	var ok bool
	if r2.Cross(center, r2.Sub(a.Velocity, rvoApex)) > 0 {
		apex, ok = rayIntersection(rvoApex, left, voApex, right)
	} else {
		apex, ok = rayIntersection(voApex, left, rvoApex, right)
	}
	if !ok {
		apex = rvoApex
	}

	return voCone{
		apex:    apex,
		left:    left,
		right:   right,
		cutoff:  r2.Scale(d/timeHorizon, center),
		cutoffR: combined / timeHorizon,
	}, true
}

// circleCone builds the plain velocity obstacle of a stationary circle:
// full responsibility on the agent, apex at zero velocity.
func circleCone(a *VOAgent, c VOCircle, dt float64) (voCone, bool) {
	rel := r2.Sub(c.Center, a.Position)
	d := r2.Norm(rel)
	if d < 1e-9 {
		return voCone{}, false
	}

	combined := a.Radius + c.Radius
	center := r2.Scale(1/d, rel)

	if d <= combined {
		apex := r2.Scale(-(combined-d)/dt, center)
		return voCone{
			apex:  apex,
			left:  r2.Rotate(center, math.Pi/2, r2.Vec{}),
			right: r2.Rotate(center, -math.Pi/2, r2.Vec{}),
		}, true
	}

	theta := math.Asin(clamp01(combined / d))
	return voCone{
		left:  r2.Rotate(center, theta, r2.Vec{}),
		right: r2.Rotate(center, -theta, r2.Vec{}),
	}, true
}

// rayIntersection solves p1 + t*d1 == p2 + u*d2. Near-parallel rays report
// no intersection.
func rayIntersection(p1, d1, p2, d2 r2.Vec) (r2.Vec, bool) {
	denom := r2.Cross(d1, d2)
	if math.Abs(denom) < 1e-9 {
		return r2.Vec{}, false
	}
	t := r2.Cross(r2.Sub(p2, p1), d2) / denom
	return r2.Add(p1, r2.Scale(t, d1)), true
}

type voRay struct{ p, d r2.Vec }

// AvoidanceSolver computes avoiding velocities, reusing its internal
// buffers across agents. Not safe for concurrent use; each worker owns one.
type AvoidanceSolver struct {
	cones []voCone
	rays  []voRay
}

// AvoidVelocity picks the velocity closest to desired that stays outside
// every neighbor's cone. Agent-agent cones are truncated at timeHorizon
// seconds of lookahead.
func (s *AvoidanceSolver) AvoidVelocity(a *VOAgent, neighbors []*VOAgent, circles []VOCircle, desired r2.Vec, timeHorizon, dt float64) r2.Vec {
	desired = clampNorm(desired, a.MaxVelocity)
	if timeHorizon < minTimeHorizon {
		timeHorizon = minTimeHorizon
	}

	cones := s.cones[:0]
	for _, b := range neighbors {
		if cone, ok := hrvoCone(a, b, timeHorizon, dt); ok {
			cones = append(cones, cone)
		}
	}
	for _, c := range circles {
		if cone, ok := circleCone(a, c, dt); ok {
			cones = append(cones, cone)
		}
	}
	s.cones = cones

	outside := func(v r2.Vec) bool {
		for i := range cones {
			if cones[i].contains(v) {
				return false
			}
		}
		return true
	}

	if outside(desired) {
		return desired
	}

	best := r2.Vec{}
	bestDist := math.Inf(1)
	consider := func(v r2.Vec) {
		v = clampNorm(v, a.MaxVelocity)
		if !outside(v) {
			return
		}
		if d := r2.Norm2(r2.Sub(v, desired)); d < bestDist {
			bestDist = d
			best = v
		}
	}

	// Clamped projections of the desired velocity onto every boundary ray,
	// plus the nearest point on each cutoff arc.
	for i := range cones {
		consider(projectOntoRay(desired, cones[i].apex, cones[i].left))
		consider(projectOntoRay(desired, cones[i].apex, cones[i].right))
		if cones[i].cutoffR > 0 {
			w := r2.Sub(r2.Sub(desired, cones[i].apex), cones[i].cutoff)
			if n := r2.Norm(w); n > 1e-9 {
				arc := r2.Add(cones[i].cutoff, r2.Scale(cones[i].cutoffR/n, w))
				consider(r2.Add(cones[i].apex, arc))
			}
		}
	}

	// Pairwise boundary-ray intersections. The apex of each cone is covered
	// by its own left/right pair.
	rays := s.rays[:0]
	for i := range cones {
		rays = append(rays, voRay{cones[i].apex, cones[i].left}, voRay{cones[i].apex, cones[i].right})
	}
	s.rays = rays
	for i := 0; i < len(rays); i++ {
		for j := i + 1; j < len(rays); j++ {
			p, ok := rayIntersection(rays[i].p, rays[i].d, rays[j].p, rays[j].d)
			if !ok {
				continue
			}
			// Only points actually on both rays.
			if r2.Dot(r2.Sub(p, rays[i].p), rays[i].d) < -voEpsilon ||
				r2.Dot(r2.Sub(p, rays[j].p), rays[j].d) < -voEpsilon {
				continue
			}
			consider(p)
		}
	}

	if math.IsInf(bestDist, 1) {
		// Fully fenced in; stop rather than pick a colliding velocity.
		return r2.Vec{}
	}
	return best
}

// ObstacleCircles samples stationary blockers from a world-space polygon
// outline: the closest point of each edge within maxRange, appended to dst.
func ObstacleCircles(outline [][2]float32, posX, posY float32, agent r2.Vec, margin, maxRange float64, dst []VOCircle) []VOCircle {
	n := len(outline)
	if n < 2 {
		return dst
	}
	rangeSq := maxRange * maxRange
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		a := r2.Vec{X: float64(outline[i][0] + posX), Y: float64(outline[i][1] + posY)}
		b := r2.Vec{X: float64(outline[j][0] + posX), Y: float64(outline[j][1] + posY)}
		p := closestOnSegment(agent, a, b)
		if r2.Norm2(r2.Sub(p, agent)) <= rangeSq {
			dst = append(dst, VOCircle{Center: p, Radius: margin})
		}
	}
	return dst
}

func closestOnSegment(p, a, b r2.Vec) r2.Vec {
	ab := r2.Sub(b, a)
	len2 := r2.Norm2(ab)
	if len2 < 1e-12 {
		return a
	}
	t := r2.Dot(r2.Sub(p, a), ab) / len2
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return r2.Add(a, r2.Scale(t, ab))
}

func projectOntoRay(v, apex, dir r2.Vec) r2.Vec {
	t := r2.Dot(r2.Sub(v, apex), dir)
	if t < 0 {
		t = 0
	}
	return r2.Add(apex, r2.Scale(t, dir))
}

func clampNorm(v r2.Vec, max float64) r2.Vec {
	if n := r2.Norm(v); n > max && n > 1e-12 {
		return r2.Scale(max/n, v)
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
