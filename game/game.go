// Package game wires the navigation systems into an ECS pipeline: cell
// indexing, footprints, obstacle splatting, flow-field cache maintenance and
// builds, pathing, local avoidance, and the motor.
package game

import (
	"log/slog"
	"time"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/crowd/components"
	"github.com/pthm-cable/crowd/config"
	"github.com/pthm-cable/crowd/field"
	"github.com/pthm-cable/crowd/systems"
	"github.com/pthm-cable/crowd/telemetry"
)

// Options configures a Navigator.
type Options struct {
	AsyncBuild   bool
	BuildWorkers int // 0 = GOMAXPROCS
}

// Navigator owns the ECS world and runs the navigation pipeline each Step.
type Navigator struct {
	cfg    *config.Config
	world  *ecs.World
	layout field.Layout

	agentMapper *ecs.Map7[
		components.Position,
		components.Velocity,
		components.Body,
		components.Goal,
		components.Pathing,
		components.Footprint,
		components.Avoidance,
	]
	agentFilter *ecs.Filter7[
		components.Position,
		components.Velocity,
		components.Body,
		components.Goal,
		components.Pathing,
		components.Footprint,
		components.Avoidance,
	]
	obstacleMapper *ecs.Map3[components.Position, components.Obstacle, components.Footprint]
	obstacleFilter *ecs.Filter3[components.Position, components.Obstacle, components.Footprint]

	// Individual component mappers for lookups
	posMap  *ecs.Map1[components.Position]
	velMap  *ecs.Map1[components.Velocity]
	bodyMap *ecs.Map1[components.Body]
	goalMap *ecs.Map1[components.Goal]
	pathMap *ecs.Map1[components.Pathing]
	footMap *ecs.Map1[components.Footprint]
	avMap   *ecs.Map1[components.Avoidance]

	obstacles *systems.ObstacleField
	cache     *systems.FlowFieldCache
	grid      *systems.SpatialGrid
	perf      *telemetry.PerfCollector
	builds    *buildPool // nil in synchronous mode

	tick           int64
	obstaclesDirty bool

	// entity goals are re-resolved each tick; a changed footprint or cell
	// dirties the goal's cached fields
	goalCells map[components.Goal][]field.Cell

	// stats accumulated since the last window flush
	buildsCompleted int
	buildTimeUS     int64

	// scratch buffers
	neighbors    []systems.Neighbor
	voNeighbors  []systems.VOAgent
	voNeighborPs []*systems.VOAgent
	voCircles    []systems.VOCircle
	solver       systems.AvoidanceSolver
	pending      []systems.BuildRequest
	goalScratch  []field.Cell
	blockers     []obstacleRef
}

type obstacleRef struct {
	pos components.Position
	obs *components.Obstacle
}

// NewNavigator builds a Navigator from the global config.
func NewNavigator(opts Options) *Navigator {
	cfg := config.Cfg()
	layout := field.NewLayout(cfg.Field.Width, cfg.Field.Height, cfg.Derived.CellSize32)

	world := ecs.NewWorld()

	n := &Navigator{
		cfg:    cfg,
		world:  world,
		layout: layout,

		agentMapper: ecs.NewMap7[
			components.Position,
			components.Velocity,
			components.Body,
			components.Goal,
			components.Pathing,
			components.Footprint,
			components.Avoidance,
		](world),
		agentFilter: ecs.NewFilter7[
			components.Position,
			components.Velocity,
			components.Body,
			components.Goal,
			components.Pathing,
			components.Footprint,
			components.Avoidance,
		](world),
		obstacleMapper: ecs.NewMap3[components.Position, components.Obstacle, components.Footprint](world),
		obstacleFilter: ecs.NewFilter3[components.Position, components.Obstacle, components.Footprint](world),

		posMap:  ecs.NewMap1[components.Position](world),
		velMap:  ecs.NewMap1[components.Velocity](world),
		bodyMap: ecs.NewMap1[components.Body](world),
		goalMap: ecs.NewMap1[components.Goal](world),
		pathMap: ecs.NewMap1[components.Pathing](world),
		footMap: ecs.NewMap1[components.Footprint](world),
		avMap:   ecs.NewMap1[components.Avoidance](world),

		obstacles: systems.NewObstacleField(layout),
		cache:     systems.NewFlowFieldCache(layout),
		grid: systems.NewSpatialGrid(
			cfg.Derived.WorldW32,
			cfg.Derived.WorldH32,
			maxf(cfg.Derived.CellSize32*4, 1),
		),
		perf: telemetry.NewPerfCollector(int(cfg.Telemetry.StatsWindow / cfg.Physics.DT)),

		obstaclesDirty: true,
		goalCells:      make(map[components.Goal][]field.Cell),
		neighbors:      make([]systems.Neighbor, 0, 64),
	}

	if opts.AsyncBuild {
		n.builds = newBuildPool(opts.BuildWorkers)
	}

	return n
}

// Unload stops background workers and drops in-flight builds.
func (n *Navigator) Unload() {
	if n.builds != nil {
		n.builds.stop()
	}
}

// Tick returns the current tick count.
func (n *Navigator) Tick() int64 { return n.tick }

// Layout returns the navigation grid layout.
func (n *Navigator) Layout() field.Layout { return n.layout }

// ObstacleField exposes the shared cost field (read-only use).
func (n *Navigator) ObstacleField() *systems.ObstacleField { return n.obstacles }

// Cache exposes the flow-field cache (read-only use).
func (n *Navigator) Cache() *systems.FlowFieldCache { return n.cache }

// Perf returns the perf collector.
func (n *Navigator) Perf() *telemetry.PerfCollector { return n.perf }

// SpawnAgent creates an agent of the given size at (x, y).
func (n *Navigator) SpawnAgent(x, y float32, size components.AgentSize, speed float32) ecs.Entity {
	pos := components.Position{X: x, Y: y}
	vel := components.Velocity{}
	body := components.Body{
		Size:   size,
		Radius: size.Radius(n.layout.CellSize),
		Speed:  speed,
	}
	goal := components.NoGoal()
	path := components.Pathing{}
	foot := components.Footprint{}
	av := components.Avoidance{
		Responsibility: systems.MinAvoidanceResponsibility,
		Neighborhood:   n.neighborhood(body.Radius),
	}
	return n.agentMapper.NewEntity(&pos, &vel, &body, &goal, &path, &foot, &av)
}

// SpawnObstacle creates a static obstacle at (x, y) with a local-space
// outline spanning the vertical band [bottom, top].
func (n *Navigator) SpawnObstacle(x, y float32, outline [][2]float32, bottom, top float32) ecs.Entity {
	pos := components.Position{X: x, Y: y}
	obs := components.Obstacle{Outline: outline, Bottom: bottom, Top: top}
	foot := components.Footprint{Dirty: true}
	return n.obstacleMapper.NewEntity(&pos, &obs, &foot)
}

// Despawn removes an entity from the world.
func (n *Navigator) Despawn(e ecs.Entity) {
	n.world.RemoveEntity(e)
}

// SetGoal points an agent at a new destination.
func (n *Navigator) SetGoal(e ecs.Entity, goal components.Goal) {
	if g := n.goalMap.Get(e); g != nil {
		*g = goal
	}
}

// Position returns an entity's position, zero when missing.
func (n *Navigator) Position(e ecs.Entity) components.Position {
	if p := n.posMap.Get(e); p != nil {
		return *p
	}
	return components.Position{}
}

// Agents appends every agent entity to dst.
func (n *Navigator) Agents(dst []ecs.Entity) []ecs.Entity {
	query := n.agentFilter.Query()
	for query.Next() {
		dst = append(dst, query.Entity())
	}
	return dst
}

// Body returns a copy of an agent's body, zero when missing.
func (n *Navigator) Body(e ecs.Entity) components.Body {
	if b := n.bodyMap.Get(e); b != nil {
		return *b
	}
	return components.Body{}
}

// Pathing returns a copy of an agent's pathing state.
func (n *Navigator) Pathing(e ecs.Entity) components.Pathing {
	if p := n.pathMap.Get(e); p != nil {
		return *p
	}
	return components.Pathing{}
}

// Step advances the pipeline by dt seconds.
func (n *Navigator) Step(dt float32) {
	n.perf.StartTick()

	n.perf.StartPhase(telemetry.PhaseCellIndex)
	n.stepCellIndex()

	n.perf.StartPhase(telemetry.PhaseFootprint)
	n.stepFootprints()

	n.perf.StartPhase(telemetry.PhaseSplat)
	if n.obstaclesDirty {
		n.stepSplat()
	}

	n.perf.StartPhase(telemetry.PhaseCache)
	n.stepCache(dt)

	n.perf.StartPhase(telemetry.PhaseFlowBuild)
	n.stepFlowBuilds()

	n.perf.StartPhase(telemetry.PhasePathing)
	n.stepPathing()

	n.perf.StartPhase(telemetry.PhaseAvoidance)
	n.stepAvoidance(dt)

	n.perf.StartPhase(telemetry.PhaseMotor)
	n.stepMotor(dt)

	n.perf.EndTick()
	n.tick++
}

// stepCellIndex recomputes each agent's grid cell from its position.
func (n *Navigator) stepCellIndex() {
	query := n.agentFilter.Query()
	for query.Next() {
		pos, _, _, _, path, foot, _ := query.Get()

		cell := n.layout.CellAt(pos.X, pos.Y)
		valid := n.layout.InBounds(cell)
		if valid == path.CellValid && cell == path.Cell {
			continue
		}
		path.Cell = cell
		path.CellValid = valid
		// A blocking agent that moved cells must re-splat.
		if path.Blocking {
			foot.Dirty = true
		}
	}
}

// stepFootprints rasterizes dirty footprints: blocking agents claim their
// disc, pathing agents claim nothing, obstacles claim their inflated hull.
func (n *Navigator) stepFootprints() {
	query := n.agentFilter.Query()
	for query.Next() {
		pos, _, body, _, path, foot, _ := query.Get()

		shouldHave := path.Blocking && path.CellValid
		has := len(foot.Cells) > 0
		if !foot.Dirty && shouldHave == has {
			continue
		}

		foot.Cells = foot.Cells[:0]
		if shouldHave {
			foot.Cells = systems.AgentFootprint(n.layout, pos.X, pos.Y, body.Radius, foot.Cells)
		}
		n.expandFootprint(foot)
		foot.Dirty = false
		n.obstaclesDirty = true
	}

	oq := n.obstacleFilter.Query()
	for oq.Next() {
		pos, obs, foot := oq.Get()
		if !foot.Dirty {
			continue
		}
		foot.Cells = systems.ObstacleFootprint(n.layout, *pos, obs, n.cfg.Derived.AgentHeight32, foot.Cells[:0])
		n.expandFootprint(foot)
		foot.Dirty = false
		n.obstaclesDirty = true
	}
}

func (n *Navigator) expandFootprint(foot *components.Footprint) {
	for size := components.AgentSize(0); size < components.NumAgentSizes; size++ {
		dst := foot.Expanded[size][:0]
		foot.Expanded[size] = systems.ExpandFootprint(foot.Cells, systems.ExpansionCells(size), dst)
	}
}

// stepSplat fully rebuilds the obstacle field from every footprint, largest
// size class first.
func (n *Navigator) stepSplat() {
	n.obstacles.Clear()
	n.obstacles.SplatBounds()

	for i := components.NumAgentSizes - 1; i >= 0; i-- {
		size := components.AgentSize(i)

		oq := n.obstacleFilter.Query()
		for oq.Next() {
			_, _, foot := oq.Get()
			n.obstacles.Splat(foot.Expanded[size], size, systems.OccupantObstacle)
		}

		aq := n.agentFilter.Query()
		for aq.Next() {
			_, _, _, _, _, foot, _ := aq.Get()
			n.obstacles.Splat(foot.Expanded[size], size, systems.OccupantAgent)
		}
	}

	n.obstacles.Bump()
	n.cache.MarkAllDirty()
	n.obstaclesDirty = false
}

// stepCache ages entries, publishes finished async builds, and dirties
// entity-goal fields whose target moved.
func (n *Navigator) stepCache(dt float32) {
	if n.builds != nil {
		for _, res := range n.builds.poll() {
			n.cache.FinishBuild(res.req, res.err)
			n.buildsCompleted++
			n.buildTimeUS += res.duration.Microseconds()
			if res.err != nil {
				slog.Warn("flow field build failed", "size", res.req.Size.String(), "error", res.err)
			}
		}
	}

	n.cache.Tick(dt)

	for _, goal := range n.cache.Goals(nil) {
		if goal.Kind != components.GoalEntity {
			continue
		}
		cells := n.resolveGoalCells(goal, components.SizeSmall, nil)
		if !cellsEqual(cells, n.goalCells[goal]) {
			n.goalCells[goal] = cells
			n.cache.MarkDirty(goal)
		}
	}
	// Drop tracking for goals the cache evicted.
	for goal := range n.goalCells {
		if !n.cache.Contains(goal) {
			delete(n.goalCells, goal)
		}
	}
}

// resolveGoalCells maps a goal to the cells a build seeds from: the fixed
// cell, the target's footprint expanded for the consuming size class, or
// the target's own cell.
func (n *Navigator) resolveGoalCells(goal components.Goal, size components.AgentSize, dst []field.Cell) []field.Cell {
	switch goal.Kind {
	case components.GoalCell:
		return append(dst, goal.Cell)
	case components.GoalEntity:
		if !n.world.Alive(goal.Entity) {
			return dst
		}
		if foot := n.footMap.Get(goal.Entity); foot != nil && len(foot.Expanded[size]) > 0 {
			return append(dst, foot.Expanded[size]...)
		}
		if pos := n.posMap.Get(goal.Entity); pos != nil {
			return append(dst, n.layout.CellAt(pos.X, pos.Y))
		}
	}
	return dst
}

// stepFlowBuilds runs (or submits) every pending build.
func (n *Navigator) stepFlowBuilds() {
	n.pending = n.cache.Pending(n.pending[:0])
	if len(n.pending) == 0 {
		return
	}

	var snapshot *systems.ObstacleField
	if n.builds != nil {
		snapshot = n.obstacles.Snapshot()
	}

	for _, req := range n.pending {
		goals := n.resolveGoalCells(req.Goal, req.Size, n.goalScratch[:0])
		n.goalScratch = goals
		if len(goals) == 0 {
			continue
		}

		target := n.cache.BeginBuild(req)
		if target == nil {
			continue
		}

		if n.builds != nil {
			n.builds.submit(buildJob{req: req, goals: append([]field.Cell(nil), goals...), obstacles: snapshot, target: target})
			continue
		}

		start := time.Now()
		err := target.Build(goals, n.obstacles, req.Size)
		n.cache.FinishBuild(req, err)
		n.buildsCompleted++
		n.buildTimeUS += time.Since(start).Microseconds()
		if err != nil {
			slog.Warn("flow field build failed", "size", req.Size.String(), "error", err)
		}
	}
}

// stepPathing samples flow directions and updates target distances.
func (n *Navigator) stepPathing() {
	query := n.agentFilter.Query()
	for query.Next() {
		pos, _, body, goal, path, _, av := query.Get()

		if goal.Kind == components.GoalNone || !path.CellValid {
			systems.ClearPath(path)
			path.TargetReached = false
			path.Blocking = false
			av.Responsibility = systems.MinAvoidanceResponsibility
			continue
		}

		// Entity goals die with their entity.
		if goal.Kind == components.GoalEntity && !n.world.Alive(goal.Entity) {
			*goal = components.NoGoal()
			systems.ClearPath(path)
			path.TargetReached = false
			path.Blocking = false
			continue
		}

		flow := n.cache.Acquire(*goal, body.Size)
		if !flow.Built() {
			systems.ClearPath(path)
			continue
		}

		dir, repulse := flow.Sample(path.Cell)
		systems.ApplyFlowSample(path, dir, repulse)

		path.TargetDistance = n.targetDistance(pos, goal)

		targetRadius := float32(0)
		if goal.Kind == components.GoalEntity {
			if tb := n.bodyMap.Get(goal.Entity); tb != nil {
				targetRadius = tb.Radius
			}
		}
		wasBlocking := path.Blocking
		path.TargetReached = systems.HasReachedTarget(path.TargetDistance, body.Radius, targetRadius)
		path.Blocking = path.TargetReached
		if path.Blocking != wasBlocking {
			n.footMap.Get(query.Entity()).Dirty = true
		}

		av.Responsibility = systems.Responsibility(body.Size, path.TargetDistance, path.TargetReached)
		av.Neighborhood = n.neighborhood(body.Radius)
	}
}

func (n *Navigator) targetDistance(pos *components.Position, goal *components.Goal) float32 {
	switch goal.Kind {
	case components.GoalCell:
		gx, gy := n.layout.PositionOf(goal.Cell)
		return dist(pos.X, pos.Y, gx, gy)
	case components.GoalEntity:
		if !n.world.Alive(goal.Entity) {
			return 0
		}
		if foot := n.footMap.Get(goal.Entity); foot != nil && len(foot.Cells) > 0 {
			return systems.MinFootprintDistance(n.layout, pos.X, pos.Y, foot.Cells)
		}
		if tp := n.posMap.Get(goal.Entity); tp != nil {
			return dist(pos.X, pos.Y, tp.X, tp.Y)
		}
	}
	return 0
}

// stepAvoidance rebuilds the spatial grid and solves velocity obstacles per
// agent, writing the avoidance output velocity.
func (n *Navigator) stepAvoidance(dt float32) {
	n.grid.Clear()
	aq := n.agentFilter.Query()
	for aq.Next() {
		pos, _, _, _, _, _, _ := aq.Get()
		n.grid.Insert(aq.Entity(), pos.X, pos.Y)
	}

	n.blockers = n.blockers[:0]
	oq := n.obstacleFilter.Query()
	for oq.Next() {
		pos, obs, _ := oq.Get()
		n.blockers = append(n.blockers, obstacleRef{pos: *pos, obs: obs})
	}

	query := n.agentFilter.Query()
	for query.Next() {
		pos, vel, body, _, path, _, av := query.Get()
		e := query.Entity()

		self := systems.VOAgent{
			Position:       r2.Vec{X: float64(pos.X), Y: float64(pos.Y)},
			Velocity:       r2.Vec{X: float64(vel.X), Y: float64(vel.Y)},
			Radius:         float64(body.Radius),
			MaxVelocity:    float64(body.Speed) * 2,
			Responsibility: float64(av.Responsibility),
		}

		var desired r2.Vec
		if !path.TargetReached {
			desired = r2.Vec{
				X: float64(path.DesiredX * body.Speed),
				Y: float64(path.DesiredY * body.Speed),
			}
		}

		n.neighbors = n.grid.QueryRadiusInto(n.neighbors[:0], pos.X, pos.Y, av.Neighborhood, e, n.posMap)
		n.voNeighbors = n.voNeighbors[:0]
		for _, nb := range n.neighbors {
			npos := n.posMap.Get(nb.E)
			nbody := n.bodyMap.Get(nb.E)
			if npos == nil || nbody == nil {
				continue
			}
			nvel := components.Velocity{}
			nav := components.Avoidance{Responsibility: systems.MinAvoidanceResponsibility}
			if v := n.velMap.Get(nb.E); v != nil {
				nvel = *v
			}
			if a := n.avMap.Get(nb.E); a != nil {
				nav = *a
			}
			n.voNeighbors = append(n.voNeighbors, systems.VOAgent{
				Position:       r2.Vec{X: float64(npos.X), Y: float64(npos.Y)},
				Velocity:       r2.Vec{X: float64(nvel.X), Y: float64(nvel.Y)},
				Radius:         float64(nbody.Radius),
				MaxVelocity:    float64(nbody.Speed) * 2,
				Responsibility: float64(nav.Responsibility),
			})
		}
		n.voNeighborPs = n.voNeighborPs[:0]
		for i := range n.voNeighbors {
			n.voNeighborPs = append(n.voNeighborPs, &n.voNeighbors[i])
		}

		margin := systems.ObstacleMargin(self.Radius)
		obstacleRange := self.MaxVelocity*float64(n.cfg.Avoidance.ObstacleTimeHorizon) + self.Radius + margin
		n.voCircles = n.voCircles[:0]
		for _, b := range n.blockers {
			n.voCircles = systems.ObstacleCircles(b.obs.Outline, b.pos.X, b.pos.Y, self.Position, margin, obstacleRange, n.voCircles)
		}

		out := n.solver.AvoidVelocity(&self, n.voNeighborPs, n.voCircles, desired, float64(n.cfg.Avoidance.TimeHorizon), float64(dt))
		av.DesiredX = float32(out.X)
		av.DesiredY = float32(out.Y)
	}
}

// stepMotor applies the avoidance output directly and keeps agents inside
// the field.
func (n *Navigator) stepMotor(dt float32) {
	halfW := n.cfg.Derived.WorldW32 / 2
	halfH := n.cfg.Derived.WorldH32 / 2

	query := n.agentFilter.Query()
	for query.Next() {
		pos, vel, _, _, _, _, av := query.Get()

		vel.X = av.DesiredX
		vel.Y = av.DesiredY
		pos.X = clampf(pos.X+vel.X*dt, -halfW, halfW)
		pos.Y = clampf(pos.Y+vel.Y*dt, -halfH, halfH)
	}
}

// WindowStats summarizes the crowd for the stats window ending now and
// resets the window accumulators.
func (n *Navigator) WindowStats() telemetry.WindowStats {
	stats := telemetry.WindowStats{
		WindowEnd:    int32(n.tick),
		CacheEntries: n.cache.Len(),
		FlowBuilds:   n.buildsCompleted,
	}
	if n.buildsCompleted > 0 {
		stats.AvgBuildUS = n.buildTimeUS / int64(n.buildsCompleted)
	}

	var speedSum float64
	query := n.agentFilter.Query()
	for query.Next() {
		_, vel, _, goal, path, _, _ := query.Get()
		stats.Agents++
		if goal.Kind != components.GoalNone && !path.TargetReached {
			stats.Seeking++
		}
		if path.TargetReached {
			stats.Reached++
		}
		speedSum += float64(dist(0, 0, vel.X, vel.Y))
	}
	if stats.Agents > 0 {
		stats.AvgSpeed = speedSum / float64(stats.Agents)
	}

	n.buildsCompleted = 0
	n.buildTimeUS = 0
	return stats
}

func (n *Navigator) neighborhood(radius float32) float32 {
	nb := float32(n.cfg.Avoidance.AgentNeighborhood) * radius * 2
	if min := radius * 2; nb < min {
		return min
	}
	return nb
}

func cellsEqual(a, b []field.Cell) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
