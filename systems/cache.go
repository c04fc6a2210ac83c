package systems

import (
	"github.com/pthm-cable/crowd/components"
	"github.com/pthm-cable/crowd/field"
)

// CacheTTL is how long a flow-field entry survives without being seeked.
const CacheTTL float32 = 30.0

// BuildRequest identifies one pending flow-field build.
type BuildRequest struct {
	Goal components.Goal
	Size components.AgentSize
}

type cacheEntry struct {
	front [components.NumAgentSizes]*FlowField // served to agents
	back  [components.NumAgentSizes]*FlowField // build target

	dirty    [components.NumAgentSizes]bool
	building [components.NumAgentSizes]bool

	ttl     float32
	expired bool
}

func (e *cacheEntry) buildsInFlight() bool {
	for _, b := range e.building {
		if b {
			return true
		}
	}
	return false
}

// FlowFieldCache holds at most one entry per goal, each with lazily created
// per-size flow fields. Entries expire after CacheTTL seconds without a
// seek; entries with builds in flight are torn down only once the build
// completes, so builders never write into freed fields.
type FlowFieldCache struct {
	layout  field.Layout
	entries map[components.Goal]*cacheEntry
}

// NewFlowFieldCache creates an empty cache over the layout.
func NewFlowFieldCache(layout field.Layout) *FlowFieldCache {
	return &FlowFieldCache{
		layout:  layout,
		entries: make(map[components.Goal]*cacheEntry),
	}
}

// Len returns the number of live entries.
func (c *FlowFieldCache) Len() int { return len(c.entries) }

// Contains reports whether the goal has a live entry.
func (c *FlowFieldCache) Contains(goal components.Goal) bool {
	_, ok := c.entries[goal]
	return ok
}

// Goals appends every live goal to dst.
func (c *FlowFieldCache) Goals(dst []components.Goal) []components.Goal {
	for goal := range c.entries {
		dst = append(dst, goal)
	}
	return dst
}

// TTL returns the remaining lifetime of the goal's entry, 0 when absent.
func (c *FlowFieldCache) TTL(goal components.Goal) float32 {
	if e, ok := c.entries[goal]; ok {
		return e.ttl
	}
	return 0
}

// Acquire returns the flow field for (goal, size), creating the entry and
// field as needed, and refreshes the entry's TTL. The returned field is the
// last-good front buffer; it may be unbuilt (Sample yields DirNone) until
// the first build lands.
func (c *FlowFieldCache) Acquire(goal components.Goal, size components.AgentSize) *FlowField {
	e, ok := c.entries[goal]
	if !ok {
		e = &cacheEntry{}
		c.entries[goal] = e
	}
	e.ttl = CacheTTL
	e.expired = false

	if e.front[size] == nil {
		e.front[size] = NewFlowField(c.layout)
		e.dirty[size] = true
	}
	return e.front[size]
}

// Peek returns the front field without touching the TTL, nil when absent.
func (c *FlowFieldCache) Peek(goal components.Goal, size components.AgentSize) *FlowField {
	if e, ok := c.entries[goal]; ok {
		return e.front[size]
	}
	return nil
}

// MarkAllDirty flags every live field for rebuild; called when the obstacle
// field changes.
func (c *FlowFieldCache) MarkAllDirty() {
	for _, e := range c.entries {
		for size := range e.front {
			if e.front[size] != nil {
				e.dirty[size] = true
			}
		}
	}
}

// MarkDirty flags one goal's fields for rebuild; called when an entity goal
// moves to a different cell.
func (c *FlowFieldCache) MarkDirty(goal components.Goal) {
	if e, ok := c.entries[goal]; ok {
		for size := range e.front {
			if e.front[size] != nil {
				e.dirty[size] = true
			}
		}
	}
}

// Pending appends every dirty field without a build in flight to dst.
func (c *FlowFieldCache) Pending(dst []BuildRequest) []BuildRequest {
	for goal, e := range c.entries {
		if e.expired {
			continue
		}
		for size := range e.front {
			if e.dirty[size] && !e.building[size] {
				dst = append(dst, BuildRequest{Goal: goal, Size: components.AgentSize(size)})
			}
		}
	}
	return dst
}

// BeginBuild marks the request in flight and returns the back buffer to
// build into. Returns nil when the entry vanished or a build is already
// running.
func (c *FlowFieldCache) BeginBuild(req BuildRequest) *FlowField {
	e, ok := c.entries[req.Goal]
	if !ok || e.building[req.Size] {
		return nil
	}
	if e.back[req.Size] == nil {
		e.back[req.Size] = NewFlowField(c.layout)
	}
	e.building[req.Size] = true
	e.dirty[req.Size] = false
	return e.back[req.Size]
}

// FinishBuild publishes a completed build by swapping the back buffer to
// the front. Failed builds keep the last-good front field. Must be called
// on the driver goroutine. Expired entries are torn down here once their
// last build lands.
func (c *FlowFieldCache) FinishBuild(req BuildRequest, err error) {
	e, ok := c.entries[req.Goal]
	if !ok {
		return
	}
	e.building[req.Size] = false
	if err == nil {
		e.front[req.Size], e.back[req.Size] = e.back[req.Size], e.front[req.Size]
	}
	if e.expired && !e.buildsInFlight() {
		delete(c.entries, req.Goal)
	}
}

// Tick ages all entries and tears down the expired ones. Entries with
// builds in flight are retired but kept until FinishBuild.
func (c *FlowFieldCache) Tick(dt float32) {
	for goal, e := range c.entries {
		e.ttl -= dt
		if e.ttl > 0 {
			continue
		}
		e.expired = true
		if !e.buildsInFlight() {
			delete(c.entries, goal)
		}
	}
}
