package systems

import (
	"errors"
	"testing"

	"github.com/pthm-cable/crowd/components"
	"github.com/pthm-cable/crowd/field"
)

func cacheTestLayout() field.Layout {
	return field.NewLayout(8, 8, 1.0)
}

// TestCacheSingleEntryPerGoal verifies repeated acquires share one entry and
// one field per size class.
func TestCacheSingleEntryPerGoal(t *testing.T) {
	c := NewFlowFieldCache(cacheTestLayout())
	goal := components.GoalAt(field.At(3, 3))

	f1 := c.Acquire(goal, components.SizeSmall)
	f2 := c.Acquire(goal, components.SizeSmall)
	if f1 != f2 {
		t.Error("same goal and size returned different fields")
	}
	if c.Len() != 1 {
		t.Errorf("cache has %d entries, want 1", c.Len())
	}

	f3 := c.Acquire(goal, components.SizeLarge)
	if f3 == f1 {
		t.Error("different size classes share a field")
	}
	if c.Len() != 1 {
		t.Errorf("second size class grew the cache to %d entries", c.Len())
	}

	other := components.GoalAt(field.At(5, 5))
	c.Acquire(other, components.SizeSmall)
	if c.Len() != 2 {
		t.Errorf("cache has %d entries, want 2", c.Len())
	}

	goals := c.Goals(nil)
	if len(goals) != 2 {
		t.Errorf("Goals returned %d goals, want 2", len(goals))
	}
}

// TestCacheTTL verifies entries age out unless re-acquired.
func TestCacheTTL(t *testing.T) {
	c := NewFlowFieldCache(cacheTestLayout())
	goal := components.GoalAt(field.At(3, 3))
	c.Acquire(goal, components.SizeSmall)

	if ttl := c.TTL(goal); ttl != CacheTTL {
		t.Errorf("fresh TTL = %f, want %f", ttl, CacheTTL)
	}

	c.Tick(CacheTTL / 2)
	if ttl := c.TTL(goal); ttl <= 0 || ttl >= CacheTTL {
		t.Errorf("aged TTL = %f", ttl)
	}

	// An acquire resets the clock.
	c.Acquire(goal, components.SizeSmall)
	if ttl := c.TTL(goal); ttl != CacheTTL {
		t.Errorf("TTL after re-acquire = %f, want %f", ttl, CacheTTL)
	}

	c.Tick(CacheTTL + 1)
	if c.Contains(goal) {
		t.Error("entry survived past its TTL")
	}
	if c.Len() != 0 {
		t.Errorf("cache has %d entries after expiry", c.Len())
	}
	if ttl := c.TTL(goal); ttl != 0 {
		t.Errorf("TTL of absent goal = %f, want 0", ttl)
	}
}

// TestCachePendingAndBuildSwap verifies the dirty -> building -> published
// cycle swaps the back buffer to the front.
func TestCachePendingAndBuildSwap(t *testing.T) {
	c := NewFlowFieldCache(cacheTestLayout())
	goal := components.GoalAt(field.At(3, 3))
	front := c.Acquire(goal, components.SizeSmall)

	pending := c.Pending(nil)
	if len(pending) != 1 {
		t.Fatalf("%d pending builds, want 1", len(pending))
	}
	req := pending[0]
	if req.Goal != goal || req.Size != components.SizeSmall {
		t.Fatalf("pending request = %+v", req)
	}

	back := c.BeginBuild(req)
	if back == nil {
		t.Fatal("BeginBuild returned nil")
	}
	if back == front {
		t.Fatal("build target is the front buffer")
	}

	// In flight: neither pending again nor double-buildable.
	if p := c.Pending(nil); len(p) != 0 {
		t.Errorf("%d pending while building, want 0", len(p))
	}
	if c.BeginBuild(req) != nil {
		t.Error("BeginBuild allowed a second concurrent build")
	}

	c.FinishBuild(req, nil)
	if got := c.Peek(goal, components.SizeSmall); got != back {
		t.Error("successful build did not publish the back buffer")
	}

	// A failed build keeps the last-good front.
	req2 := BuildRequest{Goal: goal, Size: components.SizeSmall}
	c.BeginBuild(req2)
	c.FinishBuild(req2, errors.New("boom"))
	if got := c.Peek(goal, components.SizeSmall); got != back {
		t.Error("failed build replaced the front buffer")
	}
}

// TestCacheMarkDirty verifies dirty flags re-queue only built fields.
func TestCacheMarkDirty(t *testing.T) {
	c := NewFlowFieldCache(cacheTestLayout())
	goalA := components.GoalAt(field.At(1, 1))
	goalB := components.GoalAt(field.At(6, 6))
	c.Acquire(goalA, components.SizeSmall)
	c.Acquire(goalB, components.SizeMedium)

	// Drain the initial dirtiness.
	for _, req := range c.Pending(nil) {
		c.BeginBuild(req)
		c.FinishBuild(req, nil)
	}
	if p := c.Pending(nil); len(p) != 0 {
		t.Fatalf("%d pending after drain", len(p))
	}

	c.MarkDirty(goalA)
	p := c.Pending(nil)
	if len(p) != 1 || p[0].Goal != goalA {
		t.Errorf("MarkDirty pending = %+v, want one request for goalA", p)
	}

	c.MarkAllDirty()
	if p := c.Pending(nil); len(p) != 2 {
		t.Errorf("MarkAllDirty pending = %d requests, want 2", len(p))
	}

	// Unknown goals are a no-op.
	c.MarkDirty(components.GoalAt(field.At(0, 7)))
	if p := c.Pending(nil); len(p) != 2 {
		t.Errorf("marking an absent goal changed pending to %d", len(p))
	}
}

// TestCacheExpiryWaitsForBuilds verifies an entry with a build in flight is
// retired but not freed until the build lands.
func TestCacheExpiryWaitsForBuilds(t *testing.T) {
	c := NewFlowFieldCache(cacheTestLayout())
	goal := components.GoalAt(field.At(3, 3))
	c.Acquire(goal, components.SizeSmall)

	req := c.Pending(nil)[0]
	target := c.BeginBuild(req)
	if target == nil {
		t.Fatal("BeginBuild returned nil")
	}

	c.Tick(CacheTTL + 1)
	if !c.Contains(goal) {
		t.Fatal("entry freed while its build was in flight")
	}
	// Expired entries must not schedule more work.
	if p := c.Pending(nil); len(p) != 0 {
		t.Errorf("%d pending on an expired entry", len(p))
	}

	c.FinishBuild(req, nil)
	if c.Contains(goal) {
		t.Error("entry survived after its last build landed")
	}
}

// TestCacheFinishBuildAfterTeardown verifies a result for a goal that has
// vanished is dropped quietly.
func TestCacheFinishBuildAfterTeardown(t *testing.T) {
	c := NewFlowFieldCache(cacheTestLayout())
	goal := components.GoalAt(field.At(3, 3))

	c.FinishBuild(BuildRequest{Goal: goal, Size: components.SizeSmall}, nil)
	if c.Len() != 0 {
		t.Error("FinishBuild resurrected a missing entry")
	}
	if c.BeginBuild(BuildRequest{Goal: goal, Size: components.SizeSmall}) != nil {
		t.Error("BeginBuild created a build for a missing entry")
	}
}
