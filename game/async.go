package game

import (
	"runtime"
	"sync"
	"time"

	"github.com/pthm-cable/crowd/field"
	"github.com/pthm-cable/crowd/systems"
)

// buildJob is one flow-field build: goal cells plus an obstacle-field
// snapshot, written into the cache entry's back buffer.
type buildJob struct {
	req       systems.BuildRequest
	goals     []field.Cell
	obstacles *systems.ObstacleField // snapshot, not the live field
	target    *systems.FlowField
}

type buildResult struct {
	req      systems.BuildRequest
	err      error
	duration time.Duration
}

// buildPool runs flow-field builds on persistent workers. Results are
// drained by the driver goroutine each tick; the cache publishes them via
// FinishBuild so readers never observe a half-built field.
type buildPool struct {
	jobs     chan buildJob
	results  chan buildResult
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func newBuildPool(workers int) *buildPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &buildPool{
		jobs:     make(chan buildJob, 256),
		results:  make(chan buildResult, 256),
		stopChan: make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *buildPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case job := <-p.jobs:
			start := time.Now()
			err := job.target.Build(job.goals, job.obstacles, job.req.Size)
			// The result send must also watch stopChan, or a full results
			// buffer at shutdown would wedge stop() on wg.Wait.
			select {
			case p.results <- buildResult{req: job.req, err: err, duration: time.Since(start)}:
			case <-p.stopChan:
				return
			}
		}
	}
}

func (p *buildPool) submit(job buildJob) {
	p.jobs <- job
}

// poll drains finished builds without blocking.
func (p *buildPool) poll() []buildResult {
	var out []buildResult
	for {
		select {
		case res := <-p.results:
			out = append(out, res)
		default:
			return out
		}
	}
}

func (p *buildPool) stop() {
	close(p.stopChan)
	p.wg.Wait()
}
