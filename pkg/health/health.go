package health

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// checkTimeout bounds a single dependency probe
const checkTimeout = 5 * time.Second

// Result represents the outcome of one dependency check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker probes one dependency of the running service
type Checker interface {
	// Name identifies the dependency in reports
	Name() string

	// Check performs the probe and returns the result
	Check(ctx context.Context) Result
}

// Report is the aggregate outcome across all dependencies
type Report struct {
	Healthy bool
	Checks  map[string]Result
}

// Health runs a set of dependency checkers for the ops endpoints
type Health struct {
	checkers []Checker
}

// New creates a Health aggregating the given checkers
func New(checkers ...Checker) *Health {
	return &Health{checkers: checkers}
}

// Add registers another checker
func (h *Health) Add(c Checker) {
	h.checkers = append(h.checkers, c)
}

// Check probes every dependency concurrently and aggregates the results.
// The report is healthy only when every check is.
func (h *Health) Check(ctx context.Context) Report {
	report := Report{
		Healthy: true,
		Checks:  make(map[string]Result, len(h.checkers)),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range h.checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			result := c.Check(checkCtx)

			mu.Lock()
			report.Checks[c.Name()] = result
			if !result.Healthy {
				report.Healthy = false
			}
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	return report
}

// Pinger is a dependency that answers a context-bound ping, like the job
// store or the file gateway.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker adapts a Pinger into a named Checker
type PingChecker struct {
	name string
	p    Pinger
}

// NewPingChecker creates a checker that probes p under the given name
func NewPingChecker(name string, p Pinger) *PingChecker {
	return &PingChecker{name: name, p: p}
}

// Name identifies the dependency
func (c *PingChecker) Name() string { return c.name }

// Check pings the dependency
func (c *PingChecker) Check(ctx context.Context) Result {
	start := time.Now()
	if err := c.p.Ping(ctx); err != nil {
		return Result{
			Message:   fmt.Sprintf("ping failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	return Result{
		Healthy:   true,
		Message:   "ok",
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// ConnChecker reports a connection-oriented dependency, like the bus
type ConnChecker struct {
	name      string
	connected func() bool
}

// NewConnChecker creates a checker backed by a connection predicate
func NewConnChecker(name string, connected func() bool) *ConnChecker {
	return &ConnChecker{name: name, connected: connected}
}

// Name identifies the dependency
func (c *ConnChecker) Name() string { return c.name }

// Check reports the connection state
func (c *ConnChecker) Check(ctx context.Context) Result {
	start := time.Now()
	if !c.connected() {
		return Result{
			Message:   "disconnected",
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	return Result{
		Healthy:   true,
		Message:   "connected",
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// ScratchChecker verifies the scratch directory exists and is writable
type ScratchChecker struct {
	dir string
}

// NewScratchChecker creates a checker for the given directory
func NewScratchChecker(dir string) *ScratchChecker {
	return &ScratchChecker{dir: dir}
}

// Name identifies the dependency
func (c *ScratchChecker) Name() string { return "scratch" }

// Check writes and removes a probe file in the scratch directory
func (c *ScratchChecker) Check(ctx context.Context) Result {
	start := time.Now()

	fail := func(err error) Result {
		return Result{
			Message:   fmt.Sprintf("scratch dir %s: %v", c.dir, err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fail(err)
	}
	probe, err := os.CreateTemp(c.dir, ".probe-*")
	if err != nil {
		return fail(err)
	}
	name := probe.Name()
	_, werr := probe.WriteString("ok")
	cerr := probe.Close()
	os.Remove(name)
	if werr != nil {
		return fail(werr)
	}
	if cerr != nil {
		return fail(cerr)
	}

	return Result{
		Healthy:   true,
		Message:   "writable",
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}
