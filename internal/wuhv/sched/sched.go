// Package sched implements the round-robin cycle scheduler: it interleaves
// a fixed set of CPU cores, each taking a fixed quantum to completion, and
// advances alarms on a granularity independent of core rotation (here:
// total retired instructions).
package sched

import (
	"fmt"

	"github.com/tinyrange/wuhv/internal/wuhv/cpu"
)

// Core is one schedulable unit: an interpreter to step and a hook the
// scheduler calls before every quantum to let the core observe pending
// interrupts and possibly inject an exception.
type Core struct {
	Name            string
	Interpreter     cpu.Interpreter
	Quantum         int
	CheckInterrupts func()

	running bool
	retired int64
}

// Retired returns the cumulative instruction count this core has retired
// across its lifetime.
func (c *Core) Retired() int64 { return c.retired }

type alarm struct {
	period    int64
	next      int64
	callback  func()
}

// Scheduler owns an ordered list of cores and alarms, and runs a
// single-threaded cooperative interleave of both. There is no OS-thread
// parallelism: exactly one core executes at a time, with device effects
// completing synchronously within a quantum.
type Scheduler struct {
	cores        []*Core
	alarms       []*alarm
	index        int
	totalRetired int64
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{index: -1}
}

// Add appends a core to the schedule. It starts paused; call Resume to make
// it eligible for rotation.
func (s *Scheduler) Add(c *Core) {
	s.cores = append(s.cores, c)
}

// Resume marks a core as running, eligible to take its quantum in the
// rotation.
func (s *Scheduler) Resume(c *Core) {
	c.running = true
}

// Pause removes a core from the running set.
func (s *Scheduler) Pause(c *Core) {
	c.running = false
}

// AddAlarm registers a callback that fires exactly once every interval
// instructions retired across all cores combined.
func (s *Scheduler) AddAlarm(interval int64, callback func()) {
	s.alarms = append(s.alarms, &alarm{period: interval, next: interval, callback: callback})
}

// Current returns the core whose quantum is presently executing (or most
// recently executed, between rotations).
func (s *Scheduler) Current() *Core {
	if len(s.cores) == 0 || s.index < 0 {
		return nil
	}
	return s.cores[s.index]
}

// Run loops forever, picking the next running core in round-robin order,
// invoking its interrupt check, then stepping its quantum to completion. It
// returns when the running set becomes empty, or when a callback's error
// propagates out uncaught.
func (s *Scheduler) Run() error {
	for {
		anyRunning := false
		for i := 0; i < len(s.cores); i++ {
			s.index = (s.index + 1) % len(s.cores)
			c := s.cores[s.index]
			if !c.running {
				continue
			}
			anyRunning = true

			if c.CheckInterrupts != nil {
				c.CheckInterrupts()
			}

			retired, err := c.Interpreter.Step(c.Quantum)
			c.retired += int64(retired)
			s.totalRetired += int64(retired)
			if err != nil {
				return fmt.Errorf("core %s: %w", c.Name, err)
			}

			s.fireAlarms()
		}
		if !anyRunning {
			return nil
		}
	}
}

func (s *Scheduler) fireAlarms() {
	for _, a := range s.alarms {
		for s.totalRetired >= a.next {
			a.callback()
			a.next += a.period
		}
	}
}
