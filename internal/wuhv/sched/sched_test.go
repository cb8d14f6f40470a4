package sched

import "testing"

// stepperInterpreter is a minimal cpu.Interpreter stub that always retires
// its full requested quantum and never faults.
type stepperInterpreter struct {
	rotations int
}

func (s *stepperInterpreter) Step(n int) (int, error) {
	s.rotations++
	return n, nil
}
func (s *stepperInterpreter) OnBreakpoint(cb func(addr uint64))                    {}
func (s *stepperInterpreter) OnWatchpoint(write bool, cb func(addr uint64, w bool)) {}
func (s *stepperInterpreter) OnFetchError(cb func(addr uint64))                     {}
func (s *stepperInterpreter) OnDataError(cb func(addr uint64, write bool))          {}
func (s *stepperInterpreter) OnUndefinedInstruction(cb func(addr uint64))           {}
func (s *stepperInterpreter) OnSoftwareInterrupt(cb func(addr uint64))              {}
func (s *stepperInterpreter) AddBreakpoint(addr uint64)                             {}
func (s *stepperInterpreter) RemoveBreakpoint(addr uint64)                          {}
func (s *stepperInterpreter) AddWatchpoint(write bool, addr uint64)                 {}
func (s *stepperInterpreter) RemoveWatchpoint(write bool, addr uint64)              {}
func (s *stepperInterpreter) SetAlarm(interval int, cb func())                      {}

// TestSchedulerRoundRobinFairness: three cores with quanta 1000/2000/500;
// after one full rotation each core's cumulative retired-instruction count
// equals its quantum.
func TestSchedulerRoundRobinFairness(t *testing.T) {
	s := New()

	cores := []*Core{
		{Name: "c0", Interpreter: &stepperInterpreter{}, Quantum: 1000},
		{Name: "c1", Interpreter: &stepperInterpreter{}, Quantum: 2000},
		{Name: "c2", Interpreter: &stepperInterpreter{}, Quantum: 500},
	}
	for _, c := range cores {
		s.Add(c)
		s.Resume(c)
	}
	// Pause everything from the last core's pre-quantum hook: that core
	// still takes the quantum it already claimed, so the run ends after
	// exactly one full rotation.
	cores[2].CheckInterrupts = func() {
		for _, c := range cores {
			s.Pause(c)
		}
	}

	if err := s.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	for _, c := range cores {
		if c.Retired() != int64(c.Quantum) {
			t.Errorf("core %s: retired %d want %d", c.Name, c.Retired(), c.Quantum)
		}
	}
}

func TestSchedulerAlarmFiresOnRetiredInstructions(t *testing.T) {
	s := New()
	c := &Core{Name: "only", Interpreter: &stepperInterpreter{}, Quantum: 100}
	s.Add(c)
	s.Resume(c)

	fired := 0
	s.AddAlarm(250, func() {
		fired++
		if fired >= 3 {
			s.Pause(c)
		}
	})

	if err := s.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	// 100-instruction quanta, alarm every 250: the deadlines at 250, 500
	// and 750 are crossed at the 300, 500 and 800 quantum boundaries.
	if fired != 3 {
		t.Fatalf("alarm fired %d times, want 3", fired)
	}
}

func TestSchedulerStopsWhenNoCoreRunning(t *testing.T) {
	s := New()
	c := &Core{Name: "idle", Interpreter: &stepperInterpreter{}, Quantum: 10}
	s.Add(c)
	// never resumed
	if err := s.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if c.Retired() != 0 {
		t.Fatalf("idle core retired %d instructions, want 0", c.Retired())
	}
}
