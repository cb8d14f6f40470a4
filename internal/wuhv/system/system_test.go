package system

import (
	"testing"

	"github.com/tinyrange/wuhv/internal/wuhv/config"
	"github.com/tinyrange/wuhv/internal/wuhv/cpu"
)

// fakeAppCore / fakeSecCore / fakeInterp are minimal cpu.Backend doubles so
// the machine can be constructed and its wiring inspected without a real
// instruction interpreter linked in.
type fakeAppCore struct {
	pc   uint32
	regs [32]uint32
	sprs map[int]uint32
	msr  uint32
	tb   uint64

	sprWrite func(spr int, value uint32)
	sprRead  func(spr int) uint32
	excs     []cpu.Exception
}

func (c *fakeAppCore) PC() uint32                { return c.pc }
func (c *fakeAppCore) SetPC(pc uint32)           { c.pc = pc }
func (c *fakeAppCore) Reg(n int) uint32          { return c.regs[n] }
func (c *fakeAppCore) SetReg(n int, v uint32)    { c.regs[n] = v }
func (c *fakeAppCore) SPR(n int) uint32          { return c.sprs[n] }
func (c *fakeAppCore) SetSPR(n int, v uint32)    { c.sprs[n] = v }
func (c *fakeAppCore) MSR() uint32               { return c.msr }
func (c *fakeAppCore) SetMSR(v uint32)           { c.msr = v }
func (c *fakeAppCore) TimeBase() uint64          { return c.tb }
func (c *fakeAppCore) SetTimeBase(v uint64)      { c.tb = v }
func (c *fakeAppCore) OnSPRWrite(cb func(spr int, value uint32)) { c.sprWrite = cb }
func (c *fakeAppCore) OnSPRRead(cb func(spr int) uint32)         { c.sprRead = cb }
func (c *fakeAppCore) OnSRWrite(cb func(n int, value uint32))    {}
func (c *fakeAppCore) OnSRRead(cb func(n int) uint32)            {}
func (c *fakeAppCore) TriggerException(exc cpu.Exception)        { c.excs = append(c.excs, exc) }

type fakeSecCore struct {
	pc, lr uint32
	regs   [16]uint32
	cpsr   uint32
}

func (c *fakeSecCore) PC() uint32             { return c.pc }
func (c *fakeSecCore) SetPC(pc uint32)        { c.pc = pc }
func (c *fakeSecCore) LR() uint32             { return c.lr }
func (c *fakeSecCore) Reg(n int) uint32       { return c.regs[n] }
func (c *fakeSecCore) SetReg(n int, v uint32) { c.regs[n] = v }
func (c *fakeSecCore) CPSR() uint32           { return c.cpsr }
func (c *fakeSecCore) SetCPSR(v uint32)       { c.cpsr = v }
func (c *fakeSecCore) OnCoprocWrite(cb func(coproc, opc int, value uint32, rn, rm, typ int)) {
}
func (c *fakeSecCore) OnCoprocRead(cb func(coproc, opc, rn, rm, typ int) uint32) {}
func (c *fakeSecCore) TriggerException(exc cpu.Exception)                        {}

type fakeInterp struct {
	breaks map[uint64]bool
}

func (f *fakeInterp) Step(n int) (int, error)                                  { return n, nil }
func (f *fakeInterp) OnBreakpoint(cb func(addr uint64))                        {}
func (f *fakeInterp) OnWatchpoint(write bool, cb func(addr uint64, w bool))    {}
func (f *fakeInterp) OnFetchError(cb func(addr uint64))                        {}
func (f *fakeInterp) OnDataError(cb func(addr uint64, write bool))             {}
func (f *fakeInterp) OnUndefinedInstruction(cb func(addr uint64))              {}
func (f *fakeInterp) OnSoftwareInterrupt(cb func(addr uint64))                 {}
func (f *fakeInterp) AddBreakpoint(addr uint64)                                { f.breaks[addr] = true }
func (f *fakeInterp) RemoveBreakpoint(addr uint64)                             { delete(f.breaks, addr) }
func (f *fakeInterp) AddWatchpoint(write bool, addr uint64)                    {}
func (f *fakeInterp) RemoveWatchpoint(write bool, addr uint64)                 {}
func (f *fakeInterp) SetAlarm(interval int, cb func())                         {}

type fakeBackend struct {
	appCores [3]*fakeAppCore
	secCore  *fakeSecCore
}

func (b *fakeBackend) NewSecCore(mem cpu.PhysMemory, mmu cpu.Translator) (cpu.SecCore, cpu.Interpreter) {
	b.secCore = &fakeSecCore{}
	return b.secCore, &fakeInterp{breaks: map[uint64]bool{}}
}

func (b *fakeBackend) NewAppCore(index int, mem cpu.PhysMemory, mmu cpu.Translator, rsv cpu.Reservation) (cpu.AppCore, cpu.Interpreter) {
	c := &fakeAppCore{sprs: map[int]uint32{}}
	b.appCores[index] = c
	return c, &fakeInterp{breaks: map[uint64]bool{}}
}

func newTestSystem(t *testing.T) (*System, *fakeBackend) {
	t.Helper()
	b := &fakeBackend{}
	cpu.RegisterBackend(b)
	sys, err := New(&config.Config{}, nil)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	return sys, b
}

func TestSystemConstructsWithBlankConfig(t *testing.T) {
	sys, _ := newTestSystem(t)
	if sys.Bus == nil || sys.SecMMU == nil || sys.AppMMU[0] == nil {
		t.Fatal("machine not fully wired")
	}
	// RAM and MMIO are reachable through the shared fabric.
	if err := sys.Mem.WriteU32BE(0x08000100, 0xAABBCCDD); err != nil {
		t.Fatal(err)
	}
	got, err := sys.Mem.ReadU32BE(0x08000100)
	if err != nil || got != 0xAABBCCDD {
		t.Fatalf("MEM0 round trip: got %#x err=%v", got, err)
	}
	if _, err := sys.Mem.ReadU32BE(0xD000010); err != nil {
		t.Fatalf("latte timer not reachable: %v", err)
	}
}

func TestSystemBATWriteReachesMMU(t *testing.T) {
	sys, b := newTestSystem(t)

	app0 := b.appCores[0]
	app0.sprWrite(528, 0x10000003) // IBAT0U
	if got := sys.AppMMU[0].GetIBATU(0); got != 0x10000003 {
		t.Fatalf("IBAT0U did not reach the MMU: got %#x", got)
	}
	if got := app0.sprRead(528); got != 0x10000003 {
		t.Fatalf("IBAT0U readback: got %#x", got)
	}
}

func TestSystemICIFanOut(t *testing.T) {
	sys, b := newTestSystem(t)
	_ = sys

	// Core 0 signals both siblings; its own bit is masked off.
	b.appCores[0].sprWrite(947, 0x001C0000)
	if len(b.appCores[0].excs) != 0 {
		t.Fatal("issuing core must not interrupt itself")
	}
	for i := 1; i < 3; i++ {
		if len(b.appCores[i].excs) != 1 || b.appCores[i].excs[0] != cpu.ExcPPCInterCoreInterrupt {
			t.Fatalf("core %d exceptions: %v", i, b.appCores[i].excs)
		}
	}
}

func TestSystemDecrementerUnderflow(t *testing.T) {
	sys, b := newTestSystem(t)

	app1 := b.appCores[1]
	app1.sprs[22] = 100 // decrementer about to underflow
	sys.updateAppTimer(1)
	if len(app1.excs) != 1 || app1.excs[0] != cpu.ExcPPCDecrementer {
		t.Fatalf("exceptions after underflow: %v", app1.excs)
	}
	if app1.tb == 0 {
		t.Fatal("timebase did not advance")
	}
}

func TestSystemTracebackMarksCores(t *testing.T) {
	sys, b := newTestSystem(t)
	b.secCore.pc = 0x5000000
	out := sys.Traceback()
	if len(out) == 0 {
		t.Fatal("empty traceback")
	}
}
