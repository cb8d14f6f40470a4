// Package cpu defines the contracts the rest of this module consumes from
// the CPU instruction interpreters. The interpreters themselves are
// external collaborators, reusable cores that raise callbacks; this package
// only names the shape they must satisfy.
package cpu

// Exception identifies a guest exception vector. The numeric values follow
// each architecture's own vector table and are opaque to this package;
// callers pass the architecture-specific constant their core defines.
type Exception int

// ARM-class exception vectors: the fixed offsets every ARMv5/v6-family
// core uses from its vector base.
const (
	ExcARMReset             Exception = 0x00
	ExcARMUndefined         Exception = 0x04
	ExcARMSoftwareInterrupt Exception = 0x08
	ExcARMPrefetchAbort     Exception = 0x0C
	ExcARMDataAbort         Exception = 0x10
	ExcARMIRQ               Exception = 0x18
	ExcARMFIQ               Exception = 0x1C
)

// PowerPC-class exception vectors, following the 750CL-family offsets.
// ExcPPCInterCoreInterrupt has no publicly documented Espresso-specific
// offset; it is an internal tag distinct from the others, not a claim
// about real hardware's vector table.
const (
	ExcPPCSystemReset        Exception = 0x100
	ExcPPCMachineCheck       Exception = 0x200
	ExcPPCDSI                Exception = 0x300
	ExcPPCISI                Exception = 0x400
	ExcPPCExternalInterrupt  Exception = 0x500
	ExcPPCAlignment          Exception = 0x600
	ExcPPCProgram            Exception = 0x700
	ExcPPCDecrementer        Exception = 0x900
	ExcPPCSystemCall         Exception = 0xC00
	ExcPPCTrace              Exception = 0xD00
	ExcPPCInterCoreInterrupt Exception = 0x1300
)

// AppCore is the per-APP (PowerPC-class) register/SPR/MSR accessor and
// exception-injection surface.
type AppCore interface {
	PC() uint32
	SetPC(pc uint32)
	Reg(n int) uint32
	SetReg(n int, v uint32)
	SPR(n int) uint32
	SetSPR(n int, v uint32)
	MSR() uint32
	SetMSR(v uint32)
	// TimeBase returns the 64-bit timebase register.
	TimeBase() uint64
	SetTimeBase(v uint64)
	// OnSPRWrite registers the callback fired whenever guest code executes
	// mtspr for a software-defined SPR (BATs, SDR1, SCR, the decrementer,
	// and so on). Architecturally fixed SPRs the core itself implements
	// never reach it.
	OnSPRWrite(cb func(spr int, value uint32))
	// OnSPRRead registers the callback fired whenever guest code executes
	// mfspr for a software-defined SPR; cb returns the value to hand back.
	OnSPRRead(cb func(spr int) uint32)
	// OnSRWrite/OnSRRead handle segment-register access (mtsr/mfsr).
	OnSRWrite(cb func(n int, value uint32))
	OnSRRead(cb func(n int) uint32)
	// TriggerException injects exc at the next instruction boundary.
	TriggerException(exc Exception)
}

// SecCore is the SEC (ARM-class) register/coprocessor accessor surface.
type SecCore interface {
	PC() uint32
	SetPC(pc uint32)
	LR() uint32
	Reg(n int) uint32
	SetReg(n int, v uint32)
	CPSR() uint32
	SetCPSR(v uint32)
	// OnCoprocWrite/OnCoprocRead register the CP15 register-access
	// callbacks that drive secmmu's control/DACR/translation-base setters.
	// rn/rm/typ are the CRn/CRm/opcode2 fields MCR/MRC encode; coproc is
	// always 15 for every register this module models.
	OnCoprocWrite(cb func(coproc, opc int, value uint32, rn, rm, typ int))
	OnCoprocRead(cb func(coproc, opc, rn, rm, typ int) uint32)
	TriggerException(exc Exception)
}

// Interpreter is the per-core stepping and event-callback surface the
// scheduler and the breakpoint/watchpoint router drive.
type Interpreter interface {
	// Step retires up to n instructions, or fewer if an exception,
	// breakpoint or watchpoint interrupts the quantum early.
	Step(n int) (retired int, err error)

	OnBreakpoint(cb func(addr uint64))
	OnWatchpoint(write bool, cb func(addr uint64, write bool))
	OnFetchError(cb func(addr uint64))
	OnDataError(cb func(addr uint64, write bool))
	// OnUndefinedInstruction registers the callback fired whenever the core
	// decodes an opcode it doesn't implement. addr is the address
	// immediately after the offending instruction.
	OnUndefinedInstruction(cb func(addr uint64))
	// OnSoftwareInterrupt registers the SVC/syscall-trap callback (the SEC
	// side's software-interrupt vector, distinct from the IOS-syscall
	// undefined-instruction convention HandleTrap decodes).
	OnSoftwareInterrupt(cb func(addr uint64))

	AddBreakpoint(addr uint64)
	RemoveBreakpoint(addr uint64)
	AddWatchpoint(write bool, addr uint64)
	RemoveWatchpoint(write bool, addr uint64)

	// SetAlarm arranges for cb to be called once every interval retired
	// instructions.
	SetAlarm(interval int, cb func())
}

// Translator turns an effective address into a physical one. A real
// backend uses it to resolve every instruction fetch and data access
// before touching PhysMemory; secmmu.MMU and appmmu.MMU both satisfy it.
type Translator interface {
	Translate(ea uint32, write, exec bool) (uint32, error)
}

// ModalTranslator is the optional extension both MMU implementations also
// satisfy. The current privilege level lives with the core's own state
// (MSR PR on the APP side, CPSR mode on the SEC side), which only the
// backend observes changing, so backends are expected to type-assert their
// Translator to this and push the privilege flag through it on every
// user/supervisor transition, and InvalidateTLB on an explicit
// TLB-invalidate instruction. The APP-side MMU additionally exposes
// SetTranslationEnabled(instr, data bool), driven the same way from the
// MSR IR/DR bits; the SEC side's enable bit arrives through the CP15
// control-register write path instead and needs nothing from the backend.
type ModalTranslator interface {
	Translator
	SetPrivileged(privileged bool)
	InvalidateTLB()
}

// PhysMemory is the subset of *phys.Memory a backend needs once it has a
// physical address in hand. Kept as a narrow interface here (rather than
// importing package phys) so this package stays a minimal, dependency-free
// contract surface.
type PhysMemory interface {
	Read(addr, length uint64) ([]byte, error)
	Write(addr uint64, data []byte) error
	ReadU32BE(addr uint64) (uint32, error)
	WriteU32BE(addr uint64, value uint32) error
}

// Reservation is the shared load-linked/store-conditional manager every APP
// core's interpreter drives: Reserve on lwarx, CheckAndClear on stwcx.,
// ObserveStore on every ordinary store, Clear on exception entry.
// internal/wuhv/reservation.Manager satisfies it; one instance is shared by
// all three APP cores.
type Reservation interface {
	Reserve(core int, addr uint32)
	CheckAndClear(core int, addr uint32) bool
	Clear(core int)
	ObserveStore(core int, addr uint32, size int)
}

// Backend constructs the four real core/interpreter pairs this module
// drives but does not itself implement. No backend ships in this
// repository, so system.New returns ErrNoBackend until one is registered
// via RegisterBackend, typically from an init() in a separate package that
// links the real decoders in. mem and mmu are
// handed to the backend so its fetch/execute loop can translate and
// access guest memory through the same fabric the rest of this module
// uses; system.go constructs one appmmu.MMU per APP core and one
// secmmu.MMU for SEC and passes each through here.
type Backend interface {
	NewSecCore(mem PhysMemory, mmu Translator) (SecCore, Interpreter)
	NewAppCore(index int, mem PhysMemory, mmu Translator, rsv Reservation) (AppCore, Interpreter)
}

var backend Backend

// RegisterBackend installs the process-wide interpreter backend. Intended
// to be called from an init() function so that importing the backend
// package for its side effect is sufficient to wire it in.
func RegisterBackend(b Backend) { backend = b }

// CurrentBackend returns the registered backend, if any.
func CurrentBackend() (Backend, bool) { return backend, backend != nil }
