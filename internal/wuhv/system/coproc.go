package system

import (
	"github.com/tinyrange/wuhv/internal/wuhv/cpu"
	"github.com/tinyrange/wuhv/internal/wuhv/wuerr"
)

// secFaults holds the CP15 fault-reporting registers (data/instruction
// fault status, fault address): software-visible state, not translation
// behaviour, so it lives with the glue rather than inside secmmu.MMU.
type secFaults struct {
	dataFaultStatus  uint32
	instrFaultStatus uint32
	faultAddress     uint32
}

// wireSecCore installs the SEC core's CP15 coprocessor dispatch, the
// data-abort exception path, the syscall-snoop undefined-instruction
// trap, and the two always-on boot-sequence breakpoints.
func (s *System) wireSecCore() {
	s.SecCore.OnCoprocWrite(s.handleSecCoprocWrite)
	s.SecCore.OnCoprocRead(s.handleSecCoprocRead)
	s.secInterp.OnDataError(s.handleSecDataAbort)
	s.secInterp.OnUndefinedInstruction(func(addr uint64) {
		if err := s.Snoop.HandleTrap(uint32(addr)); err != nil {
			s.log.Error("syscall snoop trap failed", "err", err, "pc", addr)
		}
	})

	s.SecRouter.Add(bpSecLogLevelHack, func(addr uint64) { s.SecCore.SetReg(0, 0) })
	s.SecRouter.Add(bpSecResetPPC, func(addr uint64) { s.triggerAppReset() })
	if s.cfg.LogConsole {
		s.SecRouter.Add(bpSecSyslog, func(addr uint64) { s.handleSyslog() })
	}
}

// secControlReg/secDACRReg hand CP15 reads back the raw value last
// written, distinct from whatever secmmu.MMU derives from them.
func (s *System) secControlReg() uint32 { return s.secControl }
func (s *System) secDACRReg() uint32    { return s.secDACR }

// handleSecCoprocWrite dispatches MCR p15 writes: control, translation
// table base, domain access control, the two fault status registers and
// the fault address register. Cache-maintenance and barrier ops (c7, c8)
// are accepted as no-ops since this module has no cache model to
// invalidate.
func (s *System) handleSecCoprocWrite(coproc, opc int, value uint32, rn, rm, typ int) {
	if coproc != 15 {
		return
	}
	switch {
	case rn == 1 && rm == 0 && typ == 0:
		s.secControl = value
		s.SecMMU.SetControl(value)
	case rn == 2 && rm == 0 && typ == 0:
		s.SecMMU.SetTranslationBase(value)
	case rn == 3 && rm == 0 && typ == 0:
		s.secDACR = value
		s.SecMMU.SetDACR(value)
	case rn == 5 && rm == 0 && typ == 0:
		s.secFaults.dataFaultStatus = value
	case rn == 5 && rm == 0 && typ == 1:
		s.secFaults.instrFaultStatus = value
	case rn == 6 && rm == 0 && typ == 0:
		s.secFaults.faultAddress = value
	case rn == 7 || rn == 8:
		// Cache/TLB maintenance and barriers: no cache model, and
		// SetControl/SetTranslationBase/SetDACR already flush the TLB on
		// every configuration change, so an explicit c8 invalidate is a
		// no-op here too.
	default:
		s.log.Debug("unhandled SEC coproc write", "rn", rn, "rm", rm, "typ", typ, "value", value, "pc", s.SecCore.PC())
	}
}

// handleSecCoprocRead is handleSecCoprocWrite's read counterpart.
func (s *System) handleSecCoprocRead(coproc, opc, rn, rm, typ int) uint32 {
	if coproc != 15 {
		return 0
	}
	switch {
	case rn == 1 && rm == 0 && typ == 0:
		return s.secControlReg()
	case rn == 3 && rm == 0 && typ == 0:
		return s.secDACRReg()
	case rn == 5 && rm == 0 && typ == 0:
		return s.secFaults.dataFaultStatus
	case rn == 5 && rm == 0 && typ == 1:
		return s.secFaults.instrFaultStatus
	case rn == 6 && rm == 0 && typ == 0:
		return s.secFaults.faultAddress
	default:
		s.log.Debug("unhandled SEC coproc read", "rn", rn, "rm", rm, "typ", typ, "pc", s.SecCore.PC())
		return 0
	}
}

// handleSecDataAbort raises a guest-visible data abort if -abort was
// passed, otherwise a fatal error. Distinct from the
// translation-time faults secmmu.MMU.Translate itself raises (those are
// already gated by SetAbortRecoverable); this path is the raw physical
// access failure the interpreter reports once translation has already
// succeeded.
func (s *System) handleSecDataAbort(addr uint64, write bool) {
	if !s.cfg.AbortRecoverable {
		fatalf(wuerr.KindTranslationFault, addr, uint64(s.SecCore.PC()), "data abort: access to %#08x", addr)
	}
	status := uint32(5)
	if write {
		status |= 1 << 11
	}
	s.secFaults.dataFaultStatus = status
	s.secFaults.faultAddress = uint32(addr)
	s.SecCore.TriggerException(cpu.ExcARMDataAbort)
}

// handleSyslog fires at the kernel's syslog call site: r1/r2 hold the
// address and length of an ASCII line the firmware wants logged. Gated by
// -logconsole since the console has no UART device to model.
func (s *System) handleSyslog() {
	addr := s.SecCore.Reg(1)
	length := s.SecCore.Reg(2)
	data, err := s.secMem.ReadBytes(addr, int(length))
	if err != nil {
		s.log.Warn("syslog read failed", "err", err)
		return
	}
	s.log.Info(string(data), "component", "console", "core", "SEC")
}
