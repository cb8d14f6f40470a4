package system

import (
	"github.com/tinyrange/wuhv/internal/wuhv/cpu"
	"github.com/tinyrange/wuhv/internal/wuhv/wuerr"
)

// Real PowerPC SPR numbers used directly (not through the software-defined
// dispatch below), following the 750CL-family encoding.
const (
	sprDSISR = 18
	sprDAR   = 19
	sprDEC   = 22
	sprSDR1  = 25
	sprSCR   = 947
	sprIABR  = 1010
	sprDABR  = 1013
)

// wireAppCore installs one APP core's software-defined SPR dispatch,
// segment-register access, DSI/ISI exception paths and (optionally) the
// kernel console logging breakpoints.
func (s *System) wireAppCore(i int) {
	// Stored once per core so Add/Remove and Watch/Unwatch always pass the
	// same callback value back to the router; debughook matches callbacks
	// by code pointer, which differs between two separately-built closure
	// literals even when they're behaviourally identical.
	s.iabrCB[i] = func(addr uint64) { s.handleIABRHit(i) }
	s.dabrCB[i] = func(addr uint64, write bool) { s.handleDABRHit(i, write) }

	s.AppCore[i].OnSPRWrite(func(spr int, value uint32) { s.handleAppSPRWrite(i, spr, value) })
	s.AppCore[i].OnSPRRead(func(spr int) uint32 { return s.handleAppSPRRead(i, spr) })
	s.AppCore[i].OnSRWrite(func(n int, value uint32) { s.AppMMU[i].SetSR(n, value) })
	s.AppCore[i].OnSRRead(func(n int) uint32 { return s.AppMMU[i].GetSR(n) })
	s.appInterp[i].OnFetchError(func(addr uint64) { s.handleAppISI(i, addr) })
	s.appInterp[i].OnDataError(func(addr uint64, write bool) { s.handleAppDSI(i, addr, write) })

	if s.cfg.LogConsole {
		s.appRouter[i].Add(bpAppHandleLog, func(addr uint64) { s.handleAppLog(i) })
		s.appRouter[i].Add(bpAppHackLogLevel, func(addr uint64) { s.handleAppHackLogLevel(i) })
	}
}

// handleAppSPRWrite dispatches software-defined SPR writes. BAT and SDR1
// writes reach appmmu; SCR fans out an inter-core interrupt; IABR/DABR
// (re)register a hardware breakpoint/watchpoint. Every other software-
// defined SPR is plain storage, persisted through AppCore's own generic
// SPR accessor so a later read sees it back.
func (s *System) handleAppSPRWrite(i int, spr int, value uint32) {
	mmu := s.AppMMU[i]
	switch {
	case spr == sprSDR1:
		mmu.SetSDR1(value)
	case spr >= 528 && spr <= 535:
		if spr%2 == 1 {
			mmu.SetIBATL((spr-528)/2, value)
		} else {
			mmu.SetIBATU((spr-528)/2, value)
		}
	case spr >= 536 && spr <= 543:
		if spr%2 == 1 {
			mmu.SetDBATL((spr-536)/2, value)
		} else {
			mmu.SetDBATU((spr-536)/2, value)
		}
	case spr >= 560 && spr <= 567:
		if spr%2 == 1 {
			mmu.SetIBATL((spr-560)/2+4, value)
		} else {
			mmu.SetIBATU((spr-560)/2+4, value)
		}
	case spr >= 568 && spr <= 575:
		if spr%2 == 1 {
			mmu.SetDBATL((spr-568)/2+4, value)
		} else {
			mmu.SetDBATU((spr-568)/2+4, value)
		}
	case spr == sprSCR:
		s.triggerICI(i, value)
	case spr == sprIABR:
		prev := s.AppCore[i].SPR(sprIABR)
		if prev&2 != 0 {
			s.appRouter[i].Remove(uint64(prev&^3), s.iabrCB[i])
		}
		if value&2 != 0 {
			s.appRouter[i].Add(uint64(value&^3), s.iabrCB[i])
		}
	case spr == sprDABR:
		prev := s.AppCore[i].SPR(sprDABR)
		if prev&1 != 0 {
			s.appRouter[i].Unwatch(false, uint64(prev&^7), s.dabrCB[i])
		}
		if prev&2 != 0 {
			s.appRouter[i].Unwatch(true, uint64(prev&^7), s.dabrCB[i])
		}
		if value&1 != 0 {
			s.appRouter[i].Watch(false, uint64(value&^7), s.dabrCB[i])
		}
		if value&2 != 0 {
			s.appRouter[i].Watch(true, uint64(value&^7), s.dabrCB[i])
		}
	}
	s.AppCore[i].SetSPR(spr, value)
}

// handleAppSPRRead is handleAppSPRWrite's read counterpart; BAT SPRs must
// come from appmmu's own copies rather than the generic accessor since
// BATL and BATU share no single storage slot with the raw SPR number.
func (s *System) handleAppSPRRead(i int, spr int) uint32 {
	mmu := s.AppMMU[i]
	switch {
	case spr >= 528 && spr <= 535:
		if spr%2 == 1 {
			return mmu.GetIBATL((spr - 528) / 2)
		}
		return mmu.GetIBATU((spr - 528) / 2)
	case spr >= 536 && spr <= 543:
		if spr%2 == 1 {
			return mmu.GetDBATL((spr - 536) / 2)
		}
		return mmu.GetDBATU((spr - 536) / 2)
	case spr >= 560 && spr <= 567:
		if spr%2 == 1 {
			return mmu.GetIBATL((spr-560)/2 + 4)
		}
		return mmu.GetIBATU((spr-560)/2 + 4)
	case spr >= 568 && spr <= 575:
		if spr%2 == 1 {
			return mmu.GetDBATL((spr-568)/2 + 4)
		}
		return mmu.GetDBATU((spr-568)/2 + 4)
	default:
		return s.AppCore[i].SPR(spr)
	}
}

// triggerICI handles an SCR write: any of the three APP cores named in
// value's bits 18-20 gets an inter-core interrupt, except the core that
// issued the write, whose own bit is always masked off.
func (s *System) triggerICI(from int, value uint32) {
	target := value &^ (1 << uint(20-from))
	if target&0x00100000 != 0 {
		s.AppCore[0].TriggerException(cpu.ExcPPCInterCoreInterrupt)
	}
	if target&0x00080000 != 0 {
		s.AppCore[1].TriggerException(cpu.ExcPPCInterCoreInterrupt)
	}
	if target&0x00040000 != 0 {
		s.AppCore[2].TriggerException(cpu.ExcPPCInterCoreInterrupt)
	}
}

// handleIABRHit and handleDABRHit fire when a guest-armed hardware
// breakpoint/watchpoint lands. No firmware path that arms one has been
// observed actually hitting it, so what the guest expects next is
// unknown; a deliberately unimplemented KindDeviceConfig fault beats a
// silent no-op, the same treatment the AES chain-continue path gets.
func (s *System) handleIABRHit(i int) {
	fatalf(wuerr.KindDeviceConfig, 0, uint64(s.AppCore[i].PC()), "instruction address breakpoint hit on APP%d (unimplemented)", i)
}

func (s *System) handleDABRHit(i int, write bool) {
	fatalf(wuerr.KindDeviceConfig, 0, uint64(s.AppCore[i].PC()), "data address breakpoint hit on APP%d write=%v (unimplemented)", i, write)
}

// handleAppDSI posts a data storage interrupt: DAR/DSISR, then vector.
func (s *System) handleAppDSI(i int, addr uint64, write bool) {
	if !s.cfg.NoPrint {
		s.log.Info("DSI exception", "core", i, "addr", addr, "pc", s.AppCore[i].PC())
	}
	s.AppCore[i].SetSPR(sprDAR, uint32(addr))
	dsisr := uint32(0x40000000)
	if write {
		dsisr |= 0x02000000
	}
	s.AppCore[i].SetSPR(sprDSISR, dsisr)
	s.AppCore[i].TriggerException(cpu.ExcPPCDSI)
}

// handleAppISI treats an instruction-fetch fault as unconditionally
// fatal, unlike the SEC side's configurable data-abort handling: no
// legitimate firmware path fetches from an unmapped address.
func (s *System) handleAppISI(i int, addr uint64) {
	fatalf(wuerr.KindTranslationFault, addr, uint64(s.AppCore[i].PC()), "ISI exception on APP%d at %#08x", i, addr)
}

// handleAppLog fires at the kernel's console-output site: r6/r7 are the
// address and length of an ASCII line.
func (s *System) handleAppLog(i int) {
	addr := s.AppCore[i].Reg(6)
	length := s.AppCore[i].Reg(7)
	data, err := s.appMem[i].ReadBytes(addr, int(length))
	if err != nil {
		s.log.Warn("APP console log read failed", "core", i, "err", err)
		return
	}
	s.log.Info(string(data), "component", "console", "core", i)
}

// handleAppHackLogLevel forces the kernel's in-memory log-level check to
// its most verbose setting, so -logconsole actually has chatter to
// surface.
func (s *System) handleAppHackLogLevel(i int) {
	core := s.AppCore[i]
	core.SetReg(3, 0xFFFFFFFF)
	core.SetReg(4, 0xFFFFFFFF)
	core.SetReg(5, 0xFFFFFFFF)
	core.SetReg(6, 0xFFFFFFFF)
	core.SetReg(7, 7)
}
