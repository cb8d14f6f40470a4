package devices

import (
	"log/slog"

	"github.com/tinyrange/wuhv/internal/wuhv/wuerr"
)

// rtcController models the EXI0-attached real-time clock. Its wire protocol
// is a single 32-bit shift register: the first word written selects a command
// (high bit set) or triggers a read (high bit clear); a write command then
// consumes one or more follow-up words.
type rtcController struct {
	sram [0x10]uint32

	data     uint32
	tempData uint32

	writeState  uint32
	writeOffset uint32

	onTimer, offTimer     uint32
	controlReg0, controlReg1 uint32

	pc func() uint32
}

func newRTCController(pc func() uint32) *rtcController {
	return &rtcController{pc: pc}
}

func (r *rtcController) updateData() { r.data = r.tempData }

// handle processes one 32-bit word shifted into the RTC's command register.
func (r *rtcController) handle(value uint32) error {
	switch {
	case r.writeState != 0:
		r.writeState--
		return r.handleWrite(value)
	case value&0x80000000 != 0:
		if value == 0xA0000100 {
			r.writeState = 0x10
		} else {
			r.writeState = 1
		}
		r.writeOffset = value &^ 0x80000000
	default:
		r.tempData = r.handleRead(value)
	}
	return nil
}

func (r *rtcController) handleRead(offset uint32) uint32 {
	switch offset {
	case 0x21000000:
		return r.onTimer
	case 0x21000100:
		return r.offTimer
	case 0x21000C00:
		return r.controlReg0
	case 0x21000D00:
		return r.controlReg1
	default:
		slog.Debug("rtc read of unknown offset", "offset", offset, "pc", r.pc())
		return 0
	}
}

func (r *rtcController) handleWrite(value uint32) error {
	switch r.writeOffset {
	case 0x20000100:
		r.sram[0x10-r.writeState] = value
	case 0x21000000:
		r.onTimer = value & 0x3FFFFFFF
	case 0x21000100:
		r.offTimer = value & 0x3FFFFFFF
	case 0x21000D00:
		if value&0x10000 != 0 {
			return wuerr.New(wuerr.KindDeviceConfig, 0, uint64(r.pc()), "rtc: power off not implemented")
		}
		if value&0x100 != 0 {
			return wuerr.New(wuerr.KindDeviceConfig, 0, uint64(r.pc()), "rtc: sleep mode not implemented")
		}
		r.controlReg1 = value
	default:
		slog.Debug("rtc write to unknown offset", "offset", r.writeOffset, "value", value, "pc", r.pc())
	}
	return nil
}

// EXI is the EXI0 bridge that carries the RTC command stream. Address
// offsets here are relative to the EXI0 register window (EXI0_CSR at
// offset 0).
type EXI struct {
	rtc *rtcController

	armIRQ func(line uint)
	pc     func() uint32

	csr0, data0 uint32
}

// NewEXI creates an EXI controller. armIRQ raises line 20 in the ARM-side
// aggregator's all-status word on every completed command; pc returns the
// current guest PC for diagnostics.
func NewEXI(armIRQ func(line uint), pc func() uint32) *EXI {
	return &EXI{rtc: newRTCController(pc), armIRQ: armIRQ, pc: pc}
}

const (
	exiCSR  = 0x0
	exiCR   = 0xC
	exiData = 0x10
)

func (e *EXI) Read(offset uint64, size int) (uint64, error) {
	switch offset {
	case exiCSR:
		return uint64(e.csr0), nil
	case exiData:
		return uint64(e.rtc.data), nil
	default:
		slog.Debug("exi read of unknown offset", "offset", offset, "pc", e.pc())
		return 0, nil
	}
}

func (e *EXI) Write(offset uint64, size int, value uint64) error {
	v := uint32(value)
	switch offset {
	case exiCSR:
		e.csr0 = v
	case exiCR:
		switch v {
		case 0x31: // update in data
			e.rtc.updateData()
			e.armIRQ(20)
		case 0x35: // send data
			if err := e.rtc.handle(e.data0); err != nil {
				return err
			}
			e.armIRQ(20)
			e.csr0 |= 4
		default:
			slog.Debug("exi0_cr write of unhandled command", "value", v, "pc", e.pc())
		}
	case exiData:
		e.data0 = v
	default:
		slog.Debug("exi write to unknown offset", "offset", offset, "value", v, "pc", e.pc())
	}
	return nil
}
