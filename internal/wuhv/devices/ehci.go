package devices

import "log/slog"

// EHCI is a USB 2.0 host controller stub. Firmware never drives the
// high-speed USB stack through this controller for anything needed to
// boot, so execute() logs and does nothing.
type EHCI struct {
	index int

	cmd, status, intr           uint32
	frameIndex, controlSegment  uint32
	perListAddr, asyncListAddr  uint32
	configFlag                  uint32

	pc func() uint32
}

// NewEHCI creates an EHCI controller in its post-reset state.
func NewEHCI(index int, pc func() uint32) *EHCI {
	e := &EHCI{index: index, pc: pc}
	e.reset()
	return e
}

func (e *EHCI) reset() {
	e.cmd = 0
	e.status = 0x1000
	e.intr = 0
	e.frameIndex = 0
	e.controlSegment = 0
	e.perListAddr = 0
	e.asyncListAddr = 0
	e.configFlag = 0
}

const (
	ehciCmd           = 0x0
	ehciStatus        = 0x4
	ehciIntr          = 0x8
	ehciFrameIndex    = 0xC
	ehciCtrlSegment   = 0x10
	ehciPerListBase   = 0x14
	ehciAsyncListAddr = 0x18
	ehciConfigFlag    = 0x40
)

func (e *EHCI) Read(offset uint64, size int) (uint64, error) {
	switch offset {
	case ehciCmd:
		return uint64(e.cmd), nil
	case ehciStatus:
		return uint64(e.status), nil
	case ehciIntr:
		return uint64(e.intr), nil
	case ehciFrameIndex:
		return uint64(e.frameIndex), nil
	case ehciCtrlSegment:
		return uint64(e.controlSegment), nil
	default:
		slog.Debug("ehci read of unknown offset", "index", e.index, "offset", offset, "pc", e.pc())
		return 0, nil
	}
}

func (e *EHCI) Write(offset uint64, size int, value uint64) error {
	v := uint32(value)
	switch offset {
	case ehciCmd:
		if v&2 != 0 {
			e.reset()
			v &^= 2
		}
		if v&1 != 0 {
			e.execute()
			v &^= 1
		}
		e.cmd = v
	case ehciStatus:
		e.status &^= v
	case ehciIntr:
		e.intr = v
	case ehciFrameIndex:
		e.frameIndex = v
	case ehciPerListBase:
		e.perListAddr = v
	case ehciAsyncListAddr:
		e.asyncListAddr = v
	case ehciConfigFlag:
		e.configFlag = v
	default:
		slog.Debug("ehci write to unknown offset", "index", e.index, "offset", offset, "value", v, "pc", e.pc())
	}
	return nil
}

func (e *EHCI) execute() {
	slog.Debug("ehci execute", "index", e.index, "pc", e.pc())
}
