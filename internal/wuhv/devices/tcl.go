package devices

import (
	"log/slog"

	"github.com/tinyrange/wuhv/internal/wuhv/wuerr"
)

// TCL is the graphics command-processor block. Command execution is not
// modelled; what is, is the interrupt-info ring the display controller
// shares with the guest (vsync completion records
// written into guest memory, consumed by comparing the guest-visible write
// position against TCL_INTR_READ_POS), the RLC/CP microcode upload windows
// (firmware reads its upload back to verify it), and the command-buffer
// read-pointer handshake on TCL_FLUSH.
type TCL struct {
	intrInfoPtr    uint64
	intrReadPos    uint32
	intrInfoPosPtr uint64

	rlcMicrocode    [0x400]uint32
	rlcMicrocodePos int

	dc0IntMask, dc1IntMask uint32

	cpRingbufBase uint64
	cpReadPosPtr  uint64
	cpWritePos    uint32

	cpMicrocode1    [0x350]uint32
	cpMicrocode2    [0x550]uint32
	cpMicrocode1Pos int
	cpMicrocode2Pos int

	drmdmaReadPos, drmdmaWritePos uint32

	mem phys64
	pc  func() uint32
}

// NewTCL creates a TCL block; mem carries the interrupt-info ring, the
// flush handshake and nothing else.
func NewTCL(mem phys64, pc func() uint32) *TCL {
	return &TCL{mem: mem, pc: pc}
}

func (t *TCL) readU32(addr uint64) uint32 {
	b, err := t.mem.Read(addr, 4)
	if err != nil {
		panic(wuerr.Wrap(wuerr.KindUnmappedAccess, addr, uint64(t.pc()), "tcl: interrupt info read", err))
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func (t *TCL) writeU32(addr uint64, v uint32) {
	if err := t.mem.Write(addr, []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}); err != nil {
		panic(wuerr.Wrap(wuerr.KindUnmappedAccess, addr, uint64(t.pc()), "tcl: interrupt info write", err))
	}
}

func (t *TCL) intrInfoPos() uint32          { return t.readU32(t.intrInfoPosPtr) }
func (t *TCL) setIntrInfoPos(pos uint32)    { t.writeU32(t.intrInfoPosPtr, pos) }

// triggerInterrupt appends one four-word record to the interrupt-info ring
// and advances the guest-visible write position.
func (t *TCL) triggerInterrupt(kind, data1, data2, data3 uint32) {
	pos := t.intrInfoPos()
	base := t.intrInfoPtr + uint64(pos)*4
	t.writeU32(base, kind)
	t.writeU32(base+4, data1)
	t.writeU32(base+8, data2)
	t.writeU32(base+12, data3)
	t.setIntrInfoPos(pos + 4)
}

// TriggerVsync is invoked by the scheduler alarm wired in system.go. The
// display firmware signals vsync on 'TrigA' rather than the documented
// vsync record, so that is what gets posted, gated per display controller
// by its interrupt mask.
func (t *TCL) TriggerVsync() {
	if t.dc0IntMask&0x01000000 != 0 {
		t.triggerInterrupt(2, 3, 0, 0)
	}
	if t.dc1IntMask&0x01000000 != 0 {
		t.triggerInterrupt(6, 3, 0, 0)
	}
}

// CheckInterrupts reports whether the guest has unconsumed interrupt-info
// records, consumed as the "graphics" poll function passed to
// irq.NewProcessorInterface.
func (t *TCL) CheckInterrupts() bool {
	return t.intrInfoPos() != t.intrReadPos
}

const (
	tclIntrInfoPtr      = 0xC203E04 - 0xC200000
	tclIntrReadPos      = 0xC203E08 - 0xC200000
	tclIntrInfoPosPtr   = 0xC203E14 - 0xC200000
	tclRLCMicrocodeCtrl = 0xC203F2C - 0xC200000
	tclRLCMicrocodeData = 0xC203F30 - 0xC200000
	tclDC206070         = 0xC206070 - 0xC200000
	tclDC0IntMask       = 0xC2060DC - 0xC200000
	tclDC2064A0         = 0xC2064A0 - 0xC200000
	tclDC1IntMask       = 0xC2068DC - 0xC200000
	tclCPReset          = 0xC208020 - 0xC200000
	tclFlush            = 0xC208500 - 0xC200000
	tclCPRingbufBase    = 0xC20C100 - 0xC200000
	tclCPReadPosPtr     = 0xC20C10C - 0xC200000
	tclCPWritePos       = 0xC20C114 - 0xC200000
	tclCPMicrocode1Ctrl = 0xC20C150 - 0xC200000
	tclCPMicrocode1Data = 0xC20C154 - 0xC200000
	tclCPMicrocode2Ctrl = 0xC20C15C - 0xC200000
	tclCPMicrocode2Data = 0xC20C160 - 0xC200000
	tclDRMDMAReadPos    = 0xC20D008 - 0xC200000
	tclDRMDMAWritePos   = 0xC20D00C - 0xC200000
)

func (t *TCL) Read(offset uint64, size int) (uint64, error) {
	switch offset {
	case tclRLCMicrocodeData:
		v := t.rlcMicrocode[t.rlcMicrocodePos%len(t.rlcMicrocode)]
		t.rlcMicrocodePos++
		return uint64(v), nil
	case tclDC206070:
		return 0x10000, nil
	case tclDC2064A0:
		return 2, nil
	case tclFlush:
		// Post the command-buffer read pointer back to the guest as a
		// 16-bit word; command buffers themselves are not executed.
		hi, lo := byte(t.cpWritePos>>8), byte(t.cpWritePos)
		if err := t.mem.Write(t.cpReadPosPtr, []byte{hi, lo}); err != nil {
			return 0, err
		}
		t.drmdmaReadPos = t.drmdmaWritePos
		return 0, nil
	case tclCPMicrocode1Data:
		v := t.cpMicrocode1[t.cpMicrocode1Pos%len(t.cpMicrocode1)]
		t.cpMicrocode1Pos++
		return uint64(v), nil
	case tclCPMicrocode2Data:
		v := t.cpMicrocode2[t.cpMicrocode2Pos%len(t.cpMicrocode2)]
		t.cpMicrocode2Pos++
		return uint64(v), nil
	case tclDRMDMAReadPos:
		return uint64(t.drmdmaReadPos), nil
	default:
		slog.Debug("tcl read of unmodelled offset", "offset", offset, "pc", t.pc())
		return 0, nil
	}
}

func (t *TCL) Write(offset uint64, size int, value uint64) error {
	v := uint32(value)
	switch offset {
	case tclIntrInfoPtr:
		t.intrInfoPtr = uint64(v) << 8
	case tclIntrReadPos:
		t.intrReadPos = v
	case tclIntrInfoPosPtr:
		t.intrInfoPosPtr = uint64(v)
	case tclRLCMicrocodeCtrl:
		t.rlcMicrocodePos = int(v)
	case tclRLCMicrocodeData:
		t.rlcMicrocode[t.rlcMicrocodePos%len(t.rlcMicrocode)] = v
		t.rlcMicrocodePos++
	case tclDC0IntMask:
		t.dc0IntMask = v
	case tclDC1IntMask:
		t.dc1IntMask = v
	case tclCPReset:
	case tclCPRingbufBase:
		t.cpRingbufBase = uint64(v) << 8
	case tclCPReadPosPtr:
		t.cpReadPosPtr = uint64(v)
	case tclCPWritePos:
		t.cpWritePos = v
	case tclCPMicrocode1Ctrl:
		t.cpMicrocode1Pos = int(v)
	case tclCPMicrocode1Data:
		t.cpMicrocode1[t.cpMicrocode1Pos%len(t.cpMicrocode1)] = v
		t.cpMicrocode1Pos++
	case tclCPMicrocode2Ctrl:
		t.cpMicrocode2Pos = int(v)
	case tclCPMicrocode2Data:
		t.cpMicrocode2[t.cpMicrocode2Pos%len(t.cpMicrocode2)] = v
		t.cpMicrocode2Pos++
	case tclDRMDMAWritePos:
		t.drmdmaWritePos = v
	default:
		slog.Debug("tcl write to unmodelled offset", "offset", offset, "value", v, "pc", t.pc())
	}
	return nil
}
