package devices

import "github.com/tinyrange/wuhv/internal/wuhv/irq"

// PI is the per-APP-core MMIO register window (PI_CPU0/1/2) over an
// irq.ProcessorInterface. The pending register is
// read-and-write-one-to-clear; the mask register is plain read/write.
type PI struct {
	iface *irq.ProcessorInterface
}

// NewPI wraps a processor interface for MMIO exposure.
func NewPI(iface *irq.ProcessorInterface) *PI { return &PI{iface: iface} }

const (
	piRegINTSR = 0x0
	piRegINTMR = 0x4
)

// CheckInterrupts reports whether the wrapped processor interface has a
// pending, unmasked interrupt.
func (p *PI) CheckInterrupts() bool {
	return p.iface.CheckInterrupts()
}

func (p *PI) Read(offset uint64, size int) (uint64, error) {
	switch offset {
	case piRegINTSR:
		p.iface.CheckInterrupts()
		return uint64(p.iface.ReadPending()), nil
	case piRegINTMR:
		return uint64(p.iface.ReadMask()), nil
	default:
		return 0, nil
	}
}

func (p *PI) Write(offset uint64, size int, value uint64) error {
	v := uint32(value)
	switch offset {
	case piRegINTSR:
		p.iface.WritePending(v)
	case piRegINTMR:
		p.iface.WriteMask(v)
	}
	return nil
}
