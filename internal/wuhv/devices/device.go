// Package devices implements the MMIO device models behind the hardware
// register window: the Latte system controller, interrupt and mailbox
// plumbing, storage and crypto engines, and the USB/SATA/SD host
// controllers.
//
// Every device satisfies the same shape: read(offset)
// and write(offset, value) over a contiguous 32-bit-register window.
// Unknown offsets log-and-return-zero on read, log-and-ignore on write;
// that is never itself a fatal condition, since firmware frequently probes
// registers the model doesn't need to implement.
package devices

import (
	"log/slog"
)

// Device is the common MMIO device shape consumed by phys.Memory's special
// windows (see phys.Device) and by internal/wuhv/devices/bus.go's top-level
// dispatch.
type Device interface {
	Read(offset uint64, size int) (uint64, error)
	Write(offset uint64, size int, value uint64) error
}

// RegBank is a plain 32-bit-aligned register file with the standard
// log-and-ignore/log-and-zero unknown-offset behaviour, embedded by the
// simplest devices (AHMN, MEM, DI2SATA, PAD), which have no behaviour
// beyond plain register storage.
type RegBank struct {
	Name string
	regs map[uint64]uint32
}

// NewRegBank creates an empty named register bank.
func NewRegBank(name string) *RegBank {
	return &RegBank{Name: name, regs: map[uint64]uint32{}}
}

func (b *RegBank) Read(offset uint64, size int) (uint64, error) {
	v, ok := b.regs[offset]
	if !ok {
		slog.Debug("device read of unknown offset", "device", b.Name, "offset", offset)
		return 0, nil
	}
	return uint64(v), nil
}

func (b *RegBank) Write(offset uint64, size int, value uint64) error {
	if b.regs == nil {
		b.regs = map[uint64]uint32{}
	}
	b.regs[offset] = uint32(value)
	return nil
}

// Get reads a register's current value without the unknown-offset log line,
// for device code that wants to combine RegBank storage with bespoke
// dispatch logic.
func (b *RegBank) Get(offset uint64) uint32 {
	return b.regs[offset]
}

// Set writes a register's value directly.
func (b *RegBank) Set(offset uint64, v uint32) {
	if b.regs == nil {
		b.regs = map[uint64]uint32{}
	}
	b.regs[offset] = v
}
