package devices

import "log/slog"

// ASICBus is the indirect PLL-configuration bus reachable through the
// Latte ABIF_CPLTL offset/data register pair. Firmware selects a 32-bit
// "offset" then reads/writes a small table of PLL words at that offset;
// the seed values below keep clock-configuration probes reading back
// self-consistent data.
type ASICBus struct {
	offset uint32

	pllData    [9]uint32
	usbPLLData [5]uint32
	gfxPLLData [10]uint32
	sataPLLData [9]uint32

	pc func() uint32
}

// NewASICBus creates an ASIC bus with its PLL tables pre-seeded.
func NewASICBus(pc func() uint32) *ASICBus {
	return &ASICBus{
		pllData:    [9]uint32{0xC, 0x800, 0x1C2, 7, 0, 0, 0x100, 0x40, 0xC800},
		usbPLLData: [5]uint32{0x20, 3, 0x1200, 0x3F, 0xC120},
		gfxPLLData: [10]uint32{0x1200, 0x20, 0xA, 0x800, 0xD, 0x800, 0x81C2, 0, 0x4002, 0},
		pc:         pc,
	}
}

func (a *ASICBus) SetOffset(offset uint32) { a.offset = offset }

func (a *ASICBus) GetData() uint32 {
	switch {
	case a.offset >= 0x3000010 && a.offset < 0x3000022:
		return a.pllData[(a.offset-0x3000010)/2]
	case a.offset >= 0x4000024 && a.offset < 0x400002E:
		return a.usbPLLData[(a.offset-0x4000024)/2]
	case a.offset >= 0x878 && a.offset < 0x88C:
		return a.gfxPLLData[(a.offset-0x878)/2]
	case a.offset == 0x1000000:
		return 0x54
	case a.offset >= 0x4000010 && a.offset < 0x4000022:
		return a.sataPLLData[(a.offset-0x4000010)/2]
	case a.offset>>24 == 0xC0:
		return 0
	default:
		slog.Debug("asic bus read of unmapped offset", "offset", a.offset, "pc", a.pc())
		return 0
	}
}

func (a *ASICBus) Write(value uint32) {
	switch {
	case a.offset >= 0x3000010 && a.offset < 0x3000022:
		a.pllData[(a.offset-0x3000010)/2] = value
	case a.offset >= 0x4000024 && a.offset < 0x400002E:
		a.usbPLLData[(a.offset-0x4000024)/2] = value
	case a.offset >= 0x4000010 && a.offset < 0x4000022:
		a.sataPLLData[(a.offset-0x4000010)/2] = value
	case a.offset>>24 == 0xC0:
		// writes to the 0xC0xxxxxx window are accepted and dropped
	default:
		slog.Debug("asic bus write to unmapped offset", "offset", a.offset, "value", value, "pc", a.pc())
	}
}
