package devices

import (
	"log/slog"

	"github.com/tinyrange/wuhv/internal/wuhv/irq"
	"github.com/tinyrange/wuhv/internal/wuhv/phys"
)

// Bus is the single MMIO special window registered with phys.Memory for
// the whole 0xC000000-0xD9A0000 hardware region: one flat address-range
// dispatch table fanning out to every individual device model. The mirror
// bit is masked off every access (addr &^= 0x800000) before routing, so
// the 0xD800000 alias lands on the same registers.
type Bus struct {
	Latte *Latte

	PI  [3]*PI
	TCL *TCL
	PAD *PAD

	AHMN    *AHMN
	MEM     *MEM
	EXI     *EXI
	DI2SATA *DI2SATA

	EHCI0, EHCI1, EHCI2          *EHCI
	OHCI00, OHCI01, OHCI1, OHCI2 *OHCI
	AHCI                         *AHCI
	SDIO0, SDIO1, SDIO2, Wifi    *SDIO
	NAND                         *NAND
	AES, AESS                    *AES
	SHA, SHAS                    *SHA

	pc func() uint32
}

// BusConfig carries the backing images a real console would read off its
// NAND/SD cards and fuse banks; system.go populates it from host config.
type BusConfig struct {
	OTP         [256]uint32
	SEEPROM     [256]uint16
	SLC, SLCSpare, SLCCmpt, SLCCmptSpare nandBackend
	MLC sdBackend
	Debug bool
}

// NewBus wires every MMIO device model against the given physical memory
// (used for DMA) and interrupt plumbing, then returns the single façade to
// register as a phys.Device special window.
func NewBus(mem *phys.Memory, cfg BusConfig, pc func() uint32) *Bus {
	b := &Bus{pc: pc}

	b.Latte = NewLatte(cfg.Debug, pc)
	b.Latte.OTP = NewOTP(cfg.OTP)
	b.Latte.ASICBus = NewASICBus(pc)

	seeprom := NewSEEPROM(cfg.SEEPROM, pc)
	group1 := newGPIOGroup1(seeprom, pc)
	group2 := newGPIOGroup2(pc)
	b.Latte.GPIO = NewGPIO(group1, pc)
	b.Latte.GPIO2 = NewGPIO(group2, pc)
	b.Latte.I2C = NewI2C(b.Latte.GPIO2, false, pc)
	b.Latte.I2CPPC = NewI2C(b.Latte.GPIO2, true, pc)

	armIRQAll := func(line uint) { b.Latte.IRQARM.TriggerAll(line) }
	armIRQLT := func(line uint) { b.Latte.IRQARM.TriggerLT(line) }

	b.TCL = NewTCL(mem, pc)
	b.PI = [3]*PI{}
	for i := 0; i < 3; i++ {
		iface := irq.NewProcessorInterface(b.Latte.IRQPPC[i], i, b.TCL.CheckInterrupts)
		b.PI[i] = NewPI(iface)
	}
	b.PAD = NewPAD()

	b.AHMN = NewAHMN()
	b.MEM = NewMEM()
	b.EXI = NewEXI(armIRQAll, pc)
	b.DI2SATA = NewDI2SATA()

	b.OHCI00 = NewOHCI(mem, 0, armIRQAll, pc)
	b.OHCI01 = NewOHCI(mem, 1, armIRQAll, pc)
	b.OHCI1 = NewOHCI(mem, 2, armIRQAll, pc)
	b.OHCI2 = NewOHCI(mem, 3, armIRQAll, pc)
	b.AHCI = NewAHCI(mem, armIRQAll, armIRQLT, pc)

	b.SDIO0 = NewSDIO(mem, 0, SDCardUnknown, nil, armIRQAll, armIRQLT, pc)
	b.SDIO1 = NewSDIO(mem, 1, SDCardSD, cfg.MLC, armIRQAll, armIRQLT, pc)
	b.SDIO2 = NewSDIO(mem, 2, SDCardUnknown, nil, armIRQAll, armIRQLT, pc)
	b.Wifi = NewSDIO(mem, 3, SDCardUnknown, nil, armIRQAll, armIRQLT, pc)

	b.NAND = NewNAND(mem, cfg.SLC, cfg.SLCSpare, cfg.SLCCmpt, cfg.SLCCmptSpare, armIRQAll, pc)
	b.AES = NewAES(mem, 0, armIRQAll, armIRQLT, pc)
	b.AESS = NewAES(mem, 1, armIRQAll, armIRQLT, pc)
	b.SHA = NewSHA(mem, 0, armIRQAll, armIRQLT, pc)
	b.SHAS = NewSHA(mem, 1, armIRQAll, armIRQLT, pc)

	b.EHCI0 = NewEHCI(0, pc)
	b.EHCI1 = NewEHCI(1, pc)
	b.EHCI2 = NewEHCI(2, pc)

	return b
}

// BusBase is the physical address Bus must be mounted at via
// phys.Memory.AddSpecial for the offsets below to line up with the
// lowest-addressed device window (PI for CPU 0).
const BusBase = 0xC000000

// BusSize is the span Bus must be registered over to cover every device
// window up to the end of the secondary SHA engine, and the same windows
// again through the 0xD800000 mirror (0xD1A0000 + 0x800000).
const BusSize = 0xD1A0000 + 0x800000 - BusBase

// Address windows below are rebased onto BusBase since Read/Write receive
// offsets relative to wherever phys.Memory mounted this special window.
const (
	aPICPU0  = 0xC000078 - BusBase
	aPICPU0E = 0xC000080 - BusBase
	aPICPU1E = 0xC000088 - BusBase
	aPICPU2E = 0xC000090 - BusBase
	aPAD     = 0xC1E0000 - BusBase
	aPADEnd  = 0xC200000 - BusBase
	aTCL     = 0xC200000 - BusBase
	aTCLEnd  = 0xC300000 - BusBase

	aLatte    = 0xD000000 - BusBase
	aLatteEnd = 0xD001000 - BusBase

	aDI2SATA    = 0xD006000 - BusBase
	aDI2SATAEnd = 0xD00602C - BusBase
	aEXI        = 0xD006800 - BusBase
	aEXIEnd     = 0xD00683C - BusBase

	aNAND    = 0xD010000 - BusBase
	aNANDEnd = 0xD020000 - BusBase
	aAES     = 0xD020000 - BusBase
	aAESEnd  = 0xD030000 - BusBase
	aSHA     = 0xD030000 - BusBase
	aSHAEnd  = 0xD040000 - BusBase

	aEHCI0    = 0xD040000 - BusBase
	aEHCI0End = 0xD050000 - BusBase
	aOHCI00    = 0xD050000 - BusBase
	aOHCI00End = 0xD060000 - BusBase
	aOHCI01    = 0xD060000 - BusBase
	aOHCI01End = 0xD070000 - BusBase
	aSDIO0     = 0xD070000 - BusBase
	aSDIO0End  = 0xD080000 - BusBase
	aWifi      = 0xD080000 - BusBase
	aWifiEnd   = 0xD090000 - BusBase

	aAHMN    = 0xD0B0000 - BusBase
	aAHMNEnd = 0xD0B1000 - BusBase
	aMEM     = 0xD0B4000 - BusBase
	aMEMEnd  = 0xD0B4800 - BusBase

	aSDIO1    = 0xD100000 - BusBase
	aSDIO1End = 0xD110000 - BusBase
	aSDIO2    = 0xD110000 - BusBase
	aSDIO2End = 0xD120000 - BusBase
	aEHCI1    = 0xD120000 - BusBase
	aEHCI1End = 0xD130000 - BusBase
	aOHCI1    = 0xD130000 - BusBase
	aOHCI1End = 0xD140000 - BusBase
	aEHCI2    = 0xD140000 - BusBase
	aEHCI2End = 0xD150000 - BusBase
	aOHCI2    = 0xD150000 - BusBase
	aOHCI2End = 0xD160000 - BusBase
	aAHCI     = 0xD160000 - BusBase
	aAHCIEnd  = 0xD170000 - BusBase

	aAESS     = 0xD180000 - BusBase
	aAESSEnd  = 0xD190000 - BusBase
	aSHAS     = 0xD190000 - BusBase
	aSHASEnd  = 0xD1A0000 - BusBase
)

// Read implements phys.Device; offset is relative to BusBase.
func (b *Bus) Read(offset uint64, size int) (uint64, error) {
	offset &^= 0x800000

	switch {
	case offset >= aLatte && offset < aLatteEnd:
		return b.Latte.Read(offset-aLatte, size)
	case offset >= aPICPU0 && offset < aPICPU0E:
		return b.PI[0].Read(offset-aPICPU0, size)
	case offset >= aPICPU0E && offset < aPICPU1E:
		return b.PI[1].Read(offset-aPICPU0E, size)
	case offset >= aPICPU1E && offset < aPICPU2E:
		return b.PI[2].Read(offset-aPICPU1E, size)
	case offset >= aTCL && offset < aTCLEnd:
		return b.TCL.Read(offset-aTCL, size)
	case offset >= aAHMN && offset < aAHMNEnd:
		return b.AHMN.Read(offset-aAHMN, size)
	case offset >= aMEM && offset < aMEMEnd:
		return b.MEM.Read(offset-aMEM, size)
	case offset >= aEXI && offset < aEXIEnd:
		return b.EXI.Read(offset-aEXI, size)
	case offset >= aDI2SATA && offset < aDI2SATAEnd:
		return b.DI2SATA.Read(offset-aDI2SATA, size)
	case offset >= aEHCI0 && offset < aEHCI0End:
		return b.EHCI0.Read(offset-aEHCI0, size)
	case offset >= aEHCI1 && offset < aEHCI1End:
		return b.EHCI1.Read(offset-aEHCI1, size)
	case offset >= aEHCI2 && offset < aEHCI2End:
		return b.EHCI2.Read(offset-aEHCI2, size)
	case offset >= aOHCI00 && offset < aOHCI00End:
		return b.OHCI00.Read(offset-aOHCI00, size)
	case offset >= aOHCI01 && offset < aOHCI01End:
		return b.OHCI01.Read(offset-aOHCI01, size)
	case offset >= aOHCI1 && offset < aOHCI1End:
		return b.OHCI1.Read(offset-aOHCI1, size)
	case offset >= aOHCI2 && offset < aOHCI2End:
		return b.OHCI2.Read(offset-aOHCI2, size)
	case offset >= aAHCI && offset < aAHCIEnd:
		return b.AHCI.Read(offset-aAHCI, size)
	case offset >= aSDIO0 && offset < aSDIO0End:
		return b.SDIO0.Read(offset-aSDIO0, size)
	case offset >= aSDIO1 && offset < aSDIO1End:
		return b.SDIO1.Read(offset-aSDIO1, size)
	case offset >= aSDIO2 && offset < aSDIO2End:
		return b.SDIO2.Read(offset-aSDIO2, size)
	case offset >= aWifi && offset < aWifiEnd:
		return b.Wifi.Read(offset-aWifi, size)
	case offset >= aNAND && offset < aNANDEnd:
		return b.NAND.Read(offset-aNAND, size)
	case offset >= aAES && offset < aAESEnd:
		return b.AES.Read(offset-aAES, size)
	case offset >= aAESS && offset < aAESSEnd:
		return b.AESS.Read(offset-aAESS, size)
	case offset >= aSHA && offset < aSHAEnd:
		return b.SHA.Read(offset-aSHA, size)
	case offset >= aSHAS && offset < aSHASEnd:
		return b.SHAS.Read(offset-aSHAS, size)
	case offset >= aPAD && offset < aPADEnd:
		return b.PAD.Read(offset-aPAD, size)
	default:
		slog.Debug("hardware bus read of unmapped offset", "offset", offset, "pc", b.pc())
		return 0, nil
	}
}

// Write implements phys.Device, mirroring Read's dispatch table.
func (b *Bus) Write(offset uint64, size int, value uint64) error {
	offset &^= 0x800000

	switch {
	case offset >= aLatte && offset < aLatteEnd:
		return b.Latte.Write(offset-aLatte, size, value)
	case offset >= aPICPU0 && offset < aPICPU0E:
		return b.PI[0].Write(offset-aPICPU0, size, value)
	case offset >= aPICPU0E && offset < aPICPU1E:
		return b.PI[1].Write(offset-aPICPU0E, size, value)
	case offset >= aPICPU1E && offset < aPICPU2E:
		return b.PI[2].Write(offset-aPICPU1E, size, value)
	case offset >= aTCL && offset < aTCLEnd:
		return b.TCL.Write(offset-aTCL, size, value)
	case offset >= aAHMN && offset < aAHMNEnd:
		return b.AHMN.Write(offset-aAHMN, size, value)
	case offset >= aMEM && offset < aMEMEnd:
		return b.MEM.Write(offset-aMEM, size, value)
	case offset >= aEXI && offset < aEXIEnd:
		return b.EXI.Write(offset-aEXI, size, value)
	case offset >= aDI2SATA && offset < aDI2SATAEnd:
		return b.DI2SATA.Write(offset-aDI2SATA, size, value)
	case offset >= aEHCI0 && offset < aEHCI0End:
		return b.EHCI0.Write(offset-aEHCI0, size, value)
	case offset >= aEHCI1 && offset < aEHCI1End:
		return b.EHCI1.Write(offset-aEHCI1, size, value)
	case offset >= aEHCI2 && offset < aEHCI2End:
		return b.EHCI2.Write(offset-aEHCI2, size, value)
	case offset >= aOHCI00 && offset < aOHCI00End:
		return b.OHCI00.Write(offset-aOHCI00, size, value)
	case offset >= aOHCI01 && offset < aOHCI01End:
		return b.OHCI01.Write(offset-aOHCI01, size, value)
	case offset >= aOHCI1 && offset < aOHCI1End:
		return b.OHCI1.Write(offset-aOHCI1, size, value)
	case offset >= aOHCI2 && offset < aOHCI2End:
		return b.OHCI2.Write(offset-aOHCI2, size, value)
	case offset >= aAHCI && offset < aAHCIEnd:
		return b.AHCI.Write(offset-aAHCI, size, value)
	case offset >= aSDIO0 && offset < aSDIO0End:
		return b.SDIO0.Write(offset-aSDIO0, size, value)
	case offset >= aSDIO1 && offset < aSDIO1End:
		return b.SDIO1.Write(offset-aSDIO1, size, value)
	case offset >= aSDIO2 && offset < aSDIO2End:
		return b.SDIO2.Write(offset-aSDIO2, size, value)
	case offset >= aWifi && offset < aWifiEnd:
		return b.Wifi.Write(offset-aWifi, size, value)
	case offset >= aNAND && offset < aNANDEnd:
		return b.NAND.Write(offset-aNAND, size, value)
	case offset >= aAES && offset < aAESEnd:
		return b.AES.Write(offset-aAES, size, value)
	case offset >= aAESS && offset < aAESSEnd:
		return b.AESS.Write(offset-aAESS, size, value)
	case offset >= aSHA && offset < aSHAEnd:
		return b.SHA.Write(offset-aSHA, size, value)
	case offset >= aSHAS && offset < aSHASEnd:
		return b.SHAS.Write(offset-aSHAS, size, value)
	case offset >= aPAD && offset < aPADEnd:
		return b.PAD.Write(offset-aPAD, size, value)
	default:
		slog.Debug("hardware bus write to unmapped offset", "offset", offset, "value", value, "pc", b.pc())
		return nil
	}
}
