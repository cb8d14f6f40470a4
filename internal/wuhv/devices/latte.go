package devices

import (
	"log/slog"

	"github.com/tinyrange/wuhv/internal/wuhv/irq"
)

// Latte is the system-controller block at physical 0xD000000-0xD001000. It
// owns the three PPC-side and one ARM-side interrupt aggregator, the three
// IPC mailboxes, both GPIO controllers, both I2C bridges, the OTP fuse
// bank, and the indirect ASIC PLL bus, and multiplexes their sub-windows by
// address range before falling through to its own flat register file.
type Latte struct {
	IPC      [3]*IPCMailbox
	GPIO     *GPIO
	GPIO2    *GPIO
	I2C      *I2C
	I2CPPC   *I2C
	IRQPPC   [3]*irq.Aggregator
	IRQARM   *irq.Aggregator
	OTP      *OTP
	ASICBus  *ASICBus

	timer, alarm               uint32
	ahbWDGConfig               uint32
	errorReg, errorMask        uint32
	memirr, ahbprot            uint32
	exiCtrl                    uint32
	boot0, clockinfo           uint32
	resetsCompat, clockgate    uint32
	iopower                    uint32
	iostrength0, iostrength1   uint32
	iostrength2                uint32
	otpcmd, otpdata            uint32
	debug                      uint32
	compatMemctrlState         uint32
	iop2x                      uint32
	resets, resetsAHMN         uint32
	sysPLLCfg                  uint32
	cfg60xE                    uint32

	pc func() uint32
}

const (
	hwVersionACR = 0x21
	hwVersionCCR = 0xCAFE0060
)

// NewLatte wires the system controller. debug seeds the LT_DEBUG register's
// debug-build bit.
func NewLatte(debug bool, pc func() uint32) *Latte {
	l := &Latte{pc: pc}
	for i := range l.IPC {
		l.IPC[i] = NewIPCMailbox()
	}
	for i := range l.IRQPPC {
		l.IRQPPC[i] = irq.New()
	}
	l.IRQARM = irq.New()

	l.debug = 0x20000000
	if debug {
		l.debug |= 0x80000000
	}

	l.wireUpstreamPolls()
	return l
}

// wireUpstreamPolls registers each aggregator's upstream contributors: the
// IPC handshake, both GPIO groups, and the I2C bridge each get a chance to
// raise a line before CheckInterrupts evaluates pending-and-unmasked state.
func (l *Latte) wireUpstreamPolls() {
	for i := 0; i < 3; i++ {
		i := i
		l.IRQPPC[i].AddUpstream(func() {
			if l.IPC[i].CheckInterruptsPPC() {
				l.IRQPPC[i].TriggerLT(30 - uint(2*i))
			}
			if l.GPIO.CheckInterruptsPPC() || l.GPIO2.CheckInterruptsPPC() {
				l.IRQPPC[i].TriggerAll(10)
			}
			if l.I2CPPC.CheckInterrupts() {
				l.IRQPPC[i].TriggerLT(13)
			}
		})
	}
	l.IRQARM.AddUpstream(func() {
		for i := 0; i < 3; i++ {
			if l.IPC[i].CheckInterruptsARM() {
				l.IRQARM.TriggerLT(31 - uint(2*i))
			}
		}
		if l.GPIO.CheckInterruptsARM() || l.GPIO2.CheckInterruptsARM() {
			l.IRQARM.TriggerAll(11)
		}
		if l.I2C.CheckInterrupts() {
			l.IRQARM.TriggerLT(14)
		}
	})
}

// UpdateTimer advances the free-running timer by one tick batch and fires
// the ARM alarm line if the alarm value was crossed, including the case
// where the timer wraps past 2^32.
func (l *Latte) UpdateTimer(delta uint32) {
	start := l.timer
	end := start + delta
	if end < start { // wrapped past 2^32
		if l.alarm > start || l.alarm <= end {
			l.IRQARM.TriggerAll(0)
		}
	} else if start < l.alarm && l.alarm <= end {
		l.IRQARM.TriggerAll(0)
	}
	l.timer = end
}

const (
	ltTimer       = 0x010
	ltAlarm       = 0x014
	ltAHBWDGConf  = 0x04C
	ltAHBDMAStat  = 0x050
	ltAHBCPUStat  = 0x054
	ltError       = 0x058
	ltErrorMask   = 0x05C
	ltMemirr      = 0x060
	ltAHBProt     = 0x064
	ltGPIOStart   = 0x0C0
	ltGPIOEnd     = 0x100
	ltEXICtrl     = 0x070
	ltBoot0       = 0x18C
	ltClockinfo   = 0x190
	ltResetsCompat = 0x194
	ltClockgate   = 0x198
	ltIOPower     = 0x1DC
	ltIOStrength0 = 0x1E0
	ltIOStrength1 = 0x1E4
	ltOTPCmd      = 0x1EC
	ltOTPData     = 0x1F0
	ltASICRevACR  = 0x214
	ltIPCPPC0Start = 0x400
	ltIPCPPC0End   = 0x410
	ltIPCPPC1Start = 0x410
	ltIPCPPC1End   = 0x420
	ltIPCPPC2Start = 0x420
	ltIPCPPC2End   = 0x430
	ltIRQPPC0Start = 0x440
	ltIRQPPC0End   = 0x450
	ltIRQPPC1Start = 0x450
	ltIRQPPC1End   = 0x460
	ltIRQPPC2Start = 0x460
	ltIRQPPC2End   = 0x470
	ltIRQARMStart  = 0x470
	ltIRQARMEnd    = 0x488
	ltGPIO2Start   = 0x520
	ltGPIO2End     = 0x560
	ltASICRevCCR   = 0x5A0
	ltDebug        = 0x5A4
	ltCompatState  = 0x5B0
	ltIOP2x        = 0x5BC
	ltIOStrength2  = 0x5C8
	ltResets       = 0x5E0
	ltResetsAHMN   = 0x5E4
	ltSysPLLCfg    = 0x5EC
	ltABIFOffset   = 0x620
	ltABIFData     = 0x624
	ltCfg60xE      = 0x640

	ltI2CClock     = 0x570
	ltI2CWriteData = 0x574
	ltI2CWriteCtrl = 0x578
	ltI2CReadData  = 0x57C
	ltI2CIntMask   = 0x580
	ltI2CIntState  = 0x584

	ltI2CPPCIntMask   = 0x068
	ltI2CPPCIntState  = 0x06C
	ltI2CPPCClock     = 0x250
	ltI2CPPCWriteData = 0x254
	ltI2CPPCWriteCtrl = 0x258
	ltI2CPPCReadData  = 0x25C
)

func (l *Latte) irqRead(a *irq.Aggregator, offset uint64) (uint32, bool) {
	switch offset {
	case 0x0:
		return a.ReadStatusAll(), true
	case 0x4:
		return a.ReadStatusLT(), true
	case 0x8:
		return a.ReadMaskAll(), true
	case 0xC:
		return a.ReadMaskLT(), true
	default:
		return 0, false
	}
}

func (l *Latte) irqWrite(a *irq.Aggregator, offset uint64, v uint32) bool {
	switch offset {
	case 0x0:
		a.WriteStatusAll(v)
	case 0x4:
		a.WriteStatusLT(v)
	case 0x8:
		a.WriteMaskAll(v)
	case 0xC:
		a.WriteMaskLT(v)
	default:
		return false
	}
	return true
}

func (l *Latte) Read(offset uint64, size int) (uint64, error) {
	switch {
	case offset == ltTimer:
		return uint64(l.timer), nil
	case offset == ltAHBWDGConf:
		return uint64(l.ahbWDGConfig), nil
	case offset == ltError:
		return uint64(l.errorReg), nil
	case offset == ltErrorMask:
		return uint64(l.errorMask), nil
	case offset == ltMemirr:
		return uint64(l.memirr), nil
	case offset == ltAHBProt:
		return uint64(l.ahbprot), nil
	case offset == ltEXICtrl:
		return uint64(l.exiCtrl), nil
	case offset >= ltGPIOStart && offset < ltGPIOEnd:
		v, err := l.GPIO.Read(offset-ltGPIOStart, size)
		return v, err
	case offset == ltBoot0:
		return uint64(l.boot0), nil
	case offset == ltClockinfo:
		return uint64(l.clockinfo), nil
	case offset == ltResetsCompat:
		return uint64(l.resetsCompat), nil
	case offset == ltClockgate:
		return uint64(l.clockgate), nil
	case offset == ltIOPower:
		return uint64(l.iopower), nil
	case offset == ltIOStrength0:
		return uint64(l.iostrength0), nil
	case offset == ltIOStrength1:
		return uint64(l.iostrength1), nil
	case offset == ltOTPCmd:
		return uint64(l.otpcmd), nil
	case offset == ltOTPData:
		return uint64(l.otpdata), nil
	case offset == ltASICRevACR:
		return hwVersionACR, nil
	case offset >= ltIPCPPC0Start && offset < ltIPCPPC0End:
		return uint64(l.IPC[0].Read(offset - ltIPCPPC0Start)), nil
	case offset >= ltIPCPPC1Start && offset < ltIPCPPC1End:
		return uint64(l.IPC[1].Read(offset - ltIPCPPC1Start)), nil
	case offset >= ltIPCPPC2Start && offset < ltIPCPPC2End:
		return uint64(l.IPC[2].Read(offset - ltIPCPPC2Start)), nil
	case offset >= ltIRQPPC0Start && offset < ltIRQPPC0End:
		if v, ok := l.irqRead(l.IRQPPC[0], offset-ltIRQPPC0Start); ok {
			return uint64(v), nil
		}
	case offset >= ltIRQPPC1Start && offset < ltIRQPPC1End:
		if v, ok := l.irqRead(l.IRQPPC[1], offset-ltIRQPPC1Start); ok {
			return uint64(v), nil
		}
	case offset >= ltIRQPPC2Start && offset < ltIRQPPC2End:
		if v, ok := l.irqRead(l.IRQPPC[2], offset-ltIRQPPC2Start); ok {
			return uint64(v), nil
		}
	case offset >= ltIRQARMStart && offset < ltIRQARMEnd:
		rel := offset - ltIRQARMStart
		if rel == 0x10 {
			return uint64(l.IRQARM.ReadMaskAll2x()), nil
		}
		if rel == 0x14 {
			return uint64(l.IRQARM.ReadMaskLT2x()), nil
		}
		if v, ok := l.irqRead(l.IRQARM, rel); ok {
			return uint64(v), nil
		}
	case offset >= ltGPIO2Start && offset < ltGPIO2End:
		return l.GPIO2.Read(offset-ltGPIO2Start, size)
	case offset == ltASICRevCCR:
		return hwVersionCCR, nil
	case offset == ltDebug:
		return uint64(l.debug), nil
	case offset == ltCompatState:
		return uint64(l.compatMemctrlState), nil
	case offset == ltIOP2x:
		return uint64(l.iop2x), nil
	case offset == ltIOStrength2:
		return uint64(l.iostrength2), nil
	case offset == ltResets:
		return uint64(l.resets), nil
	case offset == ltResetsAHMN:
		return uint64(l.resetsAHMN), nil
	case offset == ltSysPLLCfg:
		return uint64(l.sysPLLCfg), nil
	case offset == ltABIFData:
		return uint64(l.ASICBus.GetData()), nil
	case offset == ltCfg60xE:
		return uint64(l.cfg60xE), nil
	case offset == ltI2CClock:
		return uint64(l.I2C.Read(i2cClock)), nil
	case offset == ltI2CWriteData:
		return uint64(l.I2C.Read(i2cWriteData)), nil
	case offset == ltI2CWriteCtrl:
		return uint64(l.I2C.Read(i2cWriteCtrl)), nil
	case offset == ltI2CReadData:
		return uint64(l.I2C.Read(i2cReadData)), nil
	case offset == ltI2CIntMask:
		return uint64(l.I2C.Read(i2cIntMask)), nil
	case offset == ltI2CIntState:
		return uint64(l.I2C.Read(i2cIntState)), nil
	case offset == ltI2CPPCIntMask:
		return uint64(l.I2CPPC.Read(i2cIntMask)), nil
	case offset == ltI2CPPCIntState:
		return uint64(l.I2CPPC.Read(i2cIntState)), nil
	case offset == ltI2CPPCClock:
		return uint64(l.I2CPPC.Read(i2cClock)), nil
	case offset == ltI2CPPCWriteData:
		return uint64(l.I2CPPC.Read(i2cWriteData)), nil
	case offset == ltI2CPPCWriteCtrl:
		return uint64(l.I2CPPC.Read(i2cWriteCtrl)), nil
	case offset == ltI2CPPCReadData:
		return uint64(l.I2CPPC.Read(i2cReadData)), nil
	}
	slog.Debug("latte read of unknown offset", "offset", offset, "pc", l.pc())
	return 0, nil
}

func (l *Latte) Write(offset uint64, size int, value uint64) error {
	v := uint32(value)
	switch {
	case offset == ltTimer:
		l.timer = v
	case offset == ltAlarm:
		l.alarm = v
	case offset == ltAHBWDGConf:
		l.ahbWDGConfig = v
	case offset == ltAHBDMAStat, offset == ltAHBCPUStat:
	case offset == ltError:
		l.errorReg = v & l.errorMask
	case offset == ltErrorMask:
		l.errorMask = v
	case offset == ltMemirr:
		l.memirr = v
	case offset == ltAHBProt:
		l.ahbprot = v
	case offset == ltEXICtrl:
		l.exiCtrl = v
	case offset >= ltGPIOStart && offset < ltGPIOEnd:
		return l.GPIO.Write(offset-ltGPIOStart, size, value)
	case offset == ltBoot0:
		l.boot0 = v
	case offset == ltResetsCompat:
		l.resetsCompat = v
	case offset == ltClockgate:
		l.clockgate = v
	case offset == ltIOPower:
		l.iopower = v
	case offset == ltIOStrength0:
		l.iostrength0 = v
	case offset == ltIOStrength1:
		l.iostrength1 = v
	case offset == ltOTPCmd:
		l.otpcmd = v
		if v&0x80000000 != 0 {
			l.otpdata = l.OTP.Read((v>>8)&7, v&0x1F)
		}
	case offset >= ltIPCPPC0Start && offset < ltIPCPPC0End:
		l.IPC[0].Write(offset-ltIPCPPC0Start, v)
	case offset >= ltIPCPPC1Start && offset < ltIPCPPC1End:
		l.IPC[1].Write(offset-ltIPCPPC1Start, v)
	case offset >= ltIPCPPC2Start && offset < ltIPCPPC2End:
		l.IPC[2].Write(offset-ltIPCPPC2Start, v)
	case offset >= ltIRQPPC0Start && offset < ltIRQPPC0End:
		l.irqWrite(l.IRQPPC[0], offset-ltIRQPPC0Start, v)
	case offset >= ltIRQPPC1Start && offset < ltIRQPPC1End:
		l.irqWrite(l.IRQPPC[1], offset-ltIRQPPC1Start, v)
	case offset >= ltIRQPPC2Start && offset < ltIRQPPC2End:
		l.irqWrite(l.IRQPPC[2], offset-ltIRQPPC2Start, v)
	case offset >= ltIRQARMStart && offset < ltIRQARMEnd:
		rel := offset - ltIRQARMStart
		switch rel {
		case 0x10:
			l.IRQARM.WriteMaskAll2x(v)
		case 0x14:
			l.IRQARM.WriteMaskLT2x(v)
		default:
			l.irqWrite(l.IRQARM, rel, v)
		}
	case offset >= ltGPIO2Start && offset < ltGPIO2End:
		return l.GPIO2.Write(offset-ltGPIO2Start, size, value)
	case offset == ltDebug:
		l.debug = v
	case offset == ltCompatState:
		l.compatMemctrlState = v
	case offset == ltIOP2x:
		l.iop2x = v | 4
		l.IRQARM.TriggerLT(12)
	case offset == ltIOStrength2:
		l.iostrength2 = v
	case offset == ltResets:
		l.resets = v
	case offset == ltResetsAHMN:
		l.resetsAHMN = v
	case offset == ltSysPLLCfg:
		l.sysPLLCfg = v
	case offset == ltABIFOffset:
		l.ASICBus.SetOffset(v)
	case offset == ltABIFData:
		l.ASICBus.Write(v)
	case offset == ltCfg60xE:
		l.cfg60xE = v
	case offset == ltI2CClock:
		l.I2C.Write(i2cClock, v)
	case offset == ltI2CWriteData:
		l.I2C.Write(i2cWriteData, v)
	case offset == ltI2CWriteCtrl:
		l.I2C.Write(i2cWriteCtrl, v)
	case offset == ltI2CIntMask:
		l.I2C.Write(i2cIntMask, v)
	case offset == ltI2CIntState:
		l.I2C.Write(i2cIntState, v)
	case offset == ltI2CPPCIntMask:
		l.I2CPPC.Write(i2cIntMask, v)
	case offset == ltI2CPPCIntState:
		l.I2CPPC.Write(i2cIntState, v)
	case offset == ltI2CPPCClock:
		l.I2CPPC.Write(i2cClock, v)
	case offset == ltI2CPPCWriteData:
		l.I2CPPC.Write(i2cWriteData, v)
	case offset == ltI2CPPCWriteCtrl:
		l.I2CPPC.Write(i2cWriteCtrl, v)
	default:
		slog.Debug("latte write to unknown offset", "offset", offset, "value", v, "pc", l.pc())
	}
	return nil
}
