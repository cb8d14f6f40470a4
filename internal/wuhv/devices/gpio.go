package devices

import "log/slog"

// GPIO pin assignments for the peripherals hung off the two Latte pin
// groups.
const (
	pinDWifiMode      = 1
	pinESP10Workaround = 5
	pinAVReset        = 6
	pin9              = 9
	pinEEPROMCS       = 10
	pinEEPROMSK       = 11
	pinEEPROMDO       = 12
	pinEEPROMDI       = 13
	pinAV0I2CClock    = 14
	pinAV0I2CData     = 15
	pinAV1I2CClock    = 24
	pinAV1I2CData     = 25
	pinBluetoothMode  = 27
	pinWifiMode       = 29
	pin31             = 31
)

// pinGroup is the guest-visible side of a GPIO bank: the console-specific
// peripherals wired to particular pin numbers. Group 1 carries the SEEPROM
// and AV encoder I2C lines; group 2 carries the AV reset line and little
// else.
type pinGroup interface {
	read(espresso bool) uint32
	write(pin uint, state uint32, espresso bool)
}

// gpioGroup1 wires the SEEPROM's bit-banged protocol to pins 10-13.
type gpioGroup1 struct {
	seeprom *SEEPROM
	pc      func() uint32
}

func newGPIOGroup1(seeprom *SEEPROM, pc func() uint32) *gpioGroup1 {
	return &gpioGroup1{seeprom: seeprom, pc: pc}
}

func (g *gpioGroup1) read(espresso bool) uint32 {
	return uint32(g.seeprom.PinState()) << pinEEPROMDI
}

func (g *gpioGroup1) write(pin uint, state uint32, espresso bool) {
	switch pin {
	case pinDWifiMode, pinESP10Workaround, pin9,
		pinAV0I2CClock, pinAV0I2CData, pinAV1I2CClock, pinAV1I2CData,
		pinBluetoothMode, pinWifiMode, pin31:
		// no modelled peripheral behind these lines
	case pinEEPROMCS:
		if state == 1 {
			g.seeprom.InitTransfer()
		}
	case pinEEPROMSK:
		if state == 1 {
			g.seeprom.UpdatePin(0)
		}
	case pinEEPROMDO:
		// data-in sampled on the next clock edge; store for UpdatePin
		g.seeprom.pinState = int(state)
	default:
		slog.Debug("gpio group1 write to unmapped pin", "pin", pin, "state", state, "pc", g.pc())
	}
}

// gpioGroup2 carries the AV encoder reset line only.
type gpioGroup2 struct{ pc func() uint32 }

func newGPIOGroup2(pc func() uint32) *gpioGroup2 { return &gpioGroup2{pc: pc} }

func (g *gpioGroup2) read(espresso bool) uint32 { return 0 }

func (g *gpioGroup2) write(pin uint, state uint32, espresso bool) {
	if pin != pinAVReset {
		slog.Debug("gpio group2 write to unmapped pin", "pin", pin, "state", state, "pc", g.pc())
	}
}

// GPIO is a Latte GPIO block: a pair of ARM/PPC-visible (espresso) register
// sets fanning out to a single pin group, with edge-triggered interrupt
// latches per pin.
type GPIO struct {
	group pinGroup

	espDir, espOut, espIntMask, espIntFlag, espIntLvl uint32

	dir, enabled, out, intMask, owner, intFlag, intLvl uint32

	pc func() uint32
}

// NewGPIO creates a GPIO controller fanned out to the given pin group.
func NewGPIO(group pinGroup, pc func() uint32) *GPIO {
	return &GPIO{group: group, enabled: 0xFFFFFFFF, pc: pc}
}

const (
	gpioEOut     = 0x00
	gpioEDir     = 0x04
	gpioEIn      = 0x08
	gpioEIntLvl  = 0x0C
	gpioEIntFlag = 0x10
	gpioEIntMask = 0x14
	gpioEInMir   = 0x18
	gpioEnable   = 0x1C
	gpioOut      = 0x20
	gpioDir      = 0x24
	gpioIn       = 0x28
	gpioIntLvl   = 0x2C
	gpioIntFlag  = 0x30
	gpioIntMask  = 0x34
	gpioInMir    = 0x38
	gpioOwner    = 0x3C
)

func (g *GPIO) Read(offset uint64, size int) (uint64, error) {
	switch offset {
	case gpioEOut:
		return uint64(g.espOut), nil
	case gpioEDir:
		return uint64(g.espDir), nil
	case gpioEIntLvl:
		return uint64(g.espIntLvl), nil
	case gpioEIntFlag:
		return uint64(g.espIntFlag), nil
	case gpioEIntMask:
		return uint64(g.espIntMask), nil
	case gpioEnable:
		return uint64(g.enabled), nil
	case gpioOut:
		return uint64(g.out), nil
	case gpioDir:
		return uint64(g.dir), nil
	case gpioIn:
		return uint64(g.group.read(false)), nil
	case gpioIntLvl:
		return uint64(g.intLvl), nil
	case gpioIntFlag:
		return uint64(g.intFlag), nil
	case gpioIntMask:
		return uint64(g.intMask), nil
	case gpioOwner:
		return uint64(g.owner), nil
	default:
		slog.Debug("gpio read of unknown offset", "offset", offset, "pc", g.pc())
		return 0, nil
	}
}

func (g *GPIO) Write(offset uint64, size int, value uint64) error {
	v := uint32(value)
	switch offset {
	case gpioEOut:
		for i := uint(0); i < 32; i++ {
			if g.owner&(1<<i) != 0 && (v&(1<<i)) != (g.espOut&(1<<i)) {
				g.group.write(i, (v>>i)&1, true)
			}
		}
		g.espOut = v
	case gpioEDir:
		g.espDir = v
	case gpioEIntLvl:
		g.espIntLvl = v
	case gpioEIntFlag:
		g.espIntFlag &^= v
	case gpioEIntMask:
		g.espIntMask = v
	case gpioEnable:
		g.enabled = v
	case gpioOut:
		for i := uint(0); i < 32; i++ {
			if (v & (1 << i)) != (g.out & (1 << i)) {
				g.group.write(i, (v>>i)&1, false)
			}
		}
		g.out = v
	case gpioDir:
		g.dir = v
	case gpioIntLvl:
		g.intLvl = v
	case gpioIntFlag:
		g.intFlag &^= v
	case gpioIntMask:
		g.intMask = v
	case gpioOwner:
		g.owner = v
	default:
		slog.Debug("gpio write to unknown offset", "offset", offset, "value", v, "pc", g.pc())
	}
	return nil
}

// TriggerInterrupt latches pin-change interrupt `kind` on the ARM
// (espresso=false) or PPC-visible (espresso=true) side.
func (g *GPIO) TriggerInterrupt(kind uint, espresso bool) {
	if espresso {
		g.espIntFlag |= 1 << kind
	} else {
		g.intFlag |= 1 << kind
	}
}

func (g *GPIO) CheckInterruptsPPC() bool { return g.espIntFlag&g.espIntMask != 0 }
func (g *GPIO) CheckInterruptsARM() bool { return g.intFlag&g.intMask != 0 }
