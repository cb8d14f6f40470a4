package devices

import "log/slog"

// I2C is the Latte I2C bridge. Two instances exist (ARM-visible and
// PPC-visible), both multiplexed onto the same physical bus; only the AV
// encoder slave (0x38/0x3D) is modelled.
type I2C struct {
	gpio2    *GPIO
	espresso bool

	readBuf           []byte
	readOffs          int
	readSizePending   bool
	writeBuf          []byte
	writeVal, offset  uint32

	clock, intMask, intState uint32

	readInt, writeInt uint

	avIntMask uint32
	avIntInfo [6]byte

	pc func() uint32
}

// NewI2C creates an I2C bridge. gpio2 receives interrupt notifications from
// AV-encoder register writes, since the AV interrupt line is routed through
// the second GPIO bank rather than the I2C block itself.
func NewI2C(gpio2 *GPIO, espresso bool, pc func() uint32) *I2C {
	i := &I2C{gpio2: gpio2, espresso: espresso, pc: pc}
	if espresso {
		i.readInt, i.writeInt = 5, 6
	}
	return i
}

const (
	i2cClock     = 0
	i2cWriteData = 1
	i2cWriteCtrl = 2
	i2cReadData  = 3
	i2cIntMask   = 4
	i2cIntState  = 5
)

// Read dispatches on the Latte-assigned logical register index (callers
// translate the ARM/PPC-specific physical offsets to these indices, since
// the two CPU sides see the same registers at different addresses).
func (i *I2C) Read(reg uint64) uint32 {
	switch reg {
	case i2cClock:
		return i.clock
	case i2cWriteData:
		return i.writeVal
	case i2cReadData:
		if i.readSizePending {
			i.readSizePending = false
			return uint32(len(i.readBuf)) << 16
		}
		i.readOffs++
		if i.readOffs < 0 || i.readOffs >= len(i.readBuf) {
			return 0
		}
		return uint32(i.readBuf[i.readOffs])
	case i2cWriteCtrl:
		return 0
	case i2cIntMask:
		return i.intMask
	case i2cIntState:
		return i.intState
	default:
		slog.Debug("i2c read of unknown register", "reg", reg, "pc", i.pc())
		return 0
	}
}

func (i *I2C) Write(reg uint64, value uint32) {
	switch reg {
	case i2cClock:
		i.clock = value
	case i2cWriteData:
		i.writeVal = value
	case i2cWriteCtrl:
		if value&1 != 0 {
			i.writeBuf = append(i.writeBuf, byte(i.writeVal))
			if i.writeVal&0x100 != 0 {
				i.handleData(i.writeBuf)
				i.writeBuf = nil
			}
		}
	case i2cIntMask:
		i.intMask = value
	case i2cIntState:
		i.intState &^= value
	default:
		slog.Debug("i2c write to unknown register", "reg", reg, "value", value, "pc", i.pc())
	}
}

func (i *I2C) handleData(data []byte) {
	slave := data[0] >> 1
	read := data[0]&1 != 0

	if read {
		i.readBuf = i.readData(slave, i.offset, len(data)-1)
		i.readOffs = -1
		i.readSizePending = !i.espresso
		i.triggerInterrupt(i.readInt)
		return
	}
	if len(data) > 2 {
		i.writeData(slave, data[1], data[2:])
	}
	i.offset = uint32(data[1])
	i.triggerInterrupt(i.writeInt)
}

func (i *I2C) readData(slave byte, offset uint32, length int) []byte {
	if slave == 0x38 && offset == 0x90 {
		return []byte{byte(i.avIntMask)}
	}
	if slave == 0x38 && offset >= 0x91 && offset <= 0x97 {
		return []byte{i.avIntInfo[offset-0x91]}
	}
	slog.Debug("i2c read of unmapped slave register", "slave", slave, "offset", offset, "pc", i.pc())
	return make([]byte, length)
}

func (i *I2C) writeData(slave byte, offset byte, data []byte) {
	if slave == 0x3D && offset == 0x89 {
		i.avIntMask |= 0x10
		i.avIntInfo[4] = 0
		i.gpio2.TriggerInterrupt(4, true)
		return
	}
	slog.Debug("i2c write to unmapped slave register", "slave", slave, "offset", offset, "data", data, "pc", i.pc())
}

func (i *I2C) triggerInterrupt(kind uint) { i.intState |= 1 << kind }

func (i *I2C) CheckInterrupts() bool { return i.intState&i.intMask != 0 }
