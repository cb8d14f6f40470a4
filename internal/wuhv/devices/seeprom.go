package devices

import "log/slog"

// seepromState is the phase of the bit-banged SEEPROM transfer state
// machine.
type seepromState int

const (
	seepromListen seepromState = iota
	seepromWrite
	seepromPostWrite
	seepromPostPostWrite
)

// SEEPROM is a 256-word 16-bit serial EEPROM, bit-banged one clock edge at
// a time through GPIO pins (chip-select, clock, data-in, data-out).
type SEEPROM struct {
	data [256]uint16

	state seepromState

	index, bits, offset int
	pinState            int

	output     uint32
	outputSize int

	pc func() uint32
}

// NewSEEPROM creates a SEEPROM loaded from a flat 256-word big-endian image.
func NewSEEPROM(words [256]uint16, pc func() uint32) *SEEPROM {
	return &SEEPROM{data: words, pc: pc}
}

// InitTransfer starts a new 11-bit command shift, triggered on the
// chip-select pin's rising edge.
func (s *SEEPROM) InitTransfer() {
	s.index = 0
	s.pinState = 0
	s.bits = 11
	s.offset = 0
	s.state = seepromListen
}

// PinState is the current data-out bit sampled by GPIOGroup1's read().
func (s *SEEPROM) PinState() int { return s.pinState }

// UpdatePin shifts in the data-in pin's current value on the clock pin's
// rising edge, or shifts out the next response bit once a command/read is
// in its output phase.
func (s *SEEPROM) UpdatePin(dataIn int) {
	if s.bits > 0 {
		s.index = (s.index << 1) | dataIn
		s.bits--
		if s.bits == 0 {
			switch s.state {
			case seepromListen:
				s.handleCommand()
			case seepromWrite:
				s.handleWrite(uint16(s.index))
			case seepromPostWrite:
				s.handleWriteDone()
			default:
				s.state = seepromListen
			}
		}
		return
	}
	s.pinState = int((s.output >> uint(s.outputSize-1)) & 1)
	s.output <<= 1
}

func (s *SEEPROM) handleCommand() {
	switch {
	case s.index&^0xC0 == 0x400: // control, no-op
	case s.index&0xF00 == 0x500: // write
		s.bits = 16
		s.offset = s.index & 0xFF
		s.index = 0
		s.state = seepromWrite
	case s.index&0xF00 == 0x600: // read
		s.output = uint32(s.data[s.index&0xFF])
		s.outputSize = 16
	default:
		slog.Debug("seeprom unhandled command", "command", s.index, "pc", s.pc())
	}
}

func (s *SEEPROM) handleWrite(value uint16) {
	s.data[s.offset] = value
	s.bits = 2
	s.state = seepromPostWrite
}

func (s *SEEPROM) handleWriteDone() {
	s.output = 1
	s.outputSize = 1
	s.bits = 2
	s.state = seepromPostPostWrite
}
