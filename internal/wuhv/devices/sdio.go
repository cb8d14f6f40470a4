package devices

import (
	"io"
	"log/slog"

	"github.com/tinyrange/wuhv/internal/wuhv/wuerr"
)

// SDCardType selects which card personality an SDIO slot answers with.
type SDCardType int

const (
	SDCardSD SDCardType = iota
	SDCardSDIO
	SDCardMMC
	SDCardUnknown
)

const (
	sdStateIdle = 0
	sdStateStby = 3
	sdStateTran = 4
)

// sdBackend is the block-addressable storage behind an SD/MMC card image
// (e.g. the MLC or SLC card backing file).
type sdBackend interface {
	io.ReaderAt
	io.WriterAt
}

// SDIO is an SD/SDIO/MMC host controller: a command/response register file
// plus a block-oriented DMA path for the handful of SD commands the
// firmware actually issues (read single/multiple block, write multiple
// block, SDIO direct I/O); write single block is not handled.
type SDIO struct {
	index int
	kind  SDCardType
	mem   phys64
	armIRQAll func(line uint)
	armIRQLT  func(line uint)

	file sdBackend

	dmaAddr                           uint64
	blockCount, blockSize             uint32
	argument                          uint32
	transferMode, command             uint32
	result0, result1, result2, result3 uint32
	hostControl, powerControl          uint32
	blockGapControl, wakeupControl      uint32
	clockControl, timeoutControl        uint32
	intStatus, errorStatus              uint32
	blockLength                         uint32
	busWidth, cdDisable                 uint32

	appCmd bool
	state  int

	pc func() uint32
}

var sdCSDV2 = [4]uint32{0x400E0032, 0x5B590000, 0xFFFF7F80, 0x0A400001}

const (
	sdVoltageRange = 0x300000
	sdCISPointer   = 0x1000
)

var sdCardInfo = append([]byte{0x22, 0x04, 0x00, 0xFF, 0xFF, 0x32}, []byte{0xFF, 0x00}...)

// NewSDIO creates an SD/SDIO/MMC controller. file may be nil for SDIO-only
// (wifi) instances that carry no block storage.
func NewSDIO(mem phys64, index int, kind SDCardType, file sdBackend, armIRQAll, armIRQLT func(line uint), pc func() uint32) *SDIO {
	return &SDIO{index: index, kind: kind, mem: mem, file: file, armIRQAll: armIRQAll, armIRQLT: armIRQLT, state: sdStateIdle, pc: pc}
}

func (s *SDIO) triggerInterrupt() {
	if s.index == 0 {
		s.armIRQAll(7)
	} else {
		s.armIRQLT(0)
	}
}

func (s *SDIO) Read(offset uint64, size int) (uint64, error) {
	switch offset {
	case 0xC:
		return uint64(s.transferMode | (s.command << 16)), nil
	case 0x10:
		return uint64(s.result0), nil
	case 0x14:
		return uint64(s.result1), nil
	case 0x18:
		return uint64(s.result2), nil
	case 0x1C:
		return uint64(s.result3), nil
	case 0x24:
		return 0x80000, nil // write enabled
	case 0x28:
		return uint64(s.hostControl | (s.powerControl << 8) | (s.blockGapControl << 16) | (s.wakeupControl << 24)), nil
	case 0x2C:
		return uint64(s.clockControl | (s.timeoutControl << 16)), nil
	case 0x30:
		return uint64(s.intStatus | (s.errorStatus << 16)), nil
	case 0x40:
		return 0, nil // capabilities
	default:
		slog.Debug("sdio read of unknown offset", "index", s.index, "offset", offset, "pc", s.pc())
		return 0, nil
	}
}

func (s *SDIO) Write(offset uint64, size int, value uint64) error {
	v := uint32(value)
	switch offset {
	case 0x0:
		s.dmaAddr = uint64(v)
	case 0x4:
		s.blockCount = v >> 16
		s.blockSize = v & 0xFFF
	case 0x8:
		s.argument = v
	case 0xC:
		s.command = v >> 16
		s.transferMode = v & 0xFFFF
		s.intStatus = 3
		s.errorStatus = 0
		var err error
		if s.appCmd {
			err = s.handleAppCommand(v>>24, s.argument)
		} else {
			err = s.handleCommand(v>>24, s.argument)
		}
		s.triggerInterrupt()
		return err
	case 0x28:
		s.hostControl = v & 0xFF
		s.powerControl = (v >> 8) & 0xFF
		s.blockGapControl = (v >> 16) & 0xFF
		s.wakeupControl = v >> 24
	case 0x2C:
		s.clockControl = v & 0xFFFF
		if s.clockControl&1 != 0 {
			s.clockControl |= 2
		}
		s.timeoutControl = (v >> 16) & 0xFF
	case 0x30:
		s.intStatus &^= v & 0xFF
		s.errorStatus &^= v >> 16
	default:
		slog.Debug("sdio write to unknown offset", "index", s.index, "offset", offset, "value", v, "pc", s.pc())
	}
	return nil
}

func (s *SDIO) cardStatus() uint32 {
	var app uint32
	if s.appCmd {
		app = 1
	}
	return (uint32(s.state) << 9) | 0x100 | (app << 5)
}

func (s *SDIO) handleAppCommand(cmd, arg uint32) error {
	switch cmd {
	case 6: // set bus width
		s.busWidth = arg & 3
		s.result0 = s.cardStatus()
	case 41: // voltage range
		if s.kind == SDCardSD {
			s.result0 = sdVoltageRange
			if arg&sdVoltageRange != 0 {
				s.result0 |= 0xC0000000
			}
		} else {
			s.errorStatus |= 0x8000
		}
	default:
		slog.Debug("sdio unhandled app command", "index", s.index, "cmd", cmd, "arg", arg, "pc", s.pc())
	}
	s.appCmd = false
	return nil
}

func (s *SDIO) handleCommand(cmd, arg uint32) error {
	s.result0, s.result1, s.result2, s.result3 = 0, 0, 0, 0

	switch cmd {
	case 0: // reset
	case 1: // voltage range (MMC)
		if s.kind == SDCardMMC {
			s.result0 = sdVoltageRange
			if arg&sdVoltageRange != 0 {
				s.result0 |= 0x80000000
			}
		} else {
			s.errorStatus |= 0x8000
		}
	case 2: // CID register
	case 3:
		s.result0 = 0x400 // relative card address
	case 5: // voltage range (SDIO)
		if s.kind == SDCardSDIO {
			s.result0 = sdVoltageRange | 0x8000000
			if arg&sdVoltageRange != 0 {
				s.result0 |= 0x80000000
			}
		} else {
			s.errorStatus |= 0x8000
		}
	case 7: // card select
		s.state = sdStateStby
		s.result0 = s.cardStatus()
	case 8: // voltage/check pattern
		s.result0 = arg & 0xFFF
	case 9: // CSD register
		csd := sdCSDV2
		s.result3 = ((csd[0] >> 8) | (csd[3] << 24))
		s.result2 = ((csd[1] >> 8) | (csd[0] << 24))
		s.result1 = ((csd[2] >> 8) | (csd[1] << 24))
		s.result0 = ((csd[3] >> 8) | (csd[2] << 24))
	case 13: // send status
		s.state = sdStateTran
		s.result0 = s.cardStatus()
	case 16: // set block len
		s.blockLength = arg
		s.result0 = s.cardStatus()
	case 17, 18: // read single/multiple block
		if s.file == nil {
			break
		}
		data := make([]byte, int(s.blockCount)*int(s.blockSize))
		if _, err := s.file.ReadAt(data, int64(s.argument)<<9); err != nil && err != io.EOF {
			return err
		}
		if err := s.mem.Write(s.dmaAddr, data); err != nil {
			return err
		}
	case 25: // write multiple block
		if s.file == nil {
			break
		}
		data, err := s.mem.Read(s.dmaAddr, uint64(s.blockCount)*uint64(s.blockSize))
		if err != nil {
			return err
		}
		if _, err := s.file.WriteAt(data, int64(s.argument)<<9); err != nil {
			return err
		}
	case 52: // read/write direct (SDIO)
		function := (arg >> 28) & 7
		if function != 0 {
			return wuerr.New(wuerr.KindDeviceConfig, uint64(arg), uint64(s.pc()), "sdio: CMD52 function != 0 not implemented")
		}
		regAddr := (arg >> 9) & 0x1FFFF
		if arg&0x80000000 != 0 {
			s.result0 = arg & 0xFF
			s.writeRegister(regAddr, byte(s.result0))
			if arg&0x8000000 != 0 {
				s.result0 = uint32(s.readRegister(regAddr))
			}
		} else {
			s.result0 = uint32(s.readRegister(regAddr))
		}
	case 55: // app cmd
		s.result0 = 0x20
		s.appCmd = true
	default:
		slog.Debug("sdio unhandled command", "index", s.index, "cmd", cmd, "arg", arg, "pc", s.pc())
	}
	return nil
}

func (s *SDIO) readRegister(addr uint32) byte {
	switch {
	case addr == 7:
		return byte(s.busWidth) | byte(s.cdDisable<<7)
	case addr == 9:
		return byte(sdCISPointer & 0xFF)
	case addr == 0xA:
		return byte((sdCISPointer >> 8) & 0xFF)
	case addr == 0xB:
		return byte(sdCISPointer >> 16)
	case addr == 0x13:
		return 1
	case addr >= 0x1000 && int(addr-0x1000) < len(sdCardInfo):
		return sdCardInfo[addr-0x1000]
	default:
		slog.Debug("sdio read of unmapped register", "index", s.index, "addr", addr, "pc", s.pc())
		return 0
	}
}

func (s *SDIO) writeRegister(addr uint32, value byte) {
	switch addr {
	case 6: // reset, I/O abort
	case 7:
		s.busWidth = uint32(value) & 3
		s.cdDisable = uint32(value) >> 7
	default:
		slog.Debug("sdio write to unmapped register", "index", s.index, "addr", addr, "value", value, "pc", s.pc())
	}
}
