package devices

import (
	"log/slog"

	"github.com/tinyrange/wuhv/internal/wuhv/wuerr"
	"github.com/tinyrange/wuhv/internal/wuhv/xcrypto"
)

// sha1State holds the five 32-bit SHA-1 working registers the hardware
// exposes directly as MMIO registers. The compression function itself is
// pluggable (consumed through xcrypto.SHA1Compressor, resolved once at
// construction time); this device only owns the register state and the
// block-streaming loop around it.
type sha1State struct {
	h0, h1, h2, h3, h4 uint32
}

func (s *sha1State) reset() {
	s.h0, s.h1, s.h2, s.h3, s.h4 = 0x67452301, 0xEFCDAB89, 0x98BADCFE, 0x10325476, 0xC3D2E1F0
}

func (s *sha1State) asArray() [5]uint32 {
	return [5]uint32{s.h0, s.h1, s.h2, s.h3, s.h4}
}

func (s *sha1State) setFromArray(h [5]uint32) {
	s.h0, s.h1, s.h2, s.h3, s.h4 = h[0], h[1], h[2], h[3], h[4]
}

// SHA is a hardware SHA-1 block engine. Two instances exist (SHA and SHAS)
// distinguished by index for interrupt routing.
type SHA struct {
	index int
	sha1  sha1State

	control uint32
	srcAddr uint64

	mem        phys64
	compressor xcrypto.SHA1Compressor
	armIRQAll  func(line uint)
	armIRQLT   func(line uint)
	pc         func() uint32
}

// NewSHA creates a SHA-1 engine reset to the standard initial digest.
func NewSHA(mem phys64, index int, armIRQAll, armIRQLT func(line uint), pc func() uint32) *SHA {
	compressor, _ := xcrypto.CurrentSHA1Compressor()
	s := &SHA{mem: mem, index: index, compressor: compressor, armIRQAll: armIRQAll, armIRQLT: armIRQLT, pc: pc}
	s.sha1.reset()
	return s
}

const (
	shaCtrl = 0x0
	shaSrc  = 0x4
	shaH0   = 0x8
	shaH1   = 0xC
	shaH2   = 0x10
	shaH3   = 0x14
	shaH4   = 0x18
)

func (s *SHA) Read(offset uint64, size int) (uint64, error) {
	switch offset {
	case shaCtrl:
		return uint64(s.control), nil
	case shaSrc:
		return s.srcAddr, nil
	case shaH0:
		return uint64(s.sha1.h0), nil
	case shaH1:
		return uint64(s.sha1.h1), nil
	case shaH2:
		return uint64(s.sha1.h2), nil
	case shaH3:
		return uint64(s.sha1.h3), nil
	case shaH4:
		return uint64(s.sha1.h4), nil
	default:
		slog.Debug("sha read of unknown offset", "offset", offset, "pc", s.pc())
		return 0, nil
	}
}

func (s *SHA) Write(offset uint64, size int, value uint64) error {
	v := uint32(value)
	switch offset {
	case shaCtrl:
		if v&0x80000000 == 0 {
			s.sha1.reset()
			s.control, s.srcAddr = 0, 0
			return nil
		}
		if s.compressor == nil {
			return wuerr.New(wuerr.KindDeviceConfig, s.srcAddr, uint64(s.pc()), "sha: no SHA-1 compressor registered (see xcrypto.RegisterSHA1Compressor)")
		}
		blocks := (v & 0x3FF) + 1
		for i := uint32(0); i < blocks; i++ {
			data, err := s.mem.Read(s.srcAddr, 0x40)
			if err != nil {
				return err
			}
			s.srcAddr += 0x40
			h := s.sha1.asArray()
			s.compressor.ProcessBlock(&h, data)
			s.sha1.setFromArray(h)
		}
		if v&0x40000000 != 0 {
			s.triggerInterrupt()
		}
		s.control = v &^ 0x80000000
	case shaSrc:
		s.srcAddr = uint64(v)
	case shaH0:
		s.sha1.h0 = v
	case shaH1:
		s.sha1.h1 = v
	case shaH2:
		s.sha1.h2 = v
	case shaH3:
		s.sha1.h3 = v
	case shaH4:
		s.sha1.h4 = v
	default:
		slog.Debug("sha write to unknown offset", "offset", offset, "value", v, "pc", s.pc())
	}
	return nil
}

func (s *SHA) triggerInterrupt() {
	if s.index == 0 {
		s.armIRQAll(3)
	} else {
		s.armIRQLT(9)
	}
}
