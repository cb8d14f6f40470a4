package devices

import (
	"log/slog"

	"github.com/tinyrange/wuhv/internal/wuhv/wuerr"
	"github.com/tinyrange/wuhv/internal/wuhv/xcrypto"
)

// AES is a hardware AES-CBC engine. Two independent instances exist (AES
// and AESS); index selects which ARM interrupt line a completion raises.
// The cipher itself is pluggable (consumed through xcrypto.AESCBC, resolved
// once at construction time); this device never imports a concrete cipher
// package itself.
type AES struct {
	index int

	ctrl       uint32
	src, dest  uint64
	key, iv    [16]byte

	mem    phys64
	cipher xcrypto.AESCBC

	armIRQAll func(line uint)
	armIRQLT  func(line uint)
	pc        func() uint32
}

// NewAES creates an AES engine. armIRQAll/armIRQLT raise a line in the ARM
// aggregator's two status words; the primary instance completes on the
// `_all` word, the secondary on `_lt`.
func NewAES(mem phys64, index int, armIRQAll, armIRQLT func(line uint), pc func() uint32) *AES {
	cipher, _ := xcrypto.CurrentAESCBC()
	return &AES{mem: mem, index: index, cipher: cipher, armIRQAll: armIRQAll, armIRQLT: armIRQLT, pc: pc}
}

const (
	aesCtrl = 0x0
	aesSrc  = 0x4
	aesDest = 0x8
	aesKey  = 0xC
	aesIV   = 0x10
)

func (a *AES) reset() {
	a.ctrl, a.src, a.dest = 0, 0, 0
	a.key, a.iv = [16]byte{}, [16]byte{}
}

func (a *AES) Read(offset uint64, size int) (uint64, error) {
	switch offset {
	case aesCtrl:
		return uint64(a.ctrl), nil
	case aesSrc:
		return a.src, nil
	case aesDest:
		return a.dest, nil
	default:
		slog.Debug("aes read of unknown offset", "offset", offset, "pc", a.pc())
		return 0, nil
	}
}

func (a *AES) Write(offset uint64, size int, value uint64) error {
	v := uint32(value)
	switch offset {
	case aesCtrl:
		if v&0x80000000 == 0 {
			a.reset()
			return nil
		}
		a.ctrl = (v &^ 0x80000000) | 0xFFF
		blocks := (v & 0xFFF) + 1
		data, err := a.mem.Read(a.src, uint64(blocks)*16)
		if err != nil {
			return err
		}
		if v&0x10000000 != 0 {
			if v&0x1000 != 0 {
				return wuerr.New(wuerr.KindDeviceConfig, a.src, uint64(a.pc()), "aes: block chain continue not implemented")
			}
			if a.cipher == nil {
				return wuerr.New(wuerr.KindDeviceConfig, a.src, uint64(a.pc()), "aes: no AES-CBC primitive registered (see xcrypto.RegisterAESCBC)")
			}
			var out []byte
			var err error
			if v&0x8000000 != 0 {
				out, err = a.cipher.DecryptCBC(a.key[:], a.iv[:], data)
			} else {
				out, err = a.cipher.EncryptCBC(a.key[:], a.iv[:], data)
			}
			if err != nil {
				return err
			}
			data = out
		}
		if err := a.mem.Write(a.dest, data); err != nil {
			return err
		}
		if v&0x40000000 != 0 {
			a.triggerInterrupt()
		}
	case aesSrc:
		a.src = uint64(v)
	case aesDest:
		a.dest = uint64(v)
	case aesKey:
		copy(a.key[:12], a.key[4:])
		a.key[12], a.key[13], a.key[14], a.key[15] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
	case aesIV:
		copy(a.iv[:12], a.iv[4:])
		a.iv[12], a.iv[13], a.iv[14], a.iv[15] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
	default:
		slog.Debug("aes write to unknown offset", "offset", offset, "value", v, "pc", a.pc())
	}
	return nil
}

func (a *AES) triggerInterrupt() {
	if a.index == 0 {
		a.armIRQAll(2)
	} else {
		a.armIRQLT(8)
	}
}
