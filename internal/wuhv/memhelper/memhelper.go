// Package memhelper implements the small typed-read/write façade the
// debugger-facing layers use: raw bytes, NUL-terminated strings and
// big-endian words read through a (physical memory, translator) pair.
package memhelper

import (
	"fmt"

	"github.com/tinyrange/wuhv/internal/wuhv/phys"
)

// Translator turns an effective address into a physical one, the same
// contract appmmu.MMU and secmmu.MMU both satisfy.
type Translator interface {
	Translate(ea uint32, write, exec bool) (uint32, error)
}

// Facade reads and writes guest memory through a translator, the way a
// debugger or syscall-snoop layer needs to: by effective address, not
// physical.
type Facade struct {
	Mem    *phys.Memory
	MMU    Translator
}

// New constructs a Facade over the given physical memory and translator.
func New(mem *phys.Memory, mmu Translator) *Facade {
	return &Facade{Mem: mem, MMU: mmu}
}

// ReadBytes reads length bytes starting at the effective address ea. Unlike
// the physical fabric, this does not require the read to stay within a
// single page: each byte is translated independently, so small diagnostic
// reads work across page boundaries.
func (f *Facade) ReadBytes(ea uint32, length int) ([]byte, error) {
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		pa, err := f.MMU.Translate(ea+uint32(i), false, false)
		if err != nil {
			return nil, fmt.Errorf("read_bytes at %#x+%d: %w", ea, i, err)
		}
		b, err := f.Mem.Read(uint64(pa), 1)
		if err != nil {
			return nil, err
		}
		out[i] = b[0]
	}
	return out, nil
}

// ReadCStrUTF8 reads a NUL-terminated string starting at ea and decodes it
// as UTF-8, used for syscall argument capture in the IPC snoop layer.
func (f *Facade) ReadCStrUTF8(ea uint32) (string, error) {
	var out []byte
	for i := 0; i < 4096; i++ {
		pa, err := f.MMU.Translate(ea+uint32(i), false, false)
		if err != nil {
			return "", fmt.Errorf("read_cstr at %#x+%d: %w", ea, i, err)
		}
		b, err := f.Mem.Read(uint64(pa), 1)
		if err != nil {
			return "", err
		}
		if b[0] == 0 {
			return string(out), nil
		}
		out = append(out, b[0])
	}
	return "", fmt.Errorf("read_cstr at %#x: no NUL terminator within 4096 bytes", ea)
}

// ReadU32BE reads a single big-endian u32 at ea, the common register/memory
// width for APP-side syscall argument capture.
func (f *Facade) ReadU32BE(ea uint32) (uint32, error) {
	b, err := f.ReadBytes(ea, 4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// WriteU32BE writes a single big-endian u32 at ea.
func (f *Facade) WriteU32BE(ea uint32, value uint32) error {
	pa, err := f.MMU.Translate(ea, true, false)
	if err != nil {
		return err
	}
	return f.Mem.WriteU32BE(uint64(pa), value)
}
