package system

import (
	"debug/elf"
	"fmt"

	"github.com/tinyrange/wuhv/internal/wuhv/wuerr"
	"github.com/tinyrange/wuhv/internal/wuhv/xcrypto"
)

// triggerAppReset fires when the SEC core hits the breakpoint signalling
// that the APP cores' boot payload has been staged in MEM0: it decrypts
// the payload in place with the console's Espresso key and resumes all
// three APP cores at the fixed reset vector. A missing key or missing
// AES-CBC primitive is a deliberate KindDeviceConfig fault rather than a
// silent skip, since a console that can't decrypt its boot payload
// genuinely cannot bring its APP cores up.
func (s *System) triggerAppReset() {
	if len(s.aesKey) == 0 {
		fatalf(wuerr.KindDeviceConfig, 0, uint64(s.SecCore.PC()), "APP core reset requested but no AES key file was configured")
	}
	cipher, ok := xcrypto.CurrentAESCBC()
	if !ok {
		fatalf(wuerr.KindDeviceConfig, 0, uint64(s.SecCore.PC()), "APP core reset requested but no AES-CBC primitive registered (see xcrypto.RegisterAESCBC)")
	}

	size, err := s.Mem.ReadU32BE(bootPayloadSizeAddr)
	if err != nil {
		fatalf(wuerr.KindDeviceConfig, bootPayloadSizeAddr, uint64(s.SecCore.PC()), "reading boot payload size: %v", err)
	}
	ciphertext, err := s.Mem.Read(bootPayloadDataAddr, uint64(size))
	if err != nil {
		fatalf(wuerr.KindDeviceConfig, bootPayloadDataAddr, uint64(s.SecCore.PC()), "reading boot payload: %v", err)
	}

	plaintext, err := cipher.DecryptCBC(s.aesKey, make([]byte, 16), ciphertext)
	if err != nil {
		fatalf(wuerr.KindDeviceConfig, 0, uint64(s.SecCore.PC()), "decrypting boot payload: %v", err)
	}

	if err := s.Mem.Write(bootPayloadDataAddr, plaintext); err != nil {
		fatalf(wuerr.KindDeviceConfig, bootPayloadDataAddr, uint64(s.SecCore.PC()), "writing decrypted boot payload: %v", err)
	}

	for i := 0; i < 3; i++ {
		s.AppCore[i].SetPC(appResetVector)
		s.Sched.Resume(s.appSchedCore[i])
	}
}

// LoadELF loads a host ELF file's PT_LOAD segments into physical memory
// and points the SEC core at its entry address, used for booting a
// standalone kernel image instead of the encrypted retail boot chain. ELF
// parsing itself stays in debug/elf; this only does the placement a
// loader needs once the file is parsed.
func (s *System) LoadELF(path string) error {
	f, err := elf.Open(path)
	if err != nil {
		return wuerr.Wrap(wuerr.KindDeviceConfig, 0, 0, "open ELF "+path, err)
	}
	defer f.Close()

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Filesz == 0 {
			continue
		}
		data := make([]byte, prog.Filesz)
		if _, err := prog.ReadAt(data, 0); err != nil {
			return wuerr.Wrap(wuerr.KindDeviceConfig, prog.Vaddr, 0, fmt.Sprintf("read ELF segment at %#08x", prog.Vaddr), err)
		}
		if err := s.Mem.Write(prog.Vaddr, data); err != nil {
			return wuerr.Wrap(wuerr.KindDeviceConfig, prog.Vaddr, 0, fmt.Sprintf("write ELF segment at %#08x", prog.Vaddr), err)
		}
	}

	s.SecCore.SetPC(uint32(f.Entry))
	return nil
}
