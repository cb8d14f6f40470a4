package devices

import (
	"fmt"
	"io"

	"github.com/tinyrange/wuhv/internal/wuhv/wuerr"
)

// nandBackend is the pluggable storage behind a NAND bank (SLC main area
// plus its out-of-band spare area). system.go wires these to the host
// backing image files.
type nandBackend interface {
	io.ReaderAt
	io.WriterAt
}

// NANDBank models one addressable NAND flash bank. A bank can be pointed at
// either the plain SLC image or the "compatibility" SLC image depending on
// the controller-wide bank-select register.
type NANDBank struct {
	mem phys64

	slc, slcSpare         nandBackend
	slcCmpt, slcCmptSpare nandBackend

	file, fileSpare nandBackend
	nextSpare       int64

	control, config      uint32
	addr1, addr2         uint32
	databuf, eccbuf      uint64

	armIRQ func(line uint)
	pc     func() uint32
}

// phys64 is the subset of *phys.Memory a device needs for DMA.
type phys64 interface {
	Read(addr, length uint64) ([]byte, error)
	Write(addr uint64, data []byte) error
}

func newNANDBank(mem phys64, slc, slcSpare, slcCmpt, slcCmptSpare nandBackend, armIRQ func(line uint), pc func() uint32) *NANDBank {
	b := &NANDBank{mem: mem, slc: slc, slcSpare: slcSpare, slcCmpt: slcCmpt, slcCmptSpare: slcCmptSpare, armIRQ: armIRQ, pc: pc}
	b.file, b.fileSpare = slcCmpt, slcCmptSpare
	return b
}

func (b *NANDBank) reset() {
	b.control, b.config, b.addr1, b.addr2, b.databuf, b.eccbuf = 0, 0, 0, 0, 0, 0
}

// SetBank switches between the plain and compatibility SLC images.
func (b *NANDBank) SetBank(cmpt bool) {
	if cmpt {
		b.file, b.fileSpare = b.slcCmpt, b.slcCmptSpare
	} else {
		b.file, b.fileSpare = b.slc, b.slcSpare
	}
}

const (
	nandCtrl    = 0x0
	nandConfig  = 0x4
	nandAddr1   = 0x8
	nandAddr2   = 0xC
	nandDatabuf = 0x10
	nandEccbuf  = 0x14
)

func (b *NANDBank) read(addr uint64) uint32 {
	switch addr {
	case nandCtrl:
		return b.control
	case nandConfig:
		return b.config
	case nandAddr1:
		return b.addr1
	case nandAddr2:
		return b.addr2
	case nandDatabuf:
		return uint32(b.databuf)
	case nandEccbuf:
		return uint32(b.eccbuf)
	default:
		return 0
	}
}

func (b *NANDBank) write(addr uint64, value uint32) error {
	switch addr {
	case nandCtrl:
		v, err := b.startCommand(value)
		if err != nil {
			return err
		}
		b.control = v
	case nandConfig:
		b.config = value
	case nandAddr1:
		b.addr1 = value
	case nandAddr2:
		b.addr2 = value
	case nandDatabuf:
		b.databuf = uint64(value)
	case nandEccbuf:
		b.eccbuf = uint64(value)
	}
	return nil
}

// startCommand decodes and executes one NAND_CTRL write; the returned value
// is the register's post-execution state (execute bit dropped).
func (b *NANDBank) startCommand(value uint32) (uint32, error) {
	if value&0x80000000 == 0 {
		b.reset()
		return 0, nil
	}
	command := (value >> 16) & 0xFF
	write := (value>>14)&1 != 0
	read := (value>>13)&1 != 0
	length := value & 0xFFF
	if err := b.handleCommand(command, write, read, length); err != nil {
		return 0, err
	}
	if value&0x40000000 != 0 {
		b.armIRQ(1)
	}
	return value &^ 0x80000000, nil
}

func (b *NANDBank) handleCommand(command uint32, write, read bool, length uint32) error {
	switch command {
	case 0x00: // init read
	case 0x10: // finish write
	case 0x30: // read
		if length == 0x840 {
			pageAddr := (int64(b.addr2) << 11) | int64(b.addr1)
			page := make([]byte, 0x800)
			b.file.ReadAt(page, pageAddr)
			b.mem.Write(b.databuf, page)

			spare := make([]byte, 0x40)
			b.fileSpare.ReadAt(spare, int64(b.addr2)<<6)
			b.mem.Write(b.eccbuf, spare)
			b.mem.Write(b.eccbuf^0x40, spare[0x30:])
		} else if length == 0x40 {
			spare := make([]byte, 0x40)
			b.fileSpare.ReadAt(spare, int64(b.addr2)<<6)
			b.mem.Write(b.databuf, spare)
		}
	case 0x60: // erase init 1
	case 0x70: // erase
		b.mem.Write(b.databuf, make([]byte, length))
	case 0x80: // write
		data, _ := b.mem.Read(b.databuf, uint64(length))
		pageAddr := (int64(b.addr2) << 11) | int64(b.addr1)
		b.file.WriteAt(data, pageAddr)
		b.nextSpare = int64(b.addr2) << 6
	case 0x85: // write spare
		data, _ := b.mem.Read(b.databuf, uint64(length))
		b.fileSpare.WriteAt(data, b.nextSpare)
	case 0x90: // get chip id
		b.mem.Write(b.databuf, []byte{0xEC, 0xDC})
	case 0xD0: // erase init 2
	case 0xFF: // reset
	default:
		return wuerr.New(wuerr.KindDeviceConfig, uint64(b.databuf), uint64(b.pc()),
			fmt.Sprintf("nand: unhandled command 0x%X write=%v read=%v length=0x%X", command, write, read, length))
	}
	return nil
}

// NAND is the top-level NAND controller: one "main" bank plus eight banks
// addressable through a bulk bank-select register for multi-bank batch
// commands.
type NAND struct {
	main  *NANDBank
	banks [8]*NANDBank

	bank, bankControl, intMask uint32

	armIRQ func(line uint)
	pc     func() uint32
}

// NewNAND creates a NAND controller against the four backend images
// (plain/compatibility SLC and their spare areas).
func NewNAND(mem phys64, slc, slcSpare, slcCmpt, slcCmptSpare nandBackend, armIRQ func(line uint), pc func() uint32) *NAND {
	n := &NAND{armIRQ: armIRQ, pc: pc}
	n.main = newNANDBank(mem, slc, slcSpare, slcCmpt, slcCmptSpare, armIRQ, pc)
	for i := range n.banks {
		n.banks[i] = newNANDBank(mem, slc, slcSpare, slcCmpt, slcCmptSpare, armIRQ, pc)
	}
	return n
}

const (
	nandMainStart  = 0x00000
	nandMainEnd    = 0x00018
	nandBankReg    = 0x00018
	nandBankCtrl   = 0x00030
	nandIntMaskReg = 0x00034
	nandBanksStart = 0x00040
	nandBanksEnd   = 0x00100
)

func (n *NAND) Read(offset uint64, size int) (uint64, error) {
	switch {
	case offset >= nandMainStart && offset < nandMainEnd:
		return uint64(n.main.read(offset - nandMainStart)), nil
	case offset == nandBankReg:
		return uint64(n.bank), nil
	case offset == nandBankCtrl:
		return uint64(n.bankControl), nil
	case offset == nandIntMaskReg:
		return uint64(n.intMask), nil
	case offset >= nandBanksStart && offset < nandBanksEnd:
		i := (offset - nandBanksStart) / 0x18
		return uint64(n.banks[i].read((offset - nandBanksStart) % 0x18)), nil
	default:
		return 0, nil
	}
}

func (n *NAND) Write(offset uint64, size int, value uint64) error {
	v := uint32(value)
	switch {
	case offset >= nandMainStart && offset < nandMainEnd:
		return n.main.write(offset-nandMainStart, v)
	case offset == nandBankReg:
		cmpt := v&2 == 0
		n.main.SetBank(cmpt)
		for _, b := range n.banks {
			b.SetBank(cmpt)
		}
		n.bank = v
	case offset == nandBankCtrl:
		if v&0x80000000 != 0 {
			count := (v >> 16) & 0xFF
			for i := uint32(0); i < count; i++ {
				b := n.banks[i]
				cfg, err := b.startCommand(b.config)
				if err != nil {
					return err
				}
				b.config = cfg
			}
			n.intMask &^= v & 0xFF
			n.bankControl = v &^ 0x80000000
			n.armIRQ(1)
		}
	case offset >= nandBanksStart && offset < nandBanksEnd:
		i := (offset - nandBanksStart) / 0x18
		return n.banks[i].write((offset-nandBanksStart)%0x18, v)
	}
	return nil
}
