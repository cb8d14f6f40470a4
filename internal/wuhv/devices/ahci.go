package devices

import (
	"encoding/binary"
	"log/slog"

	"github.com/tinyrange/wuhv/internal/wuhv/wuerr"
)

// prdtEntry is one physical-region-descriptor table entry: a data pointer
// and a byte count, little-endian in guest memory.
type prdtEntry struct {
	mem       phys64
	dataAddr  uint64
	byteCount uint32
}

func newPRDTEntry(mem phys64, data []byte) prdtEntry {
	return prdtEntry{
		mem:       mem,
		dataAddr:  uint64(binary.LittleEndian.Uint32(data[0:4])),
		byteCount: (binary.LittleEndian.Uint32(data[12:16]) & 0x3FFFFF) + 1,
	}
}

func (p prdtEntry) write(data []byte) error {
	if uint32(len(data)) > p.byteCount {
		return wuerr.New(wuerr.KindDeviceConfig, p.dataAddr, 0, "ahci: prdt write overflow")
	}
	return p.mem.Write(p.dataAddr, data)
}

// ahciCmdList is a decoded AHCI command-table entry: FIS, ATAPI command
// block, and PRDT list.
type ahciCmdList struct {
	mem   phys64
	addr  uint64
	fis   []byte
	atapi []byte
	prdts []prdtEntry

	byteCount uint32
}

func newAHCICmdList(mem phys64, addr uint64) (*ahciCmdList, error) {
	header, err := mem.Read(addr, 0x20)
	if err != nil {
		return nil, err
	}
	prdtCount := binary.LittleEndian.Uint16(header[2:4])
	tableAddr := uint64(binary.LittleEndian.Uint32(header[8:12]))

	fis, err := mem.Read(tableAddr, 0x40)
	if err != nil {
		return nil, err
	}
	atapi, err := mem.Read(tableAddr+0x40, 0x10)
	if err != nil {
		return nil, err
	}
	prdtData, err := mem.Read(tableAddr+0x80, uint64(prdtCount)*0x10)
	if err != nil {
		return nil, err
	}
	prdts := make([]prdtEntry, prdtCount)
	for i := range prdts {
		prdts[i] = newPRDTEntry(mem, prdtData[i*0x10:(i+1)*0x10])
	}
	return &ahciCmdList{mem: mem, addr: addr, fis: fis, atapi: atapi, prdts: prdts}, nil
}

func (c *ahciCmdList) addBytes(n int) error {
	c.byteCount += uint32(n)
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], c.byteCount)
	return c.mem.Write(c.addr+4, buf[:])
}

func (c *ahciCmdList) writePRDT(index int, data []byte) error {
	if err := c.prdts[index].write(data); err != nil {
		return err
	}
	return c.addBytes(len(data))
}

func (c *ahciCmdList) fillPRDTs() error {
	for i, prdt := range c.prdts {
		if err := c.writePRDT(i, make([]byte, prdt.byteCount)); err != nil {
			return err
		}
	}
	return nil
}

// AHCI is a minimal single-port SATA/ATAPI host controller. Only the ATAPI
// subset boot firmware probes with is modelled (REQUEST_SENSE, INQUIRY);
// there is no optical drive on real hardware either, so every other
// command fills its PRDTs with zeroes.
type AHCI struct {
	mem       phys64
	armIRQAll func(line uint)
	armIRQLT  func(line uint)

	hbaControl, hbaIntStatus uint32
	cmdBase, fisBase         uint64
	intStatus, intEnable     uint32
	cmdStatus                uint32
	status                   uint32
	sataIntState, sataIntMask uint32

	pc func() uint32
}

// NewAHCI creates an AHCI controller with no attached drive image; nothing
// attaches one later, so commands are answered by the controller's own
// canned responses.
func NewAHCI(mem phys64, armIRQAll, armIRQLT func(line uint), pc func() uint32) *AHCI {
	return &AHCI{mem: mem, armIRQAll: armIRQAll, armIRQLT: armIRQLT, status: 0x3, pc: pc}
}

const (
	ahciHBAControl   = 0x404
	ahciHBAIntStatus = 0x408
	ahciCmdBase      = 0x500
	ahciCmdBaseHi    = 0x504
	ahciFISBase      = 0x508
	ahciFISBaseHi    = 0x50C
	ahciIntStatus    = 0x510
	ahciIntEnable    = 0x514
	ahciCmdStatus    = 0x518
	ahciTaskFileData = 0x520
	ahciStatus       = 0x528
	ahciControl      = 0x52C
	ahciError        = 0x530
	ahciCmdIssue     = 0x538
	sataIntState     = 0x800
	sataIntMask      = 0x804
)

func (a *AHCI) Read(offset uint64, size int) (uint64, error) {
	switch offset {
	case ahciHBAControl:
		return uint64(a.hbaControl), nil
	case ahciHBAIntStatus:
		return uint64(a.hbaIntStatus), nil
	case ahciCmdBase:
		return a.cmdBase, nil
	case ahciCmdBaseHi, ahciFISBaseHi:
		return 0, nil
	case ahciFISBase:
		return a.fisBase, nil
	case ahciIntStatus:
		return uint64(a.intStatus), nil
	case ahciIntEnable:
		return uint64(a.intEnable), nil
	case ahciCmdStatus:
		return uint64(a.cmdStatus), nil
	case ahciTaskFileData, ahciError, ahciCmdIssue:
		return 0, nil
	case ahciStatus:
		return uint64(a.status), nil
	case sataIntState:
		return uint64(a.sataIntState), nil
	case sataIntMask:
		return uint64(a.sataIntMask), nil
	default:
		slog.Debug("ahci read of unknown offset", "offset", offset, "pc", a.pc())
		return 0, nil
	}
}

func (a *AHCI) Write(offset uint64, size int, value uint64) error {
	v := uint32(value)
	switch offset {
	case ahciHBAControl:
		a.hbaControl = v &^ 1
	case ahciHBAIntStatus:
		a.hbaIntStatus &^= v
	case ahciCmdBase:
		a.cmdBase = uint64(v &^ 0x3FF)
	case ahciCmdBaseHi:
	case ahciFISBase:
		a.fisBase = uint64(v &^ 0xFF)
	case ahciFISBaseHi:
	case ahciIntStatus:
		a.intStatus &^= v
	case ahciIntEnable:
		a.intEnable = v
	case ahciCmdStatus:
		a.cmdStatus = v
	case ahciControl, ahciError:
	case ahciCmdIssue:
		for i := uint(0); i < 32; i++ {
			if v&(1<<i) != 0 {
				if err := a.issueCmd(i); err != nil {
					return err
				}
			}
		}
	case sataIntState:
		a.sataIntState = v
	case sataIntMask:
		a.sataIntMask = v
	default:
		slog.Debug("ahci write to unknown offset", "offset", offset, "value", v, "pc", a.pc())
	}
	return nil
}

const (
	fisTypeRegH2D = 0x27

	atapiRequestSense = 3
	atapiInquiry      = 0xF5
)

func (a *AHCI) issueCmd(index uint) error {
	addr := a.cmdBase + uint64(index)*0x20
	list, err := newAHCICmdList(a.mem, addr)
	if err != nil {
		return err
	}
	if err := a.handleCmdTable(list); err != nil {
		return err
	}

	a.hbaIntStatus = 1
	a.sataIntState = a.sataIntMask
	a.armIRQAll(28)
	a.armIRQLT(6)
	return nil
}

func (a *AHCI) handleCmdTable(list *ahciCmdList) error {
	if list.fis[0] != fisTypeRegH2D {
		slog.Debug("ahci unhandled fis type", "type", list.fis[0], "pc", a.pc())
		return nil
	}
	command := list.fis[2]
	if command != 0xA0 { // PACKET
		slog.Debug("ahci unhandled fis command", "command", command, "pc", a.pc())
		return nil
	}
	return a.handleATAPI(list)
}

func (a *AHCI) handleATAPI(list *ahciCmdList) error {
	command := list.atapi[0]
	switch command {
	case atapiRequestSense:
		data := append([]byte{0xF0}, make([]byte, 17)...)
		data = append(data, 0x02)
		data = append(data, make([]byte, 13)...)
		return list.writePRDT(0, data)
	case atapiInquiry:
		data := append([]byte{0, 0, 0, 5}, make([]byte, 28)...)
		return list.writePRDT(0, data)
	default:
		slog.Debug("atapi unhandled command", "command", command, "pc", a.pc())
		return list.fillPRDTs()
	}
}
