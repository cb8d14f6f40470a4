package devices

import (
	"bytes"
	"testing"

	"github.com/tinyrange/wuhv/internal/wuhv/phys"
)

func newTestSDIO(t *testing.T, kind SDCardType, file sdBackend) (*SDIO, *phys.Memory, *[]uint) {
	t.Helper()
	mem := phys.New()
	mem.AddRange(0, 0x10000)
	var irqs []uint
	s := NewSDIO(mem, 0, kind, file, func(line uint) { irqs = append(irqs, line) }, func(uint) {}, func() uint32 { return 0 })
	return s, mem, &irqs
}

// issue runs one SD command through the command register the way firmware
// does: block geometry, argument, then the packed command word.
func issue(t *testing.T, s *SDIO, cmd, arg, blockCount, blockSize uint32) {
	t.Helper()
	if err := s.Write(0x4, 4, uint64(blockCount<<16|blockSize)); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(0x8, 4, uint64(arg)); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(0xC, 4, uint64(cmd<<24)); err != nil {
		t.Fatal(err)
	}
}

func TestSDIOReadSingleBlock(t *testing.T) {
	card := &memFile{}
	sector := bytes.Repeat([]byte{0x5A}, 512)
	card.WriteAt(sector, 2<<9)

	s, mem, irqs := newTestSDIO(t, SDCardSD, card)

	if err := s.Write(0x0, 4, 0x1000); err != nil { // DMA target
		t.Fatal(err)
	}
	issue(t, s, 17, 2, 1, 512)

	got, err := mem.Read(0x1000, 512)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, sector) {
		t.Fatalf("block readback mismatch: got %x... want %x...", got[:4], sector[:4])
	}
	if len(*irqs) != 1 || (*irqs)[0] != 7 {
		t.Fatalf("irqs after command: %v, want [7]", *irqs)
	}
}

func TestSDIOWriteMultipleBlock(t *testing.T) {
	card := &memFile{}
	s, mem, _ := newTestSDIO(t, SDCardSD, card)

	data := bytes.Repeat([]byte{0xC3}, 1024)
	if err := mem.Write(0x2000, data); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(0x0, 4, 0x2000); err != nil {
		t.Fatal(err)
	}
	issue(t, s, 25, 4, 2, 512)

	got := make([]byte, 1024)
	card.ReadAt(got, 4<<9)
	if !bytes.Equal(got, data) {
		t.Fatalf("card contents mismatch: got %x... want %x...", got[:4], data[:4])
	}
}

func TestSDIOCSDAssembly(t *testing.T) {
	s, _, _ := newTestSDIO(t, SDCardSD, nil)
	issue(t, s, 9, 0, 0, 0)

	csd := sdCSDV2
	if s.result3 != ((csd[0] >> 8) | (csd[3] << 24)) {
		t.Fatalf("result3: got %#x", s.result3)
	}
	if s.result0 != ((csd[3] >> 8) | (csd[2] << 24)) {
		t.Fatalf("result0: got %#x", s.result0)
	}
}

func TestSDIOAppCommandLatch(t *testing.T) {
	s, _, _ := newTestSDIO(t, SDCardSD, nil)

	issue(t, s, 55, 0, 0, 0)
	if !s.appCmd {
		t.Fatal("CMD55 did not latch app-command mode")
	}

	issue(t, s, 41, sdVoltageRange, 0, 0)
	if s.appCmd {
		t.Fatal("app-command mode should clear after one command")
	}
	if s.result0 != sdVoltageRange|0xC0000000 {
		t.Fatalf("ACMD41 response: got %#x", s.result0)
	}
}

func TestSDIOVoltageRangeRejectedByWrongCardType(t *testing.T) {
	s, _, _ := newTestSDIO(t, SDCardSD, nil)
	issue(t, s, 1, sdVoltageRange, 0, 0) // CMD1 is MMC-only
	if s.errorStatus&0x8000 == 0 {
		t.Fatal("CMD1 against an SD card should set the error bit")
	}
}

func TestSDIODirectIOBusWidth(t *testing.T) {
	s, _, _ := newTestSDIO(t, SDCardSDIO, nil)

	// CMD52 write to the bus-interface register (function 0, reg 7).
	arg := uint32(0x80000000) | (7 << 9) | 2
	issue(t, s, 52, arg, 0, 0)
	if s.busWidth != 2 {
		t.Fatalf("bus width: got %d want 2", s.busWidth)
	}

	// CMD52 read of the same register hands it back.
	issue(t, s, 52, (7 << 9), 0, 0)
	if s.result0&3 != 2 {
		t.Fatalf("bus width readback: got %#x", s.result0)
	}
}
