package devices

import (
	"encoding/binary"
	"testing"

	"github.com/tinyrange/wuhv/internal/wuhv/phys"
)

func put32le(t *testing.T, mem *phys.Memory, addr uint64, v uint32) {
	t.Helper()
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	if err := mem.Write(addr, b[:]); err != nil {
		t.Fatal(err)
	}
}

func get32le(t *testing.T, mem *phys.Memory, addr uint64) uint32 {
	t.Helper()
	b, err := mem.Read(addr, 4)
	if err != nil {
		t.Fatal(err)
	}
	return binary.LittleEndian.Uint32(b)
}

// TestOHCIControlTransfer lays out one endpoint descriptor with a single
// SETUP transfer descriptor followed by an IN descriptor, kicks the control
// list, and checks the device descriptor lands in the IN buffer, the TDs
// are retired onto the done queue, and the done head reaches the HCCA.
func TestOHCIControlTransfer(t *testing.T) {
	mem := phys.New()
	mem.AddRange(0, 0x10000)

	var irqs []uint
	o := NewOHCI(mem, 1, func(line uint) { irqs = append(irqs, line) }, func() uint32 { return 0 })

	const (
		hcca    = 0x1000
		ed      = 0x2000
		tdSetup = 0x2100
		tdIn    = 0x2200
		tdTail  = 0x2300
		bufOut  = 0x3000
		bufIn   = 0x3100
	)

	// GET_DESCRIPTOR(DEVICE) setup packet.
	setup := []byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x12, 0x00}
	if err := mem.Write(bufOut, setup); err != nil {
		t.Fatal(err)
	}

	// ED: control word, tail TD, current TD, next ED.
	put32le(t, mem, ed, 0)
	put32le(t, mem, ed+4, tdTail)
	put32le(t, mem, ed+8, tdSetup)
	put32le(t, mem, ed+12, 0)

	// SETUP TD (direction 0) then IN TD (direction 2), end pointers
	// inclusive.
	put32le(t, mem, tdSetup, 0<<19)
	put32le(t, mem, tdSetup+4, bufOut)
	put32le(t, mem, tdSetup+8, tdIn)
	put32le(t, mem, tdSetup+12, bufOut+7)

	put32le(t, mem, tdIn, 2<<19)
	put32le(t, mem, tdIn+4, bufIn)
	put32le(t, mem, tdIn+8, tdTail)
	put32le(t, mem, tdIn+12, bufIn+0x11)

	if err := o.Write(ohciHCCA, 4, hcca); err != nil {
		t.Fatal(err)
	}
	if err := o.Write(ohciControlHeadED, 4, ed); err != nil {
		t.Fatal(err)
	}
	if err := o.Write(ohciCmdStatus, 4, 2); err != nil { // control list filled
		t.Fatal(err)
	}

	got, err := mem.Read(bufIn, uint64(len(usbDeviceDescriptor)))
	if err != nil {
		t.Fatal(err)
	}
	for i := range got {
		if got[i] != usbDeviceDescriptor[i] {
			t.Fatalf("device descriptor byte %d: got %#x want %#x", i, got[i], usbDeviceDescriptor[i])
		}
	}

	// Done queue: the IN TD retired last, pointing back at the SETUP TD.
	if head := get32le(t, mem, hcca+0x84); head != tdIn {
		t.Fatalf("done head: got %#x want %#x", head, tdIn)
	}
	if prev := get32le(t, mem, tdSetup+8); prev != 0 {
		t.Fatalf("first retired TD should end the done chain: got %#x", prev)
	}
	if len(irqs) == 0 {
		t.Fatal("expected the writeback-done-head interrupt for index 1")
	}
}

// TestOHCIInterruptGatedByIndex: instances other than 1 complete the walk
// without raising the shared line.
func TestOHCIInterruptGatedByIndex(t *testing.T) {
	mem := phys.New()
	mem.AddRange(0, 0x1000)

	var irqs []uint
	o := NewOHCI(mem, 2, func(line uint) { irqs = append(irqs, line) }, func() uint32 { return 0 })
	if err := o.Write(ohciHCCA, 4, 0x100); err != nil {
		t.Fatal(err)
	}
	if err := o.Write(ohciCmdStatus, 4, 2); err != nil {
		t.Fatal(err)
	}
	if len(irqs) != 0 {
		t.Fatalf("index 2 must not raise the shared line, got %v", irqs)
	}
	if o.intStatus&2 == 0 {
		t.Fatal("the controller's own status bit should still latch")
	}
}

// TestAHCIInquiry builds a one-slot command list carrying an ATAPI INQUIRY
// and checks the canned device-type-5 response lands in the PRDT buffer.
func TestAHCIInquiry(t *testing.T) {
	mem := phys.New()
	mem.AddRange(0, 0x10000)

	var all, lt []uint
	a := NewAHCI(mem,
		func(line uint) { all = append(all, line) },
		func(line uint) { lt = append(lt, line) },
		func() uint32 { return 0 })

	const (
		cmdBase  = 0x1000
		cmdTable = 0x2000
		dataBuf  = 0x3000
	)

	// Command header 0: one PRDT entry, table address.
	header := make([]byte, 0x20)
	binary.LittleEndian.PutUint16(header[2:4], 1)
	binary.LittleEndian.PutUint32(header[8:12], cmdTable)
	if err := mem.Write(cmdBase, header); err != nil {
		t.Fatal(err)
	}

	// FIS: register H2D carrying ATA PACKET; the ATAPI block at +0x40
	// names INQUIRY.
	fis := make([]byte, 0x40)
	fis[0] = fisTypeRegH2D
	fis[2] = 0xA0
	if err := mem.Write(cmdTable, fis); err != nil {
		t.Fatal(err)
	}
	atapi := make([]byte, 0x10)
	atapi[0] = atapiInquiry
	if err := mem.Write(cmdTable+0x40, atapi); err != nil {
		t.Fatal(err)
	}

	// PRDT entry 0: 64-byte buffer (count field is length-1).
	prdt := make([]byte, 0x10)
	binary.LittleEndian.PutUint32(prdt[0:4], dataBuf)
	binary.LittleEndian.PutUint32(prdt[12:16], 63)
	if err := mem.Write(cmdTable+0x80, prdt); err != nil {
		t.Fatal(err)
	}

	if err := a.Write(ahciCmdBase, 4, cmdBase); err != nil {
		t.Fatal(err)
	}
	if err := a.Write(ahciCmdIssue, 4, 1); err != nil {
		t.Fatal(err)
	}

	got, err := mem.Read(dataBuf, 4)
	if err != nil {
		t.Fatal(err)
	}
	if got[3] != 5 {
		t.Fatalf("inquiry device type: got %d want 5", got[3])
	}
	if len(all) != 1 || all[0] != 28 {
		t.Fatalf("hba line: got %v want [28]", all)
	}
	if len(lt) != 1 || lt[0] != 6 {
		t.Fatalf("sata line: got %v want [6]", lt)
	}
	// Transfer byte count written back into the command header.
	if n := get32le(t, mem, cmdBase+4); n != 32 {
		t.Fatalf("byte count writeback: got %d want 32", n)
	}
}
