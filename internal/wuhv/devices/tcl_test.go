package devices

import (
	"testing"

	"github.com/tinyrange/wuhv/internal/wuhv/phys"
)

func newTestTCL(t *testing.T) (*TCL, *phys.Memory) {
	t.Helper()
	mem := phys.New()
	mem.AddRange(0, 0x10000)
	return NewTCL(mem, func() uint32 { return 0 }), mem
}

func TestTCLMicrocodeReadback(t *testing.T) {
	tcl, _ := newTestTCL(t)

	if err := tcl.Write(tclRLCMicrocodeCtrl, 4, 0); err != nil {
		t.Fatal(err)
	}
	words := []uint32{0xDEAD0001, 0xDEAD0002, 0xDEAD0003}
	for _, w := range words {
		if err := tcl.Write(tclRLCMicrocodeData, 4, uint64(w)); err != nil {
			t.Fatal(err)
		}
	}

	// Firmware rewinds the position register and reads its upload back.
	if err := tcl.Write(tclRLCMicrocodeCtrl, 4, 0); err != nil {
		t.Fatal(err)
	}
	for i, want := range words {
		got, err := tcl.Read(tclRLCMicrocodeData, 4)
		if err != nil {
			t.Fatal(err)
		}
		if uint32(got) != want {
			t.Fatalf("microcode word %d: got %#x want %#x", i, got, want)
		}
	}
}

func TestTCLVsyncRing(t *testing.T) {
	tcl, mem := newTestTCL(t)

	// Interrupt-info ring at 0x1000 (the pointer register carries the
	// address pre-shifted right by 8); write position stored at 0x2000.
	if err := tcl.Write(tclIntrInfoPtr, 4, 0x10); err != nil {
		t.Fatal(err)
	}
	if err := tcl.Write(tclIntrInfoPosPtr, 4, 0x2000); err != nil {
		t.Fatal(err)
	}

	// With the display-controller mask clear, vsync posts nothing.
	tcl.TriggerVsync()
	if tcl.CheckInterrupts() {
		t.Fatal("vsync posted a record while masked")
	}

	if err := tcl.Write(tclDC0IntMask, 4, 0x01000000); err != nil {
		t.Fatal(err)
	}
	tcl.TriggerVsync()
	if !tcl.CheckInterrupts() {
		t.Fatal("expected an unconsumed interrupt record")
	}

	kind, err := mem.ReadU32BE(0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if kind != 2 {
		t.Fatalf("record kind: got %d want 2", kind)
	}
	pos, err := mem.ReadU32BE(0x2000)
	if err != nil {
		t.Fatal(err)
	}

	// The guest consumes the ring by advancing its read position.
	if err := tcl.Write(tclIntrReadPos, 4, uint64(pos)); err != nil {
		t.Fatal(err)
	}
	if tcl.CheckInterrupts() {
		t.Fatal("interrupt still pending after guest consumed the ring")
	}
}

func TestTCLFlushPostsReadPointer(t *testing.T) {
	tcl, mem := newTestTCL(t)

	if err := tcl.Write(tclCPReadPosPtr, 4, 0x3000); err != nil {
		t.Fatal(err)
	}
	if err := tcl.Write(tclCPWritePos, 4, 0x1234); err != nil {
		t.Fatal(err)
	}
	if _, err := tcl.Read(tclFlush, 4); err != nil {
		t.Fatal(err)
	}

	got, err := mem.Read(0x3000, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 0x12 || got[1] != 0x34 {
		t.Fatalf("read pointer posted: got %x want 1234", got)
	}
}
