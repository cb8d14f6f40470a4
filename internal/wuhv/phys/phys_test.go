package phys

import (
	"bytes"
	"testing"
)

// A write into a freshly added range reads back byte for byte.
func TestPhysicalFabricSeedScenario(t *testing.T) {
	m := New()
	m.AddRange(0x08000000, 0x2E0000)

	data := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	if err := m.Write(0x08000100, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := m.Read(0x08000100, 4)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("got %x want %x", got, data)
	}
}

func TestRangeRoundTrip(t *testing.T) {
	m := New()
	m.AddRange(0x1000, 0x100)

	for _, tc := range []struct {
		addr uint64
		data []byte
	}{
		{0x1000, []byte{1, 2, 3, 4}},
		{0x1050, []byte{0xFF}},
		{0x10F0, []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}},
	} {
		if err := m.Write(tc.addr, tc.data); err != nil {
			t.Fatalf("write at %#x: %v", tc.addr, err)
		}
		got, err := m.Read(tc.addr, uint64(len(tc.data)))
		if err != nil {
			t.Fatalf("read at %#x: %v", tc.addr, err)
		}
		if !bytes.Equal(got, tc.data) {
			t.Fatalf("at %#x: got %x want %x", tc.addr, got, tc.data)
		}
	}
}

func TestUnmappedAccessFails(t *testing.T) {
	m := New()
	m.AddRange(0x1000, 0x100)

	if _, err := m.Read(0x5000, 4); err == nil {
		t.Fatal("expected error reading unmapped address")
	}
	if err := m.Write(0x5000, []byte{1, 2, 3, 4}); err == nil {
		t.Fatal("expected error writing unmapped address")
	}
}

type fakeDevice struct {
	regs map[uint64]uint64
}

func (d *fakeDevice) Read(offset uint64, size int) (uint64, error) {
	return d.regs[offset], nil
}

func (d *fakeDevice) Write(offset uint64, size int, value uint64) error {
	if d.regs == nil {
		d.regs = map[uint64]uint64{}
	}
	d.regs[offset] = value
	return nil
}

func TestSpecialWindowPreferredOverRange(t *testing.T) {
	m := New()
	m.AddRange(0x0, 0x10000)
	dev := &fakeDevice{}
	m.AddSpecial(0xD000000, 0x100, dev)

	if err := m.WriteU32BE(0xD000010, 0xCAFEBABE); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := m.ReadU32BE(0xD000010)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != 0xCAFEBABE {
		t.Fatalf("got %#x want 0xCAFEBABE", got)
	}
}

func TestNoStraddle(t *testing.T) {
	m := New()
	m.AddRange(0x0, 0x10)
	m.AddRange(0x10, 0x10)

	if _, err := m.Read(0xC, 8); err == nil {
		t.Fatal("expected error straddling two ranges")
	}
}
