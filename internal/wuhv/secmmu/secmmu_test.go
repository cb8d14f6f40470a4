package secmmu

import (
	"testing"

	"github.com/tinyrange/wuhv/internal/wuhv/phys"
)

func TestIdentityMapWhenDisabled(t *testing.T) {
	mem := phys.New()
	m := New(mem)

	got, err := m.Translate(0x12345678, false, false)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got != 0x12345678 {
		t.Fatalf("got %#x want identity", got)
	}
}

func TestSectionDescriptor(t *testing.T) {
	mem := phys.New()
	mem.AddRange(0x00000000, 0x10000)
	m := New(mem)
	m.SetControl(ctrlMMUEnable)
	m.SetTranslationBase(0x0)
	m.SetDACR(0x3) // domain 0 = manager, full access

	ea := uint32(0x10345678)
	fldAddr := uint64((ea >> 20) * 4)
	section := uint32(0x10000000) | (0 << 5) | (0x3 << 10) | 0x2
	if err := mem.WriteU32BE(fldAddr, section); err != nil {
		t.Fatal(err)
	}

	got, err := m.Translate(ea, false, false)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	want := uint32(0x10000000) | (ea & 0xFFFFF)
	if got != want {
		t.Fatalf("got %#x want %#x", got, want)
	}
}

func TestCoarsePageTable(t *testing.T) {
	mem := phys.New()
	mem.AddRange(0x00000000, 0x20000)
	m := New(mem)
	m.SetControl(ctrlMMUEnable)
	m.SetDACR(0x3)

	ea := uint32(0x00401234)
	fldAddr := uint64((ea >> 20) * 4)
	coarseBase := uint32(0x00010000)
	coarse := coarseBase | (0 << 5) | 0x1
	if err := mem.WriteU32BE(fldAddr, coarse); err != nil {
		t.Fatal(err)
	}

	l2Addr := uint64(coarseBase) + uint64((ea>>12)&0xFF)*4
	small := uint32(0x00500000) | (0x3 << 4) | 0x2
	if err := mem.WriteU32BE(l2Addr, small); err != nil {
		t.Fatal(err)
	}

	got, err := m.Translate(ea, false, false)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	want := uint32(0x00500000) | (ea & 0xFFF)
	if got != want {
		t.Fatalf("got %#x want %#x", got, want)
	}
}

func TestDomainFaultIsFatalByDefault(t *testing.T) {
	mem := phys.New()
	mem.AddRange(0x00000000, 0x10000)
	m := New(mem)
	m.SetControl(ctrlMMUEnable)
	m.SetDACR(0x0) // domain 0 = no access

	ea := uint32(0x10000000)
	section := uint32(0x10000000) | (0 << 5) | (0x3 << 10) | 0x2
	mem.WriteU32BE(uint64((ea>>20)*4), section)

	_, err := m.Translate(ea, false, false)
	if err == nil {
		t.Fatal("expected domain fault")
	}
	type faulter interface{ Fatal() bool }
	f, ok := err.(faulter)
	if !ok {
		t.Fatalf("error does not implement Fatal(): %T", err)
	}
	if !f.Fatal() {
		t.Fatal("expected fatal by default")
	}
}

func TestDomainFaultRecoverableWhenConfigured(t *testing.T) {
	mem := phys.New()
	mem.AddRange(0x00000000, 0x10000)
	m := New(mem)
	m.SetControl(ctrlMMUEnable)
	m.SetDACR(0x0)
	m.SetAbortRecoverable(true)

	ea := uint32(0x10000000)
	section := uint32(0x10000000) | (0 << 5) | (0x3 << 10) | 0x2
	mem.WriteU32BE(uint64((ea>>20)*4), section)

	_, err := m.Translate(ea, false, false)
	if err == nil {
		t.Fatal("expected domain fault")
	}
	type faulter interface{ Fatal() bool }
	f := err.(faulter)
	if f.Fatal() {
		t.Fatal("expected recoverable, not fatal")
	}
}
