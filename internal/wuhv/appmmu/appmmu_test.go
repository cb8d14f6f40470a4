package appmmu

import (
	"testing"

	"github.com/tinyrange/wuhv/internal/wuhv/phys"
)

func newTestMMU() (*MMU, *phys.Memory) {
	mem := phys.New()
	mem.AddRange(0x00000000, 0x02000000)
	return New(mem), mem
}

// TestBATPrecedence: a matching BAT yields
// BAT.phys_base | (EA & BAT.offset_mask) and the page table is never
// consulted.
func TestBATPrecedence(t *testing.T) {
	m, _ := newTestMMU()
	m.SetTranslationEnabled(true, true)
	m.SetPrivileged(false)

	const bepi = 0x800  // EA >> 17
	const brpn = 0x040  // phys >> 17
	upper := uint32(bepi<<batuBEPIShift) | batuVp
	lower := uint32(brpn<<batlBRPNShift) | 0x2 // PP=2 (read/write)
	m.SetDBATU(0, upper)
	m.SetDBATL(0, lower)

	ea := uint32(0x10000123)
	got, err := m.Translate(ea, false, false)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	want := uint32(brpn<<17) | (ea & 0x1FFFF)
	if got != want {
		t.Fatalf("got %#x want %#x", got, want)
	}
}

// TestPageTableWalk: a page mapped by exactly one PTE translates to
// PTE.phys_page | (EA & 0xFFF).
func TestPageTableWalk(t *testing.T) {
	m, mem := newTestMMU()
	m.SetTranslationEnabled(true, true)
	mem.AddRange(0x00800000, 0x1000)

	const vsid = 0x000001
	const segIdx = 2
	m.SetSR(segIdx, vsid) // T=0, Ks=0, Kp=0, N=0

	m.SetSDR1(0x00800000) // htaborg=0x00800000, htabmask=0

	ea := uint32(segIdx)<<28 | 0x00001000 // pageIndex=0x0001, api=0
	pageIndex := (ea >> 12) & 0xFFFF
	hash := (uint32(vsid) ^ pageIndex) & hashMask
	sel := hash & 0x3FF
	ptegAddr := uint64(0x00800000) | uint64(sel)<<6

	word0 := uint32(0x80000000) | (uint32(vsid) << 7) // valid, vsid, H=0, api=0
	const rpn = 0x1000
	word1 := uint32(rpn<<17) | 0x2 // PP=2

	if err := mem.WriteU32BE(ptegAddr, word0); err != nil {
		t.Fatal(err)
	}
	if err := mem.WriteU32BE(ptegAddr+4, word1); err != nil {
		t.Fatal(err)
	}

	got, err := m.Translate(ea, false, false)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	want := uint32(rpn<<12) | (ea & 0xFFF)
	if got != want {
		t.Fatalf("got %#x want %#x", got, want)
	}
}

func TestUnmappedPageFaults(t *testing.T) {
	m, _ := newTestMMU()
	m.SetTranslationEnabled(true, true)
	m.SetSDR1(0x00800000)

	if _, err := m.Translate(0x30001000, false, false); err == nil {
		t.Fatal("expected translation fault for unmapped page")
	}
}

// TestTLBCoherence: after any BAT/SR/SDR1 write, the next translation must
// behave as if the TLB were empty.
func TestTLBCoherence(t *testing.T) {
	m, mem := newTestMMU()
	m.SetTranslationEnabled(true, true)
	mem.AddRange(0x00800000, 0x1000)
	mem.AddRange(0x00900000, 0x1000)

	const vsid = 1
	const segIdx = 2
	m.SetSR(segIdx, vsid)
	m.SetSDR1(0x00800000)

	ea := uint32(segIdx)<<28 | 0x00001000
	pageIndex := (ea >> 12) & 0xFFFF
	hash := (uint32(vsid) ^ pageIndex) & hashMask
	sel := hash & 0x3FF
	pteg1 := uint64(0x00800000) | uint64(sel)<<6
	pteg2 := uint64(0x00900000) | uint64(sel)<<6

	word0 := uint32(0x80000000) | (uint32(vsid) << 7)
	mem.WriteU32BE(pteg1, word0)
	mem.WriteU32BE(pteg1+4, uint32(0x1000<<17)|0x2)
	mem.WriteU32BE(pteg2, word0)
	mem.WriteU32BE(pteg2+4, uint32(0x2000<<17)|0x2)

	got1, err := m.Translate(ea, false, false)
	if err != nil {
		t.Fatalf("translate 1: %v", err)
	}
	if got1 != uint32(0x1000<<12)|(ea&0xFFF) {
		t.Fatalf("first translate got %#x", got1)
	}

	// Point SDR1 at the second table; without TLB invalidation this would
	// wrongly keep returning the cached first-table mapping.
	m.SetSDR1(0x00900000)
	got2, err := m.Translate(ea, false, false)
	if err != nil {
		t.Fatalf("translate 2: %v", err)
	}
	if got2 != uint32(0x2000<<12)|(ea&0xFFF) {
		t.Fatalf("second translate got %#x, want page table reloaded", got2)
	}
}
