// Package appmmu implements the APP-family (PowerPC-class) virtual memory
// unit: BAT block translation consulted ahead of a hashed page table, with
// a small TLB over the page-table path.
package appmmu

import (
	"github.com/tinyrange/wuhv/internal/wuhv/phys"
	"github.com/tinyrange/wuhv/internal/wuhv/wuerr"
)

// rpnSize is the PTE real-page-number field width this platform's MMU
// actually uses. 15 does not follow from any documented encoding; it is an
// observed hardware constant, kept verbatim rather than derived. One
// consequence: a 15-bit RPN over 4 KiB pages addresses only the bottom
// 128 MiB of physical space, so page-table mappings above that line are
// unreachable and must go through a BAT instead.
const rpnSize = 15

// bat is one BAT pair (instruction or data), holding the raw upper/lower
// register values exactly as the guest wrote them via the SPR path.
type bat struct {
	upper uint32
	lower uint32
}

const (
	batuBEPIShift = 17
	batuBEPIMask  = 0x7FFF
	batuBLShift   = 2
	batuBLMask    = 0x7FF
	batuVs        = 1 << 1
	batuVp        = 1 << 0

	batlBRPNShift = 17
	batlPPMask    = 0x3
)

// match reports whether this BAT covers ea for the given privilege level,
// and if so returns phys == BAT.phys_base | (EA & BAT.offset_mask).
func (b bat) match(ea uint32, privileged bool) (phys uint32, pp uint32, ok bool) {
	if privileged && b.upper&batuVs == 0 {
		return 0, 0, false
	}
	if !privileged && b.upper&batuVp == 0 {
		return 0, 0, false
	}

	bepi := (b.upper >> batuBEPIShift) & batuBEPIMask
	bl := (b.upper >> batuBLShift) & batuBLMask
	brpn := (b.lower >> batlBRPNShift) & batuBEPIMask

	offsetMask := (bl << 17) | 0x1FFFF
	eaHigh := ea &^ offsetMask
	bepiHigh := (bepi << 17) &^ offsetMask
	if eaHigh != bepiHigh {
		return 0, 0, false
	}

	physBase := (brpn << 17) &^ offsetMask
	phys = physBase | (ea & offsetMask)
	pp = b.lower & batlPPMask
	return phys, pp, true
}

type tlbKey struct {
	page  uint32
	instr bool
}

type tlbEntry struct {
	physPage uint32
	pp       uint32
}

// MMU is one APP core's virtual-memory unit: 8+8 BATs, 16 segment
// registers, SDR1, and a small TLB keyed by virtual page number.
type MMU struct {
	ibat [8]bat
	dbat [8]bat
	sr   [16]uint32
	sdr1 uint32

	dataTranslate  bool
	instrTranslate bool
	privileged     bool

	mem *phys.Memory
	tlb map[tlbKey]tlbEntry
}

// New creates a zero-initialised APP MMU over the given physical memory.
func New(mem *phys.Memory) *MMU {
	return &MMU{mem: mem, tlb: map[tlbKey]tlbEntry{}}
}

// SetTranslationEnabled sets the per-class (instruction/data) enable flags,
// typically driven from the core's MSR IR/DR bits by the system glue layer.
func (m *MMU) SetTranslationEnabled(instr, data bool) {
	m.instrTranslate = instr
	m.dataTranslate = data
}

// SetPrivileged sets the supervisor/user flag used by BAT Vs/Vp and the
// segment Ks/Kp protection check.
func (m *MMU) SetPrivileged(p bool) { m.privileged = p }

// GetIBATU / GetIBATL / SetIBATU / SetIBATL access instruction BAT pair n
// (0-7). Any Set invalidates the TLB so the next translation sees the new
// mapping.
func (m *MMU) GetIBATU(n int) uint32 { return m.ibat[n].upper }
func (m *MMU) GetIBATL(n int) uint32 { return m.ibat[n].lower }
func (m *MMU) SetIBATU(n int, v uint32) {
	m.ibat[n].upper = v
	m.invalidateTLB()
}
func (m *MMU) SetIBATL(n int, v uint32) {
	m.ibat[n].lower = v
	m.invalidateTLB()
}

// GetDBATU / GetDBATL / SetDBATU / SetDBATL are the data-BAT equivalents.
func (m *MMU) GetDBATU(n int) uint32 { return m.dbat[n].upper }
func (m *MMU) GetDBATL(n int) uint32 { return m.dbat[n].lower }
func (m *MMU) SetDBATU(n int, v uint32) {
	m.dbat[n].upper = v
	m.invalidateTLB()
}
func (m *MMU) SetDBATL(n int, v uint32) {
	m.dbat[n].lower = v
	m.invalidateTLB()
}

// GetSR / SetSR access segment register n (0-15).
func (m *MMU) GetSR(n int) uint32 { return m.sr[n] }
func (m *MMU) SetSR(n int, v uint32) {
	m.sr[n] = v
	m.invalidateTLB()
}

// SetSDR1 sets the hashed-page-table base/mask register.
func (m *MMU) SetSDR1(v uint32) {
	m.sdr1 = v
	m.invalidateTLB()
}

// InvalidateTLB flushes the TLB, matching an explicit guest TLB-invalidate
// instruction.
func (m *MMU) InvalidateTLB() { m.invalidateTLB() }

func (m *MMU) invalidateTLB() {
	m.tlb = map[tlbKey]tlbEntry{}
}

// Translate resolves an effective address to a physical one for the given
// access class (write, exec): BATs first, then the TLB, then a full page
// table walk.
func (m *MMU) Translate(ea uint32, write, exec bool) (uint32, error) {
	enabled := m.dataTranslate
	if exec {
		enabled = m.instrTranslate
	}
	if !enabled {
		return ea, nil
	}

	bats := m.dbat[:]
	if exec {
		bats = m.ibat[:]
	}
	for _, b := range bats {
		if phys, pp, ok := b.match(ea, m.privileged); ok {
			if err := checkBATProtection(pp, write); err != nil {
				return 0, wuerr.New(wuerr.KindProtectionFault, uint64(ea), 0, err.Error())
			}
			return phys, nil
		}
	}

	key := tlbKey{page: ea >> 12, instr: exec}
	if e, ok := m.tlb[key]; ok {
		if err := checkPageProtection(e.pp, m.segmentKey(ea), write); err != nil {
			return 0, wuerr.New(wuerr.KindProtectionFault, uint64(ea), 0, err.Error())
		}
		return e.physPage | (ea & 0xFFF), nil
	}

	physPage, pp, err := m.walkPageTable(ea, exec)
	if err != nil {
		return 0, err
	}
	m.tlb[key] = tlbEntry{physPage: physPage, pp: pp}

	if err := checkPageProtection(pp, m.segmentKey(ea), write); err != nil {
		return 0, wuerr.New(wuerr.KindProtectionFault, uint64(ea), 0, err.Error())
	}
	return physPage | (ea & 0xFFF), nil
}

func (m *MMU) segmentKey(ea uint32) uint32 {
	sr := m.sr[ea>>28]
	if m.privileged {
		return (sr >> 30) & 1 // Ks
	}
	return (sr >> 29) & 1 // Kp
}

const hashMask = 0x7FFFF // hash folds VSID's low 19 bits against the page index

func (m *MMU) walkPageTable(ea uint32, exec bool) (physPage uint32, pp uint32, err error) {
	sr := m.sr[ea>>28]
	if sr>>31&1 != 0 {
		return 0, 0, wuerr.New(wuerr.KindTranslationFault, uint64(ea), 0, "direct-store segment")
	}
	noExecute := (sr >> 28) & 1
	if exec && noExecute != 0 {
		return 0, 0, wuerr.New(wuerr.KindProtectionFault, uint64(ea), 0, "fetch from no-execute segment")
	}
	vsid := sr & 0xFFFFFF
	pageIndex := (ea >> 12) & 0xFFFF
	api := (pageIndex >> 10) & 0x3F

	primary := (vsid ^ pageIndex) & hashMask
	if e, ok := m.scanPTEG(primary, vsid, api, false); ok {
		return pteRPN(e) << 12, e & 0x3, nil
	}
	secondary := (^primary) & hashMask
	if e, ok := m.scanPTEG(secondary, vsid, api, true); ok {
		return pteRPN(e) << 12, e & 0x3, nil
	}

	return 0, 0, wuerr.New(wuerr.KindTranslationFault, uint64(ea), 0, "no matching PTE")
}

// scanPTEG reads the 8-PTE bucket selected by hash and returns the lower
// PTE word of the first matching entry. The return convention packs the RPN
// into the high bits and PP into the low 2 bits, matching how callers use
// it (see walkPageTable): the PP field occupies word1's low 2 bits exactly
// as stored, which is simplest to just hand back unmodified.
func (m *MMU) scanPTEG(hash, vsid, api uint32, secondary bool) (uint32, bool) {
	htaborg := m.sdr1 & 0xFFFF0000
	htabmask := m.sdr1 & 0x1FF
	sel := ((hash>>10)&htabmask)<<10 | (hash & 0x3FF)
	ptegAddr := uint64(htaborg) | uint64(sel)<<6

	for i := 0; i < 8; i++ {
		word0, err := m.mem.ReadU32BE(ptegAddr + uint64(i)*8)
		if err != nil {
			return 0, false
		}
		valid := (word0 >> 31) & 1
		if valid == 0 {
			continue
		}
		h := (word0 >> 6) & 1
		if secondary && h == 0 {
			continue
		}
		if !secondary && h != 0 {
			continue
		}
		entryVSID := (word0 >> 7) & 0xFFFFFF
		entryAPI := word0 & 0x3F
		if entryVSID != vsid || entryAPI != api {
			continue
		}
		word1, err := m.mem.ReadU32BE(ptegAddr + uint64(i)*8 + 4)
		if err != nil {
			return 0, false
		}
		return word1, true
	}
	return 0, false
}

// pteRPN extracts the real-page-number field from a PTE's lower word, using
// the top rpnSize bits.
func pteRPN(word1 uint32) uint32 {
	return word1 >> (32 - rpnSize)
}

// checkBATProtection implements the BAT PP encoding: 00 no access, 10
// read/write, 01 and 11 both read-only.
func checkBATProtection(pp uint32, write bool) error {
	switch pp {
	case 0:
		return errNoAccess
	case 2:
		return nil
	default: // 1, 3
		if write {
			return errReadOnly
		}
		return nil
	}
}

// checkPageProtection implements the standard PowerPC key/PP protection
// table: key = Ks if supervisor else Kp.
func checkPageProtection(pp, key uint32, write bool) error {
	if key == 0 {
		if pp == 3 && write {
			return errReadOnly
		}
		return nil
	}
	switch pp {
	case 0:
		return errNoAccess
	case 1, 3:
		if write {
			return errReadOnly
		}
		return nil
	default: // 2
		return nil
	}
}
