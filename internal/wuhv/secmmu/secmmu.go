// Package secmmu implements the SEC-family (ARM-class) virtual memory
// unit: a control-register-gated two-level section/coarse-page descriptor
// walk with a TLB.
package secmmu

import (
	"github.com/tinyrange/wuhv/internal/wuhv/phys"
	"github.com/tinyrange/wuhv/internal/wuhv/wuerr"
)

const (
	ctrlMMUEnable = 1 << 0
)

type tlbEntry struct {
	physBase uint32
	// blockMask is the set of EA low bits that belong to the mapping's
	// offset rather than its base address: 0xFFFFF for a 1 MiB section,
	// 0xFFF for a 4 KiB page.
	blockMask uint32
	domain    uint32
	ap        uint32
}

// MMU is one SEC core's virtual-memory unit: translation-table base,
// domain access control, the translation-enable control bit, and a TLB.
type MMU struct {
	translationBase uint32
	dacr            uint32
	ctrl            uint32

	privileged bool
	recoverable bool

	mem *phys.Memory
	tlb map[uint32]tlbEntry
}

// New creates a zero-initialised SEC MMU over the given physical memory.
func New(mem *phys.Memory) *MMU {
	return &MMU{mem: mem, tlb: map[uint32]tlbEntry{}}
}

// SetTranslationBase sets the first-level descriptor table base register
// (TTBR0-equivalent).
func (m *MMU) SetTranslationBase(v uint32) {
	m.translationBase = v
	m.InvalidateTLB()
}

// SetDACR sets the domain access control register.
func (m *MMU) SetDACR(v uint32) {
	m.dacr = v
	m.InvalidateTLB()
}

// SetControl sets the control register; bit 0 gates translation.
func (m *MMU) SetControl(v uint32) {
	m.ctrl = v
	m.InvalidateTLB()
}

// SetPrivileged sets the current privilege level used by the AP check.
func (m *MMU) SetPrivileged(p bool) { m.privileged = p }

// SetAbortRecoverable selects what a translation fault does: by default any
// unexpected fault is fatal (to ease debugging); when set, faults are
// diverted into guest-visible aborts instead.
func (m *MMU) SetAbortRecoverable(v bool) { m.recoverable = v }

// InvalidateTLB flushes the TLB.
func (m *MMU) InvalidateTLB() { m.tlb = map[uint32]tlbEntry{} }

// Translate resolves an effective address. The exec parameter distinguishes
// a prefetch abort from a data abort on fault; SEC does not gate
// instruction vs data fetch separately the way APP does, so it is accepted
// only to let the caller choose the right exception class.
func (m *MMU) Translate(ea uint32, write, exec bool) (uint32, error) {
	if m.ctrl&ctrlMMUEnable == 0 {
		return ea, nil
	}

	if e, ok := m.tlb[ea&^0xFFF]; ok {
		if phys, ok2 := m.tlbHit(e, ea); ok2 {
			if err := m.checkAccess(e.domain, e.ap, write); err != nil {
				return 0, m.fault(ea, exec, err.Error())
			}
			return phys, nil
		}
	}

	fld, err := m.mem.ReadU32BE(uint64(m.translationBase + (ea>>20)*4))
	if err != nil {
		return 0, m.fault(ea, exec, "first-level descriptor fetch failed")
	}

	switch fld & 0x3 {
	case 0x2: // section
		domain := (fld >> 5) & 0xF
		ap := (fld >> 10) & 0x3
		base := fld & 0xFFF00000
		// Cached per 4 KiB lookup page even though the mapping is a 1 MiB
		// section; the lookup key must line up with the page-granular probe
		// in Translate.
		e := tlbEntry{physBase: base, blockMask: 0xFFFFF, domain: domain, ap: ap}
		m.tlb[ea&^0xFFF] = e
		if err := m.checkAccess(domain, ap, write); err != nil {
			return 0, m.fault(ea, exec, err.Error())
		}
		return base | (ea & 0xFFFFF), nil

	case 0x1: // coarse page table
		domain := (fld >> 5) & 0xF
		coarseBase := fld & 0xFFFFFC00
		l2Addr := uint64(coarseBase) + uint64((ea>>12)&0xFF)*4
		sld, err := m.mem.ReadU32BE(l2Addr)
		if err != nil {
			return 0, m.fault(ea, exec, "second-level descriptor fetch failed")
		}
		if sld&0x3 != 0x2 {
			return 0, m.fault(ea, exec, "unsupported or faulting second-level descriptor")
		}
		ap := (sld >> 4) & 0x3
		base := sld & 0xFFFFF000
		e := tlbEntry{physBase: base, blockMask: 0xFFF, domain: domain, ap: ap}
		m.tlb[ea&^0xFFF] = e
		if err := m.checkAccess(domain, ap, write); err != nil {
			return 0, m.fault(ea, exec, err.Error())
		}
		return base | (ea & 0xFFF), nil

	default:
		return 0, m.fault(ea, exec, "first-level descriptor fault")
	}
}

func (m *MMU) tlbHit(e tlbEntry, ea uint32) (uint32, bool) {
	return e.physBase | (ea & e.blockMask), true
}

func (m *MMU) checkAccess(domain, ap uint32, write bool) error {
	mode := (m.dacr >> (domain * 2)) & 0x3
	switch mode {
	case 0:
		return errDomainFault
	case 3:
		return nil
	default: // client: check AP
		switch ap {
		case 0:
			return errPermissionFault
		case 1:
			if !m.privileged {
				return errPermissionFault
			}
			return nil
		case 2:
			if write && !m.privileged {
				return errPermissionFault
			}
			return nil
		default: // 3
			return nil
		}
	}
}

// fault constructs the wuerr.Error for a data or prefetch abort, honouring
// the fatal/recoverable runtime switch.
func (m *MMU) fault(ea uint32, exec bool, msg string) error {
	kind := wuerr.KindTranslationFault
	e := wuerr.New(kind, uint64(ea), 0, msg)
	if exec {
		e.Msg = "prefetch abort: " + msg
	} else {
		e.Msg = "data abort: " + msg
	}
	if m.recoverable {
		e.ForceNonFatal = true
	} else {
		e.ForceFatal = true
	}
	return e
}
