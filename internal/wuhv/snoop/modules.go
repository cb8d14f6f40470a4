package snoop

import "fmt"

// moduleRange attributes a trace to the firmware module whose text
// segment covers its address. A fixed ordered list rather than a map; a
// lookup miss degrades to a formatted "unknown" label rather than an
// error, since a trace label is diagnostic, not load-bearing.
type moduleRange struct {
	lo, hi uint32
	name   string
}

var moduleTable = []moduleRange{
	{0x04000000, 0x04020000, "CRYPTO"},
	{0x05000000, 0x05060000, "MCP"},
	{0x08120000, 0x08140000, "KERNEL"},
	{0x10100000, 0x10140000, "USB"},
	{0x10700000, 0x10800000, "FS"},
	{0x11F00000, 0x11FC0000, "PAD"},
	{0x12300000, 0x12440000, "NET"},
	{0xE0000000, 0xE0100000, "ACP"},
	{0xE1000000, 0xE10C0000, "NSEC"},
	{0xE2000000, 0xE2280000, "NIM_BOSS"},
	{0xE3000000, 0xE3180000, "FPD"},
	{0xE4000000, 0xE4040000, "TEST"},
	{0xE5000000, 0xE5040000, "AUXIL"},
	{0xE6000000, 0xE6040000, "BSP"},
}

// moduleName attributes addr to the module owning it, per the fixed table
// above.
func moduleName(addr uint32) string {
	for _, r := range moduleTable {
		if addr >= r.lo && addr < r.hi {
			return r.name
		}
	}
	return fmt.Sprintf("UNKNOWN(%#08x)", addr)
}
