// Package system wires together every package in this module into a
// bootable machine: physical memory, the MMIO bus, both virtual-memory
// families, the scheduler, the interrupt mesh and the IPC snoop layer.
package system

import "github.com/tinyrange/wuhv/internal/wuhv/devices"

// Physical RAM ranges: MEM1, MEM0, the large IOSU heap region, the root
// loader staging area, and the kernel image window at the top of the
// address space.
const (
	ramMEM1Base, ramMEM1Length           = 0x00000000, 0x02000000
	ramMEM0Base, ramMEM0Length           = 0x08000000, 0x002E0000
	ramIOSUBase, ramIOSULength           = 0x10000000, 0x18000000
	ramRootLoaderBase, ramRootLoaderLen  = 0x30000000, 0x02800000
	ramKernelBase, ramKernelLength       = 0xFFF00000, 0x000FF000
)

// MMIO window. The 0xD800000 mirror needs no window of its own: the bus
// masks the mirror bit off every access.
const (
	mmioBase   = devices.BusBase
	mmioLength = devices.BusSize
)

// Boot-payload staging addresses: a size word, the ciphertext it counts,
// and the reset vector the APP cores start from once it is decrypted.
const (
	bootPayloadSizeAddr = 0x080000AC
	bootPayloadDataAddr = 0x08000100
	appResetVector      = 0xFFF00100
)

// Fixed firmware addresses the boot path hooks: the SEC-side log-level
// check and reset trigger, the SEC syslog call site, and the APP-side
// console-output and log-level sites.
const (
	bpSecLogLevelHack = 0x5015E70 // zeroes r0; gates a firmware verbosity check
	bpSecResetPPC     = 0x503409C // triggers the APP-core wakeup sequence
	bpSecSyslog       = 0x5055324 // r1/r2 = addr/len of an ASCII console line
	bpAppHandleLog    = 0xFFF1AB34
	bpAppHackLogLevel = 0xFFF0AEAC
)

// Per-core alarm intervals (retired-instruction counts). APP1 ticks at a
// quarter the rate of its siblings; an observed platform constant, like
// the quanta below.
const (
	secTimerAlarmInterval  = 5000
	app1TimerAlarmInterval = 5000
	appOtherTimerInterval  = 1250
	tclVsyncAlarmInterval  = 50000000
)

// Scheduler quanta.
const (
	secQuantum  = 1000
	app0Quantum = 500
	app1Quantum = 2000
	app2Quantum = 500
)
