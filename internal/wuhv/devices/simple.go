package devices

// AHMN is the AHB memory controller register bank (address-hole/memory
// controller configuration), modelled as a plain register file: nothing
// ever consumes these values, firmware just expects them to read back.
type AHMN struct{ *RegBank }

// NewAHMN creates an AHMN register bank.
func NewAHMN() *AHMN { return &AHMN{NewRegBank("ahmn")} }

// MEM is the MEM0/MEM1 DRAM controller configuration register bank.
type MEM struct{ *RegBank }

// NewMEM creates a MEM register bank.
func NewMEM() *MEM { return &MEM{NewRegBank("mem")} }

// DI2SATA is the disc-drive-to-SATA bridge register bank. A stub on real
// hardware too: the Wii U has no optical drive and the registers exist for
// firmware compatibility.
type DI2SATA struct{ *RegBank }

// NewDI2SATA creates a DI2SATA register bank.
func NewDI2SATA() *DI2SATA { return &DI2SATA{NewRegBank("di2sata")} }

// PAD is the gamepad/controller-pairing interface. No pairing protocol is
// modelled; the register bank exists so firmware probes land somewhere
// quiet.
type PAD struct{ *RegBank }

// NewPAD creates a PAD register bank.
func NewPAD() *PAD { return &PAD{NewRegBank("pad")} }
