package devices

// OTP is the one-time-programmable fuse bank: 8 banks of 0x20 32-bit
// words, read-only. The backing image is supplied by the host
// (see internal/wuhv/config) rather than hardcoded, since it holds
// per-console key material.
type OTP struct {
	data [256]uint32
}

// NewOTP creates an OTP fuse bank from a flat 256-word big-endian image.
func NewOTP(words [256]uint32) *OTP {
	return &OTP{data: words}
}

// Read returns fuse word `index` (0-31) of bank `bank` (0-7).
func (o *OTP) Read(bank, index uint32) uint32 {
	return o.data[(bank&7)*0x20+(index&0x1F)]
}
