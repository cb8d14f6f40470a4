// Package xcrypto defines the contracts for the two crypto primitives this
// module consumes but does not implement: an AES-CBC primitive and a SHA-1
// compressor. A real build links one in via
// RegisterAESCBC/RegisterSHA1Compressor, the same init()-time registration
// convention internal/wuhv/cpu uses for the CPU backend.
package xcrypto

// AESCBC is the block-crypto primitive the boot-chain payload decrypt
// (system.triggerAppReset) and the AES MMIO engine (devices.AES) both drive.
// A real build typically backs this with crypto/aes + crypto/cipher; this
// package only names the shape so neither caller hardcodes a concrete
// implementation.
type AESCBC interface {
	EncryptCBC(key, iv, plaintext []byte) ([]byte, error)
	DecryptCBC(key, iv, ciphertext []byte) ([]byte, error)
}

// SHA1Compressor is the single-block SHA-1 compression function the SHA MMIO
// engine (devices.SHA) folds each streamed 64-byte block through, advancing
// h in place.
type SHA1Compressor interface {
	ProcessBlock(h *[5]uint32, block []byte)
}

var (
	aesBackend AESCBC
	shaBackend SHA1Compressor
)

// RegisterAESCBC installs the process-wide AES-CBC primitive.
func RegisterAESCBC(b AESCBC) { aesBackend = b }

// CurrentAESCBC returns the registered AES-CBC primitive, if any.
func CurrentAESCBC() (AESCBC, bool) { return aesBackend, aesBackend != nil }

// RegisterSHA1Compressor installs the process-wide SHA-1 compressor.
func RegisterSHA1Compressor(b SHA1Compressor) { shaBackend = b }

// CurrentSHA1Compressor returns the registered SHA-1 compressor, if any.
func CurrentSHA1Compressor() (SHA1Compressor, bool) { return shaBackend, shaBackend != nil }
