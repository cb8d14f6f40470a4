package system

import (
	"encoding/hex"
	"os"
	"strings"

	"github.com/tinyrange/wuhv/internal/wuhv/wuerr"
)

// loadOTP reads the 1 KiB, 256-big-endian-word fuse bank image. A blank
// path yields an all-zero bank rather than an error, matching an
// unprogrammed console.
func loadOTP(path string) ([256]uint32, error) {
	var words [256]uint32
	if path == "" {
		return words, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return words, wuerr.Wrap(wuerr.KindBackingFileIO, 0, 0, "read OTP image "+path, err)
	}
	for i := range words {
		off := i * 4
		if off+4 > len(data) {
			break
		}
		words[i] = uint32(data[off])<<24 | uint32(data[off+1])<<16 | uint32(data[off+2])<<8 | uint32(data[off+3])
	}
	return words, nil
}

// loadSEEPROM reads the 512-byte, 256-big-endian-halfword serial EEPROM
// image. A blank path yields an all-zero image.
func loadSEEPROM(path string) ([256]uint16, error) {
	var words [256]uint16
	if path == "" {
		return words, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return words, wuerr.Wrap(wuerr.KindBackingFileIO, 0, 0, "read SEEPROM image "+path, err)
	}
	for i := range words {
		off := i * 2
		if off+2 > len(data) {
			break
		}
		words[i] = uint16(data[off])<<8 | uint16(data[off+1])
	}
	return words, nil
}

// loadAESKey reads the hex-encoded AES-128 key used to decrypt the APP
// cores' boot payload. A blank path is not an error: a console without
// that key simply cannot resume its APP cores, surfaced as a
// KindDeviceConfig error from triggerAppReset instead of failing the
// whole machine at construction time.
func loadAESKey(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wuerr.Wrap(wuerr.KindBackingFileIO, 0, 0, "read AES key file "+path, err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, wuerr.Wrap(wuerr.KindBackingFileIO, 0, 0, "decode AES key file "+path, err)
	}
	return key, nil
}
