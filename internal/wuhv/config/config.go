// Package config defines the host-side configuration for a wuhv instance:
// the backing image files the console boots from, loaded from an optional
// YAML file and overridable by CLI flags.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the set of backing files and fixed blobs a wuhv instance
// boots from. Every string field is a host path, including those of the
// fuse/serial-EEPROM images, which are small enough to read once at
// startup and keep resident; the bool fields are runtime switches.
type Config struct {
	// ELF is the firmware binary the SEC core starts execution from.
	ELF string `yaml:"elf"`

	// NANDData / NANDSpare are the "native" NAND bank images; NANDCompatData
	// / NANDCompatSpare are the second pair the NAND controller's
	// compatibility-mode bit selects.
	NANDData        string `yaml:"nand_data"`
	NANDSpare       string `yaml:"nand_spare"`
	NANDCompatData  string `yaml:"nand_compat_data"`
	NANDCompatSpare string `yaml:"nand_compat_spare"`

	// SDImage backs SDIO1 (the MLC card), the only SD slot wired to a real
	// image by default.
	SDImage string `yaml:"sd_image"`

	// OTPImage is a 1 KiB file: 8 banks of 32 big-endian words.
	OTPImage string `yaml:"otp_image"`

	// SEEPROMImage is a 512-byte file: 256 big-endian half-words.
	SEEPROMImage string `yaml:"seeprom_image"`

	// AESKeyFile holds the hex-encoded AES-128 key used to decrypt the APP
	// cores' boot payload.
	AESKeyFile string `yaml:"aes_key_file"`

	// Break constructs the machine but hands it to an external debug shell
	// instead of free-running the scheduler ("-break").
	Break bool `yaml:"break"`
	// AbortRecoverable makes SEC data aborts guest-visible exceptions
	// instead of fatal emulator errors ("-abort").
	AbortRecoverable bool `yaml:"abort"`
	// NoPrint silences chatty unknown-offset device logging ("-noprint").
	NoPrint bool `yaml:"noprint"`
	// LogSys enables the IPC/syscall snoop trace ("-logsys").
	LogSys bool `yaml:"logsys"`
	// LogConsole enables the firmware-console logging hooks
	// ("-logconsole"); disabled by default since the console has no real
	// UART device to model.
	LogConsole bool `yaml:"logconsole"`
}

// Load reads and unmarshals a YAML config file. A missing path is not an
// error: callers treat a zero Config as "use CLI flags and defaults only".
func Load(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &c, nil
}

// ApplyFlagOverrides merges CLI-flag-sourced values into c, honouring
// c's file-sourced values only where the CLI flag was not explicitly
// passed: a flag.Value tracks whether Set was called, and callers only
// overwrite a config field when that's true.
func (c *Config) ApplyFlagOverrides(elf string, elfSet bool, brk, brkSet, abort, abortSet, noprint, noprintSet, logsys, logsysSet, logconsole, logconsoleSet bool) {
	if elfSet {
		c.ELF = elf
	}
	if brkSet {
		c.Break = brk
	}
	if abortSet {
		c.AbortRecoverable = abort
	}
	if noprintSet {
		c.NoPrint = noprint
	}
	if logsysSet {
		c.LogSys = logsys
	}
	if logconsoleSet {
		c.LogConsole = logconsole
	}
}
