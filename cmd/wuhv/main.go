// Command wuhv boots a firmware image against the emulated SEC/APP
// machine. It wires a config file and CLI flags into
// internal/wuhv/system.New, starts the scheduler, and on a fatal error
// prints the per-core register state before the process exits non-zero.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tinyrange/wuhv/internal/wuhv/config"
	"github.com/tinyrange/wuhv/internal/wuhv/system"
	"github.com/tinyrange/wuhv/internal/wuhv/wuerr"
)

type boolFlag struct {
	v   bool
	set bool
}

func (f *boolFlag) String() string {
	if f.v {
		return "true"
	}
	return "false"
}

func (f *boolFlag) Set(s string) error {
	v, err := parseBool(s)
	if err != nil {
		return err
	}
	f.v = v
	f.set = true
	return nil
}

func (f *boolFlag) IsBoolFlag() bool { return true }

func parseBool(s string) (bool, error) {
	switch s {
	case "1", "t", "T", "true", "TRUE", "True":
		return true, nil
	case "0", "f", "F", "false", "FALSE", "False":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value %q", s)
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "wuhv: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to a YAML config file (see internal/wuhv/config)")
	elf := flag.String("elf", "", "Firmware ELF the SEC core starts execution from")

	var brk, abort, noprint, logsys, logconsole boolFlag
	flag.Var(&brk, "break", "Construct the machine but hand off to an external debug shell instead of running it")
	flag.Var(&abort, "abort", "Make SEC data aborts recoverable guest exceptions instead of fatal")
	flag.Var(&noprint, "noprint", "Silence chatty unknown-offset device logging")
	flag.Var(&logsys, "logsys", "Enable the IPC/syscall snoop trace")
	flag.Var(&logconsole, "logconsole", "Enable firmware console logging")

	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Boot a firmware image against the emulated machine.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	elfSet := isFlagSet("elf")
	cfg.ApplyFlagOverrides(*elf, elfSet, brk.v, brk.set, abort.v, abort.set, noprint.v, noprint.set, logsys.v, logsys.set, logconsole.v, logconsole.set)

	if cfg.ELF == "" {
		flag.Usage()
		return fmt.Errorf("-elf (or config's elf:) is required")
	}

	sys, err := system.New(cfg, log)
	if err != nil {
		if errors.Is(err, system.ErrNoBackend) {
			return fmt.Errorf("%w (this build was not linked against a cpu.Backend implementation)", err)
		}
		return err
	}
	if err := sys.LoadELF(cfg.ELF); err != nil {
		return err
	}

	if cfg.Break {
		// The interactive debug shell itself is an external collaborator:
		// -break hands back a fully constructed, not-yet-running *System
		// for that shell to drive, rather than free-running the scheduler.
		log.Info("machine constructed, entering debug shell handoff", "elf", cfg.ELF)
		return nil
	}

	runErr := sys.Run()
	if runErr == nil {
		return nil
	}

	fmt.Fprintln(os.Stderr, sys.Traceback())

	var wuErr *wuerr.Error
	if errors.As(runErr, &wuErr) {
		return fmt.Errorf("fatal: %w", wuErr)
	}
	return runErr
}

func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
