package system

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tinyrange/wuhv/internal/wuhv/appmmu"
	"github.com/tinyrange/wuhv/internal/wuhv/config"
	"github.com/tinyrange/wuhv/internal/wuhv/cpu"
	"github.com/tinyrange/wuhv/internal/wuhv/debughook"
	"github.com/tinyrange/wuhv/internal/wuhv/devices"
	"github.com/tinyrange/wuhv/internal/wuhv/memhelper"
	"github.com/tinyrange/wuhv/internal/wuhv/phys"
	"github.com/tinyrange/wuhv/internal/wuhv/reservation"
	"github.com/tinyrange/wuhv/internal/wuhv/sched"
	"github.com/tinyrange/wuhv/internal/wuhv/secmmu"
	"github.com/tinyrange/wuhv/internal/wuhv/snoop"
	"github.com/tinyrange/wuhv/internal/wuhv/wuerr"
)

// ErrNoBackend is returned by New when no cpu.Backend has been registered:
// a clear unsupported-build error beats a nil-pointer panic deep inside
// construction.
var ErrNoBackend = fmt.Errorf("system: no cpu backend registered (see cpu.RegisterBackend)")

// System is the fully wired machine: physical memory, the MMIO bus, both
// virtual-memory families, the scheduler, the interrupt mesh and the IPC
// snoop layer.
type System struct {
	cfg *config.Config
	log *slog.Logger

	Mem *phys.Memory
	Bus *devices.Bus

	SecCore   cpu.SecCore
	secInterp cpu.Interpreter
	SecMMU    *secmmu.MMU
	SecRouter *debughook.Router
	secMem    *memhelper.Facade
	secFaults secFaults
	secControl, secDACR uint32

	AppCore   [3]cpu.AppCore
	appInterp [3]cpu.Interpreter
	AppMMU    [3]*appmmu.MMU
	appRouter [3]*debughook.Router
	appMem    [3]*memhelper.Facade

	iabrCB [3]debughook.BreakCallback
	dabrCB [3]debughook.WatchCallback

	Snoop    *snoop.Snoop
	SnoopLog *snoop.Logger

	Sched        *sched.Scheduler
	secSchedCore *sched.Core
	appSchedCore [3]*sched.Core

	aesKey []byte
}

// ReadAtWriteAt is the minimal random-access shape the devices package's
// unexported nandBackend/sdBackend interfaces require; both *os.File and
// memBackend below satisfy it structurally.
type ReadAtWriteAt interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
}

// memBackend is a zero-filled in-memory stand-in for a backing file, used
// when a config path is left blank so the machine still constructs (e.g.
// under test) without a real console image. It grows lazily on WriteAt
// rather than pre-allocating the full nominal device size up front — the
// SD card backend alone is nominally 8 GiB, which would otherwise be
// allocated eagerly for every blank-config instance.
type memBackend struct {
	buf []byte
}

func (m *memBackend) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.buf)) {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	n := copy(p, m.buf[off:])
	for i := n; i < len(p); i++ {
		p[i] = 0
	}
	return len(p), nil
}

func (m *memBackend) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	return copy(m.buf[off:], p), nil
}

func openBackend(path string, size int64) (ReadAtWriteAt, error) {
	if path == "" {
		return &memBackend{}, nil
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, wuerr.Wrap(wuerr.KindBackingFileIO, 0, 0, "open "+path, err)
	}
	return f, nil
}

// New constructs a System from cfg. It requires a cpu.Backend to already be
// registered (see cpu.RegisterBackend); the interpreters are an external
// collaborator this module does not ship.
func New(cfg *config.Config, log *slog.Logger) (*System, error) {
	if log == nil {
		log = slog.Default()
	}
	backend, ok := cpu.CurrentBackend()
	if !ok {
		return nil, ErrNoBackend
	}

	s := &System{cfg: cfg, log: log}

	s.Mem = phys.New()
	s.Mem.AddRange(ramMEM1Base, ramMEM1Length)
	s.Mem.AddRange(ramMEM0Base, ramMEM0Length)
	s.Mem.AddRange(ramIOSUBase, ramIOSULength)
	s.Mem.AddRange(ramRootLoaderBase, ramRootLoaderLen)
	s.Mem.AddRange(ramKernelBase, ramKernelLength)

	slc, err := openBackend(cfg.NANDData, 0x21000000)
	if err != nil {
		return nil, err
	}
	slcSpare, err := openBackend(cfg.NANDSpare, 0x21000000/2048*64)
	if err != nil {
		return nil, err
	}
	slcCmpt, err := openBackend(cfg.NANDCompatData, 0x21000000)
	if err != nil {
		return nil, err
	}
	slcCmptSpare, err := openBackend(cfg.NANDCompatSpare, 0x21000000/2048*64)
	if err != nil {
		return nil, err
	}
	mlc, err := openBackend(cfg.SDImage, 8<<30)
	if err != nil {
		return nil, err
	}

	otp, err := loadOTP(cfg.OTPImage)
	if err != nil {
		return nil, err
	}
	seeprom, err := loadSEEPROM(cfg.SEEPROMImage)
	if err != nil {
		return nil, err
	}
	s.aesKey, err = loadAESKey(cfg.AESKeyFile)
	if err != nil {
		return nil, err
	}

	busCfg := devices.BusConfig{
		OTP:          otp,
		SEEPROM:      seeprom,
		SLC:          slc,
		SLCSpare:     slcSpare,
		SLCCmpt:      slcCmpt,
		SLCCmptSpare: slcCmptSpare,
		MLC:          mlc,
		// The LT_DEBUG debug-build bit stays clear; it is unrelated to
		// this config's own LogConsole/firmware-console-logging flag
		// (handled in sprhandler.go's handleAppLog/handleAppHackLogLevel
		// instead).
		Debug: false,
	}

	s.Sched = sched.New()
	s.Bus = devices.NewBus(s.Mem, busCfg, s.currentPC)
	s.Mem.AddSpecial(mmioBase, mmioLength, s.Bus)

	s.SnoopLog = snoop.NewLogger(log)
	s.SecMMU = secmmu.New(s.Mem)
	s.SecMMU.SetAbortRecoverable(cfg.AbortRecoverable)
	s.SecCore, s.secInterp = backend.NewSecCore(s.Mem, s.SecMMU)
	s.SecRouter = debughook.New(s.secInterp)
	s.secMem = memhelper.New(s.Mem, s.SecMMU)
	s.Snoop = snoop.New(s.SecRouter, s.secMem, s.SecCore, s.SnoopLog)
	if cfg.LogSys {
		s.Snoop.Enable()
	}

	s.secSchedCore = &sched.Core{
		Name:        "SEC",
		Interpreter: s.secInterp,
		Quantum:     secQuantum,
		CheckInterrupts: func() {
			if s.Bus.Latte.IRQARM.CheckInterrupts() {
				s.SecCore.TriggerException(cpu.ExcARMIRQ)
			}
		},
	}
	s.Sched.Add(s.secSchedCore)
	s.Sched.Resume(s.secSchedCore)
	s.secInterp.SetAlarm(secTimerAlarmInterval, func() { s.Bus.Latte.UpdateTimer(400) })
	s.wireSecCore()

	rsv := reservation.New()
	for i := 0; i < 3; i++ {
		i := i
		s.AppMMU[i] = appmmu.New(s.Mem)
		s.AppCore[i], s.appInterp[i] = backend.NewAppCore(i, s.Mem, s.AppMMU[i], rsv)
		s.appRouter[i] = debughook.New(s.appInterp[i])
		s.appMem[i] = memhelper.New(s.Mem, s.AppMMU[i])

		timerInterval := appOtherTimerInterval
		quantum := app0Quantum
		switch i {
		case 1:
			timerInterval = app1TimerAlarmInterval
			quantum = app1Quantum
		case 2:
			quantum = app2Quantum
		}

		s.appSchedCore[i] = &sched.Core{
			Name:        fmt.Sprintf("APP%d", i),
			Interpreter: s.appInterp[i],
			Quantum:     quantum,
			CheckInterrupts: func() {
				if s.Bus.PI[i].CheckInterrupts() {
					s.AppCore[i].TriggerException(cpu.ExcPPCExternalInterrupt)
				}
			},
		}
		s.Sched.Add(s.appSchedCore[i])
		s.appInterp[i].SetAlarm(timerInterval, func() { s.updateAppTimer(i) })
		s.wireAppCore(i)
	}

	s.Sched.AddAlarm(tclVsyncAlarmInterval, s.Bus.TCL.TriggerVsync)

	return s, nil
}

// currentPC reports the program counter of whichever core is presently
// executing, for the bus's unmapped-access debug logging. Returns 0 before
// the scheduler has taken its first turn.
func (s *System) currentPC() uint32 {
	c := s.Sched.Current()
	switch c {
	case s.secSchedCore:
		return s.SecCore.PC()
	case s.appSchedCore[0]:
		return s.AppCore[0].PC()
	case s.appSchedCore[1]:
		return s.AppCore[1].PC()
	case s.appSchedCore[2]:
		return s.AppCore[2].PC()
	default:
		return 0
	}
}

// Run free-runs the scheduler until every core pauses or a fatal error
// occurs. Non-recoverable faults raised deep inside a breakpoint/exception
// callback (see fatalf) surface here as a returned error rather than a
// process crash.
func (s *System) Run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			we, ok := r.(*wuerr.Error)
			if !ok {
				panic(r)
			}
			err = we
		}
	}()
	return s.Sched.Run()
}

// fatalf raises a fatal, non-guest-visible error from within a device or
// MMU callback. Called from a context with no error return of its own
// (breakpoint handlers, alarm callbacks); Run's recover turns it into a
// returned error.
func fatalf(kind wuerr.Kind, addr, pc uint64, format string, args ...any) {
	e := wuerr.New(kind, addr, pc, fmt.Sprintf(format, args...))
	e.ForceFatal = true
	panic(e)
}

// updateAppTimer advances one APP core's 64-bit timebase and software
// decrementer by a fixed tick, raising the decrementer exception on
// underflow.
func (s *System) updateAppTimer(i int) {
	core := s.AppCore[i]
	core.SetTimeBase(core.TimeBase() + 2000)

	const decSPR = 22
	old := core.SPR(decSPR)
	next := old - 2000
	core.SetSPR(decSPR, next)
	if old < 2000 {
		core.TriggerException(cpu.ExcPPCDecrementer)
	}
}
