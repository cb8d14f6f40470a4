// Package snoop implements the guest-kernel syscall intercept layer: a
// breakpoint-driven tracer of IOS-style inter-process-communication
// traffic on the SEC core.
//
// The snoop never touches guest state beyond reading it: it decodes the
// syscall number and arguments from the instruction word and calling
// convention at the undefined-instruction trap site, then arranges to be
// woken again at the return address (synchronous calls) or at a later
// receive-message call carrying a matching (queue, message) pair
// (asynchronous calls), at which point it formats and emits a trace line.
package snoop

import (
	"fmt"
	"log/slog"

	"github.com/tinyrange/wuhv/internal/wuhv/debughook"
	"github.com/tinyrange/wuhv/internal/wuhv/memhelper"
)

// IOS syscall numbers, as encoded in the low byte of the kernel's
// undefined-instruction trap opcodes.
const (
	IOSCreateMessageQueue  = 0xC
	IOSDestroyMessageQueue = 0xD
	IOSSendMessage         = 0xE
	IOSJamMessage          = 0xF
	IOSReceiveMessage      = 0x10
	IOSOpen                = 0x33
	IOSClose               = 0x34
	IOSRead                = 0x35
	IOSWrite               = 0x36
	IOSSeek                = 0x37
	IOSIoctl               = 0x38
	IOSIoctlv              = 0x39
	IOSOpenAsync           = 0x3A
	IOSCloseAsync          = 0x3B
	IOSReadAsync           = 0x3C
	IOSWriteAsync          = 0x3D
	IOSSeekAsync           = 0x3E
	IOSIoctlAsync          = 0x3F
	IOSIoctlvAsync         = 0x40
	IOSResume              = 0x43
	IOSResumeAsync         = 0x46
	IOSResourceReply       = 0x49
)

// undefinedOpcodeMask / undefinedOpcodeBase decode the IOS syscall trap
// opcode: the low byte is the syscall number, the rest is a fixed ARM
// undefined-instruction encoding.
const (
	undefinedOpcodeMask = ^uint32(0xFF00)
	undefinedOpcodeBase = 0xE7F000F0
)

// Core is the subset of the SEC register file the snoop layer reads: r0-r3
// for the first four calling-convention arguments, r13 (stack pointer) for
// spilled ones, r14 (link register) for the async-completion trace, r15
// (program counter) for the trap site.
type Core interface {
	Reg(n int) uint32
}

// Logger is the destination set the snoop layer writes formatted trace
// lines to: one stream each for IPC requests, message-queue traffic and
// file operations, mapped onto log/slog loggers tagged component=ipc so
// the host can route them like any other log.
type Logger struct {
	IPC      *slog.Logger
	Messages *slog.Logger
	Files    *slog.Logger
}

// NewLogger builds the three per-stream loggers from a base logger, each
// carrying its own "stream" attribute.
func NewLogger(base *slog.Logger) *Logger {
	if base == nil {
		base = slog.Default()
	}
	return &Logger{
		IPC:      base.With("component", "ipc", "stream", "ipc"),
		Messages: base.With("component", "ipc", "stream", "messages"),
		Files:    base.With("component", "ipc", "stream", "files"),
	}
}

// pendingRequest is one in-flight synchronous IPC request, captured at the
// trap site and resolved when its one-shot return breakpoint fires.
type pendingRequest struct {
	pc     uint64
	thread uint32
	syscall int
	args    []any
}

// pendingAsync is one in-flight asynchronous IPC request, resolved when a
// later receive_message return names the matching (queue, message) pair.
type pendingAsync struct {
	pc, lr  uint64
	syscall int
	args    []any
	queue   uint32
	message uint32
}

// Snoop owns the pending-request queues and the module/device-path lookup
// tables, and drives the breakpoint/watchpoint router to observe SEC
// undefined-instruction traps and their eventual returns.
type Snoop struct {
	router *debughook.Router
	mem    *memhelper.Facade
	core   Core
	log    *Logger

	threadAddr uint32

	ipcNames map[uint32]string
	requests []pendingRequest
	async    []pendingAsync
	addedPCs map[uint64]bool

	enabled bool
}

// ThreadIDAddr is the fixed kernel-data-segment word holding the currently
// scheduled guest thread's identifier; the address is specific to this
// firmware build.
const ThreadIDAddr = 0x8173BA0

// New constructs a syscall snoop wired to router for breakpoint delivery,
// mem for guest-memory argument capture, and core for register reads.
// Tracing is disabled by default (the -logsys flag gates it); call Enable
// to turn it on.
func New(router *debughook.Router, mem *memhelper.Facade, core Core, log *Logger) *Snoop {
	return &Snoop{
		router:     router,
		mem:        mem,
		core:       core,
		log:        log,
		threadAddr: ThreadIDAddr,
		ipcNames:   map[uint32]string{},
		addedPCs:   map[uint64]bool{},
	}
}

// Enable turns on syscall tracing.
func (s *Snoop) Enable() { s.enabled = true }

// HandleTrap is called by the system glue's undefined-instruction exception
// path whenever the SEC core traps on an IOS syscall opcode. pc is the
// instruction following the trap (the return address the calling
// convention expects); the syscall number and arguments are decoded from
// the instruction word at pc-4.
func (s *Snoop) HandleTrap(pc uint32) error {
	if !s.enabled {
		return nil
	}
	instr, err := s.mem.ReadU32BE(pc - 4)
	if err != nil {
		return fmt.Errorf("snoop: read trap opcode at %#x: %w", pc-4, err)
	}
	if instr&undefinedOpcodeMask != undefinedOpcodeBase {
		// Not one of ours; some other undefined-instruction trap.
		return nil
	}
	syscall := int((instr >> 8) & 0xFF)
	return s.logSyscall(uint64(pc), syscall)
}

func (s *Snoop) thread() (uint32, error) {
	return s.mem.ReadU32BE(s.threadAddr)
}

func (s *Snoop) args(n int) ([]uint32, error) {
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		if i <= 3 {
			out[i] = s.core.Reg(i)
			continue
		}
		v, err := s.mem.ReadU32BE(s.core.Reg(13) + uint32((i-4)*4))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *Snoop) addRequest(pc uint64, syscall int, args ...any) error {
	if !s.addedPCs[pc] {
		s.router.Add(pc, s.handleBreakpoint)
		s.addedPCs[pc] = true
	}
	thread, err := s.thread()
	if err != nil {
		return err
	}
	s.requests = append(s.requests, pendingRequest{pc: pc, thread: thread, syscall: syscall, args: args})
	return nil
}

func (s *Snoop) addAsync(pc, lr uint64, syscall int, queue, message uint32, args ...any) {
	s.async = append(s.async, pendingAsync{pc: pc, lr: lr, syscall: syscall, queue: queue, message: message, args: args})
}

// handleBreakpoint is registered as the one-shot return-site callback for
// every synchronous request; it matches the firing breakpoint's address
// and the currently scheduled thread against the pending-request queue.
func (s *Snoop) handleBreakpoint(pc uint64) {
	thread, err := s.thread()
	if err != nil {
		slog.Error("snoop: read thread id", "error", err)
		return
	}
	for i, req := range s.requests {
		if req.pc == pc && req.thread == thread {
			s.handleResult(pc, req)
			s.requests = append(s.requests[:i], s.requests[i+1:]...)
			return
		}
	}
}

// handleResult formats the trace line for a completed synchronous request.
// result is read from r0 at the return site per the SEC calling
// convention.
func (s *Snoop) handleResult(pc uint64, req pendingRequest) {
	module := moduleName(uint32(pc))
	result := s.core.Reg(0)
	lr := s.core.Reg(14)

	switch req.syscall {
	case IOSCreateMessageQueue:
		s.log.Messages.Info(fmt.Sprintf("[%s:%08X] CREATE(%d) -> %08X", module, lr, req.args[0], result))

	case IOSReceiveMessage:
		queue := req.args[0].(uint32)
		message, err := s.mem.ReadU32BE(req.args[1].(uint32))
		if err != nil {
			slog.Error("snoop: read message pointer", "error", err)
			return
		}
		flags := req.args[2]
		s.log.Messages.Info(fmt.Sprintf("[%s:%08X] RECEIVE(%08X, %v) -> (%08X, %08X)", module, lr, queue, flags, result, message))

		for i, a := range s.async {
			if queue == a.queue && message == a.message {
				asyncResult, err := s.mem.ReadU32BE(message + 4)
				if err != nil {
					slog.Error("snoop: read async result", "error", err)
					return
				}
				s.handleAsyncResult(a, asyncResult)
				s.async = append(s.async[:i], s.async[i+1:]...)
				break
			}
		}

	case IOSOpen:
		name, _ := req.args[0].(string)
		mode := req.args[1]
		s.log.IPC.Info(fmt.Sprintf("[%s:%08X] OPEN(%s, %v) -> %08X", module, lr, name, mode, result))
		s.ipcNames[result] = name

	case IOSIoctl:
		dev := req.args[0].(string)
		fd := req.args[1]
		ioctl := req.args[2].(uint32)
		indata := req.args[3].([]byte)
		outdata := req.args[4].([]byte)
		s.log.IPC.Info(fmt.Sprintf("[%s:%08X] IOCTL[%s](%08X, %v) -> %08X", module, lr, dev, fd, ioctl, result))
		s.handleIoctl(dev, ioctl, indata, outdata)

	case IOSIoctlv:
		dev := req.args[0].(string)
		fd := req.args[1]
		ioctlv := req.args[2].(uint32)
		vectors := req.args[3].([][]byte)
		s.log.IPC.Info(fmt.Sprintf("[%s:%08X] IOCTLV[%s](%08X, %v) -> %08X", module, lr, dev, fd, ioctlv, result))
		s.handleIoctlv(dev, ioctlv, vectors, result)

	case IOSResume:
		dev := req.args[0]
		fd := req.args[1]
		s.log.IPC.Info(fmt.Sprintf("[%s:%08X] RESUME[%s](%08X) -> %08X", module, lr, dev, fd, result))
	}
}

// handleAsyncResult formats the trace line for a completed asynchronous
// request, once a receive on the matching queue surfaces its message.
func (s *Snoop) handleAsyncResult(a pendingAsync, result uint32) {
	module := moduleName(uint32(a.pc))
	switch a.syscall {
	case IOSIoctlAsync:
		fd := a.args[0]
		ioctl := a.args[1].(uint32)
		indata := a.args[2].([]byte)
		outdata := a.args[3].([]byte)
		name := s.ipcNames[fd.(uint32)]
		s.log.IPC.Info(fmt.Sprintf("[%s:%08X] IOCTL_ASYNC[%s](%08X, %v) -> %08X", module, a.lr, name, fd, ioctl, result))
		s.handleIoctl(name, ioctl, indata, outdata)

	case IOSIoctlvAsync:
		fd := a.args[0]
		ioctlv := a.args[1].(uint32)
		vectors := a.args[2].([][]byte)
		name := s.ipcNames[fd.(uint32)]
		s.log.IPC.Info(fmt.Sprintf("[%s:%08X] IOCTLV_ASYNC[%s](%08X, %v) -> %08X", module, a.lr, name, fd, ioctlv, result))
		s.handleIoctlv(name, ioctlv, vectors, result)

	case IOSResumeAsync:
		fd := a.args[0].(uint32)
		s.log.IPC.Info(fmt.Sprintf("[%s:%08X] RESUME_ASYNC[%s](%08X) -> %08X", module, a.lr, s.ipcNames[fd], fd, result))
	}
}

// logSyscall is the trap-site decoder: it captures arguments per syscall
// kind and either registers a one-shot return breakpoint (synchronous
// calls) or a pending async-completion record (asynchronous calls).
func (s *Snoop) logSyscall(pc uint64, syscall int) error {
	core := s.core
	lr := uint64(core.Reg(14))
	module := moduleName(uint32(pc))

	switch syscall {
	case IOSCreateMessageQueue:
		return s.addRequest(pc, syscall, core.Reg(1))

	case IOSDestroyMessageQueue:
		s.log.Messages.Info(fmt.Sprintf("[%s:%08X] DESTROY(%08X)", module, lr, core.Reg(0)))

	case IOSSendMessage:
		args, err := s.args(3)
		if err != nil {
			return err
		}
		s.log.Messages.Info(fmt.Sprintf("[%s:%08X] SEND(%08X, %08X, %d)", module, lr, args[0], args[1], args[2]))

	case IOSJamMessage:
		args, err := s.args(3)
		if err != nil {
			return err
		}
		s.log.Messages.Info(fmt.Sprintf("[%s:%08X] JAM(%08X, %08X, %d)", module, lr, args[0], args[1], args[2]))

	case IOSReceiveMessage:
		args, err := s.args(3)
		if err != nil {
			return err
		}
		return s.addRequest(pc, syscall, args[0], args[1], args[2])

	case IOSOpen:
		name, err := s.mem.ReadCStrUTF8(core.Reg(0))
		if err != nil {
			return err
		}
		return s.addRequest(pc, syscall, name, core.Reg(1))

	case IOSClose:
		fd := core.Reg(0)
		s.log.IPC.Info(fmt.Sprintf("[%s:%08X] CLOSE[%s](%08X)", module, lr, s.ipcNames[fd], fd))
		delete(s.ipcNames, fd)

	case IOSIoctl:
		args, err := s.args(6)
		if err != nil {
			return err
		}
		indata, err := s.mem.ReadBytes(args[2], int(args[3]))
		if err != nil {
			return err
		}
		outdata, err := s.mem.ReadBytes(args[4], int(args[5]))
		if err != nil {
			return err
		}
		return s.addRequest(pc, syscall, s.ipcNames[args[0]], args[0], args[1], indata, outdata)

	case IOSIoctlv:
		args, err := s.args(5)
		if err != nil {
			return err
		}
		vectors, err := s.readVectors(args[4], int(args[2]+args[3]))
		if err != nil {
			return err
		}
		return s.addRequest(pc, syscall, s.ipcNames[args[0]], args[0], args[1], vectors)

	case IOSIoctlAsync:
		args, err := s.args(8)
		if err != nil {
			return err
		}
		indata, err := s.mem.ReadBytes(args[2], int(args[3]))
		if err != nil {
			return err
		}
		outdata, err := s.mem.ReadBytes(args[4], int(args[5]))
		if err != nil {
			return err
		}
		s.addAsync(pc, lr, syscall, args[6], args[7], args[0], args[1], indata, outdata)

	case IOSIoctlvAsync:
		args, err := s.args(7)
		if err != nil {
			return err
		}
		vectors, err := s.readVectors(args[4], int(args[2]+args[3]))
		if err != nil {
			return err
		}
		s.addAsync(pc, lr, syscall, args[5], args[6], args[0], args[1], vectors)

	case IOSResume:
		fd := core.Reg(0)
		return s.addRequest(pc, syscall, s.ipcNames[fd], fd)

	case IOSResumeAsync:
		args, err := s.args(5)
		if err != nil {
			return err
		}
		s.addAsync(pc, lr, syscall, args[3], args[4], args[0])
	}
	return nil
}

// readVectors reads an IOS ioctlv scatter-gather vector list of n entries
// starting at offs, each a (pointer, length, unused) triple.
func (s *Snoop) readVectors(offs uint32, n int) ([][]byte, error) {
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		ptr, err := s.mem.ReadU32BE(offs)
		if err != nil {
			return nil, err
		}
		size, err := s.mem.ReadU32BE(offs + 4)
		if err != nil {
			return nil, err
		}
		buf, err := s.mem.ReadBytes(ptr, int(size))
		if err != nil {
			return nil, err
		}
		out = append(out, buf)
		offs += 12
	}
	return out, nil
}
