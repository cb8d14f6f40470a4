// Package debughook implements the breakpoint/watchpoint router: it
// multiplexes the interpreter's single event-per-address callback into an
// arbitrary number of independently registered observers.
package debughook

import "github.com/tinyrange/wuhv/internal/wuhv/cpu"

// BreakCallback is invoked when execution reaches a registered address.
type BreakCallback func(addr uint64)

// WatchCallback is invoked when a registered address is read or written
// (per its registered flavour); is_write tells the observer which.
type WatchCallback func(addr uint64, isWrite bool)

// Router owns the address->callback-list maps and lazily (de)registers with
// the underlying interpreter so that the interpreter only ever sees one
// breakpoint/watchpoint per address regardless of how many observers share
// it.
type Router struct {
	interp cpu.Interpreter

	breaks   map[uint64][]BreakCallback
	watchesR map[uint64][]WatchCallback
	watchesW map[uint64][]WatchCallback
}

// New creates a router wired to the given interpreter. It installs itself as
// the interpreter's sole breakpoint/watchpoint event sink.
func New(interp cpu.Interpreter) *Router {
	r := &Router{
		interp:   interp,
		breaks:   map[uint64][]BreakCallback{},
		watchesR: map[uint64][]WatchCallback{},
		watchesW: map[uint64][]WatchCallback{},
	}
	interp.OnBreakpoint(r.handleBreak)
	interp.OnWatchpoint(false, r.handleWatch)
	interp.OnWatchpoint(true, r.handleWatch)
	return r
}

// Add registers cb to fire when execution reaches addr.
func (r *Router) Add(addr uint64, cb BreakCallback) {
	if _, ok := r.breaks[addr]; !ok {
		r.interp.AddBreakpoint(addr)
	}
	r.breaks[addr] = append(r.breaks[addr], cb)
}

// Remove deregisters cb from addr. If no callbacks remain for addr, the
// underlying interpreter breakpoint is removed too.
func (r *Router) Remove(addr uint64, cb BreakCallback) {
	list := r.breaks[addr]
	for i, c := range list {
		if sameBreak(c, cb) {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.breaks, addr)
		r.interp.RemoveBreakpoint(addr)
		return
	}
	r.breaks[addr] = list
}

// Watch registers cb to fire on a read (isWrite=false) or write
// (isWrite=true) of addr.
func (r *Router) Watch(isWrite bool, addr uint64, cb WatchCallback) {
	m := r.watchMap(isWrite)
	if _, ok := m[addr]; !ok {
		r.interp.AddWatchpoint(isWrite, addr)
	}
	m[addr] = append(m[addr], cb)
}

// Unwatch deregisters cb from addr for the given flavour.
func (r *Router) Unwatch(isWrite bool, addr uint64, cb WatchCallback) {
	m := r.watchMap(isWrite)
	list := m[addr]
	for i, c := range list {
		if sameWatch(c, cb) {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(m, addr)
		r.interp.RemoveWatchpoint(isWrite, addr)
		return
	}
	m[addr] = list
}

func (r *Router) watchMap(isWrite bool) map[uint64][]WatchCallback {
	if isWrite {
		return r.watchesW
	}
	return r.watchesR
}

func (r *Router) handleBreak(addr uint64) {
	// Copy before iterating: a callback may add/remove breakpoints,
	// including at its own address (a one-shot return-address trap).
	for _, cb := range append([]BreakCallback(nil), r.breaks[addr]...) {
		cb(addr)
	}
}

func (r *Router) handleWatch(addr uint64, isWrite bool) {
	for _, cb := range append([]WatchCallback(nil), r.watchMap(isWrite)[addr]...) {
		cb(addr, isWrite)
	}
}

// sameBreak and sameWatch compare callbacks by code pointer. Callers that
// need Remove/Unwatch to find their exact registration must keep the
// originally-registered func value and pass it back; two closures built
// from the same literal share a code pointer, so callers registering more
// than one instance per address must hold distinct func values.
func sameBreak(a, b BreakCallback) bool { return fnEqual(a, b) }
func sameWatch(a, b WatchCallback) bool { return fnEqual(a, b) }
