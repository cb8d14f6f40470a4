package debughook

type fakeInterp struct {
	breakCb   func(addr uint64)
	watchCb   func(addr uint64, isWrite bool)
	breaks    map[uint64]bool
	watchesR  map[uint64]bool
	watchesW  map[uint64]bool
}

func newFakeInterp() *fakeInterp {
	return &fakeInterp{breaks: map[uint64]bool{}, watchesR: map[uint64]bool{}, watchesW: map[uint64]bool{}}
}

func (f *fakeInterp) Step(n int) (int, error) { return n, nil }
func (f *fakeInterp) OnBreakpoint(cb func(addr uint64)) { f.breakCb = cb }
func (f *fakeInterp) OnWatchpoint(write bool, cb func(addr uint64, isWrite bool)) {
	f.watchCb = cb
}
func (f *fakeInterp) OnFetchError(cb func(addr uint64))              {}
func (f *fakeInterp) OnDataError(cb func(addr uint64, write bool))   {}
func (f *fakeInterp) OnUndefinedInstruction(cb func(addr uint64))    {}
func (f *fakeInterp) OnSoftwareInterrupt(cb func(addr uint64))       {}
func (f *fakeInterp) AddBreakpoint(addr uint64)                    { f.breaks[addr] = true }
func (f *fakeInterp) RemoveBreakpoint(addr uint64)                 { delete(f.breaks, addr) }
func (f *fakeInterp) AddWatchpoint(write bool, addr uint64) {
	if write {
		f.watchesW[addr] = true
	} else {
		f.watchesR[addr] = true
	}
}
func (f *fakeInterp) RemoveWatchpoint(write bool, addr uint64) {
	if write {
		delete(f.watchesW, addr)
	} else {
		delete(f.watchesR, addr)
	}
}
func (f *fakeInterp) SetAlarm(interval int, cb func()) {}
