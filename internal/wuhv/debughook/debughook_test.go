package debughook

import "testing"

func TestAddFansOutToMultipleObservers(t *testing.T) {
	fi := newFakeInterp()
	r := New(fi)

	var hits []string
	r.Add(0x1000, func(addr uint64) { hits = append(hits, "a") })
	r.Add(0x1000, func(addr uint64) { hits = append(hits, "b") })

	if !fi.breaks[0x1000] {
		t.Fatal("expected interpreter breakpoint registered")
	}
	fi.breakCb(0x1000)

	if len(hits) != 2 || hits[0] != "a" || hits[1] != "b" {
		t.Fatalf("got %v, want [a b]", hits)
	}
}

func TestRemoveDeregistersOnlyWhenEmpty(t *testing.T) {
	fi := newFakeInterp()
	r := New(fi)

	cbA := func(addr uint64) {}
	cbB := func(addr uint64) {}
	r.Add(0x2000, cbA)
	r.Add(0x2000, cbB)

	r.Remove(0x2000, cbA)
	if !fi.breaks[0x2000] {
		t.Fatal("breakpoint should remain while cbB is still registered")
	}

	r.Remove(0x2000, cbB)
	if fi.breaks[0x2000] {
		t.Fatal("breakpoint should be removed once last observer leaves")
	}
}

func TestWatchpointFlavours(t *testing.T) {
	fi := newFakeInterp()
	r := New(fi)

	var gotWrite bool
	var gotAddr uint64
	r.Watch(true, 0x3000, func(addr uint64, isWrite bool) {
		gotAddr, gotWrite = addr, isWrite
	})

	if !fi.watchesW[0x3000] {
		t.Fatal("expected write watchpoint registered")
	}
	fi.watchCb(0x3000, true)

	if gotAddr != 0x3000 || !gotWrite {
		t.Fatalf("got addr=%#x write=%v", gotAddr, gotWrite)
	}
}
