package debughook

import "reflect"

// fnEqual compares two callbacks by the code pointer they share. This is
// the standard (if slightly informal) way to let Remove/Unwatch find a
// previously registered closure without requiring callers to hand back an
// opaque token; it is sufficient here because callers always re-pass the
// exact same func value they registered with, never a freshly-built
// equivalent closure.
func fnEqual(a, b any) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
