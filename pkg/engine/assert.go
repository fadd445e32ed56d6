package engine

import "fmt"

// assertf panics with a formatted message if cond is false. Used at
// internal-invariant boundaries only - never for validating external input,
// which returns an error instead (see errors.go).
func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("engine: assertion failed: "+format, args...))
	}
}
