//go:build !tinygo

package core

// interruptState stands in for the saved interrupt mask on the host
type interruptState uintptr

// Host builds run timers from a single goroutine, no masking needed
func disableInterrupts() interruptState {
	return 0
}

func restoreInterrupts(interruptState) {}
