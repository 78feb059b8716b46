package core

// DebugWriter receives one line of debug output
type DebugWriter func(string)

var (
	debugPrintln DebugWriter
	debugQueue   chan string
)

// SetDebugWriter routes debug output to w, usually a spare UART. A nil
// writer turns debug output off.
func SetDebugWriter(w DebugWriter) {
	debugPrintln = w
}

// DebugEnabled reports whether a debug writer is installed
func DebugEnabled() bool {
	return debugPrintln != nil
}

// StartDebugQueue starts the goroutine behind DebugAsync with room for
// depth pending lines
func StartDebugQueue(depth int) {
	if debugQueue != nil {
		return
	}
	debugQueue = make(chan string, depth)
	go func() {
		for line := range debugQueue {
			if w := debugPrintln; w != nil {
				w(line)
			}
		}
	}()
}

// DebugPrintln writes line synchronously
func DebugPrintln(line string) {
	if w := debugPrintln; w != nil {
		w(line)
	}
}

// DebugAsync queues line without blocking. Lines are dropped while the
// queue is full or not started; the byte relay path may only use this one.
func DebugAsync(line string) bool {
	if debugPrintln == nil || debugQueue == nil {
		return false
	}
	select {
	case debugQueue <- line:
		return true
	default:
		return false
	}
}
