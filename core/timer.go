// Package core provides the module-side runtime: a tick clock, a sorted
// timer scheduler, interrupt guards and debug tracing. It avoids fmt so it
// stays small under TinyGo.
package core

import (
	"sync/atomic"
	"time"
)

// TimerFreq is the tick rate of the module clock (1 tick = 1 µs)
const TimerFreq = 1000000

var systemTicks uint32

// GetTime returns the current system time in timer ticks
func GetTime() uint32 {
	return atomic.LoadUint32(&systemTicks)
}

// SetTime sets the current system time (driven by the hardware timer or tests)
func SetTime(ticks uint32) {
	atomic.StoreUint32(&systemTicks, ticks)
}

// TimerFromUS converts microseconds to timer ticks
func TimerFromUS(us uint32) uint32 {
	return uint32(uint64(us) * TimerFreq / 1000000)
}

// TimerToUS converts timer ticks to microseconds
func TimerToUS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / TimerFreq)
}

// TimerFromDuration converts a duration to timer ticks
func TimerFromDuration(d time.Duration) uint32 {
	return TimerFromUS(uint32(d / time.Microsecond))
}

// IsBefore compares two tick values, tolerating counter wrap
func IsBefore(a, b uint32) bool {
	return int32(a-b) < 0
}
