package core

import (
	"sync/atomic"
	"time"
)

// Clock is a monotonic millisecond clock. It wraps after ~49 days; callers
// compare times with unsigned subtraction.
type Clock interface {
	Millis() uint32
}

// TickRate is the rate of the system tick counter in Hz
const TickRate = 1000

var (
	// now is written by whichever core runs the main loop and read by both
	now      atomic.Uint32
	bootTime uint32
)

// GetTime returns the current system time in milliseconds
func GetTime() uint32 {
	return now.Load()
}

// SetTime sets the system time. Targets call this from the main loop with
// the hardware timer; tests call it directly.
func SetTime(ms uint32) {
	now.Store(ms)
}

// GetUptime returns milliseconds since TimerInit
func GetUptime() uint32 {
	return GetTime() - bootTime
}

// TimerInit records the boot time
func TimerInit() {
	bootTime = GetTime()
}

// Elapsed reports whether at least d milliseconds passed between since and now
func Elapsed(now, since, d uint32) bool {
	return now-since >= d
}

// BusyWait spins for d without yielding. It is usable with interrupts
// masked, where time.Sleep is not.
func BusyWait(d time.Duration) {
	if d <= 0 {
		return
	}
	start := time.Now()
	for time.Since(start) < d {
	}
}

// SystemClock reads the global tick counter
type SystemClock struct{}

func (SystemClock) Millis() uint32 {
	return GetTime()
}

// ManualClock is a Clock advanced explicitly, for tests and simulations
type ManualClock struct {
	ms atomic.Uint32
}

func (c *ManualClock) Millis() uint32 {
	return c.ms.Load()
}

// Advance moves the clock forward by d milliseconds
func (c *ManualClock) Advance(d uint32) {
	c.ms.Add(d)
}

func (c *ManualClock) Set(ms uint32) {
	c.ms.Store(ms)
}
