//go:build tinygo

package core

import "runtime/interrupt"

// InterruptState is the saved interrupt mask of the current core
type InterruptState = interrupt.State

// DisableInterrupts masks interrupts on the current core and returns the
// previous state
func DisableInterrupts() InterruptState {
	return interrupt.Disable()
}

// RestoreInterrupts restores the interrupt state
func RestoreInterrupts(state InterruptState) {
	interrupt.Restore(state)
}
