//go:build !tinygo

package core

// InterruptState is a placeholder for interrupt state on regular Go
type InterruptState uintptr

// DisableInterrupts is a no-op on regular Go (for testing)
func DisableInterrupts() InterruptState {
	return 0
}

// RestoreInterrupts is a no-op on regular Go (for testing)
func RestoreInterrupts(state InterruptState) {}
