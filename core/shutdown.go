package core

import "sync/atomic"

// Shutdown state. Fatal conditions (a rescheduled timer far in the past,
// a hard fault handler) call TryShutdown, which latches the shutdown flag,
// emits a best-effort PANIC line, runs every registered stop hook, and
// dumps the timing ring for post-mortem analysis. There is no recovery
// path on target hardware short of a reset; ResetShutdown exists for the
// native test build only.
var (
	isShutdown     uint32
	shutdownReason string
	shutdownHooks  []func()
)

// RegisterShutdownHook adds a function run (on the main loop) when the
// firmware shuts down. Hooks must not block; they are for forcing outputs
// to a safe state (steppers disabled, heaters off).
func RegisterShutdownHook(fn func()) {
	shutdownHooks = append(shutdownHooks, fn)
}

// TryShutdown latches the shutdown state with a reason message. Only the
// first caller has any effect.
func TryShutdown(reason string) {
	if !atomic.CompareAndSwapUint32(&isShutdown, 0, 1) {
		return
	}
	shutdownReason = reason

	// Best-effort PANIC line straight to the debug sink, bypassing the
	// enable flag: a shutdown must be visible even with logging off.
	if debugPrintln != nil {
		debugPrintln("PANIC: " + reason)
	}

	for _, fn := range shutdownHooks {
		if fn != nil {
			fn()
		}
	}

	DumpTimingRing()
}

// IsShutdown reports whether the firmware has latched a shutdown.
func IsShutdown() bool {
	return atomic.LoadUint32(&isShutdown) != 0
}

// ShutdownReason returns the first shutdown's reason message, or "".
func ShutdownReason() string {
	return shutdownReason
}

// ResetShutdown clears the latched state. Test use only; target builds
// recover from shutdown by reset.
func ResetShutdown() {
	atomic.StoreUint32(&isShutdown, 0)
	shutdownReason = ""
}
