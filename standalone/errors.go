package standalone

import "errors"

// Error taxonomy for the dispatcher and planner. Compared with
// errors.Is; plain errors.New sentinels, no wrapping-error library.
var (
	ErrBadArgument    = errors.New("bad argument")
	ErrUnknownCommand = errors.New("unknown command")
	ErrOutOfBounds    = errors.New("out of bounds")
	ErrQueueFull      = errors.New("queue full")
	ErrHomingFailed   = errors.New("homing failed")
	ErrSensorInvalid  = errors.New("sensor invalid")
	ErrPoolExhausted  = errors.New("pool exhausted")
)

// ResponseKind maps an error to the dispatcher's ack line.
// Unrecognised errors (a design-time bug, not a modelled failure mode) fall
// back to "execution failed" rather than leaking a Go error string over the
// wire.
func ResponseKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBadArgument):
		return "invalid command"
	case errors.Is(err, ErrUnknownCommand):
		return "unknown command"
	case errors.Is(err, ErrOutOfBounds):
		return "execution failed"
	case errors.Is(err, ErrQueueFull):
		return "execution failed"
	case errors.Is(err, ErrHomingFailed):
		return "execution failed"
	case errors.Is(err, ErrPoolExhausted):
		return "execution failed"
	default:
		return "execution failed"
	}
}
