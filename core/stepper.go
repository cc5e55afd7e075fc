package core

// Stepper motor control implementation.
// Edge emission is pull-based: the iterative solver (standalone/stepgen)
// computes exactly one step edge at a time, and the stepper's timer
// callback asks for the next one right after emitting the previous edge.

import "errors"

// Stepper represents a single stepper motor axis.
type Stepper struct {
	StepPin         uint8
	DirPin          uint8
	InvertStep      bool
	InvertDir       bool
	MinStopInterval uint32 // minimum ticks between edges (hardware limited)

	EnablePin    GPIOPin
	HasEnable    bool
	InvertEnable bool

	Position int64 // current position in steps (signed)

	Backend StepperBackend

	timer     Timer
	curDir    bool
	dirKnown  bool
	running   bool
	enabled   bool
	stepCount uint64

	// NextEdge is supplied by the iterative solver. It returns the next
	// edge's wake time (timer ticks) and direction, or ok=false if the
	// solver has nothing queued right now.
	NextEdge func() (wakeTime uint32, dir bool, ok bool)
}

// NewStepper creates a new stepper instance.
func NewStepper(stepPin, dirPin uint8, invertStep, invertDir bool, minStopInterval uint32) (*Stepper, error) {
	if stepPin == dirPin {
		return nil, errors.New("step and dir pin must differ")
	}
	s := &Stepper{
		StepPin:         stepPin,
		DirPin:          dirPin,
		InvertStep:      invertStep,
		InvertDir:       invertDir,
		MinStopInterval: minStopInterval,
	}
	s.timer.Handler = s.handler
	DebugPrintln("[STEPPER] NewStepper: step=" + itoa(int(stepPin)) + " dir=" + itoa(int(dirPin)))
	return s, nil
}

// ConfigureEnable wires an enable pin, driving it to the disabled level
// immediately. Not every driver board exposes one (some tie enable low
// permanently); callers that never call this simply never toggle one.
func (s *Stepper) ConfigureEnable(pin GPIOPin, invertEnable bool) error {
	if err := MustGPIO().ConfigureOutput(pin); err != nil {
		return err
	}
	s.EnablePin = pin
	s.InvertEnable = invertEnable
	s.HasEnable = true
	s.enabled = false
	return MustGPIO().SetPin(pin, invertEnable)
}

// Enable drives the enable pin to its active level (honouring invert).
func (s *Stepper) Enable() {
	if !s.HasEnable {
		return
	}
	s.enabled = true
	_ = MustGPIO().SetPin(s.EnablePin, !s.InvertEnable)
}

// Disable drives the enable pin to its inactive level and stops motion.
func (s *Stepper) Disable() {
	if s.HasEnable {
		s.enabled = false
		_ = MustGPIO().SetPin(s.EnablePin, s.InvertEnable)
	}
	s.Stop()
}

// IsEnabled reports the driver's last-commanded enable state. Drivers with
// no configured enable pin are always reported enabled (tied active by
// the board).
func (s *Stepper) IsEnabled() bool {
	return !s.HasEnable || s.enabled
}

// InitBackend initializes the hardware backend for this stepper.
func (s *Stepper) InitBackend(backend StepperBackend) error {
	if backend == nil {
		return errors.New("nil stepper backend")
	}
	s.Backend = backend
	DebugPrintln("[STEPPER] backend=" + backend.GetName())
	return backend.Init(s.StepPin, s.DirPin, s.InvertStep, s.InvertDir)
}

// Kick starts (or resumes) edge emission by pulling the first edge from
// NextEdge. It is a no-op if the stepper is already running or no edge is
// available yet.
func (s *Stepper) Kick() {
	if s.running || s.NextEdge == nil {
		return
	}
	wake, dir, ok := s.NextEdge()
	if !ok {
		return
	}
	s.setDir(dir)
	CancelTimer(&s.timer)
	s.timer.WakeTime = wake
	s.running = true
	RecordTiming(EvtTimerSchedule, 0, wake, 0, 0)
	ScheduleTimer(&s.timer)
}

func (s *Stepper) setDir(dir bool) {
	if !s.dirKnown || dir != s.curDir {
		s.Backend.SetDirection(dir)
		s.curDir = dir
		s.dirKnown = true
	}
}

// handler fires a single step edge, advances position, and pulls the next
// edge from the solver.
func (s *Stepper) handler(t *Timer) uint8 {
	s.Backend.Step()
	s.stepCount++
	RecordTiming(EvtTimerFire, 0, t.WakeTime, 0, 0)

	if s.curDir {
		s.Position--
	} else {
		s.Position++
	}

	if s.NextEdge == nil {
		s.running = false
		return SF_DONE
	}

	wake, dir, ok := s.NextEdge()
	if !ok {
		s.running = false
		return SF_DONE
	}

	s.setDir(dir)

	// Enforce the configured minimum inter-edge interval.
	if int32(wake-t.WakeTime) < int32(s.MinStopInterval) {
		wake = t.WakeTime + s.MinStopInterval
	}
	t.WakeTime = wake
	return SF_RESCHEDULE
}

// Stop immediately halts stepping.
func (s *Stepper) Stop() {
	s.running = false
	CancelTimer(&s.timer)
	if s.Backend != nil {
		s.Backend.Stop()
	}
}

// IsActive returns true if the stepper is currently emitting edges.
func (s *Stepper) IsActive() bool {
	return s.running
}

// GetPosition returns the current position in steps.
func (s *Stepper) GetPosition() int64 {
	return s.Position
}

// SetPosition forcibly sets the current position (for homing / G92).
func (s *Stepper) SetPosition(pos int64) {
	s.Position = pos
}

// StepCount returns the lifetime count of step edges emitted, for
// post-mortem diagnostics (DumpTimingRing).
func (s *Stepper) StepCount() uint64 {
	return s.stepCount
}
