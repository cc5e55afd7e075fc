package planner

import (
	"fmt"

	"gopherline/core"
	"gopherline/standalone"
)

// Trigger-sync reasons used during a homing episode.
const (
	reasonEndstop uint8 = 1
	reasonTimeout uint8 = 2
)

// homingSampleTicks is the endstop poll period during homing (5ms).
const homingSampleTicks = core.TimerFreq / 200

// homeMover drives a stepper at a fixed step interval in one direction,
// independent of the trapq pipeline: homing has no known end position, so
// there is nothing for the iterative solver to walk toward. It is a
// throwaway NextEdge source installed for the duration of one homing
// phase and then handed back to the axis's normal stepgen.Solver.
type homeMover struct {
	intervalTicks uint32
	dir           bool
	next          uint32
	stepsLeft     int64
}

// newHomeMover builds a mover stepping at velocityMMs toward (dirNegative)
// or away from (!dirNegative) the axis origin, bounded by maxDistanceMM as
// a hard safety cap independent of any endstop trigger.
func newHomeMover(dirNegative bool, velocityMMs, stepsPerMM, maxDistanceMM float64) *homeMover {
	freq := velocityMMs * stepsPerMM
	if freq <= 0 {
		freq = 1
	}
	interval := uint32(float64(core.TimerFreq) / freq)
	if interval == 0 {
		interval = 1
	}
	steps := int64(maxDistanceMM * stepsPerMM)
	if steps <= 0 {
		steps = 1
	}
	return &homeMover{intervalTicks: interval, dir: dirNegative, stepsLeft: steps}
}

func (h *homeMover) start(now uint32) {
	h.next = now + h.intervalTicks
}

func (h *homeMover) nextEdge() (uint32, bool, bool) {
	if h.stepsLeft <= 0 {
		return 0, false, false
	}
	h.stepsLeft--
	wake := h.next
	h.next += h.intervalTicks
	return wake, h.dir, true
}

// Home runs the homing episode for the requested axes, or for X, Y and Z
// when none are named. Any pending lookahead moves are flushed first
// since homing bypasses the trapq pipeline entirely.
func (p *Planner) Home(x, y, z bool) error {
	if err := p.Flush(); err != nil {
		return err
	}
	if !x && !y && !z {
		x, y, z = true, true, true
	}

	type axisReq struct {
		idx  int
		name string
		do   bool
	}
	reqs := []axisReq{{axisX, "x", x}, {axisY, "y", y}, {axisZ, "z", z}}

	for _, r := range reqs {
		if !r.do {
			continue
		}
		if err := p.homeAxis(r.idx, r.name); err != nil {
			return err
		}
		p.homed[r.idx] = true
	}
	return nil
}

// homeAxis runs the two-phase FAST/RETRACT homing state machine for one
// axis: bump the endstop at double speed (FAST), and on trigger zero the
// axis before the retract move runs, then back off the configured retract
// distance at the plain homing speed (RETRACT). Zeroing before the
// retract means the resulting logical position equals the retract
// distance, not 0.
func (p *Planner) homeAxis(axisIdx int, name string) error {
	axisCfg, ok := p.cfg.Axes[name]
	if !ok {
		return fmt.Errorf("%w: axis %s not configured", standalone.ErrBadArgument, name)
	}
	es, ok := p.endstops[name]
	if !ok {
		return fmt.Errorf("%w: no endstop configured for axis %s", standalone.ErrBadArgument, name)
	}
	stepper := p.steppers[axisIdx]
	solver := p.solvers[axisIdx]
	if stepper == nil || solver == nil {
		return fmt.Errorf("%w: axis %s has no stepper", standalone.ErrBadArgument, name)
	}
	defer solver.Install()

	travel := axisCfg.MaxPosition - axisCfg.MinPosition
	if travel <= 0 {
		travel = 200
	}

	// FAST: approach the endstop at double speed until it trips, or the
	// homing timeout elapses (-> ERROR). Soft limits are not consulted
	// during homing: the homing mover drives the stepper directly, outside
	// Move's limit check.
	if _, err := p.runToTrigger(stepper, es, axisCfg.HomingVel*2, axisCfg.StepsPerMM, travel); err != nil {
		return err
	}

	// Zero before the retract move.
	stepper.SetPosition(0)
	p.pos[axisIdx] = 0

	// RETRACT: back off a fixed distance away from the endstop at the
	// plain (non-doubled) homing speed.
	p.runFixedDistance(stepper, false, axisCfg.HomingVel, axisCfg.StepsPerMM, p.cfg.HomingRetract)
	stepper.SetPosition(int64(p.cfg.HomingRetract * axisCfg.StepsPerMM))
	p.pos[axisIdx] = p.cfg.HomingRetract

	return nil
}

// runToTrigger steps toward the endstop until it latches or the homing
// timeout elapses, whichever comes first. This call blocks, pumping the
// timer wheel itself; real hardware builds read a free-running counter so
// this terminates in bounded wall-clock time either way.
func (p *Planner) runToTrigger(stepper *core.Stepper, es *core.Endstop, velocityMMs, stepsPerMM, maxDistanceMM float64) (bool, error) {
	mover := newHomeMover(true, velocityMMs, stepsPerMM, maxDistanceMM)

	ts := core.NewTriggerSync()
	done := false
	triggered := false
	ts.AddSignal(func(reason uint8) {
		triggered = reason == reasonEndstop
		done = true
		stepper.Stop()
		core.RecordTiming(core.EvtHomingTriggered, reason, core.GetTime(), 0, 0)
	})

	es.ArmHoming(homingSampleTicks, ts, reasonEndstop)
	deadline := core.GetTime() + uint32(p.cfg.HomingTimeout*float64(core.TimerFreq))
	ts.ArmTimeout(deadline, reasonTimeout)

	stepper.NextEdge = mover.nextEdge
	mover.start(core.GetTime())
	stepper.Kick()

	for !done {
		core.ProcessTimers()
	}
	es.StopHoming()
	stepper.Stop()

	if !triggered {
		return false, standalone.ErrHomingFailed
	}
	return true, nil
}

// runFixedDistance steps a fixed distance with no endstop involvement (the
// post-trigger retract phase).
func (p *Planner) runFixedDistance(stepper *core.Stepper, dirNegative bool, velocityMMs, stepsPerMM, distanceMM float64) {
	mover := newHomeMover(dirNegative, velocityMMs, stepsPerMM, distanceMM)
	stepper.NextEdge = mover.nextEdge
	mover.start(core.GetTime())
	stepper.Kick()
	for stepper.IsActive() {
		core.ProcessTimers()
	}
}
