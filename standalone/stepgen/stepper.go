// Package stepgen implements the per-axis iterative solver: a function
// from print-time to commanded step index, driven by a trapq.Queue, that
// feeds scheduled edges into a core.Stepper.
//
// The solver walks the trapq's three-phase distance function with
// bisection plus Newton refinement per segment, one edge at a time,
// pulled by core.Stepper.
package stepgen

import (
	"gopherline/core"
	"gopherline/standalone/trapq"
)

const (
	solverTolerance = 1e-9
	solverMaxIter   = 50
)

// Solver drains one axis of a trapq.Queue into step edges.
type Solver struct {
	Axis       int // 0=X, 1=Y, 2=Z, 3=E
	StepsPerMM float64
	Queue      *trapq.Queue
	Stepper    *core.Stepper

	seg      trapq.Handle
	haveSeg  bool
	havePos  bool
	stepPos  float64 // last emitted/starting step index, exact
	doneTime float64 // end time of the last fully consumed segment
}

// NewSolver wires a solver for one axis and installs it as the
// stepper's edge source.
func NewSolver(axis int, stepsPerMM float64, queue *trapq.Queue, stepper *core.Stepper) *Solver {
	s := &Solver{
		Axis:       axis,
		StepsPerMM: stepsPerMM,
		Queue:      queue,
		Stepper:    stepper,
	}
	stepper.NextEdge = s.nextEdge
	return s
}

// Kick wakes the stepper so it pulls edges from this solver. Call
// after committing new segments to Queue.
func (s *Solver) Kick() {
	s.Stepper.Kick()
}

// Install (re)installs this solver as the stepper's edge source. A homing
// episode temporarily steals the stepper's NextEdge hook to drive a plain
// constant-velocity sweep instead of trapq segments; Install hands it back.
func (s *Solver) Install() {
	s.Stepper.NextEdge = s.nextEdge
}

func (s *Solver) projectSteps(seg *trapq.Segment, t float64) float64 {
	return seg.AxisPositionAt(s.Axis, t) * s.StepsPerMM
}

// nextEdge finds the next step edge: within the current segment,
// determine the direction sign, find the next integer step index in
// that direction, solve for the print-time it occurs at, and emit it.
// A segment with zero projected motion on this axis is skipped entirely.
func (s *Solver) nextEdge() (uint32, bool, bool) {
	for {
		if !s.haveSeg {
			// Skip anything already consumed: a finished segment may still
			// sit at the active head (or have been finalized to history)
			// when the stepper re-kicks after new commits.
			h, ok := s.Queue.FirstActive()
			for ok {
				if seg, live := s.Queue.Get(h); live && seg.EndTime() > s.doneTime {
					break
				}
				h, ok = s.Queue.NextActive(h)
			}
			if !ok {
				return 0, false, false
			}
			s.seg = h
			s.haveSeg = true
			s.havePos = false
		}

		seg, ok := s.Queue.Get(s.seg)
		if !ok {
			// Finalized out from under us before we finished it; resync
			// from the current active head.
			s.haveSeg = false
			continue
		}

		if !s.havePos {
			s.stepPos = s.projectSteps(seg, seg.StartTime)
			s.havePos = true
		}

		endSteps := s.projectSteps(seg, seg.EndTime())
		if endSteps == s.stepPos {
			if !s.advanceSegment() {
				return 0, false, false
			}
			continue
		}

		sign := 1.0
		if endSteps < s.stepPos {
			sign = -1.0
		}
		target := floorf(s.stepPos) + sign
		if (sign > 0 && target > endSteps) || (sign < 0 && target < endSteps) {
			if !s.advanceSegment() {
				return 0, false, false
			}
			continue
		}

		tStar, ok := solveForStep(seg, s.Axis, target/s.StepsPerMM)
		if !ok {
			if !s.advanceSegment() {
				return 0, false, false
			}
			continue
		}

		s.stepPos = target
		dir := sign < 0

		// The single place seconds (planner time) become ticks (scheduler
		// time): t* is an absolute print-time in seconds; the stepper's
		// clock is a free-running, wraparound-safe tick counter at
		// core.TimerFreq ticks/second, so truncating to uint32 here is
		// exactly the modulo-2^32 semantics the timer wheel expects.
		ticks := uint32(uint64(tStar * float64(core.TimerFreq)))
		core.RecordTiming(core.EvtStepScheduled, uint8(s.Axis), ticks, 0, 0)
		return ticks, dir, true
	}
}

func (s *Solver) advanceSegment() bool {
	if seg, ok := s.Queue.Get(s.seg); ok {
		if end := seg.EndTime(); end > s.doneTime {
			s.doneTime = end
		}
	}
	next, ok := s.Queue.NextActive(s.seg)
	if !ok {
		s.haveSeg = false
		return false
	}
	s.seg = next
	s.havePos = false
	return true
}

// solveForStep finds the print-time within seg at which the axis
// projection equals targetPos (axis-space, not steps), bisecting with
// Newton-Raphson refinement. ok is false if the function does not
// bracket a root in [seg.StartTime, seg.EndTime()] (should not happen
// given the monotone-per-segment guarantee, but the solver must never
// loop forever on a malformed segment).
func solveForStep(seg *trapq.Segment, axis int, targetPos float64) (float64, bool) {
	lo, hi := seg.StartTime, seg.EndTime()
	f := func(t float64) float64 { return seg.AxisPositionAt(axis, t) - targetPos }

	flo, fhi := f(lo), f(hi)
	if absf(flo) < solverTolerance {
		return lo, true
	}
	if absf(fhi) < solverTolerance {
		return hi, true
	}
	if (flo > 0) == (fhi > 0) {
		return 0, false
	}

	t := lo + (hi-lo)*0.5
	for i := 0; i < solverMaxIter; i++ {
		fv := f(t)
		if absf(fv) < solverTolerance {
			return t, true
		}
		if (fv > 0) == (flo > 0) {
			lo, flo = t, fv
		} else {
			hi, fhi = t, fv
		}

		next := t
		deriv := seg.AxisVelocityAt(axis, t)
		if deriv != 0 {
			next = t - fv/deriv
		}
		if next <= lo || next >= hi {
			next = lo + (hi-lo)*0.5
		}
		t = next
	}
	return t, true
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func floorf(x float64) float64 {
	i := int64(x)
	if float64(i) > x {
		i--
	}
	return float64(i)
}
