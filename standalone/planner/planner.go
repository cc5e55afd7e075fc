// Package planner implements the motion planner / toolhead: a lookahead
// queue that smooths junction velocities across pending moves, commits
// three-phase trapezoidal segments to a shared trapq.Queue, and drives
// one stepgen.Solver per axis. It also owns the homing episode (see
// homing.go).
package planner

import (
	"fmt"

	"gopherline/core"
	"gopherline/standalone"
	"gopherline/standalone/kinematics"
	"gopherline/standalone/stepgen"
	"gopherline/standalone/trapq"
)

// Axis indices, matching trapq's 4D (X,Y,Z,E) ordering.
const (
	axisX = 0
	axisY = 1
	axisZ = 2
	axisE = 3
)

var axisNames = [4]string{"x", "y", "z", "e"}

// pendingMove is one not-yet-committed move request awaiting the
// lookahead sweep.
type pendingMove struct {
	endPos    [4]float64
	dir       [4]float64 // unit vector
	distance  float64
	maxCruise float64 // feedrate, clamped to per-axis MaxVelocity
}

// Planner is the motion planner / toolhead.
type Planner struct {
	cfg *standalone.MachineConfig
	kin kinematics.Kinematics

	queue    *trapq.Queue
	steppers [4]*core.Stepper
	solvers  [4]*stepgen.Solver

	endstops map[string]*core.Endstop

	pos       [4]float64 // last commanded end-point (logical mm)
	printTime float64    // trapq cursor, seconds, anchored to core.GetTime at init

	haveTail  bool // true once at least one segment has ever been committed
	tailDir   [4]float64
	tailExitV float64

	pending []pendingMove

	homed [4]bool
}

// NewPlanner creates a motion planner bound to the given configuration and
// kinematics. Call InitSteppers before issuing moves.
func NewPlanner(cfg *standalone.MachineConfig, kin kinematics.Kinematics) *Planner {
	capacity := cfg.LookaheadCapacity
	if capacity <= 0 {
		capacity = 16
	}
	return &Planner{
		cfg:      cfg,
		kin:      kin,
		queue:    trapq.New(),
		endstops: make(map[string]*core.Endstop),
		pending:  make([]pendingMove, 0, capacity),
	}
}

// InitSteppers registers gpioDriver as the active GPIO backend, then
// configures one stepper and one endstop per configured axis.
func (p *Planner) InitSteppers(gpioDriver core.GPIODriver) error {
	core.SetGPIODriver(gpioDriver)
	p.printTime = float64(core.GetTime()) / float64(core.TimerFreq)

	for i, name := range axisNames {
		axis, ok := p.cfg.Axes[name]
		if !ok {
			continue
		}
		st, err := core.NewStepper(axis.StepPin, axis.DirPin, axis.InvertStep, axis.InvertDir, core.TimerFromUS(axis.MinStepIntervalUS))
		if err != nil {
			return fmt.Errorf("stepper %s: %w", name, err)
		}
		if err := st.InitBackend(core.NewGenericGPIOStepperBackend()); err != nil {
			return fmt.Errorf("stepper %s backend: %w", name, err)
		}
		if axis.HasEnable {
			if err := st.ConfigureEnable(core.GPIOPin(axis.EnablePin), axis.InvertEnable); err != nil {
				return fmt.Errorf("stepper %s enable: %w", name, err)
			}
		}
		st.Enable()

		p.steppers[i] = st
		p.solvers[i] = stepgen.NewSolver(i, axis.StepsPerMM, p.queue, st)
	}

	for name, esCfg := range p.cfg.Endstops {
		es, err := core.NewEndstop(core.GPIOPin(esCfg.Pin), esCfg.TriggerHigh, esCfg.PullUp)
		if err != nil {
			return fmt.Errorf("endstop %s: %w", name, err)
		}
		p.endstops[name] = es
	}

	if err := p.configureSmartDrivers(); err != nil {
		return fmt.Errorf("tmc config: %w", err)
	}

	return nil
}

// Move admits a linear move request (G0/G1) into the lookahead queue.
// feedrate is mm/s; a value <= 0 uses the configured default. Soft limits
// are enforced here; a zero-distance move is silently dropped.
func (p *Planner) Move(target standalone.Position, feedrate float64) error {
	if err := p.kin.CheckLimits(target); err != nil {
		return err
	}

	end := [4]float64{target.X, target.Y, target.Z, target.E}
	var delta [4]float64
	for i := 0; i < 4; i++ {
		delta[i] = end[i] - p.pos[i]
	}
	distance := vecLen(delta)
	if distance < 1e-6 {
		return nil
	}

	var dir [4]float64
	for i := 0; i < 4; i++ {
		dir[i] = delta[i] / distance
	}

	maxCruise := feedrate
	if maxCruise <= 0 {
		maxCruise = p.cfg.DefaultVelocity
	}
	for i := 0; i < 4; i++ {
		if dir[i] == 0 {
			continue
		}
		axis, ok := p.cfg.Axes[axisNames[i]]
		if !ok || axis.MaxVelocity <= 0 {
			continue
		}
		axisSpeed := maxCruise * absf(dir[i])
		if axisSpeed > axis.MaxVelocity {
			maxCruise *= axis.MaxVelocity / axisSpeed
		}
	}

	mv := pendingMove{endPos: end, dir: dir, distance: distance, maxCruise: maxCruise}

	if len(p.pending) >= cap(p.pending) {
		if err := p.Flush(); err != nil {
			return err
		}
	}
	p.pending = append(p.pending, mv)
	p.pos = end

	if len(p.pending) >= cap(p.pending)-1 {
		return p.Flush()
	}
	return nil
}

// schedulingLeadS is how far ahead of the scheduler clock the print-time
// cursor is re-anchored after an idle gap, so the first edge of a fresh
// motion stream is never scheduled in the past.
const schedulingLeadS = 0.05

// Flush runs the lookahead sweep over every pending move and commits all
// of them to the trapq, in order. A no-op when nothing is pending.
func (p *Planner) Flush() error {
	n := len(p.pending)
	if n == 0 {
		return nil
	}
	moves := p.pending

	// After an idle gap the cursor may have fallen behind real time; only
	// re-anchor when the active list is empty, so the time-continuity
	// invariant between consecutive committed segments is untouched.
	if _, ok := p.queue.FirstActive(); !ok {
		nowS := float64(core.GetUptime()) / float64(core.TimerFreq)
		if p.printTime < nowS+schedulingLeadS {
			p.printTime = nowS + schedulingLeadS
		}
	}

	accel := p.cfg.DefaultAccel
	decel := p.cfg.MaxAccelToDecel

	// Backward sweep: entryCeil[i] is the speed ceiling at the boundary
	// entering move i, so the junction cap stored there is the corner
	// between moves i-1 and i. Each ceiling is also bounded by what move i
	// can still decelerate from into the next boundary's ceiling.
	// entryCeil[n] is the virtual boundary after the last move in this
	// batch, which is always required to come to rest.
	entryCeil := make([]float64, n+1)
	entryCeil[n] = 0
	for i := n - 1; i >= 0; i-- {
		ceil := moves[i].maxCruise
		if i > 0 {
			j := p.junctionVelocity(moves[i-1].dir, moves[i].dir, minf(moves[i-1].maxCruise, moves[i].maxCruise))
			if j < ceil {
				ceil = j
			}
		}
		feas := sqrtf(entryCeil[i+1]*entryCeil[i+1] + 2*decel*moves[i].distance)
		if feas < ceil {
			ceil = feas
		}
		entryCeil[i] = ceil
	}

	entryV := 0.0
	if p.haveTail {
		j := p.junctionVelocity(p.tailDir, moves[0].dir, moves[0].maxCruise)
		entryV = minf(p.tailExitV, j)
	}
	if entryV > entryCeil[0] {
		entryV = entryCeil[0]
	}

	for i := 0; i < n; i++ {
		mv := moves[i]

		// reach is the fastest speed attainable by the end of this move
		// when accelerating the whole way from the entry.
		reach := sqrtf(entryV*entryV + 2*accel*mv.distance)

		cruiseV := reach
		if cruiseV > mv.maxCruise {
			cruiseV = mv.maxCruise
		}

		// Exit at the fastest reachable speed, bounded by the next
		// boundary's ceiling (which carries the junction cap and
		// downstream deceleration feasibility) and by this move's cruise.
		exitV := reach
		if exitV > entryCeil[i+1] {
			exitV = entryCeil[i+1]
		}
		if exitV > cruiseV {
			exitV = cruiseV
		}

		if err := p.commitSegment(mv, entryV, cruiseV, exitV, accel, decel); err != nil {
			// Moves before i are already on the queue; dropping the rest of
			// the batch (rather than leaving it pending) keeps a later Flush
			// from committing any of them twice.
			p.pending = p.pending[:0]
			return err
		}

		p.tailDir = mv.dir
		p.tailExitV = exitV
		p.haveTail = true
		entryV = exitV
	}

	p.pending = p.pending[:0]

	for _, s := range p.solvers {
		if s != nil {
			s.Kick()
		}
	}
	return nil
}

// junctionVelocity computes the maximum speed the toolhead may carry
// through the corner between two unit directions u (incoming) and v
// (outgoing): a reversal caps to 0, a near-straight-through
// corner is uncapped, otherwise the square-corner-velocity-derived formula
// applies, itself capped by provisionalMax (the smaller of the two moves'
// own cruise ceilings).
func (p *Planner) junctionVelocity(u, v [4]float64, provisionalMax float64) float64 {
	c := dot(u, v)
	if c < -0.999 {
		return 0
	}
	if c > 0.999 {
		return provisionalMax
	}

	scv := p.cfg.SquareCornerVelocity
	sinHalf := sqrtf((1 - c) / 2)
	if sinHalf < 1e-9 || p.cfg.DefaultAccel <= 0 {
		return provisionalMax
	}

	delta := (scv * scv) / p.cfg.DefaultAccel
	jv := sqrtf(p.cfg.DefaultAccel * delta / sinHalf)
	if jv > provisionalMax {
		jv = provisionalMax
	}
	return jv
}

// commitSegment builds the three-phase accel/cruise/decel profile for one
// move and appends it to the trapq at the current print-time cursor,
// lowering cruiseV to a triangle peak when the move is too short to
// reach it.
func (p *Planner) commitSegment(mv pendingMove, entryV, cruiseV, exitV, accel, decel float64) error {
	d := mv.distance

	accelDist := maxf((cruiseV*cruiseV-entryV*entryV)/(2*accel), 0)
	decelDist := maxf((cruiseV*cruiseV-exitV*exitV)/(2*decel), 0)

	var accelT, cruiseT, decelT float64
	if accelDist+decelDist > d {
		peak := sqrtf((entryV*entryV+exitV*exitV)/2 + accel*d)
		peak = maxf(peak, maxf(entryV, exitV))
		cruiseV = peak
		accelT = (cruiseV - entryV) / accel
		decelT = (cruiseV - exitV) / decel
		cruiseT = 0
	} else {
		cruiseDist := d - accelDist - decelDist
		accelT = (cruiseV - entryV) / accel
		decelT = (cruiseV - exitV) / decel
		if cruiseV > 0 {
			cruiseT = cruiseDist / cruiseV
		}
	}

	var startPos [4]float64
	for i := 0; i < 4; i++ {
		startPos[i] = mv.endPos[i] - mv.dir[i]*d
	}

	_, err := p.queue.Append(p.printTime, accelT, cruiseT, decelT, startPos, mv.dir, entryV, cruiseV, exitV, accel, decel)
	if err != nil {
		// Reclaim whatever history has already executed and retry once
		// before giving up.
		nowS := float64(core.GetUptime()) / float64(core.TimerFreq)
		p.queue.FinalizeBefore(nowS)
		p.queue.FreeBefore(nowS)
		_, err = p.queue.Append(p.printTime, accelT, cruiseT, decelT, startPos, mv.dir, entryV, cruiseV, exitV, accel, decel)
		if err != nil {
			return fmt.Errorf("%w: %v", standalone.ErrQueueFull, err)
		}
	}

	core.RecordTiming(core.EvtSegmentCommitted, 0, core.GetTime(),
		uint32(cruiseV*1000), uint32(d*1000))
	p.printTime += accelT + cruiseT + decelT
	return nil
}

// historyRetentionS is how long executed segments stay queryable in the
// trapq history before their pool slots are reclaimed.
const historyRetentionS = 2.0

// Retire moves fully executed segments from the trapq's active list to
// history and frees history older than the retention margin, keyed off the
// scheduler clock. Called once per main-loop tick.
func (p *Planner) Retire() {
	nowS := float64(core.GetUptime()) / float64(core.TimerFreq)
	p.queue.FinalizeBefore(nowS)
	p.queue.FreeBefore(nowS - historyRetentionS)
}

// SetPosition sets the logical current position without commanding motion
// (G92). Any pending lookahead moves are flushed first so they resolve
// against the position they were actually planned from.
func (p *Planner) SetPosition(pos standalone.Position) error {
	if err := p.Flush(); err != nil {
		return err
	}
	p.pos = [4]float64{pos.X, pos.Y, pos.Z, pos.E}
	return nil
}

// GetCurrentPosition returns the last commanded (logical) position.
func (p *Planner) GetCurrentPosition() standalone.Position {
	return standalone.Position{X: p.pos[axisX], Y: p.pos[axisY], Z: p.pos[axisZ], E: p.pos[axisE]}
}

// Homed reports which axes have completed a homing episode.
func (p *Planner) Homed() [4]bool {
	return p.homed
}

// IsIdle reports whether there is no pending lookahead work and no stepper
// is currently emitting edges.
func (p *Planner) IsIdle() bool {
	if len(p.pending) > 0 {
		return false
	}
	for _, st := range p.steppers {
		if st != nil && st.IsActive() {
			return false
		}
	}
	return true
}

// ClearQueue discards all pending and in-flight motion and resets the
// trapq. Used by EmergencyStop.
func (p *Planner) ClearQueue() {
	p.pending = p.pending[:0]
	p.haveTail = false

	for _, st := range p.steppers {
		if st != nil {
			st.Stop()
		}
	}

	p.queue = trapq.New()
	for i, st := range p.steppers {
		if st == nil {
			continue
		}
		axis := p.cfg.Axes[axisNames[i]]
		p.solvers[i] = stepgen.NewSolver(i, axis.StepsPerMM, p.queue, st)
	}
}

// EnableSteppers drives every configured stepper's enable pin active.
func (p *Planner) EnableSteppers() {
	for _, st := range p.steppers {
		if st != nil {
			st.Enable()
		}
	}
}

// DisableSteppers drives every configured stepper's enable pin inactive
// and halts motion.
func (p *Planner) DisableSteppers() {
	for _, st := range p.steppers {
		if st != nil {
			st.Disable()
		}
	}
}
