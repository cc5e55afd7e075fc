package planner

import (
	"testing"

	"gopherline/core"
	"gopherline/standalone"
	"gopherline/standalone/config"
	"gopherline/standalone/kinematics"
	"gopherline/standalone/trapq"
)

func approxEq(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func newTestPlanner(t *testing.T) *Planner {
	t.Helper()
	cfg := config.DefaultCartesianConfig()
	kin, err := kinematics.NewCartesian(cfg)
	if err != nil {
		t.Fatalf("NewCartesian: %v", err)
	}
	p := NewPlanner(cfg, kin)
	if err := p.InitSteppers(core.NewMockGPIO()); err != nil {
		t.Fatalf("InitSteppers: %v", err)
	}
	return p
}

func lastSegment(t *testing.T, p *Planner) *trapq.Segment {
	t.Helper()
	h, ok := p.queue.LastActive()
	if !ok {
		t.Fatalf("no active segment committed")
	}
	seg, ok := p.queue.Get(h)
	if !ok {
		t.Fatalf("Get(%v) failed", h)
	}
	return seg
}

// A single move from rest, distance short enough that the full trapezoid
// (accel/cruise/decel) fits, ends up with the commanded cruise velocity and
// returns to rest at both ends.
func TestSingleMoveReachesCommandedCruise(t *testing.T) {
	p := newTestPlanner(t)

	if err := p.Move(standalone.Position{X: 10}, 10); err != nil { // 10 mm/s
		t.Fatalf("Move: %v", err)
	}
	if err := p.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	seg := lastSegment(t, p)
	if !approxEq(seg.StartV, 0, 1e-9) {
		t.Errorf("StartV = %v, want 0", seg.StartV)
	}
	if !approxEq(seg.EndV, 0, 1e-9) {
		t.Errorf("EndV = %v, want 0", seg.EndV)
	}
	if !approxEq(seg.CruiseV, 10, 1e-6) {
		t.Errorf("CruiseV = %v, want 10", seg.CruiseV)
	}
	end := seg.PositionAt4(seg.EndTime())
	if !approxEq(end[0], 10, 1e-6) {
		t.Errorf("final X position = %v, want 10", end[0])
	}
}

// Two collinear moves in the same Flush batch must remain time- and
// velocity-continuous across their shared junction:
// whatever exit velocity the lookahead sweep assigns the first move is
// exactly the entry velocity of the second, with no gap between them.
func TestCollinearMovesAreContinuousAcrossJunction(t *testing.T) {
	p := newTestPlanner(t)

	if err := p.Move(standalone.Position{X: 5}, 10); err != nil {
		t.Fatalf("Move 1: %v", err)
	}
	if err := p.Move(standalone.Position{X: 10}, 10); err != nil {
		t.Fatalf("Move 2: %v", err)
	}
	if err := p.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	h1, ok := p.queue.FirstActive()
	if !ok {
		t.Fatalf("no first segment")
	}
	seg1, _ := p.queue.Get(h1)
	h2, ok := p.queue.NextActive(h1)
	if !ok {
		t.Fatalf("no second segment")
	}
	seg2, _ := p.queue.Get(h2)

	// Time continuity across committed segments.
	if !approxEq(seg1.StartTime+seg1.Duration(), seg2.StartTime, 1e-9) {
		t.Errorf("segment time gap: seg1 ends at %v, seg2 starts at %v",
			seg1.StartTime+seg1.Duration(), seg2.StartTime)
	}
	// Velocity continuity between consecutive segments.
	if !approxEq(seg1.EndV, seg2.StartV, 1e-9) {
		t.Errorf("velocity discontinuity across junction: %v != %v", seg1.EndV, seg2.StartV)
	}
}

// A right-angle corner between two otherwise-fast moves is capped by the
// square-corner-velocity formula, not by either move's own max cruise.
func TestRightAngleJunctionUsesCornerVelocityFormula(t *testing.T) {
	p := newTestPlanner(t)

	u := [4]float64{1, 0, 0, 0}
	v := [4]float64{0, 1, 0, 0}
	provisionalMax := 100.0

	got := p.junctionVelocity(u, v, provisionalMax)

	scv := p.cfg.SquareCornerVelocity
	delta := (scv * scv) / p.cfg.DefaultAccel
	want := sqrtf(p.cfg.DefaultAccel * delta / sqrtf(0.5)) // sin(90/2) = sqrt(2)/2, (1-c)/2 = 0.5 for c=0
	if want > provisionalMax {
		want = provisionalMax
	}
	if !approxEq(got, want, 1e-9) {
		t.Errorf("junctionVelocity(right angle) = %v, want %v", got, want)
	}
	if got >= provisionalMax {
		t.Errorf("right-angle junction velocity should be capped well below provisionalMax, got %v", got)
	}
}

// A two-move right-angle batch driven through Flush commits both segments
// with the corner speed capped by the square-corner-velocity formula: the
// first segment exits and the second enters at exactly the junction
// velocity, not at either move's own cruise ceiling.
func TestFlushCapsRightAngleCornerSpeed(t *testing.T) {
	p := newTestPlanner(t)

	if err := p.Move(standalone.Position{X: 10}, 100); err != nil {
		t.Fatalf("Move 1: %v", err)
	}
	if err := p.Move(standalone.Position{X: 10, Y: 10}, 100); err != nil {
		t.Fatalf("Move 2: %v", err)
	}
	if err := p.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	h1, ok := p.queue.FirstActive()
	if !ok {
		t.Fatalf("no first segment")
	}
	seg1, _ := p.queue.Get(h1)
	h2, ok := p.queue.NextActive(h1)
	if !ok {
		t.Fatalf("no second segment")
	}
	seg2, _ := p.queue.Get(h2)

	scv := p.cfg.SquareCornerVelocity
	delta := (scv * scv) / p.cfg.DefaultAccel
	want := sqrtf(p.cfg.DefaultAccel * delta / sqrtf(0.5)) // sin(90/2) = sqrt(2)/2

	if !approxEq(seg1.EndV, want, 1e-6) {
		t.Errorf("first segment EndV = %v, want junction velocity %v", seg1.EndV, want)
	}
	if !approxEq(seg2.StartV, want, 1e-6) {
		t.Errorf("second segment StartV = %v, want junction velocity %v", seg2.StartV, want)
	}
	if seg1.EndV >= 50 {
		t.Errorf("corner speed %v was not capped well below the 100mm/s cruise ceiling", seg1.EndV)
	}
}

// A straight-through junction (collinear moves) is uncapped by the corner
// formula; only the moves' own cruise ceilings apply.
func TestCollinearJunctionIsUncapped(t *testing.T) {
	p := newTestPlanner(t)
	u := [4]float64{1, 0, 0, 0}
	got := p.junctionVelocity(u, u, 42.0)
	if got != 42.0 {
		t.Errorf("collinear junctionVelocity = %v, want 42 (provisionalMax, uncapped)", got)
	}
}

// A reversal (180 degree corner) must come to a full stop.
func TestReversalJunctionIsZero(t *testing.T) {
	p := newTestPlanner(t)
	u := [4]float64{1, 0, 0, 0}
	v := [4]float64{-1, 0, 0, 0}
	got := p.junctionVelocity(u, v, 100.0)
	if got != 0 {
		t.Errorf("reversal junctionVelocity = %v, want 0", got)
	}
}

// Every committed segment's velocities stay within the axis's max
// velocity and the configured acceleration, regardless of feedrate
// requested.
func TestCommittedSegmentsRespectVelocityAndAccelCaps(t *testing.T) {
	p := newTestPlanner(t)

	// Feedrate far exceeds the X axis's configured max velocity (300mm/s);
	// the planner must clamp, not merely record, the requested value.
	if err := p.Move(standalone.Position{X: 10}, 1000); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if err := p.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	seg := lastSegment(t, p)
	maxV := p.cfg.Axes["x"].MaxVelocity
	if seg.CruiseV > maxV+1e-6 {
		t.Errorf("CruiseV = %v exceeds axis max velocity %v", seg.CruiseV, maxV)
	}
	if seg.Accel > p.cfg.DefaultAccel+1e-6 {
		t.Errorf("Accel = %v exceeds configured accel %v", seg.Accel, p.cfg.DefaultAccel)
	}
	if seg.Decel > p.cfg.MaxAccelToDecel+1e-6 {
		t.Errorf("Decel = %v exceeds configured decel %v", seg.Decel, p.cfg.MaxAccelToDecel)
	}
}

// A zero-distance move (target equals current position) is silently
// dropped rather than enqueued.
func TestZeroDistanceMoveIsNoop(t *testing.T) {
	p := newTestPlanner(t)
	if err := p.Move(standalone.Position{}, 10); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if len(p.pending) != 0 {
		t.Errorf("zero-distance move should not be queued, pending=%d", len(p.pending))
	}
}

// A move below the 1e-6mm no-op threshold is silently accepted without
// being queued, the same as an exact-zero-distance move.
func TestSubMicronMoveIsNoop(t *testing.T) {
	p := newTestPlanner(t)
	if err := p.Move(standalone.Position{X: 5e-7}, 10); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if len(p.pending) != 0 {
		t.Errorf("sub-micron move should not be queued, pending=%d", len(p.pending))
	}
}

// A move outside the configured soft limits is rejected before it ever
// reaches the lookahead queue.
func TestMoveOutsideSoftLimitsIsRejected(t *testing.T) {
	p := newTestPlanner(t)
	err := p.Move(standalone.Position{X: 99999}, 10)
	if err == nil {
		t.Fatalf("expected an out-of-bounds error, got nil")
	}
}

// SetPosition (G92) rewrites the logical position without moving the
// physical toolhead or touching homed state.
func TestSetPositionRewritesLogicalPosition(t *testing.T) {
	p := newTestPlanner(t)
	if err := p.SetPosition(standalone.Position{X: 5, Y: 5}); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	got := p.GetCurrentPosition()
	if got.X != 5 || got.Y != 5 {
		t.Errorf("GetCurrentPosition() = %+v, want X=5 Y=5", got)
	}
}
