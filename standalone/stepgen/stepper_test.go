//go:build !tinygo

package stepgen

import (
	"testing"

	"gopherline/core"
	"gopherline/standalone/trapq"
)

func newTestStepper(t *testing.T) *core.Stepper {
	t.Helper()
	core.SetGPIODriver(core.NewMockGPIO())
	st, err := core.NewStepper(0, 1, false, false, 0)
	if err != nil {
		t.Fatalf("NewStepper: %v", err)
	}
	if err := st.InitBackend(core.NewGenericGPIOStepperBackend()); err != nil {
		t.Fatalf("InitBackend: %v", err)
	}
	return st
}

// A single-axis trapezoidal segment should produce step edges whose
// axis-projected positions are monotone and whose count roughly matches
// the number of whole steps the move covers (distance * stepsPerMM).
func TestSolverEmitsMonotoneStepEdges(t *testing.T) {
	core.SetTime(0)
	q := trapq.New()
	st := newTestStepper(t)
	stepsPerMM := 80.0
	solver := NewSolver(0, stepsPerMM, q, st)

	dir := [4]float64{1, 0, 0, 0}
	start := [4]float64{0, 0, 0, 0}
	entryV, cruiseV, exitV := 0.0, 10.0, 0.0
	accel, decel := 500.0, 500.0
	accelT := (cruiseV - entryV) / accel
	decelT := (cruiseV - exitV) / decel
	d := 10.0
	accelDist := 0.5 * accel * accelT * accelT
	decelDist := cruiseV*decelT - 0.5*decel*decelT*decelT
	cruiseT := (d - accelDist - decelDist) / cruiseV

	if _, err := q.Append(0, accelT, cruiseT, decelT, start, dir, entryV, cruiseV, exitV, accel, decel); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var lastPos int64 = -1
	count := 0
	for {
		wake, isDir, ok := solver.nextEdge()
		if !ok {
			break
		}
		_ = isDir
		if wake == 0 && count > 0 {
			t.Fatalf("edge %d: zero wake time", count)
		}
		count++
		if count > 5000 {
			t.Fatalf("solver did not terminate after 5000 edges")
		}
		if lastPos >= 0 && int64(wake) < lastPos {
			t.Errorf("edge %d: wake time went backwards: %v < %v", count, wake, lastPos)
		}
		lastPos = int64(wake)
	}

	wantSteps := int(d * stepsPerMM)
	if count < wantSteps-2 || count > wantSteps+2 {
		t.Errorf("emitted %d step edges, want approximately %d", count, wantSteps)
	}
}

// A segment with zero projected motion on an axis must be skipped
// entirely rather than looping forever.
func TestSolverSkipsZeroMotionSegment(t *testing.T) {
	core.SetTime(0)
	q := trapq.New()
	st := newTestStepper(t)
	solver := NewSolver(1, 80.0, q, st) // axis Y, but move is X-only

	dir := [4]float64{1, 0, 0, 0}
	start := [4]float64{0, 0, 0, 0}
	if _, err := q.Append(0, 0.02, 1.0, 0.02, start, dir, 0, 10, 0, 500, 500); err != nil {
		t.Fatalf("Append: %v", err)
	}

	_, _, ok := solver.nextEdge()
	if ok {
		t.Errorf("expected no edges for an axis with zero projected motion")
	}
}

func TestSolveForStepBisectsWithinTolerance(t *testing.T) {
	seg := &trapq.Segment{
		StartTime: 0,
		AccelT:    0.02,
		CruiseT:   0.96,
		DecelT:    0.02,
		StartV:    0,
		CruiseV:   10,
		EndV:      0,
		Accel:     500,
		Decel:     500,
		StartPos:  [4]float64{0, 0, 0, 0},
		Dir:       [4]float64{1, 0, 0, 0},
	}
	target := 5.0 // mm, within the cruise phase
	tStar, ok := solveForStep(seg, 0, target)
	if !ok {
		t.Fatalf("solveForStep: no root found")
	}
	got := seg.AxisPositionAt(0, tStar)
	if !approxEq(got, target, 1e-6) {
		t.Errorf("AxisPositionAt(tStar) = %v, want %v", got, target)
	}
}

func approxEq(a, b, eps float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}
