//go:build !tinygo

package core

import "testing"

func resetStepperTest() {
	timerList = nil
	currentTime = 0
	SetTime(0)
	SetGPIODriver(NewMockGPIO())
}

func newEdgeStepper(t *testing.T, minInterval uint32) *Stepper {
	t.Helper()
	st, err := NewStepper(0, 1, false, false, minInterval)
	if err != nil {
		t.Fatalf("NewStepper: %v", err)
	}
	if err := st.InitBackend(NewGenericGPIOStepperBackend()); err != nil {
		t.Fatalf("InitBackend: %v", err)
	}
	return st
}

// Consecutive edges on a stepper must never be scheduled closer than
// MinStopInterval apart, even if the edge source asks for something
// tighter.
func TestStepperEnforcesMinimumInterval(t *testing.T) {
	resetStepperTest()
	st := newEdgeStepper(t, 1000)

	edgeTimes := []uint32{100, 150, 5000} // second request violates min interval
	i := 0
	st.NextEdge = func() (uint32, bool, bool) {
		if i >= len(edgeTimes) {
			return 0, false, false
		}
		wt := edgeTimes[i]
		i++
		return wt, false, true
	}

	st.Kick()
	if st.timer.WakeTime != 100 {
		t.Fatalf("first edge wake = %v, want 100", st.timer.WakeTime)
	}

	var fired []uint32
	for pass := 0; pass < 10 && st.running; pass++ {
		fired = append(fired, st.timer.WakeTime)
		SetTime(st.timer.WakeTime)
		currentTime = GetTime()
		TimerDispatch()
	}

	if st.StepCount() != 3 {
		t.Fatalf("expected 3 step edges, got %d", st.StepCount())
	}
	for k := 1; k < len(fired); k++ {
		if gap := fired[k] - fired[k-1]; gap < 1000 {
			t.Errorf("edges %d and %d are %d ticks apart, want >= 1000", k-1, k, gap)
		}
	}
}

func TestStepperPositionAdvancesWithDirection(t *testing.T) {
	resetStepperTest()
	st := newEdgeStepper(t, 0)

	calls := 0
	st.NextEdge = func() (uint32, bool, bool) {
		calls++
		if calls > 3 {
			return 0, false, false
		}
		return uint32(calls * 10), false, true // dir=false -> position increases
	}

	st.Kick()
	for pass := 0; pass < 10 && st.running; pass++ {
		SetTime(st.timer.WakeTime)
		currentTime = GetTime()
		TimerDispatch()
	}

	if st.GetPosition() != 3 {
		t.Errorf("position = %d, want 3", st.GetPosition())
	}
}

func TestStepperStopHaltsEmission(t *testing.T) {
	resetStepperTest()
	st := newEdgeStepper(t, 0)

	st.NextEdge = func() (uint32, bool, bool) { return 100, false, true }
	st.Kick()
	st.Stop()

	if st.IsActive() {
		t.Errorf("stepper should not be active after Stop")
	}

	SetTime(500)
	currentTime = GetTime()
	TimerDispatch()

	if st.StepCount() != 0 {
		t.Errorf("stopped stepper must not have emitted any edges, got %d", st.StepCount())
	}
}

// SetPosition/GetPosition round-trips exactly.
func TestStepperSetGetPositionRoundTrip(t *testing.T) {
	resetStepperTest()
	st := newEdgeStepper(t, 0)
	st.SetPosition(12345)
	if st.GetPosition() != 12345 {
		t.Errorf("GetPosition() = %d, want 12345", st.GetPosition())
	}
	st.SetPosition(-500)
	if st.GetPosition() != -500 {
		t.Errorf("GetPosition() = %d, want -500", st.GetPosition())
	}
}

// Stopping a stepper whose timer sits in the middle of the wheel must not
// drop other timers scheduled after it (regression test for the CancelTimer
// fix; Stop used to null the stepper's own Next pointer directly).
func TestStepperStopDoesNotCorruptWheel(t *testing.T) {
	resetStepperTest()
	st := newEdgeStepper(t, 0)
	st.NextEdge = func() (uint32, bool, bool) { return 100, false, true }
	st.Kick()

	fired := false
	after := &Timer{WakeTime: 200, Handler: func(*Timer) uint8 { fired = true; return SF_DONE }}
	ScheduleTimer(after)

	st.Stop()

	SetTime(300)
	currentTime = GetTime()
	TimerDispatch()

	if !fired {
		t.Errorf("timer scheduled after the stopped stepper's must still fire")
	}
}
