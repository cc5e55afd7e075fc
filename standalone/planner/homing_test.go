package planner

import (
	"errors"
	"testing"
	"time"

	"gopherline/core"
	"gopherline/standalone"
	"gopherline/standalone/config"
	"gopherline/standalone/kinematics"
)

// newHomingTestPlanner is like newTestPlanner but also returns the mock GPIO
// driver so the test can flip an endstop pin while a homing episode is
// blocked inside Home().
func newHomingTestPlanner(t *testing.T) (*Planner, *core.MockGPIO) {
	t.Helper()
	cfg := config.DefaultCartesianConfig()
	// A pull-down input idles low in the mock, so the trigger-high X switch
	// reads not-asserted until driveClock forces the pin high.
	xes := cfg.Endstops["x"]
	xes.PullUp = false
	cfg.Endstops["x"] = xes
	kin, err := kinematics.NewCartesian(cfg)
	if err != nil {
		t.Fatalf("NewCartesian: %v", err)
	}
	p := NewPlanner(cfg, kin)
	mock := core.NewMockGPIO()
	if err := p.InitSteppers(mock); err != nil {
		t.Fatalf("InitSteppers: %v", err)
	}
	return p, mock
}

// driveClock runs in a background goroutine, repeatedly advancing the mock
// system clock so a blocking homing episode (which busy-waits on
// core.GetTime()/core.ProcessTimers() rather than a real hardware counter)
// can make progress under test. Once the iteration count reaches
// assertAfter, the endstop pin is forced high.
func driveClock(t *testing.T, pin core.GPIOPin, mock *core.MockGPIO, assertAfter int, stop <-chan struct{}) {
	t.Helper()
	const step = homingSampleTicks / 4
	i := 0
	for {
		select {
		case <-stop:
			return
		default:
		}
		core.SetTime(core.GetTime() + step)
		if assertAfter >= 0 && i == assertAfter {
			mock.Force(pin, true)
		}
		i++
		time.Sleep(time.Microsecond)
	}
}

// Homing an axis that trips its endstop ends with the logical position at
// the configured retract distance, not 0.
func TestHomeAxisEndsAtRetractDistance(t *testing.T) {
	p, mock := newHomingTestPlanner(t)
	xPin := core.GPIOPin(p.cfg.Endstops["x"].Pin)

	stop := make(chan struct{})
	defer close(stop)
	go driveClock(t, xPin, mock, 20, stop)

	errCh := make(chan error, 1)
	go func() { errCh <- p.Home(true, false, false) }()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Home: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Home() did not complete in time")
	}

	pos := p.GetCurrentPosition()
	if !approxEq(pos.X, p.cfg.HomingRetract, 1e-6) {
		t.Errorf("post-homing X = %v, want HomingRetract=%v", pos.X, p.cfg.HomingRetract)
	}
	if !p.Homed()[axisX] {
		t.Errorf("axis X should be marked homed")
	}
}

// Homing without the endstop ever tripping times out and reports
// ErrHomingFailed.
func TestHomeAxisTimesOutWithoutTrigger(t *testing.T) {
	p, mock := newHomingTestPlanner(t)
	p.cfg.HomingTimeout = 0.05 // keep the test fast
	xPin := core.GPIOPin(p.cfg.Endstops["x"].Pin)

	stop := make(chan struct{})
	defer close(stop)
	go driveClock(t, xPin, mock, -1, stop) // never asserts the pin

	errCh := make(chan error, 1)
	go func() { errCh <- p.Home(true, false, false) }()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected an error from Home(), got nil")
		}
		if !errors.Is(err, standalone.ErrHomingFailed) {
			t.Errorf("Home() error = %v, want standalone.ErrHomingFailed", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Home() did not complete in time")
	}
}

// newHomeMover produces a monotone step cadence at the requested velocity,
// in the requested direction, bounded by the distance cap.
func TestHomeMoverCadenceAndDirection(t *testing.T) {
	mover := newHomeMover(true, 10, 80, 1) // 10mm/s, 80 steps/mm, 1mm cap
	mover.start(1000)

	wantInterval := uint32(float64(core.TimerFreq) / (10 * 80))
	count := 0
	last := uint32(0)
	for {
		wake, dir, ok := mover.nextEdge()
		if !ok {
			break
		}
		if !dir {
			t.Errorf("expected dir=true (toward origin), got false")
		}
		if count > 0 && wake-last != wantInterval {
			t.Errorf("edge %d interval = %d, want %d", count, wake-last, wantInterval)
		}
		last = wake
		count++
		if count > 1000 {
			t.Fatal("mover did not terminate")
		}
	}
	if count != 80 { // 1mm at 80 steps/mm
		t.Errorf("step count = %d, want 80", count)
	}
}
