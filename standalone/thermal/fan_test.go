package thermal

import (
	"testing"

	"gopherline/core"
)

func newTestFan(t *testing.T) *Fan {
	t.Helper()
	core.SetGPIODriver(core.NewMockGPIO())
	pwm, err := core.NewSoftPWM(core.GPIOPin(12), 1000, false)
	if err != nil {
		t.Fatalf("NewSoftPWM: %v", err)
	}
	return NewFan(pwm)
}

// M106 S127 maps to a fan speed of 127/255, within tight tolerance.
func TestFanSpeedMatchesPWMScale(t *testing.T) {
	f := newTestFan(t)
	speed := 127.0 / 255.0
	f.Set(speed)
	if !approxEq(f.Get(), speed, 1e-3) {
		t.Errorf("Get() = %v, want %v", f.Get(), speed)
	}
}

func TestFanClampsOutOfRangeSpeeds(t *testing.T) {
	f := newTestFan(t)
	f.Set(-0.5)
	if f.Get() != 0 {
		t.Errorf("negative speed should clamp to 0, got %v", f.Get())
	}
	f.Set(1.5)
	if f.Get() != 1 {
		t.Errorf("speed > 1 should clamp to 1, got %v", f.Get())
	}
}

func TestFanZeroDisables(t *testing.T) {
	f := newTestFan(t)
	f.Set(0.5)
	f.Set(0)
	if f.Get() != 0 {
		t.Errorf("Get() after Set(0) = %v, want 0", f.Get())
	}
}
