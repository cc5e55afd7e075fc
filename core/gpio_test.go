//go:build !tinygo

package core

import "testing"

func resetSoftPWMTest() *MockGPIO {
	timerList = nil
	currentTime = 0
	SetTime(0)
	mock := NewMockGPIO()
	SetGPIODriver(mock)
	return mock
}

func TestSoftPWMZeroDutyDisablesAndDrivesInactive(t *testing.T) {
	mock := resetSoftPWMTest()
	pwm, err := NewSoftPWM(GPIOPin(3), 1000, false)
	if err != nil {
		t.Fatalf("NewSoftPWM: %v", err)
	}
	pwm.SetDuty(0.5)
	pwm.SetDuty(0)

	if pwm.GetDuty() != 0 {
		t.Errorf("GetDuty() = %v, want 0", pwm.GetDuty())
	}
	level, _ := mock.GetPin(GPIOPin(3))
	if level != false { // invert=false, inactive level is low
		t.Errorf("pin level after zero duty = %v, want inactive (false)", level)
	}
}

func TestSoftPWMFullDutyHoldsActiveLevel(t *testing.T) {
	mock := resetSoftPWMTest()
	pwm, err := NewSoftPWM(GPIOPin(3), 1000, false)
	if err != nil {
		t.Fatalf("NewSoftPWM: %v", err)
	}
	pwm.SetDuty(1.0)

	SetTime(GetTime())
	currentTime = GetTime()
	TimerDispatch()

	level, _ := mock.GetPin(GPIOPin(3))
	if !level {
		t.Errorf("pin should be driven active at 100%% duty")
	}
}

// Regression test for the CancelTimer fix: re-arming a soft-PWM channel
// (duty -> 0 -> nonzero again) while another timer sits after it in the
// wheel must not drop that other timer.
func TestSoftPWMDisableDoesNotCorruptWheel(t *testing.T) {
	resetSoftPWMTest()
	pwm, err := NewSoftPWM(GPIOPin(3), 1000, false)
	if err != nil {
		t.Fatalf("NewSoftPWM: %v", err)
	}
	pwm.SetDuty(0.5)

	fired := false
	after := &Timer{WakeTime: GetTime() + 1, Handler: func(*Timer) uint8 { fired = true; return SF_DONE }}
	ScheduleTimer(after)

	pwm.SetDuty(0) // disables and must CancelTimer, not truncate the wheel

	SetTime(GetTime() + 2)
	currentTime = GetTime()
	TimerDispatch()

	if !fired {
		t.Errorf("timer scheduled after the disabled soft-PWM channel's must still fire")
	}
}
