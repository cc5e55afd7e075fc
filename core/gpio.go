// GPIO (General Purpose Input/Output) support.
// Soft-PWM is a single-timer on/off toggling state machine
// (on-duration/off-duration/cycle-time) shared by the heater and fan
// controllers.
package core

// SoftPWM drives a GPIO pin with a periodic on/off duty cycle from a timer
// callback. duty is the current fraction of CycleTicks spent high.
type SoftPWM struct {
	Pin        GPIOPin
	Invert     bool
	CycleTicks uint32

	timer    Timer
	onTicks  uint32
	offTicks uint32
	enabled  bool
	pinHigh  bool
	duty     float64
}

// NewSoftPWM creates a soft-PWM channel. The pin is configured as an output
// and driven to its inactive level immediately.
func NewSoftPWM(pin GPIOPin, cycleTicks uint32, invert bool) (*SoftPWM, error) {
	if err := MustGPIO().ConfigureOutput(pin); err != nil {
		return nil, err
	}
	sp := &SoftPWM{
		Pin:        pin,
		Invert:     invert,
		CycleTicks: cycleTicks,
	}
	sp.timer.Handler = sp.tick
	_ = MustGPIO().SetPin(pin, invert) // drive to inactive level
	return sp, nil
}

// SetDuty sets the duty cycle in [0,1]. 0 disables the channel and drives
// the pin to its inactive level; any non-zero value (re)enables it.
func (sp *SoftPWM) SetDuty(duty float64) {
	if duty < 0 {
		duty = 0
	}
	if duty > 1 {
		duty = 1
	}
	sp.duty = duty

	if duty <= 0 {
		sp.enabled = false
		CancelTimer(&sp.timer)
		_ = MustGPIO().SetPin(sp.Pin, sp.Invert)
		sp.pinHigh = false
		return
	}

	sp.onTicks = uint32(duty * float64(sp.CycleTicks))
	if sp.onTicks > sp.CycleTicks {
		sp.onTicks = sp.CycleTicks
	}
	sp.offTicks = sp.CycleTicks - sp.onTicks

	if !sp.enabled {
		sp.enabled = true
		sp.timer.WakeTime = GetTime()
		ScheduleTimer(&sp.timer)
	}
}

// GetDuty returns the last commanded duty cycle.
func (sp *SoftPWM) GetDuty() float64 {
	return sp.duty
}

// tick is the timer callback driving the on/off toggle.
func (sp *SoftPWM) tick(t *Timer) uint8 {
	if !sp.enabled {
		return SF_DONE
	}

	if sp.onTicks >= sp.CycleTicks {
		// Fully on: hold the active level, re-check once per cycle.
		_ = MustGPIO().SetPin(sp.Pin, !sp.Invert)
		t.WakeTime += sp.CycleTicks
		return SF_RESCHEDULE
	}

	if sp.pinHigh {
		_ = MustGPIO().SetPin(sp.Pin, sp.Invert)
		sp.pinHigh = false
		t.WakeTime += sp.offTicks
	} else {
		_ = MustGPIO().SetPin(sp.Pin, !sp.Invert)
		sp.pinHigh = true
		t.WakeTime += sp.onTicks
	}
	return SF_RESCHEDULE
}
