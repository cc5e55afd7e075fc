package thermal

import "gopherline/core"

// Fan is a software-PWM-driven fan output: set(speed) in [0,1], with 0
// disabling the channel and any positive value lazily (re-)enabling it.
type Fan struct {
	pwm   *core.SoftPWM
	speed float64
}

// NewFan wraps a soft-PWM channel as a fan controller.
func NewFan(pwm *core.SoftPWM) *Fan {
	return &Fan{pwm: pwm}
}

// Set clamps speed to [0,1] and drives the channel accordingly.
func (f *Fan) Set(speed float64) {
	if speed < 0 {
		speed = 0
	}
	if speed > 1 {
		speed = 1
	}
	f.speed = speed
	if f.pwm != nil {
		f.pwm.SetDuty(speed)
	}
}

// Get returns the last commanded speed.
func (f *Fan) Get() float64 {
	return f.speed
}
