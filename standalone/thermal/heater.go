package thermal

import "gopherline/core"

// ADCInvalid is the sentinel an ADC read hands back when the conversion
// could not be trusted (disconnected sensor, out-of-range sample). A real
// 12-bit converter never produces it; it exists so a heater's sample source
// has a concrete way to signal an untrusted reading without inventing a
// second return value mid-interface.
const ADCInvalid int32 = -1

// PIDConfig holds the tunable gains and limits for one heater's control
// loop.
type PIDConfig struct {
	Kp, Ki, Kd  float64
	MaxPower    float64 // clamp ceiling, in [0,1]
	IntegralMax float64 // clamp on the raw (unscaled by Ki) integral term
}

// Heater is one periodic PID control loop driving a soft-PWM output from
// a thermistor reading.
type Heater struct {
	Table *Table
	PWM   *core.SoftPWM
	Cfg   PIDConfig

	target     float64
	current    float64
	prevError  float64
	integral   float64
	lastOutput float64
	pwmEnabled bool
}

// NewHeater wires a heater around its thermistor table and soft-PWM output.
func NewHeater(table *Table, pwm *core.SoftPWM, cfg PIDConfig) *Heater {
	return &Heater{Table: table, PWM: pwm, Cfg: cfg}
}

// SetTarget changes the setpoint. A target <= 0 disables the heater outright
// (PWM forced to 0). A change of more than 10C resets the integrator and
// the derivative term; otherwise a big setpoint jump would hand the new
// setpoint a stale integral windup from the old one.
func (h *Heater) SetTarget(target float64) {
	if target <= 0 {
		h.target = 0
		h.pwmEnabled = false
		h.integral = 0
		h.prevError = 0
		h.lastOutput = 0
		if h.PWM != nil {
			h.PWM.SetDuty(0)
		}
		return
	}

	if absf(target-h.target) > 10 {
		h.integral = 0
		h.prevError = 0
	}
	h.target = target
	h.pwmEnabled = true
}

// Target returns the current setpoint.
func (h *Heater) Target() float64 { return h.target }

// Current returns the last-converted temperature.
func (h *Heater) Current() float64 { return h.current }

// AtTarget reports whether the last reading is within tolerance degrees
// of the setpoint, the condition M109's wait state polls.
func (h *Heater) AtTarget(tolerance float64) bool {
	if h.target <= 0 {
		return true
	}
	return absf(h.current-h.target) <= tolerance
}

// Tick runs one PID cycle at the control period dtSeconds given a raw
// ADC sample. ok=false models the ADC-error-sentinel path: PWM is forced
// to 0 for this cycle and the target is left untouched, no other state
// is mutated.
func (h *Heater) Tick(dtSeconds float64, code int32, ok bool) float64 {
	if !ok || code == ADCInvalid {
		if h.PWM != nil {
			h.PWM.SetDuty(0)
		}
		return 0
	}

	h.current = h.Table.TempC(code)

	if !h.pwmEnabled || h.target <= 0 {
		if h.PWM != nil {
			h.PWM.SetDuty(0)
		}
		h.lastOutput = 0
		return 0
	}

	errVal := h.target - h.current
	h.integral += errVal * dtSeconds
	if h.integral > h.Cfg.IntegralMax {
		h.integral = h.Cfg.IntegralMax
	} else if h.integral < -h.Cfg.IntegralMax {
		h.integral = -h.Cfg.IntegralMax
	}

	derivative := (errVal - h.prevError) / dtSeconds
	h.prevError = errVal

	u := h.Cfg.Kp*errVal + h.Cfg.Ki*h.integral + h.Cfg.Kd*derivative

	clamped := u
	if clamped > h.Cfg.MaxPower {
		clamped = h.Cfg.MaxPower
	} else if clamped < 0 {
		clamped = 0
	}

	// Anti-windup: if this cycle saturated and the error pushed in the same
	// direction as the clamp, undo this cycle's integral contribution.
	if clamped != u {
		satHigh := clamped == h.Cfg.MaxPower && errVal > 0
		satLow := clamped == 0 && errVal < 0
		if satHigh || satLow {
			h.integral -= errVal * dtSeconds
			core.RecordTiming(core.EvtPIDSaturated, 0, 0, 0, 0)
		}
	}

	h.lastOutput = clamped
	if h.PWM != nil {
		h.PWM.SetDuty(clamped)
	}
	return clamped
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
