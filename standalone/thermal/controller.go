package thermal

import (
	"fmt"

	"gopherline/core"
	"gopherline/standalone"
)

// ControllerTickPeriod is the PID update period in seconds.
const ControllerTickPeriod = 0.1

// Oversampling shape for each heater's thermistor: heaterSampleCount raw
// conversions spaced heaterSampleTicks apart are averaged per control
// cycle, knocking down single-conversion noise before it reaches the PID
// derivative term.
const (
	heaterSampleCount = 8
	heaterSampleTicks = core.TimerFreq / 1000 // 1ms between raw conversions
)

// Controller aggregates every configured heater and fan. Each heater owns
// an oversampling AnalogSampler whose completed cycle drives that heater's
// PID tick, so the sampler cadence is the control-loop cadence.
type Controller struct {
	heaters  map[string]*Heater
	fans     map[string]*Fan
	samplers map[string]*core.AnalogSampler
}

// NewController builds soft-PWM channels and ADC samplers for every
// configured heater and fan.
func NewController(cfg *standalone.MachineConfig) (*Controller, error) {
	c := &Controller{
		heaters:  make(map[string]*Heater),
		fans:     make(map[string]*Fan),
		samplers: make(map[string]*core.AnalogSampler),
	}

	for name, hc := range cfg.Heaters {
		sampler, err := core.NewAnalogSampler(hc.SensorPin)
		if err != nil {
			return nil, fmt.Errorf("heater %s sensor: %w", name, err)
		}
		pwm, err := core.NewSoftPWM(core.GPIOPin(hc.PWMPin), hc.CycleTicks, hc.InvertPWM)
		if err != nil {
			return nil, fmt.Errorf("heater %s pwm: %w", name, err)
		}
		table := NewTable(hc.Table)
		pidCfg := PIDConfig{Kp: hc.Kp, Ki: hc.Ki, Kd: hc.Kd, MaxPower: hc.MaxPower, IntegralMax: hc.IntegralMax}
		h := NewHeater(table, pwm, pidCfg)

		sampler.OnSample = func(sum uint32, count uint8) {
			if count == 0 {
				h.Tick(ControllerTickPeriod, ADCInvalid, false)
				return
			}
			h.Tick(ControllerTickPeriod, int32(sum/uint32(count)), true)
		}

		c.heaters[name] = h
		c.samplers[name] = sampler
	}

	for name, fc := range cfg.Fans {
		pwm, err := core.NewSoftPWM(core.GPIOPin(fc.Pin), fc.CycleTicks, fc.InvertPWM)
		if err != nil {
			return nil, fmt.Errorf("fan %s pwm: %w", name, err)
		}
		c.fans[name] = NewFan(pwm)
	}

	return c, nil
}

// Start arms every heater's sampling loop. The rest period is sized so a
// full oversample cycle plus rest spans one control period.
func (c *Controller) Start() {
	period := uint32(ControllerTickPeriod * float64(core.TimerFreq))
	rest := period - (heaterSampleCount-1)*heaterSampleTicks
	for _, s := range c.samplers {
		s.Start(rest, heaterSampleTicks, heaterSampleCount)
	}
}

// Stop halts every heater's sampling loop, cancelling in-flight
// conversions. Heater outputs are left as last commanded; pair with
// DisableAll to force them off.
func (c *Controller) Stop() {
	for _, s := range c.samplers {
		s.Stop()
	}
}

// SetTarget implements gcode.Heaters.
func (c *Controller) SetTarget(name string, target float64) error {
	h, ok := c.heaters[name]
	if !ok {
		return fmt.Errorf("%w: unknown heater %s", standalone.ErrBadArgument, name)
	}
	h.SetTarget(target)
	return nil
}

// Current implements gcode.Heaters.
func (c *Controller) Current(name string) (float64, bool) {
	h, ok := c.heaters[name]
	if !ok {
		return 0, false
	}
	return h.Current(), true
}

// Target implements gcode.Heaters.
func (c *Controller) Target(name string) (float64, bool) {
	h, ok := c.heaters[name]
	if !ok {
		return 0, false
	}
	return h.Target(), true
}

// AtTarget implements gcode.Heaters.
func (c *Controller) AtTarget(name string, tolerance float64) (bool, error) {
	h, ok := c.heaters[name]
	if !ok {
		return false, fmt.Errorf("%w: unknown heater %s", standalone.ErrBadArgument, name)
	}
	return h.AtTarget(tolerance), nil
}

// Set implements gcode.Fans.
func (c *Controller) Set(name string, speed float64) error {
	f, ok := c.fans[name]
	if !ok {
		return fmt.Errorf("%w: unknown fan %s", standalone.ErrBadArgument, name)
	}
	f.Set(speed)
	return nil
}

// DisableAll forces every heater target and fan speed to zero
// (EmergencyStop).
func (c *Controller) DisableAll() {
	for _, h := range c.heaters {
		h.SetTarget(0)
	}
	for _, f := range c.fans {
		f.Set(0)
	}
}
