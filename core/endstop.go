// Endstop handling for GPIO-based limit switches: a periodic sampling
// timer that latches on the configured pin polarity, driven by the motion
// planner's homing episode.
package core

// Endstop represents one limit switch.
type Endstop struct {
	Pin         GPIOPin
	TriggerHigh bool // expected pin level when asserted
	SampleTicks uint32

	homing  bool
	latched bool
	sync    *TriggerSync
	reason  uint8

	timer Timer
}

// NewEndstop configures a GPIO pin as an endstop input.
func NewEndstop(pin GPIOPin, triggerHigh bool, pullUp bool) (*Endstop, error) {
	var err error
	if pullUp {
		err = MustGPIO().ConfigureInputPullUp(pin)
	} else {
		err = MustGPIO().ConfigureInputPullDown(pin)
	}
	if err != nil {
		return nil, err
	}
	es := &Endstop{Pin: pin, TriggerHigh: triggerHigh}
	es.timer.Handler = es.sample
	return es, nil
}

// Triggered reports whether the switch currently reads in its asserted
// state, independent of homing-mode.
func (es *Endstop) Triggered() bool {
	pinHigh := MustGPIO().ReadPin(es.Pin)
	return pinHigh == es.TriggerHigh
}

// ArmHoming enters homing-mode: the endstop samples at sampleTicks and, on
// the first not-asserted→asserted transition, calls ts.DoTrigger(reason).
// Homing mode is entered exactly once per call and exited by StopHoming.
func (es *Endstop) ArmHoming(sampleTicks uint32, ts *TriggerSync, reason uint8) {
	es.SampleTicks = sampleTicks
	es.sync = ts
	es.reason = reason
	es.homing = true
	es.latched = false

	CancelTimer(&es.timer)
	es.timer.WakeTime = GetTime()
	ScheduleTimer(&es.timer)
}

// StopHoming exits homing-mode and clears the latched flag.
func (es *Endstop) StopHoming() {
	es.homing = false
	es.latched = false
	CancelTimer(&es.timer)
}

func (es *Endstop) sample(t *Timer) uint8 {
	if !es.homing {
		return SF_DONE
	}

	triggered := es.Triggered()
	if triggered && !es.latched {
		es.latched = true
		if es.sync != nil {
			es.sync.DoTrigger(es.reason)
		}
		return SF_DONE
	}
	if !triggered {
		es.latched = false
	}

	t.WakeTime += es.SampleTicks
	return SF_RESCHEDULE
}
