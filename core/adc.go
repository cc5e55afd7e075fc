// ADC (Analog to Digital Converter) support.
// A periodic-oversampling timer loop: configure a channel, start it,
// receive accumulated samples through a callback.
package core

// AnalogSampler periodically oversamples an ADC channel and reports the
// accumulated value through OnSample.
type AnalogSampler struct {
	Pin uint32

	RestTicks   uint32 // ticks between reporting cycles
	SampleTicks uint32 // ticks between individual samples
	SampleCount uint8  // number of samples to accumulate per cycle

	OnSample func(sum uint32, count uint8) // called once per completed cycle

	timer   Timer
	sum     uint32
	samples uint8
	running bool
}

// NewAnalogSampler configures the ADC pin for sampling.
func NewAnalogSampler(pin uint32) (*AnalogSampler, error) {
	if err := ADCSetup(pin); err != nil {
		return nil, err
	}
	as := &AnalogSampler{Pin: pin}
	as.timer.Handler = as.tick
	return as, nil
}

// Start begins periodic sampling at the given ticks.
func (as *AnalogSampler) Start(restTicks, sampleTicks uint32, sampleCount uint8) {
	as.RestTicks = restTicks
	as.SampleTicks = sampleTicks
	as.SampleCount = sampleCount
	as.sum = 0
	as.samples = 0
	as.running = true

	as.timer.WakeTime = GetTime()
	ScheduleTimer(&as.timer)
}

// Stop halts sampling and cancels any pending conversion.
func (as *AnalogSampler) Stop() {
	as.running = false
	CancelTimer(&as.timer)
	ADCCancel(as.Pin)
}

func (as *AnalogSampler) tick(t *Timer) uint8 {
	if !as.running {
		return SF_DONE
	}

	value, ready := ADCSample(as.Pin)
	if !ready {
		t.WakeTime = GetTime() + 100
		return SF_RESCHEDULE
	}

	as.sum += uint32(value)
	as.samples++

	if as.samples >= as.SampleCount {
		if as.OnSample != nil {
			as.OnSample(as.sum, as.samples)
		}
		as.sum = 0
		as.samples = 0
		t.WakeTime += as.RestTicks
		return SF_RESCHEDULE
	}

	t.WakeTime = GetTime() + as.SampleTicks
	return SF_RESCHEDULE
}
