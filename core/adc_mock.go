//go:build !tinygo

package core

// mockADC backs the ADC HAL vars on native builds (tests, hosted console)
// where no real converter exists. Every channel reads ready immediately
// with whatever value was last set via SetMockADC, defaulting to 0.
var mockADCValues = make(map[uint32]uint16)

func init() {
	ADCSetup = func(pin uint32) error {
		if _, ok := mockADCValues[pin]; !ok {
			mockADCValues[pin] = 0
		}
		return nil
	}
	ADCSample = func(pin uint32) (uint16, bool) {
		return mockADCValues[pin], true
	}
	ADCCancel = func(pin uint32) {}
}

// SetMockADC sets the value the mock ADC backend will report for pin, for
// use by tests that simulate a thermistor reading.
func SetMockADC(pin uint32, value uint16) {
	mockADCValues[pin] = value
}
