//go:build !tinygo

package core

// MockGPIO is an in-memory GPIODriver for native-Go tests and the hosted
// console build, where no real hardware is attached.
type MockGPIO struct {
	pins map[GPIOPin]bool
}

// NewMockGPIO returns a ready-to-use mock driver with every pin low.
func NewMockGPIO() *MockGPIO {
	return &MockGPIO{pins: make(map[GPIOPin]bool)}
}

func (m *MockGPIO) ConfigureOutput(pin GPIOPin) error {
	m.pins[pin] = false
	return nil
}

func (m *MockGPIO) ConfigureInputPullUp(pin GPIOPin) error {
	m.pins[pin] = true // idle high, like a real pull-up
	return nil
}

func (m *MockGPIO) ConfigureInputPullDown(pin GPIOPin) error {
	m.pins[pin] = false
	return nil
}

func (m *MockGPIO) SetPin(pin GPIOPin, value bool) error {
	m.pins[pin] = value
	return nil
}

func (m *MockGPIO) GetPin(pin GPIOPin) (bool, error) {
	return m.pins[pin], nil
}

func (m *MockGPIO) ReadPin(pin GPIOPin) bool {
	return m.pins[pin]
}

// Force sets a pin's level directly, bypassing the driver contract, used by
// tests to simulate an endstop switch closing.
func (m *MockGPIO) Force(pin GPIOPin, value bool) {
	m.pins[pin] = value
}
