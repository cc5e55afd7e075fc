package core

// GenericGPIOStepperBackend drives a stepper via the abstract GPIODriver
// interface instead of direct register pokes. It is the only backend this
// firmware ships: every axis steps through MustGPIO() rather than
// platform-specific SIO register access.
type GenericGPIOStepperBackend struct {
	stepPin    GPIOPin
	dirPin     GPIOPin
	invertStep bool
	invertDir  bool
}

// NewGenericGPIOStepperBackend creates a backend that will configure its
// pins via the registered GPIODriver on Init.
func NewGenericGPIOStepperBackend() *GenericGPIOStepperBackend {
	return &GenericGPIOStepperBackend{}
}

// Init configures the step/dir pins as outputs, driven low.
func (b *GenericGPIOStepperBackend) Init(stepPin, dirPin uint8, invertStep, invertDir bool) error {
	b.stepPin = GPIOPin(stepPin)
	b.dirPin = GPIOPin(dirPin)
	b.invertStep = invertStep
	b.invertDir = invertDir

	if err := MustGPIO().ConfigureOutput(b.stepPin); err != nil {
		return err
	}
	if err := MustGPIO().ConfigureOutput(b.dirPin); err != nil {
		return err
	}
	_ = MustGPIO().SetPin(b.stepPin, b.invertStep)
	_ = MustGPIO().SetPin(b.dirPin, b.invertDir)
	return nil
}

// Step toggles the step pin high then low. There is no pulse-width delay
// here: MustGPIO() calls already cost
// far more than a driver's minimum pulse width on any platform that goes
// through this path.
func (b *GenericGPIOStepperBackend) Step() {
	_ = MustGPIO().SetPin(b.stepPin, !b.invertStep)
	_ = MustGPIO().SetPin(b.stepPin, b.invertStep)
}

// SetDirection drives the direction pin.
func (b *GenericGPIOStepperBackend) SetDirection(dir bool) {
	level := dir
	if b.invertDir {
		level = !level
	}
	_ = MustGPIO().SetPin(b.dirPin, level)
}

// Stop drives the step pin to its inactive level.
func (b *GenericGPIOStepperBackend) Stop() {
	_ = MustGPIO().SetPin(b.stepPin, b.invertStep)
}

// GetName returns the backend implementation name.
func (b *GenericGPIOStepperBackend) GetName() string {
	return "generic-gpio"
}
