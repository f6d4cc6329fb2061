package core

import "testing"

// MockGPIODriver is a test implementation of GPIODriver
type MockGPIODriver struct {
	pins   map[GPIOPin]bool
	inputs map[GPIOPin]bool
}

func NewMockGPIODriver() *MockGPIODriver {
	return &MockGPIODriver{
		pins:   make(map[GPIOPin]bool),
		inputs: make(map[GPIOPin]bool),
	}
}

func (m *MockGPIODriver) ConfigureOutput(pin GPIOPin) error {
	m.inputs[pin] = false
	return nil
}

func (m *MockGPIODriver) ConfigureInputPullUp(pin GPIOPin) error {
	m.inputs[pin] = true
	m.pins[pin] = true
	return nil
}

func (m *MockGPIODriver) SetPin(pin GPIOPin, value bool) error {
	m.pins[pin] = value
	return nil
}

func (m *MockGPIODriver) GetPin(pin GPIOPin) (bool, error) {
	return m.pins[pin], nil
}

type mockTimer struct {
	elapsed uint32
}

func (m *mockTimer) DelayMicros(us uint32) {
	m.elapsed += us
}

func (m *mockTimer) WaitForLevel(pin GPIOPin, level bool, timeoutUS uint32) (uint32, bool) {
	m.elapsed += timeoutUS
	return timeoutUS, false
}

func expectPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("Expected %s to panic when unset", name)
		}
	}()
	fn()
}

func TestHALRegistration(t *testing.T) {
	SetGPIODriver(nil)
	SetPulseTimer(nil)
	expectPanic(t, "MustGPIO", func() { MustGPIO() })
	expectPanic(t, "MustPulseTimer", func() { MustPulseTimer() })

	driver := NewMockGPIODriver()
	timer := &mockTimer{}
	SetGPIODriver(driver)
	SetPulseTimer(timer)
	defer SetGPIODriver(nil)
	defer SetPulseTimer(nil)

	if MustGPIO() != GPIODriver(driver) {
		t.Error("Expected the registered GPIO driver")
	}
	if MustPulseTimer() != PulseTimer(timer) {
		t.Error("Expected the registered pulse timer")
	}

	pin := GPIOPin(25)
	MustGPIO().ConfigureInputPullUp(pin)
	if v, _ := MustGPIO().GetPin(pin); !v {
		t.Error("Expected pull-up to read high")
	}
	MustPulseTimer().DelayMicros(35)
	if _, ok := MustPulseTimer().WaitForLevel(pin, false, 200); ok {
		t.Error("Expected WaitForLevel to time out")
	}
	if timer.elapsed != 235 {
		t.Errorf("Expected 235us elapsed, got %d", timer.elapsed)
	}
}

func TestInterruptStateRoundTrip(t *testing.T) {
	state := DisableInterrupts()
	RestoreInterrupts(state)
}
