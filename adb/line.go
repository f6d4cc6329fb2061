package adb

import "adbridge/core"

// Mode is the direction the bus line is configured for
type Mode uint8

const (
	// ModeDriven: host output, idle high
	ModeDriven Mode = iota
	// ModeSensed: input with pull-up
	ModeSensed
)

func (m Mode) String() string {
	if m == ModeSensed {
		return "sensed"
	}
	return "driven"
}

// Line owns the single shared signal line. It is the only accessor of the
// pin, so transmit and receive phases never overlap.
type Line struct {
	pin    core.GPIOPin
	gpio   core.GPIODriver
	timer  core.PulseTimer
	timing Timing
	mode   Mode
}

// NewLine wraps pin on the given HAL. The line is not touched until
// SetDriven, SetSensed or GlobalReset is called.
func NewLine(pin core.GPIOPin, gpio core.GPIODriver, timer core.PulseTimer, timing Timing) *Line {
	return &Line{
		pin:    pin,
		gpio:   gpio,
		timer:  timer,
		timing: timing,
		mode:   ModeSensed,
	}
}

// Mode returns the current line direction
func (l *Line) Mode() Mode {
	return l.mode
}

// SetDriven configures the line as host output asserted high
func (l *Line) SetDriven() error {
	if err := l.gpio.ConfigureOutput(l.pin); err != nil {
		return err
	}
	if err := l.gpio.SetPin(l.pin, true); err != nil {
		return err
	}
	l.mode = ModeDriven
	return nil
}

// SetSensed releases the line to an input with the idle pull-up engaged
func (l *Line) SetSensed() error {
	if err := l.gpio.ConfigureInputPullUp(l.pin); err != nil {
		return err
	}
	l.mode = ModeSensed
	return nil
}

// GlobalReset holds the line low long enough for every device to return to
// its default address, then waits for the bus to settle.
func (l *Line) GlobalReset() error {
	if err := l.SetDriven(); err != nil {
		return err
	}
	if err := l.gpio.SetPin(l.pin, false); err != nil {
		return err
	}
	l.timer.DelayMicros(l.timing.ResetLow)
	if err := l.gpio.SetPin(l.pin, true); err != nil {
		return err
	}
	l.timer.DelayMicros(l.timing.ResetSettle)
	return nil
}

// drive sets the level of a driven line
func (l *Line) drive(level bool) error {
	if l.mode != ModeDriven {
		return ErrNotDriven
	}
	return l.gpio.SetPin(l.pin, level)
}

// setTiming is called by Bus between cycles
func (l *Line) setTiming(t Timing) {
	l.timing = t
}
