package core

// PulseTimer provides the microsecond timing primitives the bus codec needs.
// Implementations busy-wait; they must not yield to a scheduler while a
// transmit or receive phase is running.
type PulseTimer interface {
	// DelayMicros blocks for us microseconds
	DelayMicros(us uint32)

	// WaitForLevel polls pin until it reads level or timeoutUS elapses.
	// It returns the elapsed microseconds and whether the level was seen.
	// On timeout the elapsed value is timeoutUS.
	WaitForLevel(pin GPIOPin, level bool, timeoutUS uint32) (uint32, bool)
}

var pulseTimer PulseTimer

// SetPulseTimer is called by target-specific code to register its timer.
func SetPulseTimer(t PulseTimer) {
	pulseTimer = t
}

// MustPulseTimer returns the configured timer or panics if missing.
func MustPulseTimer() PulseTimer {
	if pulseTimer == nil {
		panic("pulse timer not configured")
	}
	return pulseTimer
}
