// Package adb implements the signal codec for a single-wire, self-clocked
// pulse-width peripheral bus (Apple Desktop Bus style).
//
// The host side of a bus cycle is: attention, sync, eight bit cells MSB
// first, stop. The device side is a reply of 0-8 bytes framed by a start
// bit and a stop bit. The codec only moves bits; it never interprets them.
package adb

import "errors"

// Nominal wire timing in microseconds
const (
	AttentionLowUS = 800  // host attention pulse
	SyncHighUS     = 65   // high interval after attention
	BitShortUS     = 35   // short phase of a bit cell
	BitLongUS      = 65   // long phase of a bit cell
	StopLowUS      = 70   // host stop pulse
	ResetLowUS     = 3000 // global reset low time
	ResetSettleUS  = 5000 // quiet time after global reset

	DefaultToleranceUS    = 5
	DefaultPulseTimeoutUS = 200
	// MaxPulseTimeoutUS bounds the wait for a transition. A cycle runs with
	// interrupts masked for up to capacity × timeout.
	MaxPulseTimeoutUS = 1000
)

// Buffer and frame limits
const (
	// MinSampleCapacity is start bit + 64 payload bits + stop bit
	MinSampleCapacity = 66
	// MaxSampleCapacity bounds the raw buffer a single cycle may allocate
	MaxSampleCapacity = 255
	// DefaultSampleCapacity leaves slack for turnaround timeouts
	DefaultSampleCapacity = 80

	// MaxResponseBytes is the longest reply a device can send
	MaxResponseBytes = 8
)

// TimeoutSentinel marks a sample slot where no pulse arrived in time
const TimeoutSentinel = 0

var (
	ErrInvalidTiming = errors.New("adb: invalid timing")
	ErrNotDriven     = errors.New("adb: line is not in driven mode")
)

// Timing holds every tunable duration of the codec. The zero value is not
// usable; start from DefaultTiming.
type Timing struct {
	AttentionLow uint32
	SyncHigh     uint32
	BitShort     uint32
	BitLong      uint32
	StopLow      uint32
	ResetLow     uint32
	ResetSettle  uint32

	// Tolerance is the half-width of each classification window
	Tolerance uint32
	// PulseTimeout bounds every wait for a transition while sampling
	PulseTimeout uint32
	// SampleCapacity is the number of raw slots sampled per cycle
	SampleCapacity int
}

// DefaultTiming returns the nominal bus timing
func DefaultTiming() Timing {
	return Timing{
		AttentionLow:   AttentionLowUS,
		SyncHigh:       SyncHighUS,
		BitShort:       BitShortUS,
		BitLong:        BitLongUS,
		StopLow:        StopLowUS,
		ResetLow:       ResetLowUS,
		ResetSettle:    ResetSettleUS,
		Tolerance:      DefaultToleranceUS,
		PulseTimeout:   DefaultPulseTimeoutUS,
		SampleCapacity: DefaultSampleCapacity,
	}
}

// Validate checks that the classification windows are disjoint, that the
// stop pulse falls outside both of them and that the sampler can tell a
// valid bit phase from end of frame within a bounded wait.
func (t Timing) Validate() error {
	switch {
	case t.Tolerance == 0:
		return ErrInvalidTiming
	case t.BitShort <= t.Tolerance || t.BitLong <= t.BitShort:
		return ErrInvalidTiming
	case t.BitShort+t.Tolerance > t.BitLong-t.Tolerance:
		// windows overlap
		return ErrInvalidTiming
	case t.inWindow(t.StopLow, t.BitShort) || t.inWindow(t.StopLow, t.BitLong):
		// the host stop pulse must never classify as a bit phase
		return ErrInvalidTiming
	case t.PulseTimeout <= t.BitLong+t.Tolerance || t.PulseTimeout > MaxPulseTimeoutUS:
		return ErrInvalidTiming
	case t.SampleCapacity < MinSampleCapacity || t.SampleCapacity > MaxSampleCapacity:
		return ErrInvalidTiming
	}
	return nil
}

// inWindow reports nominal-tol <= d < nominal+tol
func (t Timing) inWindow(d, nominal uint32) bool {
	var lo uint32
	if nominal > t.Tolerance {
		lo = nominal - t.Tolerance
	}
	return d >= lo && d < nominal+t.Tolerance
}
