package adb

// Samples is a raw buffer of measured low-pulse durations in microseconds.
// A slot holding TimeoutSentinel saw no pulse.
type Samples []uint32

// Sampler captures the low pulses of a device reply without knowing its
// length. It keeps sampling until a timeout follows the last pulse.
type Sampler struct {
	line *Line
}

// NewSampler returns a sampler bound to line
func NewSampler(line *Line) *Sampler {
	return &Sampler{line: line}
}

// Sample switches the line to sensed mode and records up to maxPulses low
// pulse durations. Timeouts before the first pulse consume a slot each and
// cover the device turnaround. The first timeout after a pulse ends the
// frame; the remaining slots keep TimeoutSentinel. The line is driven again
// before Sample returns.
func (s *Sampler) Sample(maxPulses int, timeoutUS uint32) (buf Samples, err error) {
	if maxPulses < 1 {
		maxPulses = 1
	}
	if maxPulses > MaxSampleCapacity {
		maxPulses = MaxSampleCapacity
	}
	buf = make(Samples, maxPulses)

	l := s.line
	if err := l.SetSensed(); err != nil {
		return buf, err
	}
	defer func() {
		if derr := l.SetDriven(); err == nil {
			err = derr
		}
	}()

	seen := false
	for i := range buf {
		if _, ok := l.timer.WaitForLevel(l.pin, false, timeoutUS); !ok {
			if seen {
				break
			}
			continue
		}
		seen = true
		d, ok := l.timer.WaitForLevel(l.pin, true, timeoutUS)
		if !ok {
			// stuck low
			break
		}
		if d == TimeoutSentinel {
			// a pulse shorter than the timer resolution still counts as noise
			d = 1
		}
		buf[i] = d
	}
	return buf, nil
}
