package adb

import "adbridge/core"

// Stats counts bus cycles since the last reset of the counters
type Stats struct {
	Commands uint32
	Replies  uint32
	Empty    uint32
	Partial  uint32
	Errors   uint32
}

// Bus runs full transmit+receive cycles on one line. A cycle is the atomic
// unit of work: nothing else touches the line while it runs.
type Bus struct {
	line    *Line
	encoder *Encoder
	sampler *Sampler
	timing  Timing
	stats   Stats
}

// NewBus builds the codec on pin. It returns ErrInvalidTiming if timing
// does not validate.
func NewBus(pin core.GPIOPin, gpio core.GPIODriver, timer core.PulseTimer, timing Timing) (*Bus, error) {
	if err := timing.Validate(); err != nil {
		return nil, err
	}
	line := NewLine(pin, gpio, timer, timing)
	return &Bus{
		line:    line,
		encoder: NewEncoder(line),
		sampler: NewSampler(line),
		timing:  timing,
	}, nil
}

// Line returns the underlying line driver
func (b *Bus) Line() *Line {
	return b.line
}

// Encoder returns the pulse encoder, e.g. to install a hardware player
func (b *Bus) Encoder() *Encoder {
	return b.encoder
}

// Timing returns the active timing
func (b *Bus) Timing() Timing {
	return b.timing
}

// SetTiming swaps the timing used by subsequent cycles
func (b *Bus) SetTiming(t Timing) error {
	if err := t.Validate(); err != nil {
		return err
	}
	b.timing = t
	b.line.setTiming(t)
	return nil
}

// Stats returns a copy of the cycle counters
func (b *Bus) Stats() Stats {
	return b.stats
}

// Reset performs the global bus reset and leaves the line driven high
func (b *Bus) Reset() error {
	return b.line.GlobalReset()
}

// Transact transmits word and recovers whatever the addressed device sends
// back. A silent device gives an empty frame, not an error.
func (b *Bus) Transact(word byte) (Frame, error) {
	b.stats.Commands++
	if b.line.Mode() != ModeDriven {
		if err := b.line.SetDriven(); err != nil {
			b.stats.Errors++
			return emptyFrame(), err
		}
	}

	state := core.DisableInterrupts()
	err := b.encoder.Transmit(word)
	var raw Samples
	if err == nil {
		raw, err = b.sampler.Sample(b.timing.SampleCapacity, b.timing.PulseTimeout)
	}
	core.RestoreInterrupts(state)
	if err != nil {
		b.stats.Errors++
		return emptyFrame(), err
	}

	f := b.timing.Recover(raw)
	switch {
	case f.Empty():
		b.stats.Empty++
	default:
		b.stats.Replies++
	}
	if f.Partial() {
		b.stats.Partial++
	}
	core.RecordBusEvent(core.EvtTransact, word, uint32(len(f.Bytes)), uint32(f.DroppedBits))
	return f, nil
}
