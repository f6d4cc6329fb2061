package adb

// Pulse is one low phase followed by one high phase, in microseconds.
// High == 0 means the line is released to idle after the low phase.
type Pulse struct {
	Low  uint32
	High uint32
}

// Waveform is the ordered pulse list for one host command
type Waveform []Pulse

// CommandPulses is the fixed length of every command waveform:
// attention+sync, eight bit cells, stop
const CommandPulses = 1 + 8 + 1

// WaveformPlayer puts a waveform on the wire. The line is already in
// driven mode and idle high when Play is called, and must be left high.
type WaveformPlayer interface {
	Play(w Waveform) error
}

// Encoder turns command words into timed pulses
type Encoder struct {
	line   *Line
	player WaveformPlayer
}

// NewEncoder returns an encoder that bit-bangs through line. Use
// SetPlayer to hand the waveform to a hardware backend instead.
func NewEncoder(line *Line) *Encoder {
	e := &Encoder{line: line}
	e.player = bitBangPlayer{line: line}
	return e
}

// SetPlayer replaces the waveform backend
func (e *Encoder) SetPlayer(p WaveformPlayer) {
	if p == nil {
		p = bitBangPlayer{line: e.line}
	}
	e.player = p
}

// Cell returns the bit cell for one logical bit
func (t Timing) Cell(bit bool) Pulse {
	if bit {
		return Pulse{Low: t.BitShort, High: t.BitLong}
	}
	return Pulse{Low: t.BitLong, High: t.BitShort}
}

// Waveform builds the wire sequence for word, MSB first
func (t Timing) Waveform(word byte) Waveform {
	w := make(Waveform, 0, CommandPulses)
	w = append(w, Pulse{Low: t.AttentionLow, High: t.SyncHigh})
	for i := 7; i >= 0; i-- {
		w = append(w, t.Cell(word&(1<<uint(i)) != 0))
	}
	w = append(w, Pulse{Low: t.StopLow})
	return w
}

// Transmit sends word on the bus. There is no feedback channel during
// transmit, so only HAL errors are reported.
func (e *Encoder) Transmit(word byte) error {
	if e.line.mode != ModeDriven {
		return ErrNotDriven
	}
	return e.player.Play(e.line.timing.Waveform(word))
}

// bitBangPlayer toggles the pin through the HAL and times phases with
// busy waits
type bitBangPlayer struct {
	line *Line
}

func (p bitBangPlayer) Play(w Waveform) error {
	l := p.line
	for _, pulse := range w {
		if err := l.drive(false); err != nil {
			return err
		}
		l.timer.DelayMicros(pulse.Low)
		if err := l.drive(true); err != nil {
			return err
		}
		if pulse.High > 0 {
			l.timer.DelayMicros(pulse.High)
		}
	}
	return nil
}
