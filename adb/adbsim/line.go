// Package adbsim simulates the bus line on a virtual microsecond clock so
// the codec can be exercised without hardware. It implements both
// core.GPIODriver and core.PulseTimer.
package adbsim

import (
	"errors"

	"adbridge/adb"
	"adbridge/core"
)

var ErrWrongPin = errors.New("adbsim: unknown pin")

// Segment is a stretch of constant line level
type Segment struct {
	Level    bool
	Duration uint32
}

// Line is a simulated bus line with one attached device. While the host
// drives it the simulator records what was sent; while it is sensed the
// simulator plays the queued device reply.
type Line struct {
	pin core.GPIOPin

	now    uint64
	output bool
	level  bool

	// host side recording
	edgeAt   uint64
	recorded []Segment

	// device side playback
	replies    [][]Segment
	script     []Segment
	scriptAt   uint64
	stuckLow   bool
	senseCount int
}

// NewLine returns an idle line on pin
func NewLine(pin core.GPIOPin) *Line {
	return &Line{pin: pin, level: true}
}

// Now returns the virtual time in microseconds
func (l *Line) Now() uint64 {
	return l.now
}

// Respond queues the device reply for the next receive phase. Each call
// queues one reply; a phase with nothing queued stays idle high.
func (l *Line) Respond(segments ...Segment) {
	l.replies = append(l.replies, segments)
}

// SetStuckLow models a shorted line: it reads low whenever sensed
func (l *Line) SetStuckLow(stuck bool) {
	l.stuckLow = stuck
}

// SenseCount returns how many times the line was switched to input
func (l *Line) SenseCount() int {
	return l.senseCount
}

// Segments returns the closed segments the host drove, oldest first
func (l *Line) Segments() []Segment {
	return append([]Segment(nil), l.recorded...)
}

// ClearSegments forgets recorded host segments
func (l *Line) ClearSegments() {
	l.recorded = nil
	l.edgeAt = l.now
}

// ConfigureOutput implements core.GPIODriver
func (l *Line) ConfigureOutput(pin core.GPIOPin) error {
	if pin != l.pin {
		return ErrWrongPin
	}
	if !l.output {
		l.output = true
		l.edgeAt = l.now
	}
	return nil
}

// ConfigureInputPullUp implements core.GPIODriver
func (l *Line) ConfigureInputPullUp(pin core.GPIOPin) error {
	if pin != l.pin {
		return ErrWrongPin
	}
	if l.output {
		l.closeSegment()
		l.output = false
		l.senseCount++
		l.script = nil
		if len(l.replies) > 0 {
			l.script = l.replies[0]
			l.replies = l.replies[1:]
		}
		l.scriptAt = l.now
	}
	return nil
}

// SetPin implements core.GPIODriver. Writes to a sensed pin are ignored like
// on real hardware.
func (l *Line) SetPin(pin core.GPIOPin, value bool) error {
	if pin != l.pin {
		return ErrWrongPin
	}
	if !l.output {
		return nil
	}
	if value != l.level {
		l.closeSegment()
		l.level = value
	}
	return nil
}

// GetPin implements core.GPIODriver
func (l *Line) GetPin(pin core.GPIOPin) (bool, error) {
	if pin != l.pin {
		return false, ErrWrongPin
	}
	return l.levelAt(l.now), nil
}

// DelayMicros implements core.PulseTimer
func (l *Line) DelayMicros(us uint32) {
	l.now += uint64(us)
}

// WaitForLevel implements core.PulseTimer
func (l *Line) WaitForLevel(pin core.GPIOPin, level bool, timeoutUS uint32) (uint32, bool) {
	if pin != l.pin {
		return timeoutUS, false
	}
	at, ok := l.nextLevel(level)
	if !ok || at-l.now > uint64(timeoutUS) {
		l.now += uint64(timeoutUS)
		return timeoutUS, false
	}
	elapsed := at - l.now
	l.now = at
	return uint32(elapsed), true
}

func (l *Line) closeSegment() {
	if d := l.now - l.edgeAt; d > 0 {
		l.recorded = append(l.recorded, Segment{Level: l.level, Duration: uint32(d)})
	}
	l.edgeAt = l.now
}

// levelAt returns the line level at time t
func (l *Line) levelAt(t uint64) bool {
	if l.output {
		return l.level
	}
	if l.stuckLow {
		return false
	}
	at := l.scriptAt
	for _, seg := range l.script {
		if t < at+uint64(seg.Duration) {
			return seg.Level
		}
		at += uint64(seg.Duration)
	}
	// pull-up after the reply
	return true
}

// nextLevel returns the earliest time >= now the line reads level
func (l *Line) nextLevel(level bool) (uint64, bool) {
	if l.levelAt(l.now) == level {
		return l.now, true
	}
	if l.output || l.stuckLow {
		return 0, false
	}
	at := l.scriptAt
	for _, seg := range l.script {
		end := at + uint64(seg.Duration)
		if end > l.now && seg.Level == level && at >= l.now {
			return at, true
		}
		at = end
	}
	if level && at >= l.now {
		return at, true
	}
	return 0, false
}

// Reply builds the segments of a device answering data: turnaround idle,
// start bit, payload bits MSB first, stop bit. A nil data gives a silent
// device.
func Reply(t adb.Timing, turnaroundUS uint32, data []byte) []Segment {
	if len(data) == 0 {
		return nil
	}
	segs := []Segment{{Level: true, Duration: turnaroundUS}}
	segs = append(segs, cellSegments(t.Cell(true))...)
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			segs = append(segs, cellSegments(t.Cell(b&(1<<uint(i)) != 0))...)
		}
	}
	return append(segs, cellSegments(t.Cell(false))...)
}

// Pulses converts raw low durations into segments, each low followed by
// highUS of idle. Useful to inject noise or malformed frames.
func Pulses(turnaroundUS, highUS uint32, lows ...uint32) []Segment {
	segs := []Segment{{Level: true, Duration: turnaroundUS}}
	for _, low := range lows {
		segs = append(segs, Segment{Level: false, Duration: low}, Segment{Level: true, Duration: highUS})
	}
	return segs
}

func cellSegments(p adb.Pulse) []Segment {
	return []Segment{{Level: false, Duration: p.Low}, {Level: true, Duration: p.High}}
}
