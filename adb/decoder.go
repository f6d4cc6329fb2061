package adb

// Class is the label a raw duration gets during frame recovery
type Class uint8

const (
	// ClassNone: timeout, noise, or a duration outside both windows
	ClassNone Class = iota
	// ClassZero: long low phase
	ClassZero
	// ClassOne: short low phase
	ClassOne
)

func (c Class) String() string {
	switch c {
	case ClassZero:
		return "0"
	case ClassOne:
		return "1"
	default:
		return "-"
	}
}

// IsBit reports whether c carries a logical bit
func (c Class) IsBit() bool {
	return c != ClassNone
}

// Classify labels a single low-phase duration. Durations between the two
// windows are ClassNone.
func (t Timing) Classify(d uint32) Class {
	switch {
	case d == TimeoutSentinel:
		return ClassNone
	case t.inWindow(d, t.BitShort):
		return ClassOne
	case t.inWindow(d, t.BitLong):
		return ClassZero
	default:
		return ClassNone
	}
}

// ClassifyCell labels a full low/high pair. The high phase has to sit in the
// window complementary to the low phase.
func (t Timing) ClassifyCell(p Pulse) Class {
	c := t.Classify(p.Low)
	switch c {
	case ClassOne:
		if t.inWindow(p.High, t.BitLong) {
			return ClassOne
		}
	case ClassZero:
		if t.inWindow(p.High, t.BitShort) {
			return ClassZero
		}
	}
	return ClassNone
}

// Frame is the result of frame recovery over one raw buffer
type Frame struct {
	// Start and Stop are the indexes of the framing pulses, -1 when empty
	Start int
	Stop  int
	// PayloadBits is the number of bits assembled into Bytes
	PayloadBits int
	// DroppedBits counts interior samples that were not assembled into Bytes
	DroppedBits int
	Bytes       []byte
}

// Empty reports whether no device answered
func (f Frame) Empty() bool {
	return len(f.Bytes) == 0
}

// Partial reports whether bits were dropped while assembling bytes
func (f Frame) Partial() bool {
	return f.DroppedBits > 0
}

func emptyFrame() Frame {
	return Frame{Start: -1, Stop: -1}
}

// Recover locates the start and stop markers in s and assembles the bits
// between them into bytes, MSB first. s is never modified.
//
// The payload runs from the sample after the start marker up to the first
// sample that is not a bit, or the stop marker. Bits that do not complete a
// byte, bits after an interior non-bit sample, and bytes beyond
// MaxResponseBytes are dropped and counted in DroppedBits.
func (t Timing) Recover(s Samples) Frame {
	start := -1
	for i, d := range s {
		if t.Classify(d).IsBit() {
			start = i
			break
		}
	}
	if start < 0 {
		return emptyFrame()
	}

	stop := -1
	for i := len(s) - 1; i > start; i-- {
		if t.Classify(s[i]).IsBit() {
			stop = i
			break
		}
	}
	if stop < 0 {
		// single pulse of noise, no stop marker
		return emptyFrame()
	}

	interior := stop - start - 1
	bits := 0
	for _, d := range s[start+1 : stop] {
		if !t.Classify(d).IsBit() {
			break
		}
		bits++
	}

	n := bits / 8
	if n > MaxResponseBytes {
		n = MaxResponseBytes
	}
	f := Frame{
		Start:       start,
		Stop:        stop,
		PayloadBits: n * 8,
		DroppedBits: interior - n*8,
		Bytes:       make([]byte, n),
	}
	for i := 0; i < n*8; i++ {
		if t.Classify(s[start+1+i]) == ClassOne {
			f.Bytes[i/8] |= 0x80 >> uint(i%8)
		}
	}
	return f
}

// Decode returns the reply bytes recovered from s
func (t Timing) Decode(s Samples) []byte {
	return t.Recover(s).Bytes
}
