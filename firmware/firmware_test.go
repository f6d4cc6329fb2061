package firmware

import (
	"bytes"
	"testing"

	"adbridge/adb"
	"adbridge/adb/adbsim"
	"adbridge/core"
	"adbridge/protocol"
)

const testPin core.GPIOPin = 4

type fixture struct {
	fw  *Firmware
	sim *adbsim.Line
	out *protocol.ScratchOutput
	seq uint8
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sim := adbsim.NewLine(testPin)
	bus, err := adb.NewBus(testPin, sim, sim, adb.DefaultTiming())
	if err != nil {
		t.Fatalf("NewBus failed: %v", err)
	}
	out := protocol.NewScratchOutput()
	return &fixture{fw: New(bus, out), sim: sim, out: out, seq: protocol.MessageDest}
}

// call sends one request and returns the single response it produced
func (f *fixture) call(t *testing.T, id uint16, args func(protocol.OutputBuffer)) protocol.Message {
	t.Helper()
	req := protocol.NewScratchOutput()
	if err := protocol.EncodeFrame(req, f.seq, id, args); err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	seq := f.seq
	f.seq = ((f.seq + 1) & protocol.MessageSeqMask) | protocol.MessageDest

	f.out.Reset()
	f.fw.Receive(protocol.NewSliceInputBuffer(req.Result()))

	var s protocol.Scanner
	msg, rest, ok := s.Next(f.out.Result())
	if !ok {
		t.Fatalf("Expected a response to message %d", id)
	}
	if len(rest) != 0 {
		t.Errorf("Expected exactly one response, %d bytes left", len(rest))
	}
	if msg.Sequence != seq {
		t.Errorf("Expected sequence 0x%02x echoed, got 0x%02x", seq, msg.Sequence)
	}
	return msg
}

func decodeUints(t *testing.T, args []byte, n int) []uint32 {
	t.Helper()
	out := make([]uint32, n)
	for i := range out {
		v, err := protocol.DecodeVLQUint(&args)
		if err != nil {
			t.Fatalf("Argument %d: %v", i, err)
		}
		out[i] = v
	}
	return out
}

func TestStartupWritesReadyMarker(t *testing.T) {
	f := newFixture(t)

	if err := f.fw.Startup(); err != nil {
		t.Fatalf("Startup failed: %v", err)
	}
	if !bytes.Equal(f.out.Result(), []byte{protocol.ReadyMarker}) {
		t.Errorf("Expected only the ready marker, got % x", f.out.Result())
	}
	segs := f.sim.Segments()
	if len(segs) != 1 || segs[0].Duration != adb.ResetLowUS {
		t.Errorf("Expected a global reset on startup, got %+v", segs)
	}
}

func TestRegistryHasBusCommands(t *testing.T) {
	f := newFixture(t)

	if f.fw.Registry().Count() != 4 {
		t.Errorf("Expected 4 commands, got %d", f.fw.Registry().Count())
	}
	cmd, ok := f.fw.Registry().GetCommand(protocol.MsgBusCommand)
	if !ok || cmd.Name != "bus_command" || cmd.Format != "word=%c" {
		t.Errorf("Unexpected bus_command entry %+v", cmd)
	}
}

func TestBusReset(t *testing.T) {
	f := newFixture(t)

	msg := f.call(t, protocol.MsgBusReset, nil)
	if msg.ID != protocol.MsgBusResetDone {
		t.Errorf("Expected bus_reset_done, got %d", msg.ID)
	}
}

func TestBusCommandReply(t *testing.T) {
	f := newFixture(t)
	if err := f.fw.Startup(); err != nil {
		t.Fatalf("Startup failed: %v", err)
	}
	f.sim.Respond(adbsim.Reply(adb.DefaultTiming(), 160, []byte{0x61, 0x80})...)

	msg := f.call(t, protocol.MsgBusCommand, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, 0x3C)
	})
	if msg.ID != protocol.MsgBusReply {
		t.Fatalf("Expected bus_reply, got %d", msg.ID)
	}

	args := msg.Args
	head := decodeUints(t, args, 2)
	if head[0] != 0x3C || head[1] != 0 {
		t.Errorf("Expected word 0x3c partial 0, got %v", head)
	}
	// skip the two single-byte VLQs
	args = args[2:]
	data, err := protocol.DecodeVLQBytes(&args)
	if err != nil {
		t.Fatalf("DecodeVLQBytes failed: %v", err)
	}
	if !bytes.Equal(data, []byte{0x61, 0x80}) {
		t.Errorf("Expected 61 80, got % x", data)
	}
}

func TestBusCommandSilentDevice(t *testing.T) {
	f := newFixture(t)

	msg := f.call(t, protocol.MsgBusCommand, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, 0x2C)
	})
	args := msg.Args[2:]
	data, err := protocol.DecodeVLQBytes(&args)
	if err != nil {
		t.Fatalf("DecodeVLQBytes failed: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("Expected empty reply, got % x", data)
	}
}

func TestBusCommandBadWord(t *testing.T) {
	f := newFixture(t)
	req := protocol.NewScratchOutput()
	protocol.EncodeFrame(req, protocol.MessageDest, protocol.MsgBusCommand, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, 0x1FF)
	})

	f.fw.Receive(protocol.NewSliceInputBuffer(req.Result()))
	if len(f.out.Result()) != 0 {
		t.Errorf("Expected no reply to an out of range word, got % x", f.out.Result())
	}

	msg := f.call(t, protocol.MsgGetStats, nil)
	st := decodeUints(t, msg.Args, 5)
	if st[4] != 1 {
		t.Errorf("Expected 1 error, got %d", st[4])
	}
}

func TestBusConfigure(t *testing.T) {
	f := newFixture(t)

	msg := f.call(t, protocol.MsgBusConfigure, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, 4)
		protocol.EncodeVLQUint(o, 250)
		protocol.EncodeVLQUint(o, 100)
	})
	if msg.ID != protocol.MsgBusConfigured {
		t.Fatalf("Expected bus_configured, got %d", msg.ID)
	}
	if st := decodeUints(t, msg.Args, 1); st[0] != protocol.StatusOK {
		t.Errorf("Expected status ok, got %d", st[0])
	}
	tm := f.fw.Bus().Timing()
	if tm.Tolerance != 4 || tm.PulseTimeout != 250 || tm.SampleCapacity != 100 {
		t.Errorf("Timing not applied: %+v", tm)
	}

	msg = f.call(t, protocol.MsgBusConfigure, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, 0)
		protocol.EncodeVLQUint(o, 250)
		protocol.EncodeVLQUint(o, 100)
	})
	if st := decodeUints(t, msg.Args, 1); st[0] != protocol.StatusRejected {
		t.Errorf("Expected status rejected, got %d", st[0])
	}
	if f.fw.Bus().Timing().Tolerance != 4 {
		t.Error("Rejected timing must leave the bus unchanged")
	}

	// a timeout this long would mask interrupts for hours
	msg = f.call(t, protocol.MsgBusConfigure, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, 4)
		protocol.EncodeVLQUint(o, 4_000_000_000)
		protocol.EncodeVLQUint(o, 100)
	})
	if st := decodeUints(t, msg.Args, 1); st[0] != protocol.StatusRejected {
		t.Errorf("Expected status rejected for an unbounded timeout, got %d", st[0])
	}
	if f.fw.Bus().Timing().PulseTimeout != 250 {
		t.Errorf("Expected timeout to stay 250, got %d", f.fw.Bus().Timing().PulseTimeout)
	}
}

func TestGetStats(t *testing.T) {
	f := newFixture(t)
	f.sim.Respond(adbsim.Reply(adb.DefaultTiming(), 160, []byte{0x01})...)

	for _, word := range []uint32{0x3C, 0x2C} {
		f.call(t, protocol.MsgBusCommand, func(o protocol.OutputBuffer) {
			protocol.EncodeVLQUint(o, word)
		})
	}

	msg := f.call(t, protocol.MsgGetStats, nil)
	if msg.ID != protocol.MsgStats {
		t.Fatalf("Expected stats, got %d", msg.ID)
	}
	st := decodeUints(t, msg.Args, 5)
	want := []uint32{2, 1, 1, 0, 0}
	for i := range want {
		if st[i] != want[i] {
			t.Errorf("Stats field %d: expected %d, got %d", i, want[i], st[i])
		}
	}
}
