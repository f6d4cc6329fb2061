package bridge

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"adbridge/adb"
	"adbridge/adb/adbsim"
	"adbridge/core"
	"adbridge/firmware"
	"adbridge/host/config"
	"adbridge/protocol"
)

const simPin core.GPIOPin = 7

// startFirmware runs the bridge firmware against a simulated bus on the
// far end of a pipe
func startFirmware(t *testing.T, conn net.Conn) *adbsim.Line {
	return startFirmwareAnnounce(t, conn, true)
}

// startFirmwareAnnounce with announce false models a bridge that booted
// before the host connected
func startFirmwareAnnounce(t *testing.T, conn net.Conn, announce bool) *adbsim.Line {
	t.Helper()
	sim := adbsim.NewLine(simPin)
	bus, err := adb.NewBus(simPin, sim, sim, adb.DefaultTiming())
	require.NoError(t, err)

	out := protocol.NewScratchOutput()
	fw := firmware.New(bus, out)

	go func() {
		if err := fw.Startup(); err != nil {
			return
		}
		if !announce {
			out.Reset()
		}
		fifo := protocol.NewFifoBuffer(256)
		buf := make([]byte, 64)
		for {
			if len(out.Result()) > 0 {
				if _, err := conn.Write(out.Result()); err != nil {
					return
				}
				out.Reset()
			}
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			fifo.Write(buf[:n])
			fw.Receive(fifo)
		}
	}()
	return sim
}

func newConnected(t *testing.T) (*Bridge, *adbsim.Line) {
	t.Helper()
	hostEnd, fwEnd := net.Pipe()
	sim := startFirmware(t, fwEnd)

	b := New(hostEnd, WithResponseTimeout(time.Second))
	t.Cleanup(func() {
		b.Close()
		fwEnd.Close()
	})
	require.NoError(t, b.WaitReady(time.Second))
	return b, sim
}

func TestBridgeCommandReply(t *testing.T) {
	b, sim := newConnected(t)
	sim.Respond(adbsim.Reply(adb.DefaultTiming(), 160, []byte{0x61, 0x80})...)

	r, err := b.Command(Talk(3, 0))
	require.NoError(t, err)
	require.Equal(t, Word(0x3C), r.Word)
	require.Equal(t, []byte{0x61, 0x80}, r.Data)
	require.False(t, r.Partial)
}

func TestBridgeSilentDevice(t *testing.T) {
	b, _ := newConnected(t)

	r, err := b.Command(Talk(2, 0))
	require.NoError(t, err)
	require.True(t, r.Empty())
	require.False(t, r.Partial)
}

func TestBridgePartialReply(t *testing.T) {
	b, sim := newConnected(t)
	// start, 12 bits of ones, stop
	lows := []uint32{35}
	for i := 0; i < 12; i++ {
		lows = append(lows, 35)
	}
	lows = append(lows, 65)
	sim.Respond(adbsim.Pulses(160, 65, lows...)...)

	r, err := b.Command(Talk(3, 0))
	require.NoError(t, err)
	require.Equal(t, []byte{0xFF}, r.Data)
	require.True(t, r.Partial)
}

func TestBridgeConfigureAndStats(t *testing.T) {
	b, sim := newConnected(t)

	tm := adb.DefaultTiming()
	tm.Tolerance = 4
	require.NoError(t, b.Configure(tm))

	tm.Tolerance = 0
	require.ErrorIs(t, b.Configure(tm), adb.ErrInvalidTiming)

	sim.Respond(adbsim.Reply(adb.DefaultTiming(), 160, []byte{0x01})...)
	_, err := b.Command(Talk(3, 0))
	require.NoError(t, err)
	_, err = b.Command(Talk(2, 0))
	require.NoError(t, err)
	require.NoError(t, b.Reset())

	st, err := b.Stats()
	require.NoError(t, err)
	require.Equal(t, Stats{Commands: 2, Replies: 1, Empty: 1}, st)
}

func TestBridgeSetup(t *testing.T) {
	hostEnd, fwEnd := net.Pipe()
	sim := startFirmware(t, fwEnd)
	b := New(hostEnd)
	defer b.Close()
	defer fwEnd.Close()

	cfg := config.Default()
	cfg.Bus.ResetOnConnect = true
	require.NoError(t, b.Setup(cfg))
	// startup reset plus the one requested on connect
	resets := 0
	for _, seg := range sim.Segments() {
		if !seg.Level && seg.Duration == adb.ResetLowUS {
			resets++
		}
	}
	require.Equal(t, 2, resets)
}

func TestBridgeSetupAlreadyRunning(t *testing.T) {
	hostEnd, fwEnd := net.Pipe()
	startFirmwareAnnounce(t, fwEnd, false)
	b := New(hostEnd)
	defer b.Close()
	defer fwEnd.Close()

	cfg := config.Default()
	cfg.Timeouts.Ready = 20 * time.Millisecond
	require.NoError(t, b.Setup(cfg))

	_, err := b.Command(Talk(3, 0))
	require.NoError(t, err)
}

func TestBridgeWaitReadyTimeout(t *testing.T) {
	hostEnd, fwEnd := net.Pipe()
	defer fwEnd.Close()
	b := New(hostEnd)
	defer b.Close()

	err := b.WaitReady(20 * time.Millisecond)
	require.ErrorIs(t, err, protocol.ErrTimeout)
}
