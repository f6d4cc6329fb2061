// Package bridge is the host client of the bus bridge firmware
package bridge

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"adbridge/adb"
	"adbridge/host/config"
	"adbridge/host/serial"
	"adbridge/protocol"
)

var (
	ErrRejected        = errors.New("bridge rejected the timing")
	ErrUnexpectedReply = errors.New("unexpected response")
	ErrNotConnected    = errors.New("not connected to bridge")
)

const defaultCallDeadline = 500 * time.Millisecond

// Reply is the device answer to one command word
type Reply struct {
	Word    Word
	Partial bool
	Data    []byte
}

// Empty reports whether no device answered
func (r Reply) Empty() bool {
	return len(r.Data) == 0
}

// Stats mirrors the bridge cycle counters
type Stats struct {
	Commands uint32
	Replies  uint32
	Empty    uint32
	Partial  uint32
	Errors   uint32
}

// Bridge is a connection to one bridge firmware
type Bridge struct {
	// Transport layer
	transport *protocol.HostTransport

	port    io.ReadWriteCloser
	log     zerolog.Logger
	timeout time.Duration

	// last timing the bridge accepted
	timing adb.Timing
}

// Option configures a Bridge
type Option func(*Bridge)

// WithLogger sets the logger; the default discards everything
func WithLogger(l zerolog.Logger) Option {
	return func(b *Bridge) {
		b.log = l
	}
}

// WithResponseTimeout bounds every request
func WithResponseTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		b.timeout = d
	}
}

// New starts the client on an already open port
func New(port io.ReadWriteCloser, opts ...Option) *Bridge {
	b := &Bridge{
		port:    port,
		log:     zerolog.Nop(),
		timeout: defaultCallDeadline,
		timing:  adb.DefaultTiming(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.transport = protocol.NewHostTransport(port)
	return b
}

// Open connects using cfg: it opens the serial port, waits for the ready
// marker, optionally resets the bus and pushes the configured timing.
func Open(cfg config.Config, logger zerolog.Logger) (*Bridge, error) {
	port, err := serial.Open(&serial.Config{
		Device:      cfg.Serial.Device,
		Baud:        cfg.Serial.Baud,
		ReadTimeout: cfg.Serial.ReadTimeoutMS,
	})
	if err != nil {
		return nil, err
	}
	if err := port.Flush(); err != nil {
		logger.Warn().Err(err).Msg("failed to flush serial input")
	}

	b := New(port, WithLogger(logger), WithResponseTimeout(cfg.Timeouts.Response))
	if err := b.Setup(cfg); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// Setup runs the connect sequence on a fresh bridge
func (b *Bridge) Setup(cfg config.Config) error {
	b.log.Debug().Dur("timeout", cfg.Timeouts.Ready).Msg("waiting for ready marker")
	if err := b.WaitReady(cfg.Timeouts.Ready); err != nil {
		// the marker is sent once per boot; a bridge that is already
		// running still answers requests
		b.transport.MarkReady()
		if _, perr := b.Stats(); perr != nil {
			return err
		}
		b.log.Info().Msg("bridge already running")
	}
	if cfg.Bus.ResetOnConnect {
		if err := b.Reset(); err != nil {
			return err
		}
	}
	return b.Configure(cfg.Timing())
}

// WaitReady blocks until the bridge announced it finished its startup reset
func (b *Bridge) WaitReady(timeout time.Duration) error {
	if err := b.transport.WaitReady(timeout); err != nil {
		return fmt.Errorf("waiting for bridge: %w", err)
	}
	b.log.Info().Msg("bridge ready")
	return nil
}

// Close closes the connection to the bridge
func (b *Bridge) Close() error {
	if b.transport == nil {
		return nil
	}
	if dropped := b.transport.Dropped(); dropped > 0 {
		b.log.Warn().Uint32("dropped", dropped).Msg("corrupt frames discarded")
	}
	return b.transport.Close()
}

func (b *Bridge) call(id uint16, want uint16, args func(protocol.OutputBuffer)) (protocol.Message, error) {
	if b.transport == nil {
		return protocol.Message{}, ErrNotConnected
	}
	msg, err := b.transport.Call(id, args, b.timeout)
	if err != nil {
		return msg, err
	}
	if msg.ID != want {
		return msg, fmt.Errorf("%w: id %d, expected %d", ErrUnexpectedReply, msg.ID, want)
	}
	return msg, nil
}

// Timing returns the timing last accepted by the bridge
func (b *Bridge) Timing() adb.Timing {
	return b.timing
}

// Reset performs a global bus reset
func (b *Bridge) Reset() error {
	if _, err := b.call(protocol.MsgBusReset, protocol.MsgBusResetDone, nil); err != nil {
		return fmt.Errorf("bus reset: %w", err)
	}
	b.log.Info().Msg("bus reset")
	return nil
}

// Configure pushes the classification tolerance, per-pulse timeout and
// sample capacity of t. The bridge validates them again.
func (b *Bridge) Configure(t adb.Timing) error {
	if err := t.Validate(); err != nil {
		return err
	}
	msg, err := b.call(protocol.MsgBusConfigure, protocol.MsgBusConfigured, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, t.Tolerance)
		protocol.EncodeVLQUint(o, t.PulseTimeout)
		protocol.EncodeVLQUint(o, uint32(t.SampleCapacity))
	})
	if err != nil {
		return fmt.Errorf("bus configure: %w", err)
	}
	status, err := protocol.DecodeVLQUint(&msg.Args)
	if err != nil {
		return fmt.Errorf("bus configure: %w", err)
	}
	if status != protocol.StatusOK {
		return ErrRejected
	}
	b.timing = t
	b.log.Debug().
		Uint32("tolerance_us", t.Tolerance).
		Uint32("timeout_us", t.PulseTimeout).
		Int("capacity", t.SampleCapacity).
		Msg("bus configured")
	return nil
}

// Command sends one command word and returns what the device answered.
// A silent device is an empty reply, not an error.
func (b *Bridge) Command(word Word) (Reply, error) {
	msg, err := b.call(protocol.MsgBusCommand, protocol.MsgBusReply, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, uint32(word))
	})
	if err != nil {
		return Reply{}, fmt.Errorf("bus command %s: %w", word, err)
	}

	echoed, err := protocol.DecodeVLQByte(&msg.Args)
	if err != nil {
		return Reply{}, fmt.Errorf("bus reply: %w", err)
	}
	partial, err := protocol.DecodeVLQUint(&msg.Args)
	if err != nil {
		return Reply{}, fmt.Errorf("bus reply: %w", err)
	}
	data, err := protocol.DecodeVLQBytes(&msg.Args)
	if err != nil {
		return Reply{}, fmt.Errorf("bus reply: %w", err)
	}
	if Word(echoed) != word {
		return Reply{}, fmt.Errorf("%w: reply for %s while waiting for %s", ErrUnexpectedReply, Word(echoed), word)
	}

	r := Reply{Word: word, Partial: partial != 0, Data: append([]byte(nil), data...)}
	ev := b.log.Debug()
	if r.Partial {
		ev = b.log.Warn()
	}
	ev.Stringer("word", word).Hex("data", r.Data).Bool("partial", r.Partial).Msg("bus reply")
	return r, nil
}

// Stats fetches the bridge counters
func (b *Bridge) Stats() (Stats, error) {
	msg, err := b.call(protocol.MsgGetStats, protocol.MsgStats, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("get stats: %w", err)
	}
	var v [5]uint32
	for i := range v {
		if v[i], err = protocol.DecodeVLQUint(&msg.Args); err != nil {
			return Stats{}, fmt.Errorf("stats: %w", err)
		}
	}
	return Stats{Commands: v[0], Replies: v[1], Empty: v[2], Partial: v[3], Errors: v[4]}, nil
}
