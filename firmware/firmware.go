// Package firmware ties the bus codec to the bridge protocol: it owns the
// bus, decodes host requests and answers them. It is target independent;
// targets only supply the HAL and move bytes between USB and the buffers.
package firmware

import (
	"adbridge/adb"
	"adbridge/core"
	"adbridge/protocol"
)

// Firmware is the bridge state for one bus line
type Firmware struct {
	bus       *adb.Bus
	output    protocol.OutputBuffer
	registry  *core.CommandRegistry
	transport *protocol.Transport
}

// New registers the bus commands and returns a bridge writing its
// responses to output
func New(bus *adb.Bus, output protocol.OutputBuffer) *Firmware {
	fw := &Firmware{
		bus:      bus,
		output:   output,
		registry: core.NewCommandRegistry(),
	}
	fw.transport = protocol.NewTransport(output, fw.registry.Dispatch)
	fw.initBusCommands()
	return fw
}

// initBusCommands registers the host requests.
// Response ids are fixed and have no handler.
func (fw *Firmware) initBusCommands() {
	fw.registry.Register(protocol.MsgBusReset, "bus_reset", "", fw.handleBusReset)
	fw.registry.Register(protocol.MsgBusCommand, "bus_command", "word=%c", fw.handleBusCommand)
	fw.registry.Register(protocol.MsgBusConfigure, "bus_configure", "tolerance=%u timeout=%u capacity=%u", fw.handleBusConfigure)
	fw.registry.Register(protocol.MsgGetStats, "get_stats", "", fw.handleGetStats)
}

// Registry exposes the command table
func (fw *Firmware) Registry() *core.CommandRegistry {
	return fw.registry
}

// Bus returns the bus the bridge drives
func (fw *Firmware) Bus() *adb.Bus {
	return fw.bus
}

// Startup resets the bus and announces readiness with the raw ready
// marker. No frame is sent before it.
func (fw *Firmware) Startup() error {
	if err := fw.bus.Reset(); err != nil {
		core.RecordBusEvent(core.EvtBusError, 0, 0, 0)
		return err
	}
	core.RecordBusEvent(core.EvtBusReset, 0, 0, 0)
	fw.output.Output([]byte{protocol.ReadyMarker})
	return nil
}

// Receive handles every complete request in input
func (fw *Firmware) Receive(input protocol.InputBuffer) {
	before := fw.transport.Errors()
	fw.transport.Receive(input)
	if after := fw.transport.Errors(); after != before {
		core.RecordBusEvent(core.EvtFrameBad, 0, after-before, 0)
	}
}

// ResetTransport drops partial frame state, e.g. after a USB reconnect
func (fw *Firmware) ResetTransport() {
	fw.transport.Reset()
}

func (fw *Firmware) handleBusReset(data *[]byte) error {
	if err := fw.bus.Reset(); err != nil {
		core.RecordBusEvent(core.EvtBusError, 0, 0, 0)
		return err
	}
	core.RecordBusEvent(core.EvtBusReset, 0, 0, 0)
	return fw.transport.SendMessage(protocol.MsgBusResetDone, nil)
}

// handleBusCommand runs one bus cycle. A HAL failure is reported as an
// empty partial reply so the host is never left waiting.
func (fw *Firmware) handleBusCommand(data *[]byte) error {
	word, err := protocol.DecodeVLQByte(data)
	if err != nil {
		return err
	}

	f, err := fw.bus.Transact(word)
	partial := f.Partial()
	if err != nil {
		core.RecordBusEvent(core.EvtBusError, word, 0, 0)
		core.DebugPrintln("[BUS] cycle failed: " + err.Error())
		partial = true
	}

	return fw.transport.SendMessage(protocol.MsgBusReply, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(word))
		if partial {
			protocol.EncodeVLQUint(output, 1)
		} else {
			protocol.EncodeVLQUint(output, 0)
		}
		protocol.EncodeVLQBytes(output, f.Bytes)
	})
}

// handleBusConfigure swaps the classification tolerance, per-pulse timeout
// and sample capacity. Rejected timing leaves the bus unchanged.
func (fw *Firmware) handleBusConfigure(data *[]byte) error {
	tolerance, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	timeout, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	capacity, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	t := fw.bus.Timing()
	t.Tolerance = tolerance
	t.PulseTimeout = timeout
	t.SampleCapacity = int(capacity)

	status := uint32(protocol.StatusOK)
	if err := fw.bus.SetTiming(t); err != nil {
		status = protocol.StatusRejected
	} else {
		core.RecordBusEvent(core.EvtConfigure, 0, tolerance, timeout)
	}

	return fw.transport.SendMessage(protocol.MsgBusConfigured, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, status)
	})
}

func (fw *Firmware) handleGetStats(data *[]byte) error {
	st := fw.bus.Stats()
	errs := st.Errors + fw.transport.Errors()

	return fw.transport.SendMessage(protocol.MsgStats, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, st.Commands)
		protocol.EncodeVLQUint(output, st.Replies)
		protocol.EncodeVLQUint(output, st.Empty)
		protocol.EncodeVLQUint(output, st.Partial)
		protocol.EncodeVLQUint(output, errs)
	})
}
