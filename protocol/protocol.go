// Package protocol implements the framing between the host and the bus
// bridge firmware. Frames follow the Klipper block layout (length, sequence,
// payload, CRC16, sync byte); payloads are a VLQ message id followed by VLQ
// encoded arguments.
package protocol

// Version represents the bridge protocol version
const Version = "0.1.0"

// Protocol constants
const (
	MessageMax = 512 // Scratch output size, several frames per main loop pass

	// Message sequence masks
	MessageSeqMask  = 0x0F
	MessageSeqShift = 4
)

// Message ids. Requests flow host -> bridge, responses bridge -> host and
// echo the request sequence.
const (
	MsgBusReset     = 1 // bus_reset
	MsgBusCommand   = 2 // bus_command word=%c
	MsgBusConfigure = 3 // bus_configure tolerance=%u timeout=%u capacity=%u
	MsgGetStats     = 4 // get_stats

	MsgBusResetDone  = 65 // bus_reset_done
	MsgBusReply      = 66 // bus_reply word=%c partial=%c data=%*s
	MsgBusConfigured = 67 // bus_configured status=%c
	MsgStats         = 68 // stats commands=%u replies=%u empty=%u partial=%u errors=%u
)

// Status values carried by bus_configured
const (
	StatusOK       = 0
	StatusRejected = 1
)

// ReadyMarker is written raw, outside any frame, once the bridge has reset
// the bus and is ready for commands.
const ReadyMarker = 0x21

// Message is one decoded frame
type Message struct {
	Sequence uint8
	ID       uint16
	Args     []byte // VLQ encoded arguments following the id
}
