package protocol

// CommandHandler is a function type for handling decoded requests
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the firmware side of the bridge protocol: it decodes host
// requests from an input buffer and encodes responses that echo the
// sequence of the request being handled.
type Transport struct {
	scanner  Scanner
	output   OutputBuffer
	handler  CommandHandler
	sequence uint8
	errors   uint32
}

// NewTransport creates a new Transport instance
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	return &Transport{
		output:   output,
		handler:  handler,
		sequence: MessageDest,
	}
}

// Receive processes every complete frame in input and pops the consumed
// bytes. Incomplete trailing data stays in input for the next call.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()
	for {
		msg, rest, ok := t.scanner.Next(data)
		data = rest
		if !ok {
			break
		}
		t.sequence = msg.Sequence
		t.dispatch(msg)
	}

	consumed := input.Available() - len(data)
	if consumed > 0 {
		input.Pop(consumed)
	}
}

// dispatch runs the handler for one request
func (t *Transport) dispatch(msg Message) {
	// Recover from any panics in command handlers to prevent firmware crash
	defer func() {
		if r := recover(); r != nil {
			t.errors++
		}
	}()

	if t.handler == nil {
		return
	}
	args := msg.Args
	if err := t.handler(msg.ID, &args); err != nil {
		t.errors++
	}
}

// SendMessage encodes a response to the request currently being handled
func (t *Transport) SendMessage(id uint16, args func(output OutputBuffer)) error {
	return EncodeFrame(t.output, t.sequence, id, args)
}

// Errors returns the number of failed handlers plus corrupt frames
func (t *Transport) Errors() uint32 {
	return t.errors + t.scanner.Dropped()
}

// Reset forgets partial state (useful after USB disconnect/reconnect)
func (t *Transport) Reset() {
	t.scanner = Scanner{}
	t.sequence = MessageDest
}
