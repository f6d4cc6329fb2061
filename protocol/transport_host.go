package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrTransportClosed = errors.New("transport closed")
	ErrTimeout         = errors.New("timeout")
)

// HostTransport is the host side of the bridge protocol. A background read
// loop waits for the ready marker, then decodes frames; Call sends one
// request and waits for the response carrying the same sequence.
type HostTransport struct {
	port io.ReadWriteCloser

	// Sequence tracking (0x10-0x1F for host messages)
	currentSeq uint32

	scanner Scanner
	pending []byte

	responseChan chan Message
	readyChan    chan struct{}
	readyOnce    sync.Once
	readySeen    atomic.Bool

	// one request in flight at a time
	callMutex sync.Mutex

	closeOnce sync.Once
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewHostTransport creates a new host-side transport and starts reading
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:         port,
		currentSeq:   MessageDest,
		responseChan: make(chan Message, 16),
		readyChan:    make(chan struct{}),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}

	go t.readLoop()

	return t
}

// WaitReady blocks until the bridge has sent its ready marker
func (t *HostTransport) WaitReady(timeout time.Duration) error {
	select {
	case <-t.readyChan:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("ready marker: %w after %v", ErrTimeout, timeout)
	case <-t.stopChan:
		return ErrTransportClosed
	}
}

// MarkReady stops waiting for the ready marker, for a bridge that announced
// itself before this session started
func (t *HostTransport) MarkReady() {
	t.readyOnce.Do(func() {
		t.readySeen.Store(true)
		close(t.readyChan)
	})
}

// Call sends request id with args and returns the matching response.
// Responses to earlier, abandoned requests are discarded.
func (t *HostTransport) Call(id uint16, args func(output OutputBuffer), timeout time.Duration) (Message, error) {
	t.callMutex.Lock()
	defer t.callMutex.Unlock()

	seq := uint8(atomic.LoadUint32(&t.currentSeq))
	nextSeq := ((seq + 1) & MessageSeqMask) | MessageDest
	atomic.StoreUint32(&t.currentSeq, uint32(nextSeq))

	out := NewScratchOutput()
	if err := EncodeFrame(out, seq, id, args); err != nil {
		return Message{}, fmt.Errorf("failed to build message %d: %w", id, err)
	}
	if err := t.writeMessage(out.Result()); err != nil {
		return Message{}, fmt.Errorf("failed to write message: %w", err)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case msg := <-t.responseChan:
			if msg.Sequence == seq {
				return msg, nil
			}
			// stale response, keep waiting
		case <-deadline.C:
			return Message{}, fmt.Errorf("response to message %d: %w after %v", id, ErrTimeout, timeout)
		case <-t.stopChan:
			return Message{}, ErrTransportClosed
		}
	}
}

// writeMessage sends a message to the serial port
func (t *HostTransport) writeMessage(msg []byte) error {
	n, err := t.port.Write(msg)
	if err != nil {
		return err
	}
	if n != len(msg) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(msg))
	}
	return nil
}

// readLoop continuously reads from the port until Close
func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buffer := make([]byte, 256)
	for {
		n, err := t.port.Read(buffer)
		if n > 0 {
			t.feed(buffer[:n])
		}
		if err != nil {
			select {
			case <-t.stopChan:
				return
			default:
			}
			if err == io.EOF {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// feed pushes raw bytes through ready detection and the frame scanner
func (t *HostTransport) feed(data []byte) {
	if !t.readySeen.Load() {
		pos := bytes.IndexByte(data, ReadyMarker)
		if pos < 0 {
			return
		}
		t.MarkReady()
		data = data[pos+1:]
	}

	t.pending = append(t.pending, data...)
	rest := t.pending
	for {
		msg, next, ok := t.scanner.Next(rest)
		rest = next
		if !ok {
			break
		}
		t.deliver(msg)
	}
	t.pending = append(t.pending[:0], rest...)
}

// deliver queues a response, dropping the oldest when nobody is reading
func (t *HostTransport) deliver(msg Message) {
	select {
	case t.responseChan <- msg:
	default:
		select {
		case <-t.responseChan:
		default:
		}
		t.responseChan <- msg
	}
}

// Dropped returns how many corrupt frames were discarded
func (t *HostTransport) Dropped() uint32 {
	return t.scanner.Dropped()
}

// Close stops the transport and closes the port
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stopChan)
		err = t.port.Close()
		<-t.doneChan
	})
	return err
}
