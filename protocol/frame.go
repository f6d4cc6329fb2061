package protocol

import (
	"bytes"
	"errors"
	"sync/atomic"
)

const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
)

var ErrMessageTooLong = errors.New("message too long")

// EncodeFrame appends one complete frame to output: header, VLQ message id,
// the arguments written by args, CRC and sync byte.
func EncodeFrame(output OutputBuffer, seq uint8, id uint16, args func(output OutputBuffer)) error {
	cursor := output.CurPosition()

	output.Output([]byte{0, MessageDest | (seq & MessageSeqMask)})
	EncodeVLQUint(output, uint32(id))
	if args != nil {
		args(output)
	}

	msgLen := len(output.DataSince(cursor)) + MessageTrailerSize
	if msgLen > MessageLengthMax {
		return ErrMessageTooLong
	}
	output.Update(cursor+MessagePositionLen, uint8(msgLen))

	crc := CRC16(output.DataSince(cursor))
	output.Output([]byte{
		uint8((crc & 0xFF00) >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	})
	return nil
}

// Scanner extracts frames from a byte stream. After a corrupt frame it
// discards input up to the next sync byte.
type Scanner struct {
	lost    bool
	dropped uint32
}

// Dropped returns how many corrupt frames were discarded
func (s *Scanner) Dropped() uint32 {
	return atomic.LoadUint32(&s.dropped)
}

func (s *Scanner) desync() {
	s.lost = true
	atomic.AddUint32(&s.dropped, 1)
}

// Next returns the first complete message in data and the bytes that
// follow it. When data holds no complete frame, ok is false and rest holds
// the bytes that must be kept for the next call.
func (s *Scanner) Next(data []byte) (msg Message, rest []byte, ok bool) {
	for len(data) > 0 {
		if s.lost {
			syncPos := bytes.IndexByte(data, MessageValueSync)
			if syncPos < 0 {
				return Message{}, nil, false
			}
			data = data[syncPos+1:]
			s.lost = false
			continue
		}

		// Skip leading sync bytes
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		if len(data) < MessageLengthMin {
			break
		}

		msgLen := int(data[MessagePositionLen])
		if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
			s.desync()
			continue
		}

		seq := data[MessagePositionSeq]
		if seq&^MessageSeqMask != MessageDest {
			s.desync()
			continue
		}

		// Wait for full message
		if len(data) < msgLen {
			break
		}

		if data[msgLen-MessageTrailerSync] != MessageValueSync {
			s.desync()
			continue
		}

		frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
			uint16(data[msgLen-MessageTrailerCRC+1])
		if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
			s.desync()
			continue
		}

		body := data[MessageHeaderSize : msgLen-MessageTrailerSize]
		id, err := DecodeVLQUint(&body)
		if err != nil {
			s.desync()
			continue
		}

		args := make([]byte, len(body))
		copy(args, body)
		return Message{Sequence: seq, ID: uint16(id), Args: args}, data[msgLen:], true
	}
	return Message{}, data, false
}
