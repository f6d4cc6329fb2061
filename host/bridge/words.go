package bridge

import (
	"fmt"
	"strconv"
	"strings"
)

// Word is a bus command word: device address in the high nibble, command
// in bits 3-2, register in bits 1-0. The bridge sends it verbatim.
type Word byte

// Command field values
const (
	cmdReset  = 0x0
	cmdFlush  = 0x1
	cmdListen = 0x8
	cmdTalk   = 0xC
)

// Talk asks device addr to send register reg
func Talk(addr, reg uint8) Word {
	return Word(addr&0x0F)<<4 | cmdTalk | Word(reg&0x03)
}

// Listen tells device addr to receive register reg
func Listen(addr, reg uint8) Word {
	return Word(addr&0x0F)<<4 | cmdListen | Word(reg&0x03)
}

// Flush clears the pending state of device addr
func Flush(addr uint8) Word {
	return Word(addr&0x0F)<<4 | cmdFlush
}

// SendReset is the command-level reset of every device
func SendReset() Word {
	return cmdReset
}

// Addr returns the device address
func (w Word) Addr() uint8 {
	return uint8(w) >> 4
}

// Reg returns the register field
func (w Word) Reg() uint8 {
	return uint8(w) & 0x03
}

func (w Word) String() string {
	switch {
	case w&0x0C == cmdTalk:
		return fmt.Sprintf("talk(%d,%d)", w.Addr(), w.Reg())
	case w&0x0C == cmdListen:
		return fmt.Sprintf("listen(%d,%d)", w.Addr(), w.Reg())
	case w&0x0F == cmdFlush:
		return fmt.Sprintf("flush(%d)", w.Addr())
	case w&0x0F == cmdReset:
		return "sendreset"
	default:
		return fmt.Sprintf("0x%02x", uint8(w))
	}
}

// ParseWord accepts a raw byte (0x3c, 60, 0b00111100) or one of
// talk:<addr>:<reg>, listen:<addr>:<reg>, flush:<addr>, sendreset.
func ParseWord(s string) (Word, error) {
	parts := strings.Split(strings.ToLower(s), ":")
	args := make([]uint8, 0, 2)
	for _, p := range parts[1:] {
		v, err := strconv.ParseUint(p, 0, 8)
		if err != nil {
			return 0, fmt.Errorf("parsing %q: %w", s, err)
		}
		args = append(args, uint8(v))
	}

	switch parts[0] {
	case "talk", "listen":
		if len(args) != 2 || args[0] > 15 || args[1] > 3 {
			return 0, fmt.Errorf("%s needs address 0-15 and register 0-3, got %q", parts[0], s)
		}
		if parts[0] == "talk" {
			return Talk(args[0], args[1]), nil
		}
		return Listen(args[0], args[1]), nil
	case "flush":
		if len(args) != 1 || args[0] > 15 {
			return 0, fmt.Errorf("flush needs address 0-15, got %q", s)
		}
		return Flush(args[0]), nil
	case "sendreset":
		if len(args) != 0 {
			return 0, fmt.Errorf("sendreset takes no arguments, got %q", s)
		}
		return SendReset(), nil
	}

	if len(parts) != 1 {
		return 0, fmt.Errorf("unknown command word %q", s)
	}
	v, err := strconv.ParseUint(parts[0], 0, 8)
	if err != nil {
		return 0, fmt.Errorf("parsing %q: %w", s, err)
	}
	return Word(v), nil
}
