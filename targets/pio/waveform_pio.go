//go:build rp2040

// Package pio plays bus waveforms on an RP2040 PIO state machine so pulse
// edges do not depend on CPU timing.
package pio

import (
	"errors"
	"machine"
	"time"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
	"tinygo.org/x/drivers/delay"

	"adbridge/adb"
)

var ErrNoStateMachine = errors.New("pio: no free state machine")

// PIO program for one low/high pulse per FIFO word.
// Word format, one state machine cycle per microsecond:
//
//	Bits 0-15:  low cycles
//	Bits 16-31: high cycles
//
// The line stays high while the program is stalled on pull, which is the
// bus idle level.
func buildWaveformProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),          // 0: pull block
		asm.Out(rp2pio.OutDestX, 16).Encode(),   // 1: out x, 16 (low)
		asm.Out(rp2pio.OutDestY, 16).Encode(),   // 2: out y, 16 (high)
		asm.Set(rp2pio.SetDestPins, 0).Encode(), // 3: set pins, 0
		// low_loop:
		asm.Jmp(4, rp2pio.JmpXNZeroDec).Encode(), // 4: jmp x--, 4
		asm.Set(rp2pio.SetDestPins, 1).Encode(),  // 5: set pins, 1
		// high_loop:
		asm.Jmp(6, rp2pio.JmpYNZeroDec).Encode(), // 6: jmp y--, 6
		// .wrap
	}
}

const (
	waveformPIOOrigin = 0 // Load at offset 0 for correct jump addresses

	// Fixed cycles around the counted loops: set + final jmp for low;
	// final jmp + pull + 2x out + set for high
	lowOverhead  = 2
	highOverhead = 5

	// 125MHz system clock / 125 = 1 cycle per microsecond
	clockDivider = 125
)

// WaveformPlayer implements adb.WaveformPlayer on a PIO state machine
type WaveformPlayer struct {
	pio    *rp2pio.PIO
	sm     rp2pio.StateMachine
	pin    machine.Pin
	offset uint8
	pioNum uint8
	smNum  uint8
}

// NewWaveformPlayer claims a state machine and loads the program for pin
func NewWaveformPlayer(pin machine.Pin) (*WaveformPlayer, error) {
	pioNum, smNum, ok := allocatePIO()
	if !ok {
		return nil, ErrNoStateMachine
	}

	pioHW := rp2pio.PIO0
	if pioNum == 1 {
		pioHW = rp2pio.PIO1
	}
	p := &WaveformPlayer{
		pio:    pioHW,
		sm:     pioHW.StateMachine(smNum),
		pin:    pin,
		pioNum: pioNum,
		smNum:  smNum,
	}
	if err := p.init(); err != nil {
		releasePIO(pioNum, smNum)
		return nil, err
	}
	return p, nil
}

func (p *WaveformPlayer) init() error {
	if !p.sm.TryClaim() {
		return ErrNoStateMachine
	}

	program := buildWaveformProgram()
	offset, err := p.pio.AddProgram(program, waveformPIOOrigin)
	if err != nil {
		return err
	}
	p.offset = offset

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(p.pin, 1)
	// shift right, explicit pull, 32-bit threshold
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	cfg.SetClkDivIntFrac(clockDivider, 0)

	p.sm.Init(offset, cfg)

	// pin direction and idle level, then start stalled on pull
	p.sm.SetPindirsConsecutive(p.pin, 1, true)
	p.sm.SetPinsConsecutive(p.pin, 1, true)
	p.sm.SetEnabled(true)
	return nil
}

// encode packs one pulse into a FIFO word
func encode(pulse adb.Pulse) uint32 {
	low := uint32(0)
	if pulse.Low > lowOverhead {
		low = pulse.Low - lowOverhead
	}
	high := uint32(0)
	if pulse.High > highOverhead {
		high = pulse.High - highOverhead
	}
	return (low & 0xFFFF) | (high&0xFFFF)<<16
}

// Play hands the pin to the state machine, streams w and hands the pin
// back to the GPIO block driven high.
func (p *WaveformPlayer) Play(w adb.Waveform) error {
	if len(w) == 0 {
		return nil
	}
	p.pin.Configure(machine.PinConfig{Mode: p.pio.PinMode()})

	for _, pulse := range w {
		for p.sm.IsTxFIFOFull() {
			// Busy wait - one pulse at most
		}
		p.sm.TxPut(encode(pulse))
	}

	// the last word has been pulled once the FIFO drains; its low phase is
	// still on the wire
	for !p.sm.IsTxFIFOEmpty() {
	}
	last := w[len(w)-1]
	delay.Sleep(time.Duration(last.Low+lowOverhead+highOverhead) * time.Microsecond)

	p.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.pin.High()
	return nil
}
