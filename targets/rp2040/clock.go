//go:build rp2040

package main

import (
	"runtime/volatile"
	"time"
	"unsafe"

	"tinygo.org/x/drivers/delay"

	"adbridge/core"
)

// RP2040 Timer peripheral memory map
const (
	timerBase     = 0x40054000
	timerTIMERAWL = timerBase + 0x0C // Raw timer low word
)

var timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))

// GetHardwareTime reads the low 32 bits of the 1MHz hardware timer.
// Differences of two readings are valid across a single wrap.
func GetHardwareTime() uint32 {
	return timerRAWL.Get()
}

// RPPulseTimer implements core.PulseTimer with cycle counted delays and the
// microsecond hardware timer. It never yields, so it is safe with
// interrupts masked.
type RPPulseTimer struct {
	gpio *RPGPIODriver
}

// NewRPPulseTimer creates a timer polling pins through gpio
func NewRPPulseTimer(gpio *RPGPIODriver) *RPPulseTimer {
	return &RPPulseTimer{gpio: gpio}
}

// DelayMicros busy-waits us microseconds
func (t *RPPulseTimer) DelayMicros(us uint32) {
	delay.Sleep(time.Duration(us) * time.Microsecond)
}

// WaitForLevel polls pin until it reads level or timeoutUS elapses
func (t *RPPulseTimer) WaitForLevel(pin core.GPIOPin, level bool, timeoutUS uint32) (uint32, bool) {
	p := t.gpio.machinePin(pin)
	start := GetHardwareTime()
	for {
		elapsed := GetHardwareTime() - start
		if p.Get() == level {
			return elapsed, true
		}
		if elapsed >= timeoutUS {
			return timeoutUS, false
		}
	}
}
