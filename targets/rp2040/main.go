//go:build rp2040

package main

import (
	"machine"
	"time"

	"adbridge/adb"
	"adbridge/core"
	"adbridge/firmware"
	"adbridge/protocol"
	"adbridge/targets/pio"
)

// busPin is the open-drain style bus line (external 1k pull-up to 5V via a
// level shifter)
const busPin core.GPIOPin = 2

// usePIO selects the PIO waveform player for transmit. The bit-bang player
// is the fallback when no state machine is free.
const usePIO = true

var (
	// Buffers for communication
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	fw           *firmware.Firmware

	// Debug counters
	msgerrors uint32

	// USB connection state tracking
	usbWasDisconnected       bool
	consecutiveWriteFailures uint32
)

func main() {
	// Disable watchdog on boot to clear any previous state
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()
	InitDebugUART()

	gpioDriver := NewRPGPIODriver()
	core.SetGPIODriver(gpioDriver)
	core.SetPulseTimer(NewRPPulseTimer(gpioDriver))

	bus, err := adb.NewBus(busPin, core.MustGPIO(), core.MustPulseTimer(), adb.DefaultTiming())
	if err != nil {
		core.DebugPrintln("[BUS] bad default timing")
		return
	}
	if usePIO {
		player, err := pio.NewWaveformPlayer(machine.Pin(busPin))
		if err != nil {
			core.DebugPrintln("[BUS] PIO unavailable, bit-banging: " + err.Error())
		} else {
			bus.Encoder().SetPlayer(player)
		}
	}

	// Create buffers
	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()
	fw = firmware.New(bus, outputBuffer)

	// Reset the bus and send the ready marker before accepting requests
	if err := fw.Startup(); err != nil {
		core.DebugPrintln("[BUS] startup reset failed: " + err.Error())
	}
	writeUSB()

	go usbReaderLoop()

	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
					core.DumpBusEvents()
				}
			}()

			if inputBuffer.Available() > 0 {
				fw.Receive(inputBuffer)
			}

			if len(outputBuffer.Result()) > 0 {
				writeUSB()
			}
		}()

		// Yield to the USB reader
		time.Sleep(10 * time.Microsecond)
	}
}

// usbReaderLoop runs in a goroutine to continuously read USB data
func usbReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	for {
		if USBAvailable() > 0 {
			data, err := USBRead()
			if err != nil {
				msgerrors++
				time.Sleep(1 * time.Millisecond)
				continue
			}

			// First byte after a disconnect starts a fresh session
			if usbWasDisconnected {
				usbWasDisconnected = false
				inputBuffer.Reset()
				outputBuffer.Reset()
				fw.ResetTransport()
				consecutiveWriteFailures = 0
			}

			if inputBuffer.Write([]byte{data}) == 0 {
				// Buffer full - error condition
				msgerrors++
				time.Sleep(10 * time.Millisecond)
			}
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// writeUSB writes available data from output buffer to USB
func writeUSB() {
	result := outputBuffer.Result()
	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			// Likely disconnect
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				// Don't keep trying to send stale data
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}
