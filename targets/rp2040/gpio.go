//go:build rp2040

package main

import (
	"machine"

	"adbridge/core"
)

type pinMode uint8

const (
	pinUnconfigured pinMode = iota
	pinOutput
	pinInputPullUp
)

type rpPin struct {
	pin  machine.Pin
	mode pinMode
}

// RPGPIODriver implements the GPIODriver interface for RP2040.
// The bus line flips between output and input twice per cycle, so every
// Configure call that changes the mode reaches the hardware.
type RPGPIODriver struct {
	pins map[core.GPIOPin]*rpPin
}

// NewRPGPIODriver creates a new RP2040 GPIO driver
func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{
		pins: make(map[core.GPIOPin]*rpPin),
	}
}

func (d *RPGPIODriver) lookup(pin core.GPIOPin) *rpPin {
	p, ok := d.pins[pin]
	if !ok {
		// RP2040 pins map directly to GPIO numbers
		p = &rpPin{pin: machine.Pin(pin)}
		d.pins[pin] = p
	}
	return p
}

// machinePin returns the hardware pin, e.g. for fast polling
func (d *RPGPIODriver) machinePin(pin core.GPIOPin) machine.Pin {
	return d.lookup(pin).pin
}

// ConfigureOutput configures a pin as a digital output
func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	p := d.lookup(pin)
	if p.mode != pinOutput {
		p.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
		p.mode = pinOutput
	}
	return nil
}

// ConfigureInputPullUp configures a pin as input with pull-up resistor
func (d *RPGPIODriver) ConfigureInputPullUp(pin core.GPIOPin) error {
	p := d.lookup(pin)
	if p.mode != pinInputPullUp {
		p.pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
		p.mode = pinInputPullUp
	}
	return nil
}

// SetPin sets the pin to high (true) or low (false)
func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	p := d.lookup(pin)
	if p.mode == pinUnconfigured {
		if err := d.ConfigureOutput(pin); err != nil {
			return err
		}
	}
	p.pin.Set(value)
	return nil
}

// GetPin reads the current pin state
func (d *RPGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	return d.lookup(pin).pin.Get(), nil
}
