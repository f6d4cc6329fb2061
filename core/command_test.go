package core

import (
	"adbridge/protocol"
	"testing"
)

func TestCommandRegistry(t *testing.T) {
	registry := NewCommandRegistry()

	var called bool
	registry.Register(protocol.MsgBusReset, "bus_reset", "", func(data *[]byte) error {
		called = true
		return nil
	})

	cmd, ok := registry.GetCommand(protocol.MsgBusReset)
	if !ok {
		t.Fatal("Failed to retrieve registered command")
	}
	if cmd.Name != "bus_reset" {
		t.Errorf("Expected command name 'bus_reset', got '%s'", cmd.Name)
	}

	var data []byte
	if err := registry.Dispatch(protocol.MsgBusReset, &data); err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}
	if !called {
		t.Error("Command handler was not called")
	}

	if err := registry.Dispatch(999, &data); err != ErrUnknownCommand {
		t.Errorf("Expected ErrUnknownCommand, got %v", err)
	}
}

func TestCommandRegistryReplace(t *testing.T) {
	registry := NewCommandRegistry()

	registry.Register(1, "first", "", func(data *[]byte) error { return nil })
	registry.Register(1, "second", "", func(data *[]byte) error { return nil })

	if registry.Count() != 1 {
		t.Errorf("Expected 1 command after re-registering, got %d", registry.Count())
	}
	if cmd, _ := registry.GetCommand(1); cmd.Name != "second" {
		t.Errorf("Expected 'second' to replace 'first', got '%s'", cmd.Name)
	}
}

func TestCommandWithArguments(t *testing.T) {
	registry := NewCommandRegistry()

	var received byte
	registry.Register(protocol.MsgBusCommand, "bus_command", "word=%c", func(data *[]byte) error {
		val, err := protocol.DecodeVLQByte(data)
		if err != nil {
			return err
		}
		received = val
		return nil
	})

	output := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(output, 0xFC)
	data := output.Result()

	if err := registry.Dispatch(protocol.MsgBusCommand, &data); err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}
	if received != 0xFC {
		t.Errorf("Expected value 0xFC, got 0x%02x", received)
	}
}
