package core

import (
	"strings"
	"testing"
)

func TestBusEventRing(t *testing.T) {
	ClearBusEvents()
	defer ClearBusEvents()

	for i := 0; i < BusRingSize+3; i++ {
		RecordBusEvent(EvtTransact, uint8(i), uint32(i), 0)
	}

	events := BusEvents()
	if len(events) != BusRingSize {
		t.Fatalf("Expected %d events, got %d", BusRingSize, len(events))
	}
	if events[0].Word != 3 {
		t.Errorf("Expected oldest surviving event word 3, got %d", events[0].Word)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Seq <= events[i-1].Seq {
			t.Errorf("Events out of order at %d: %d after %d", i, events[i].Seq, events[i-1].Seq)
		}
	}
}

func TestDumpBusEvents(t *testing.T) {
	ClearBusEvents()
	defer ClearBusEvents()

	var lines []string
	SetDebugWriter(func(s string) { lines = append(lines, s) })
	defer SetDebugWriter(func(string) {})

	RecordBusEvent(EvtTransact, 0x3C, 2, 4)
	DumpBusEvents()

	if len(lines) != 3 {
		t.Fatalf("Expected header, one event, footer; got %d lines", len(lines))
	}
	if !strings.Contains(lines[1], "TRANSACT word=0x3c v1=2 v2=4") {
		t.Errorf("Unexpected event line: %q", lines[1])
	}
}

func TestHexBytes(t *testing.T) {
	if got := HexBytes([]byte{0xAA, 0x05, 0xFF}); got != "aa 05 ff" {
		t.Errorf("Expected 'aa 05 ff', got '%s'", got)
	}
	if got := HexBytes(nil); got != "" {
		t.Errorf("Expected empty string, got '%s'", got)
	}
	if got := itoa(-42); got != "-42" {
		t.Errorf("Expected '-42', got '%s'", got)
	}
}
