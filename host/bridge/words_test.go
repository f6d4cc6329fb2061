package bridge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWordHelpers(t *testing.T) {
	require.Equal(t, Word(0x3C), Talk(3, 0))
	require.Equal(t, Word(0x2F), Talk(2, 3))
	require.Equal(t, Word(0x3B), Listen(3, 3))
	require.Equal(t, Word(0x21), Flush(2))
	require.Equal(t, Word(0x00), SendReset())

	// out of range fields are masked, never spill into neighbours
	require.Equal(t, Word(0xFC), Talk(0x1F, 0x04))
}

func TestWordString(t *testing.T) {
	require.Equal(t, "talk(3,0)", Talk(3, 0).String())
	require.Equal(t, "listen(2,2)", Listen(2, 2).String())
	require.Equal(t, "flush(4)", Flush(4).String())
	require.Equal(t, "sendreset", SendReset().String())
	require.Equal(t, "0x06", Word(0x06).String())
}

func TestParseWord(t *testing.T) {
	tests := []struct {
		in   string
		want Word
	}{
		{"0x3c", 0x3C},
		{"60", 0x3C},
		{"0b00111100", 0x3C},
		{"talk:3:0", Talk(3, 0)},
		{"TALK:2:3", Talk(2, 3)},
		{"listen:3:2", Listen(3, 2)},
		{"flush:15", Flush(15)},
		{"sendreset", SendReset()},
	}
	for _, tt := range tests {
		got, err := ParseWord(tt.in)
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "256", "talk:16:0", "talk:3", "flush", "sendreset:1", "poke:1"} {
		_, err := ParseWord(bad)
		require.Error(t, err, bad)
	}
}
