package codegen_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/corejit/jit/codegen"
)

func TestEncodeDecodeOffsetMapRoundTrips(t *testing.T) {
	entries := []codegen.OffsetEntry{
		{BytecodeOffset: 0, NativeOffset: 5},
		{BytecodeOffset: 4, NativeOffset: 17},
		{BytecodeOffset: 9, NativeOffset: 33},
		{BytecodeOffset: 2, NativeOffset: 40}, // non-monotonic bytecode offset
	}

	encoded := codegen.EncodeOffsetMap(entries)
	require.NotEmpty(t, encoded)

	decoded, err := codegen.DecodeOffsetMap(encoded)
	require.NoError(t, err)
	require.Equal(t, entries, decoded)
}

func TestEncodeOffsetMapEmpty(t *testing.T) {
	require.Nil(t, codegen.EncodeOffsetMap(nil))

	decoded, err := codegen.DecodeOffsetMap(nil)
	require.NoError(t, err)
	require.Nil(t, decoded)
}

func TestDecodeOffsetMapRejectsCorruptData(t *testing.T) {
	_, err := codegen.DecodeOffsetMap([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80})
	require.Error(t, err)
}
