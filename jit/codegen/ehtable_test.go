package codegen_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/corejit/jit/codegen"
)

func TestEncodeDecodeEHTableRoundTrips(t *testing.T) {
	entries := []codegen.HandlerEntry{
		{BlockStart: 0, HandlerAddress: 64},
		{BlockStart: 16, HandlerAddress: 64},
		{BlockStart: 40, HandlerAddress: 96},
	}

	encoded := codegen.EncodeEHTable(entries)
	require.NotEmpty(t, encoded)

	decoded, err := codegen.DecodeEHTable(encoded)
	require.NoError(t, err)
	require.Equal(t, entries, decoded)
}

func TestEncodeEHTableEmpty(t *testing.T) {
	require.Nil(t, codegen.EncodeEHTable(nil))

	decoded, err := codegen.DecodeEHTable(nil)
	require.NoError(t, err)
	require.Nil(t, decoded)
}

func TestDecodeEHTableRejectsCorruptData(t *testing.T) {
	_, err := codegen.DecodeEHTable([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80})
	require.Error(t, err)
}
