package codegen

import (
	"encoding/binary"
	"fmt"
)

// OffsetEntry pairs a bytecode offset (the Aux payload of a MARK_OFFSET
// instruction) with the native byte offset, relative to the function's
// entry, at which that point in the bytecode begins executing.
type OffsetEntry struct {
	BytecodeOffset uint32
	NativeOffset   uint32
}

// EncodeOffsetMap delta-compresses entries into a varint stream:
// bytecode-offset deltas are signed (source maps
// are not required to be monotonic — a MARK_OFFSET can follow an inlined
// or reordered region) via binary.PutVarint, native-offset deltas are
// unsigned via binary.PutUvarint since emission only ever moves forward.
func EncodeOffsetMap(entries []OffsetEntry) []byte {
	if len(entries) == 0 {
		return nil
	}
	buf := make([]byte, 0, len(entries)*4)
	var prevBC int64
	var prevNative uint64
	for _, e := range entries {
		var tmp [binary.MaxVarintLen64]byte
		n := binary.PutVarint(tmp[:], int64(e.BytecodeOffset)-prevBC)
		buf = append(buf, tmp[:n]...)
		n = binary.PutUvarint(tmp[:], uint64(e.NativeOffset)-prevNative)
		buf = append(buf, tmp[:n]...)
		prevBC = int64(e.BytecodeOffset)
		prevNative = uint64(e.NativeOffset)
	}
	return buf
}

// DecodeOffsetMap reverses EncodeOffsetMap, the form cmd/corejit's
// "disasm" subcommand reads back via codecache.Cache.AuxBytes.
func DecodeOffsetMap(data []byte) ([]OffsetEntry, error) {
	var out []OffsetEntry
	var prevBC int64
	var prevNative uint64
	i := 0
	for i < len(data) {
		bcDelta, n := binary.Varint(data[i:])
		if n <= 0 {
			return nil, fmt.Errorf("codegen: corrupt bytecode-offset delta at byte %d", i)
		}
		i += n
		nativeDelta, n := binary.Uvarint(data[i:])
		if n <= 0 {
			return nil, fmt.Errorf("codegen: corrupt native-offset delta at byte %d", i)
		}
		i += n

		prevBC += bcDelta
		prevNative += nativeDelta
		out = append(out, OffsetEntry{
			BytecodeOffset: uint32(prevBC),
			NativeOffset:   uint32(prevNative),
		})
	}
	return out, nil
}
