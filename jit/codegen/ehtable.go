package codegen

import (
	"encoding/binary"
	"fmt"
)

// HandlerEntry records that the native code starting at BlockStart (and
// running until the next entry's BlockStart, or function end for the
// last one) executes under the exception handler whose code begins at
// HandlerAddress.
type HandlerEntry struct {
	BlockStart     uint32
	HandlerAddress uint32
}

// EncodeEHTable delta-compresses entries into a varint stream, the same
// shape EncodeOffsetMap uses for the bytecode-offset map, with unsigned
// deltas via binary.PutUvarint. BlockStart only moves forward; a
// HandlerAddress lower than the previous one wraps around as a uint64
// delta, which DecodeEHTable's wrapping addition undoes.
func EncodeEHTable(entries []HandlerEntry) []byte {
	if len(entries) == 0 {
		return nil
	}
	buf := make([]byte, 0, len(entries)*4)
	var prevStart, prevHandler uint64
	for _, e := range entries {
		var tmp [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(tmp[:], uint64(e.BlockStart)-prevStart)
		buf = append(buf, tmp[:n]...)
		n = binary.PutUvarint(tmp[:], uint64(e.HandlerAddress)-prevHandler)
		buf = append(buf, tmp[:n]...)
		prevStart = uint64(e.BlockStart)
		prevHandler = uint64(e.HandlerAddress)
	}
	return buf
}

// DecodeEHTable reverses EncodeEHTable.
func DecodeEHTable(data []byte) ([]HandlerEntry, error) {
	var out []HandlerEntry
	var prevStart, prevHandler uint64
	i := 0
	for i < len(data) {
		startDelta, n := binary.Uvarint(data[i:])
		if n <= 0 {
			return nil, fmt.Errorf("codegen: corrupt eh-table block-start delta at byte %d", i)
		}
		i += n
		handlerDelta, n := binary.Uvarint(data[i:])
		if n <= 0 {
			return nil, fmt.Errorf("codegen: corrupt eh-table handler-address delta at byte %d", i)
		}
		i += n

		prevStart += startDelta
		prevHandler += handlerDelta
		out = append(out, HandlerEntry{
			BlockStart:     uint32(prevStart),
			HandlerAddress: uint32(prevHandler),
		})
	}
	return out, nil
}
