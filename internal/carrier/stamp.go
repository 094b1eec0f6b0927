package carrier

import (
	"encoding/binary"

	"anchorproto/anchord/internal/chain"
)

// Stamp carrier: data hidden in the fake public keys of bare multisig
// outputs. Each data key contributes 31 bytes (the leading sign byte and
// the trailing filler byte are discarded); the last key of each output is
// the real spending key and carries nothing. The reassembled stream opens
// with a 2-byte big-endian length followed by that many payload bytes.
// Chunking conventions vary between stamp dialects; this one is the
// pluggable default.

// extractStamp reassembles a stamp payload from the transaction's bare
// multisig outputs, in output order. Returns the vout of the first chunk.
func extractStamp(tx *chain.Transaction) ([]byte, uint8, bool) {
	var stream []byte
	firstVout := -1

	for vout, out := range tx.Outputs {
		keys, ok := parseBareMultisig(out.Script)
		if !ok || len(keys) < 2 {
			continue
		}
		if firstVout < 0 {
			firstVout = vout
		}
		// All but the last key carry data.
		for _, key := range keys[:len(keys)-1] {
			if len(key) != 33 {
				return nil, 0, false
			}
			stream = append(stream, key[1:32]...)
		}
	}

	if firstVout < 0 || len(stream) < 2 {
		return nil, 0, false
	}

	n := int(binary.BigEndian.Uint16(stream[:2]))
	if n == 0 || len(stream) < 2+n {
		return nil, 0, false
	}
	return stream[2 : 2+n], uint8(firstVout), true
}

// parseBareMultisig matches OP_m <key pushes> OP_n OP_CHECKMULTISIG and
// returns the pushed keys.
func parseBareMultisig(script []byte) ([][]byte, bool) {
	if len(script) < 3 {
		return nil, false
	}
	m := smallInt(script[0])
	if m < 1 {
		return nil, false
	}

	var keys [][]byte
	off := 1
	for off < len(script) {
		if n := smallInt(script[off]); n >= 1 && off+2 == len(script) && script[off+1] == opCheckMultisig {
			if n != len(keys) || m > n {
				return nil, false
			}
			return keys, true
		}
		push, next, ok := readPush(script, off)
		if !ok {
			return nil, false
		}
		keys = append(keys, push)
		off = next
	}
	return nil, false
}
