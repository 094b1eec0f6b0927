package carrier

import (
	"bytes"
	"encoding/binary"

	"anchorproto/anchord/internal/chain"
	"anchorproto/anchord/internal/protocol"
)

// witnessTag is the protocol magic; a witness stack item opening with it
// is self-designating as a raw payload.
var witnessTag = binary.BigEndian.AppendUint32(nil, protocol.Magic)

// extractWitness returns the first witness stack item that opens with the
// protocol magic. Items inside inscription envelopes never start with the
// magic (they start with script opcodes), so the carriers do not shadow
// each other.
func extractWitness(tx *chain.Transaction) ([]byte, bool) {
	for _, stack := range tx.Witnesses {
		for _, item := range stack {
			if bytes.HasPrefix(item, witnessTag) {
				return item, true
			}
		}
	}
	return nil, false
}
