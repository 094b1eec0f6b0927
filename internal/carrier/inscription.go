package carrier

import (
	"bytes"

	"anchorproto/anchord/internal/chain"
)

// inscriptionMarker opens a witness inscription envelope: OP_FALSE OP_IF.
var inscriptionMarker = []byte{op0, opIf}

// extractInscription scans witness stack items for an inscription
// envelope and returns the content of the first well-formed one.
//
// Envelope grammar: OP_FALSE OP_IF, a run of header pushes (tags such as
// content type, ignored here), an OP_0 separator, then the content split
// across data pushes, then OP_ENDIF. Content chunks are concatenated in
// order. Anything violating the grammar makes the envelope malformed,
// which means "no payload", never an error.
func extractInscription(tx *chain.Transaction) ([]byte, bool) {
	for _, stack := range tx.Witnesses {
		for _, item := range stack {
			if data, ok := parseEnvelope(item); ok {
				return data, true
			}
		}
	}
	return nil, false
}

func parseEnvelope(script []byte) ([]byte, bool) {
	start := bytes.Index(script, inscriptionMarker)
	if start < 0 {
		return nil, false
	}
	off := start + len(inscriptionMarker)

	var content []byte
	inBody := false
	for off < len(script) {
		op := script[off]
		switch {
		case op == opEndIf:
			if !inBody {
				return nil, false
			}
			return content, true
		case op == op0:
			// Separator between header fields and content chunks.
			inBody = true
			off++
		default:
			push, next, ok := readPush(script, off)
			if !ok {
				return nil, false
			}
			if inBody {
				content = append(content, push...)
			}
			off = next
		}
	}
	// Ran off the end without OP_ENDIF.
	return nil, false
}
