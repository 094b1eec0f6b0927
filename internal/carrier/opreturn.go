package carrier

import "anchorproto/anchord/internal/chain"

// extractOpReturn takes the first output whose script is a bare data
// carrier: OP_RETURN followed only by data pushes. All pushes are
// concatenated into one payload. Outputs with trailing non-push opcodes
// are not data carriers and yield nothing.
func extractOpReturn(tx *chain.Transaction) ([]byte, uint8, bool) {
	for vout, out := range tx.Outputs {
		if len(out.Script) == 0 || out.Script[0] != opReturn {
			continue
		}
		data, ok := parseDataPushes(out.Script[1:])
		if !ok || len(data) == 0 {
			// First OP_RETURN output decides; a malformed one means the
			// transaction has no data-carrier output.
			return nil, 0, false
		}
		return data, uint8(vout), true
	}
	return nil, 0, false
}

// parseDataPushes concatenates a run of data pushes covering the whole
// script tail. Any non-push opcode fails the parse.
func parseDataPushes(script []byte) ([]byte, bool) {
	var data []byte
	off := 0
	for off < len(script) {
		push, next, ok := readPush(script, off)
		if !ok {
			return nil, false
		}
		data = append(data, push...)
		off = next
	}
	return data, true
}
