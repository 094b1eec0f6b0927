package carrier

import "encoding/binary"

// Script opcodes the extractors care about.
const (
	op0             = 0x00
	opPushdata1     = 0x4c
	opPushdata2     = 0x4d
	opPushdata4     = 0x4e
	op1             = 0x51
	op16            = 0x60
	opIf            = 0x63
	opEndIf         = 0x68
	opReturn        = 0x6a
	opCheckMultisig = 0xae
)

// readPush decodes one data push starting at script[off]. Returns the
// pushed bytes and the offset past the push. ok is false when the opcode
// is not a push or the push runs past the end of the script.
func readPush(script []byte, off int) (data []byte, next int, ok bool) {
	if off >= len(script) {
		return nil, 0, false
	}
	op := script[off]
	off++

	var n int
	switch {
	case op >= 0x01 && op <= 0x4b:
		n = int(op)
	case op == opPushdata1:
		if off >= len(script) {
			return nil, 0, false
		}
		n = int(script[off])
		off++
	case op == opPushdata2:
		if off+2 > len(script) {
			return nil, 0, false
		}
		n = int(binary.LittleEndian.Uint16(script[off : off+2]))
		off += 2
	case op == opPushdata4:
		if off+4 > len(script) {
			return nil, 0, false
		}
		n = int(binary.LittleEndian.Uint32(script[off : off+4]))
		off += 4
	default:
		return nil, 0, false
	}

	if off+n > len(script) {
		return nil, 0, false
	}
	return script[off : off+n], off + n, true
}

// smallInt returns the value of an OP_0/OP_1..OP_16 opcode, or -1.
func smallInt(op byte) int {
	if op == op0 {
		return 0
	}
	if op >= op1 && op <= op16 {
		return int(op-op1) + 1
	}
	return -1
}
