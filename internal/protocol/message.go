package protocol

import "encoding/hex"

// Magic is the 4-byte big-endian constant opening every Anchor Protocol
// envelope. Payloads not starting with it are simply not protocol messages.
const Magic uint32 = 0xA11C0001

// AnchorSize is the encoded size of one anchor: 8 prefix bytes + 1 vout byte.
const AnchorSize = 9

// headerSize is magic (4) + kind (1) + anchor_count (1).
const headerSize = 6

// MaxAnchors is the envelope's anchor_count ceiling (a single byte).
const MaxAnchors = 255

// Anchor references a specific output of a prior transaction by an 8-byte
// txid prefix and an output index. Prefixes are compact, not unique;
// resolution classifies collisions instead of guessing.
type Anchor struct {
	TxidPrefix [8]byte
	Vout       uint8
}

// PrefixHex returns the anchor's txid prefix as 16 lowercase hex chars.
func (a Anchor) PrefixHex() string {
	return hex.EncodeToString(a.TxidPrefix[:])
}

// Message is the decoded protocol envelope. Its identity is the (txid, vout)
// of the carrying output, tracked by the index, not by the message itself.
// Body stays opaque here; the kind registry interprets it for display.
type Message struct {
	Kind    uint8
	Anchors []Anchor
	Body    []byte
}
