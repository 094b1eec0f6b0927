package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNotAnchorMessage marks a payload that does not open with the protocol
// magic. It is non-membership, not corruption: the caller skips the payload.
var ErrNotAnchorMessage = errors.New("not an anchor protocol message")

// ErrTruncated marks a payload that opens with the magic but is shorter
// than its own header claims.
var ErrTruncated = errors.New("truncated anchor message")

// Decode parses a raw payload into a Message.
//
// The envelope is fixed and big-endian: magic u32, kind u8, anchor_count u8,
// anchor_count 9-byte anchors, then the body verbatim. Decoding is strict
// about structure (short anchor lists fail) but deliberately loose about
// kind: an unregistered kind still decodes, its body kept opaque.
func Decode(payload []byte) (*Message, error) {
	if len(payload) < 4 || binary.BigEndian.Uint32(payload[:4]) != Magic {
		return nil, ErrNotAnchorMessage
	}
	if len(payload) < headerSize {
		return nil, ErrTruncated
	}

	kind := payload[4]
	anchorCount := int(payload[5])

	anchorsEnd := headerSize + anchorCount*AnchorSize
	if len(payload) < anchorsEnd {
		return nil, ErrTruncated
	}

	anchors := make([]Anchor, anchorCount)
	for i := 0; i < anchorCount; i++ {
		off := headerSize + i*AnchorSize
		copy(anchors[i].TxidPrefix[:], payload[off:off+8])
		anchors[i].Vout = payload[off+8]
	}

	body := make([]byte, len(payload)-anchorsEnd)
	copy(body, payload[anchorsEnd:])

	return &Message{Kind: kind, Anchors: anchors, Body: body}, nil
}

// Encode serializes a Message to the exact wire envelope, the inverse of
// Decode. The only way a legal Message fails is by exceeding MaxAnchors.
func Encode(m *Message) ([]byte, error) {
	if len(m.Anchors) > MaxAnchors {
		return nil, fmt.Errorf("message has %d anchors, envelope limit is %d", len(m.Anchors), MaxAnchors)
	}

	out := make([]byte, 0, headerSize+len(m.Anchors)*AnchorSize+len(m.Body))
	out = binary.BigEndian.AppendUint32(out, Magic)
	out = append(out, m.Kind, uint8(len(m.Anchors)))
	for _, a := range m.Anchors {
		out = append(out, a.TxidPrefix[:]...)
		out = append(out, a.Vout)
	}
	out = append(out, m.Body...)
	return out, nil
}
