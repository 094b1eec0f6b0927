package carrier

import "anchorproto/anchord/internal/chain"

// Type tags the on-chain encoding a payload was pulled from.
type Type string

const (
	TypeOpReturn    Type = "op_return"
	TypeInscription Type = "inscription"
	TypeStamp       Type = "stamp"
	TypeWitness     Type = "witness"
)

// RawPayload is one candidate protocol payload extracted from a confirmed
// transaction, together with the confirmation context the index needs.
// Payloads are not retained past the decoding attempt.
type RawPayload struct {
	Carrier     Type
	Data        []byte
	Txid        string
	Vout        uint8
	BlockHeight int64
	BlockTime   int64
}

// Extract pulls every candidate payload from a transaction. Pure: no side
// effects, no validation of the transaction itself. Multiple carriers can
// yield payloads from the same transaction; each decodes independently.
// Malformed carrier encodings yield no payload rather than an error.
func Extract(tx *chain.Transaction, height, blockTime int64) []RawPayload {
	var payloads []RawPayload

	add := func(t Type, data []byte, vout uint8) {
		payloads = append(payloads, RawPayload{
			Carrier:     t,
			Data:        data,
			Txid:        tx.Txid,
			Vout:        vout,
			BlockHeight: height,
			BlockTime:   blockTime,
		})
	}

	if data, vout, ok := extractOpReturn(tx); ok {
		add(TypeOpReturn, data, vout)
	}
	if data, ok := extractInscription(tx); ok {
		add(TypeInscription, data, 0)
	}
	if data, vout, ok := extractStamp(tx); ok {
		add(TypeStamp, data, vout)
	}
	if data, ok := extractWitness(tx); ok {
		add(TypeWitness, data, 0)
	}

	return payloads
}
