package chain

import (
	"fmt"
	"strings"
)

// TxOut is a single transaction output: a value in satoshis and the
// locking script controlling it.
type TxOut struct {
	Value  int64  `json:"value"`
	Script []byte `json:"script"`
}

// Transaction is the slice of a confirmed transaction the engine needs:
// its id, its outputs, and the witness stacks of its inputs. The feed is
// trusted as given; no consensus validation happens here.
type Transaction struct {
	Txid      string     `json:"txid"`
	Outputs   []TxOut    `json:"outputs"`
	Witnesses [][][]byte `json:"witnesses"` // one stack per input
}

// Block is one confirmed block from the external feed.
type Block struct {
	Hash         string        `json:"hash"`
	Height       int64         `json:"height"`
	Time         int64         `json:"time"` // Unix seconds
	Transactions []Transaction `json:"transactions"`
}

// TxidHexLen is the length of a full transaction id in hex characters.
const TxidHexLen = 64

// PrefixHexLen is the length of an 8-byte txid prefix in hex characters.
const PrefixHexLen = 16

// NormalizeTxid lowercases and validates a full transaction id.
func NormalizeTxid(txid string) (string, error) {
	t := strings.ToLower(txid)
	if len(t) != TxidHexLen {
		return "", fmt.Errorf("txid must be %d hex chars, got %d", TxidHexLen, len(t))
	}
	if !isHex(t) {
		return "", fmt.Errorf("txid contains non-hex characters: %s", txid)
	}
	return t, nil
}

// NormalizePrefix lowercases and validates a txid prefix of up to 64 hex
// chars. Prefixes shorter than 16 chars are accepted for search queries;
// protocol anchors always carry exactly 16.
func NormalizePrefix(prefix string) (string, error) {
	p := strings.ToLower(prefix)
	if len(p) == 0 || len(p) > TxidHexLen {
		return "", fmt.Errorf("prefix length must be 1..%d hex chars, got %d", TxidHexLen, len(p))
	}
	if !isHex(p) {
		return "", fmt.Errorf("prefix contains non-hex characters: %s", prefix)
	}
	return p, nil
}

func isHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
