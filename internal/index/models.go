package index

import (
	"fmt"

	"anchorproto/anchord/internal/carrier"
)

// MessageRef identifies an indexed message by the location of its carrying
// output. This is the engine's stable identity; there is no protocol-level
// message id.
type MessageRef struct {
	Txid string `json:"txid"`
	Vout uint8  `json:"vout"`
}

func (r MessageRef) String() string {
	return fmt.Sprintf("%s:%d", r.Txid, r.Vout)
}

// Status classifies an anchor's resolution. Orphan and Ambiguous are
// first-class outcomes, not errors.
type Status string

const (
	StatusResolved  Status = "resolved"
	StatusOrphan    Status = "orphan"
	StatusAmbiguous Status = "ambiguous"
)

// StoredMessage is a message row plus its confirmation context.
type StoredMessage struct {
	Ref         MessageRef   `json:"ref"`
	Kind        uint8        `json:"kind"`
	AnchorCount int          `json:"anchor_count"`
	Body        []byte       `json:"body"`
	Carrier     carrier.Type `json:"carrier"`
	BlockHeight int64        `json:"block_height"`
	BlockTime   int64        `json:"block_time"`
}

// AnchorState is one anchor of an indexed message together with its
// current resolution. Candidates holds the single target when resolved
// and every live candidate when ambiguous; it is empty for orphans.
type AnchorState struct {
	Index      int          `json:"index"`
	Prefix     string       `json:"prefix"` // 16 hex chars
	TargetVout uint8        `json:"target_vout"`
	Status     Status       `json:"status"`
	Candidates []MessageRef `json:"candidates,omitempty"`
}

// ThreadEntry is one message reached by a thread traversal.
type ThreadEntry struct {
	Ref         MessageRef `json:"ref"`
	Kind        uint8      `json:"kind"`
	BlockHeight int64      `json:"block_height"`
	Depth       int        `json:"depth"`
}
