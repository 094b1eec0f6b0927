package chain

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
)

// feed wire types: scripts and witness items arrive hex-encoded, one JSON
// block per line.

type feedTxOut struct {
	Value  int64  `json:"value"`
	Script string `json:"script"`
}

type feedTx struct {
	Txid      string      `json:"txid"`
	Outputs   []feedTxOut `json:"outputs"`
	Witnesses [][]string  `json:"witnesses"`
}

type feedBlock struct {
	Hash         string   `json:"hash"`
	Height       int64    `json:"height"`
	Time         int64    `json:"time"`
	Transactions []feedTx `json:"txs"`
}

// DecodeBlock parses a single NDJSON feed line into a Block.
func DecodeBlock(line []byte) (*Block, error) {
	var fb feedBlock
	if err := json.Unmarshal(line, &fb); err != nil {
		return nil, fmt.Errorf("parsing block JSON: %w", err)
	}

	b := &Block{
		Hash:         fb.Hash,
		Height:       fb.Height,
		Time:         fb.Time,
		Transactions: make([]Transaction, 0, len(fb.Transactions)),
	}

	for i, ft := range fb.Transactions {
		txid, err := NormalizeTxid(ft.Txid)
		if err != nil {
			return nil, fmt.Errorf("block %d tx %d: %w", fb.Height, i, err)
		}

		tx := Transaction{Txid: txid}
		for j, fo := range ft.Outputs {
			script, err := hex.DecodeString(fo.Script)
			if err != nil {
				return nil, fmt.Errorf("block %d tx %s output %d: decoding script: %w", fb.Height, txid, j, err)
			}
			tx.Outputs = append(tx.Outputs, TxOut{Value: fo.Value, Script: script})
		}
		for j, stack := range ft.Witnesses {
			items := make([][]byte, 0, len(stack))
			for k, item := range stack {
				data, err := hex.DecodeString(item)
				if err != nil {
					return nil, fmt.Errorf("block %d tx %s witness %d item %d: %w", fb.Height, txid, j, k, err)
				}
				items = append(items, data)
			}
			tx.Witnesses = append(tx.Witnesses, items)
		}
		b.Transactions = append(b.Transactions, tx)
	}
	return b, nil
}

// ReadBlocks streams NDJSON blocks from r, invoking fn per block in feed
// order. Stops at the first decode or callback error.
func ReadBlocks(r io.Reader, fn func(*Block) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), 64<<20)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		b, err := DecodeBlock(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := fn(b); err != nil {
			return fmt.Errorf("block %d: %w", b.Height, err)
		}
	}
	return scanner.Err()
}
