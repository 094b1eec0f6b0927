package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"anchorproto/anchord/internal/chain"
	"anchorproto/anchord/internal/index"
	"anchorproto/anchord/internal/protocol"
)

var (
	threadJSON  bool
	threadLimit int
)

var threadCmd = &cobra.Command{
	Use:   "thread <txid> <vout>",
	Short: "Walk the descendants of a message breadth-first",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		txid, err := chain.NormalizeTxid(args[0])
		if err != nil {
			return err
		}
		vout, err := strconv.ParseUint(args[1], 10, 8)
		if err != nil {
			return fmt.Errorf("vout must be 0..255")
		}
		root := index.MessageRef{Txid: txid, Vout: uint8(vout)}

		ix, store, err := OpenIndexer()
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := ix.GetThread(root, threadLimit)
		if err != nil {
			return err
		}

		if threadJSON {
			if entries == nil {
				entries = []index.ThreadEntry{}
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}

		fmt.Printf("%s (root)\n", root)
		for _, e := range entries {
			fmt.Printf("%s%s  kind=%s  height=%d\n",
				strings.Repeat("  ", e.Depth), e.Ref, protocol.KindName(e.Kind), e.BlockHeight)
		}
		if len(entries) == 0 {
			fmt.Println("  (no replies)")
		}
		return nil
	},
}

func init() {
	threadCmd.Flags().BoolVar(&threadJSON, "json", false, "Output as JSON")
	threadCmd.Flags().IntVar(&threadLimit, "limit", 0, "Maximum descendants to return")
	rootCmd.AddCommand(threadCmd)
}
