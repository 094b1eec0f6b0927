package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"anchorproto/anchord/internal/protocol"
)

var (
	messagesJSON  bool
	messagesLimit int
)

var messagesCmd = &cobra.Command{
	Use:   "messages <txid-prefix>",
	Short: "List indexed messages whose carrying txid starts with a hex prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, store, err := OpenIndexer()
		if err != nil {
			return err
		}
		defer store.Close()

		msgs, err := ix.FindByTxidPrefix(args[0], messagesLimit)
		if err != nil {
			return err
		}

		if messagesJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(msgs)
		}

		for _, m := range msgs {
			fmt.Printf("%s  kind=%-10s carrier=%-11s height=%d anchors=%d\n",
				m.Ref, protocol.KindName(m.Kind), m.Carrier, m.BlockHeight, m.AnchorCount)
		}
		if len(msgs) == 0 {
			fmt.Println("no matches")
		}
		return nil
	},
}

func init() {
	messagesCmd.Flags().BoolVar(&messagesJSON, "json", false, "Output as JSON")
	messagesCmd.Flags().IntVar(&messagesLimit, "limit", 100, "Maximum matches to return")
	rootCmd.AddCommand(messagesCmd)
}
