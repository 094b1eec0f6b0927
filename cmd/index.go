package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"anchorproto/anchord/internal/chain"
)

var indexJSON bool

var indexCmd = &cobra.Command{
	Use:   "index [file]",
	Short: "Index confirmed blocks from an NDJSON feed (file or stdin)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = os.Stdin
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening feed: %w", err)
			}
			defer f.Close()
			in = f
		}

		ix, store, err := OpenIndexer()
		if err != nil {
			return err
		}
		defer store.Close()

		blocks, indexed, promoted := 0, 0, 0
		err = chain.ReadBlocks(in, func(b *chain.Block) error {
			res, err := ix.OnNewBlock(b)
			if err != nil {
				return err
			}
			blocks++
			indexed += res.Indexed
			promoted += res.Promoted
			return nil
		})
		if err != nil {
			return err
		}

		if indexJSON {
			enc := json.NewEncoder(os.Stdout)
			return enc.Encode(map[string]int{
				"blocks":   blocks,
				"indexed":  indexed,
				"promoted": promoted,
			})
		}
		fmt.Printf("indexed %d blocks: %d messages, %d orphan anchors promoted\n", blocks, indexed, promoted)
		return nil
	},
}

func init() {
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(indexCmd)
}
