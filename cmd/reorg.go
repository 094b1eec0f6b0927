package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	reorgJSON bool
	reorgFile string
)

var reorgCmd = &cobra.Command{
	Use:   "reorg [txid...]",
	Short: "Remove no-longer-confirmed transactions and re-resolve dependent anchors",
	RunE: func(cmd *cobra.Command, args []string) error {
		txids := args
		if reorgFile != "" {
			f, err := os.Open(reorgFile)
			if err != nil {
				return fmt.Errorf("opening txid list: %w", err)
			}
			defer f.Close()
			scanner := bufio.NewScanner(f)
			for scanner.Scan() {
				if line := scanner.Text(); line != "" {
					txids = append(txids, line)
				}
			}
			if err := scanner.Err(); err != nil {
				return err
			}
		}
		if len(txids) == 0 {
			return fmt.Errorf("no transactions given (pass txids or --file)")
		}

		ix, store, err := OpenIndexer()
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := ix.OnReorg(txids)
		if err != nil {
			return err
		}

		if reorgJSON {
			return json.NewEncoder(os.Stdout).Encode(res)
		}
		fmt.Printf("removed %d messages, revised %d anchors, watermark %d\n",
			res.MessagesRemoved, res.AnchorsRevised, res.Watermark)
		return nil
	},
}

func init() {
	reorgCmd.Flags().BoolVar(&reorgJSON, "json", false, "Output as JSON")
	reorgCmd.Flags().StringVar(&reorgFile, "file", "", "File with one txid per line")
	rootCmd.AddCommand(reorgCmd)
}
