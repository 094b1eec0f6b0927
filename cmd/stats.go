package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"anchorproto/anchord/internal/protocol"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print a snapshot of the thread index counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, store, err := OpenIndexer()
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := ix.Stats()
		if err != nil {
			return err
		}

		if statsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}

		fmt.Printf("messages:  %d (%d roots, %d replies)\n", stats.TotalMessages, stats.TotalRoots, stats.TotalReplies)
		fmt.Printf("anchors:   %d (%d resolved, %d orphan, %d ambiguous)\n",
			stats.TotalAnchors, stats.ResolvedAnchors, stats.OrphanAnchors, stats.AmbiguousAnchors)
		fmt.Printf("last block: %d\n", stats.LastIndexedBlock)

		if len(stats.PerKind) > 0 {
			kinds := make([]int, 0, len(stats.PerKind))
			for k := range stats.PerKind {
				kinds = append(kinds, int(k))
			}
			sort.Ints(kinds)
			fmt.Println("per kind:")
			for _, k := range kinds {
				fmt.Printf("  %-12s %d\n", protocol.KindName(uint8(k)), stats.PerKind[uint8(k)])
			}
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(statsCmd)
}
