package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"anchorproto/anchord/internal/protocol"
)

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List the registered message kinds",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := protocol.DefaultRegistry()
		for _, k := range registry.Kinds() {
			fmt.Printf("%3d  %s\n", k, protocol.KindName(k))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(kindsCmd)
}
