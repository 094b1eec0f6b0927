package cmd

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"anchorproto/anchord/internal/protocol"
)

var decodeJSON bool

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "Decode a hex payload and print the envelope and typed body",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := hex.DecodeString(args[0])
		if err != nil {
			return fmt.Errorf("decoding hex: %w", err)
		}

		msg, err := protocol.Decode(payload)
		if errors.Is(err, protocol.ErrNotAnchorMessage) {
			return fmt.Errorf("payload does not carry the protocol magic")
		}
		if err != nil {
			return err
		}

		registry := protocol.DefaultRegistry()
		var body any = msg.Body
		if codec, ok := registry.Lookup(msg.Kind); ok {
			if parsed, perr := codec.Parse(msg.Body); perr == nil {
				body = parsed
			}
		}

		if decodeJSON {
			out := map[string]any{
				"kind":      msg.Kind,
				"kind_name": protocol.KindName(msg.Kind),
				"anchors":   anchorMaps(msg.Anchors),
				"body":      body,
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		fmt.Printf("kind:    %d (%s)\n", msg.Kind, protocol.KindName(msg.Kind))
		fmt.Printf("anchors: %d\n", len(msg.Anchors))
		for i, a := range msg.Anchors {
			fmt.Printf("  [%d] prefix=%s vout=%d\n", i, a.PrefixHex(), a.Vout)
		}
		fmt.Printf("body:    %d bytes\n", len(msg.Body))
		if parsed, ok := body.(protocol.KindPayload); ok {
			j, _ := json.Marshal(parsed)
			fmt.Printf("parsed:  %s\n", j)
		}
		return nil
	},
}

func anchorMaps(anchors []protocol.Anchor) []map[string]any {
	out := make([]map[string]any, len(anchors))
	for i, a := range anchors {
		out[i] = map[string]any{"prefix": a.PrefixHex(), "vout": a.Vout}
	}
	return out
}

func init() {
	decodeCmd.Flags().BoolVar(&decodeJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(decodeCmd)
}
