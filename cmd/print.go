package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// printIndented re-marshals raw with indentation for readable terminal
// output; the CLI only has typed structs for the shapes it renders as
// tables, so free-form responses (e.g. per-instance status maps) print
// as formatted JSON instead.
func printIndented(cmd *cobra.Command, raw json.RawMessage) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// mustMarshal re-encodes an already-decoded value back into a
// json.RawMessage for printIndented. Marshaling a value this package just
// unmarshaled from valid JSON cannot fail.
func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
