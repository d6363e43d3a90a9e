package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// writeJSON prints v as an indented document.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeJSONLine prints v on a single line so streamed log events stay one
// object per line.
func writeJSONLine(cmd *cobra.Command, v any) error {
	return json.NewEncoder(cmd.OutOrStdout()).Encode(v)
}
