package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"daqbridge/internal/attr"
	"daqbridge/internal/ipc"
)

func newAttrCommand(ctx *commandContext) *cobra.Command {
	attrCmd := &cobra.Command{
		Use:     "attr",
		Aliases: []string{"attribute"},
		Short:   "Read and write published attributes",
	}

	attrCmd.AddCommand(&cobra.Command{
		Use:   "list [prefix]",
		Short: "List attributes, optionally filtered by name prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.AttrList(prefix)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.Attributes)
				}
				if len(resp.Attributes) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No attributes found")
					return nil
				}
				rows := make([][]string, 0, len(resp.Attributes))
				for _, a := range resp.Attributes {
					rows = append(rows, []string{a.Name, a.Kind, formatValue(a.Value), a.Severity.String()})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Name", "Kind", "Value", "Severity"}, rows, nil))
				return nil
			})
		},
	})

	attrCmd.AddCommand(&cobra.Command{
		Use:   "get <name>",
		Short: "Read one attribute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.AttrGet(args[0])
				if err != nil {
					return err
				}
				return printAttribute(cmd, ctx, resp.Attribute)
			})
		},
	})

	attrCmd.AddCommand(&cobra.Command{
		Use:   "put <name> <value>",
		Short: "Write one attribute; JSON arrays are accepted for array values",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := parseAttrValue(args[1])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.AttrPut(args[0], value)
				if err != nil {
					return err
				}
				return printAttribute(cmd, ctx, resp.Attribute)
			})
		},
	})

	return attrCmd
}

// parseAttrValue decodes JSON arrays and passes everything else through as
// text; the daemon converts text to the attribute's kind.
func parseAttrValue(raw string) (any, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "[") {
		return raw, nil
	}
	var values []any
	if err := json.Unmarshal([]byte(trimmed), &values); err != nil {
		return nil, fmt.Errorf("parse array value: %w", err)
	}
	return values, nil
}

func printAttribute(cmd *cobra.Command, ctx *commandContext, snap attr.Snapshot) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, snap)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s = %s\n", snap.Name, formatValue(snap.Value))
	if snap.Severity != attr.NoAlarm {
		fmt.Fprintf(out, "  severity: %s (%s)\n", snap.Severity, snap.Alarm)
	}
	if len(snap.Labels) > 0 {
		fmt.Fprintf(out, "  labels:   %s\n", strings.Join(snap.Labels, ", "))
	}
	return nil
}
