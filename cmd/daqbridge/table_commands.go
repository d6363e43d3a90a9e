package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"daqbridge/internal/ipc"
	"daqbridge/internal/table"
)

func newTableCommand(ctx *commandContext) *cobra.Command {
	tableCmd := &cobra.Command{
		Use:   "table",
		Short: "Inspect device tables",
	}

	tableCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TableList()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.Names)
				}
				out := cmd.OutOrStdout()
				if len(resp.Names) == 0 {
					fmt.Fprintln(out, "No tables configured")
				}
				for _, name := range resp.Names {
					fmt.Fprintln(out, name)
				}
				return nil
			})
		},
	})

	tableCmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Show the published columns of one table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TableShow(args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.Table)
				}
				renderTableSnapshot(cmd, resp.Table)
				return nil
			})
		},
	})

	return tableCmd
}

func renderTableSnapshot(cmd *cobra.Command, snap table.Snapshot) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  mode=%s rows=%d index=%d\n", snap.Name, snap.Mode, snap.Rows, snap.Index)
	if snap.InError != "" {
		fmt.Fprintf(out, "error: %s\n", snap.InError)
	}
	if len(snap.Columns) == 0 {
		return
	}

	headers := make([]string, 0, len(snap.Columns)+1)
	aligns := make([]columnAlignment, 0, len(snap.Columns)+1)
	headers = append(headers, "#")
	aligns = append(aligns, alignRight)
	for _, col := range snap.Columns {
		headers = append(headers, col.Name)
		if len(col.Labels) > 0 {
			aligns = append(aligns, alignLeft)
		} else {
			aligns = append(aligns, alignRight)
		}
	}

	rows := make([][]string, snap.Rows)
	for r := range rows {
		row := make([]string, 0, len(headers))
		row = append(row, strconv.Itoa(r))
		for _, col := range snap.Columns {
			row = append(row, columnCell(col, r))
		}
		rows[r] = row
	}
	fmt.Fprint(out, renderTable(headers, rows, aligns))
}

// columnCell renders one cell, using the enum label when the field has one.
func columnCell(col table.ColumnView, row int) string {
	if row >= len(col.Values) {
		return ""
	}
	v := col.Values[row]
	if v >= 0 && int(v) < len(col.Labels) && col.Labels[v] != "" {
		return col.Labels[v]
	}
	return strconv.FormatInt(v, 10)
}
