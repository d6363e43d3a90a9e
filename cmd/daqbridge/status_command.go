package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"daqbridge/internal/daemon"
	"daqbridge/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, capture and table status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.Status)
				}
				renderStatus(cmd, resp.Status)
				return nil
			})
		},
	}
}

func renderStatus(cmd *cobra.Command, status daemon.Status) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	printSection(out, "Daemon", colorize)
	fmt.Fprintln(out, renderStatusLine("Running", readyKind(status.Running), fmt.Sprintf("%s (pid %d)", yesNo(status.Running), status.PID), colorize))
	fmt.Fprintln(out, renderStatusLine("Device", statusInfo, status.Device, colorize))
	for _, h := range status.Health {
		fmt.Fprintln(out, renderStatusLine(h.Name, readyKind(h.Ready), h.Detail, colorize))
	}
	fmt.Fprintln(out)

	c := status.Capture
	printSection(out, "Capture", colorize)
	fmt.Fprintln(out, renderStatusLine("Status", statusKindFromSeverity(c.Severity), c.Status, colorize))
	fmt.Fprintln(out, renderStatusLine("Capture", statusInfo, yesNo(c.Capture), colorize))
	fmt.Fprintln(out, renderStatusLine("Capturing", statusInfo, yesNo(c.Capturing), colorize))
	fmt.Fprintln(out, renderStatusLine("File", statusInfo, c.Filename, colorize))
	fmt.Fprintln(out, renderStatusLine("Rows", statusInfo, fmt.Sprintf("%d / %d", c.NumCaptured, c.NumCapture), colorize))
	if c.LastEndReason != "" {
		fmt.Fprintln(out, renderStatusLine("Last end", statusInfo, c.LastEndReason, colorize))
	}
	fmt.Fprintln(out)

	printSection(out, "Tables", colorize)
	if len(status.Tables) == 0 {
		fmt.Fprintln(out, "No tables configured")
		return
	}
	rows := make([][]string, 0, len(status.Tables))
	for _, t := range status.Tables {
		rows = append(rows, []string{t.Name, t.Mode, strconv.Itoa(t.Rows), t.InError})
	}
	fmt.Fprint(out, renderTable([]string{"Table", "Mode", "Rows", "Error"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
}
