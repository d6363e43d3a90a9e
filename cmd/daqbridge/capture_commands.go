package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"daqbridge/internal/capture"
	"daqbridge/internal/ipc"
)

func newCaptureCommand(ctx *commandContext) *cobra.Command {
	captureCmd := &cobra.Command{
		Use:   "capture",
		Short: "Start or stop capturing to file",
	}

	captureCmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Write Capture=1 and begin a new session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CaptureStart()
				if err != nil {
					return err
				}
				return printCaptureState(cmd, ctx, resp.State, "Capture started")
			})
		},
	})

	captureCmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Write Capture=0 and wait for the session to finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CaptureStop()
				if err != nil {
					return err
				}
				return printCaptureState(cmd, ctx, resp.State, "Capture stopped")
			})
		},
	})

	return captureCmd
}

func printCaptureState(cmd *cobra.Command, ctx *commandContext, state capture.State, headline string) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, state)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, headline)
	fmt.Fprintf(out, "  file:   %s\n", state.Filename)
	fmt.Fprintf(out, "  status: %s\n", state.Status)
	fmt.Fprintf(out, "  rows:   %d / %d\n", state.NumCaptured, state.NumCapture)
	return nil
}
