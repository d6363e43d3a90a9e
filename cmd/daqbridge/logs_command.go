package main

import (
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"daqbridge/internal/ipc"
	"daqbridge/internal/logging"
	"daqbridge/internal/logs"
)

const followWaitMillis = 1000

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines     int
		follow    bool
		component string
		sessionID string
		fromFile  bool
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromFile {
				return tailLogFile(cmd, ctx, lines, follow)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				req := ipc.LogsRequest{
					Tail:      true,
					Limit:     lines,
					Component: strings.TrimSpace(component),
					SessionID: strings.TrimSpace(sessionID),
				}
				resp, err := client.Logs(req)
				if err != nil {
					return err
				}
				if err := printLogEvents(cmd, ctx, resp.Events); err != nil {
					return err
				}
				if !follow {
					return nil
				}
				return followLogs(cmd, ctx, client, req, resp.Next)
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of recent events to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new events")
	cmd.Flags().StringVar(&component, "component", "", "Only show events from this component")
	cmd.Flags().StringVar(&sessionID, "session", "", "Only show events for this capture session")
	cmd.Flags().BoolVar(&fromFile, "file", false, "Read the daemon log file instead of asking the daemon")
	return cmd
}

func followLogs(cmd *cobra.Command, ctx *commandContext, client *ipc.Client, req ipc.LogsRequest, next uint64) error {
	runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	req.Tail = false
	req.Follow = true
	req.WaitMillis = followWaitMillis
	for {
		if runCtx.Err() != nil {
			return nil
		}
		req.Since = next
		resp, err := client.Logs(req)
		if err != nil {
			if runCtx.Err() != nil {
				return nil
			}
			return err
		}
		if err := printLogEvents(cmd, ctx, resp.Events); err != nil {
			return err
		}
		next = resp.Next
		select {
		case <-runCtx.Done():
			return nil
		default:
		}
	}
}

func printLogEvents(cmd *cobra.Command, ctx *commandContext, events []logging.LogEvent) error {
	out := cmd.OutOrStdout()
	for _, evt := range events {
		if ctx.jsonOutput() {
			if err := writeJSONLine(cmd, evt); err != nil {
				return err
			}
			continue
		}
		writeLogLine(out, evt)
	}
	return nil
}

func writeLogLine(out io.Writer, evt logging.LogEvent) {
	component := evt.Component
	if component == "" {
		component = "-"
	}
	fmt.Fprintf(out, "%s %-5s [%s] %s", evt.Timestamp.Local().Format("15:04:05.000"), evt.Level, component, evt.Message)
	if evt.SessionID != "" {
		fmt.Fprintf(out, " session=%s", evt.SessionID)
	}
	if evt.Table != "" {
		fmt.Fprintf(out, " table=%s", evt.Table)
	}
	fmt.Fprintln(out)
}


// tailLogFile prints the current daemon log file. It works without a
// running daemon.
func tailLogFile(cmd *cobra.Command, ctx *commandContext, lines int, follow bool) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	path := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
	runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	out := cmd.OutOrStdout()
	result, err := logs.Tail(runCtx, path, logs.TailOptions{Offset: -1, Limit: lines})
	if err != nil {
		return err
	}
	for _, line := range result.Lines {
		fmt.Fprintln(out, line)
	}
	for follow && runCtx.Err() == nil {
		result, err = logs.Tail(runCtx, path, logs.TailOptions{Offset: result.Offset, Follow: true, Wait: followWaitMillis * time.Millisecond})
		if err != nil {
			if runCtx.Err() != nil {
				return nil
			}
			return err
		}
		for _, line := range result.Lines {
			fmt.Fprintln(out, line)
		}
	}
	return nil
}
