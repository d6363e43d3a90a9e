package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"daqbridge/internal/ipc"
	"daqbridge/internal/sessions"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent capture sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Sessions(limit)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.Sessions)
				}
				if len(resp.Sessions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No capture sessions recorded")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderSessions(resp.Sessions, time.Now()))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of sessions to list")
	return cmd
}

func renderSessions(items []sessions.Session, now time.Time) string {
	rows := make([][]string, 0, len(items))
	for _, s := range items {
		id := s.ID
		if len(id) > 8 {
			id = id[:8]
		}
		end := string(s.EndReason)
		if s.Active() {
			end = "capturing"
		}
		rows = append(rows, []string{
			id,
			filepath.Base(s.Filename),
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			s.Duration(now).Round(time.Second).String(),
			strconv.Itoa(s.RowsWritten),
			end,
			s.Status,
		})
	}
	return renderTable(
		[]string{"ID", "File", "Started", "Duration", "Rows", "End", "Status"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	)
}
