package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/workspace-chat/backend/internal/logger"
)

func init() {
	rootCmd.AddCommand(replayCmd)
}

var replayCmd = &cobra.Command{
	Use:   "replay <transcript>",
	Short: "Print a transcript recorded with join --record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		header, events, err := logger.ReadTranscript(f)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		started := time.Unix(header.Timestamp, 0)
		fmt.Fprintf(out, "workspace %s, user %s, recorded %s\n",
			header.WorkspaceID, header.UserID, started.Format(time.RFC3339))
		for _, ev := range events {
			arrow := "<-"
			if ev.Direction == "o" {
				arrow = "->"
			}
			data := "-"
			if len(ev.Data) > 0 {
				data = string(ev.Data)
			}
			fmt.Fprintf(out, "%9.3fs %s %-20s %s\n", ev.TimeOffset, arrow, ev.Event, data)
		}
		return nil
	},
}
