package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"pkt.systems/tbl"
	"pkt.systems/tbl/client"
	"pkt.systems/tbl/internal/runstate"
)

// newStopCommand builds the out-of-band stop: look up the run record, send
// an authenticated shutdown request, and wait for the port to go dark.
// Stale records are cleaned up instead of being reported as failures.
func newStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running tbl server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			out := cmd.OutOrStdout()

			dir, err := tbl.DefaultConfigDir()
			if err != nil {
				return err
			}
			registry := runstate.New(dir)
			rec, ok := registry.Load()
			if !ok {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "  No tbl server is currently running.")
				fmt.Fprintln(out)
				return nil
			}
			if !runstate.Alive(rec) {
				registry.Clear()
				fmt.Fprintln(out)
				fmt.Fprintln(out, "  No tbl server is currently running (stale run record cleaned up).")
				fmt.Fprintln(out)
				return nil
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "  Stopping tbl server...")
			fmt.Fprintln(out, "  ───────────────────────────────────────")
			fmt.Fprintf(out, "  PID:  %d\n", rec.PID)
			fmt.Fprintf(out, "  Port: %d\n", rec.Port)
			fmt.Fprintln(out)

			result, err := client.Stop(rec.Port, rec.AuthToken)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "  Failed to send shutdown request: %v\n", err)
				fmt.Fprintf(cmd.ErrOrStderr(), "  You may need to kill the process manually (PID: %d).\n", rec.PID)
				fmt.Fprintln(out)
				return nil
			}
			switch result {
			case client.StopConfirmed:
				fmt.Fprintln(out, "  Server stopped successfully.")
			default:
				fmt.Fprintln(out, "  Server may still be shutting down.")
			}
			fmt.Fprintln(out)
			return nil
		},
	}
}
