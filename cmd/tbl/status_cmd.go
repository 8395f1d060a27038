package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"pkt.systems/tbl"
	"pkt.systems/tbl/internal/runstate"
)

// newStatusCommand reports on the instance recorded in the run registry.
// It distinguishes a healthy instance from the two stale cases: process
// gone, and process alive but not answering on its recorded port.
func newStatusCommand() *cobra.Command {
	var showToken bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a tbl server is running and where",
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

			alive := runstate.Alive(rec)
			processUp := runstate.ProcessRunning(rec.PID)

			state := "running"
			switch {
			case alive:
			case processUp:
				state = "not responding (process alive, port closed)"
			default:
				state = "stale (process gone)"
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "  tbl server status")
			fmt.Fprintln(out, "  ───────────────────────────────────────")
			fmt.Fprintf(out, "  State:  %s\n", state)
			fmt.Fprintf(out, "  PID:    %d\n", rec.PID)
			fmt.Fprintf(out, "  Port:   %d\n", rec.Port)
			fmt.Fprintf(out, "  TLS:    %s\n", enabledStr(rec.TLS))
			fmt.Fprintf(out, "  Record: %s\n", registry.Path())
			if alive {
				fmt.Fprintln(out)
				if showToken {
					printURLBox(out, bootstrapURL(rec))
				} else {
					fmt.Fprintf(out, "  URL:    %s://127.0.0.1:%d/\n", schemeFor(rec.TLS), rec.Port)
					fmt.Fprintln(out, "  Re-run with --show-token for a fresh bootstrap URL.")
				}
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showToken, "show-token", false, "include the bootstrap URL with the session token")
	return cmd
}
