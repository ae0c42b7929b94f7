package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scanwatch/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			p := newStatusPrinter(cmd.OutOrStdout())

			var status *ipc.StatusResponse
			dialErr := ctx.withClient(func(client *ipc.Client) error {
				var callErr error
				status, callErr = client.Status()
				return callErr
			})

			p.section("Daemon")
			if dialErr != nil {
				p.line("Daemon", statusError, "not running")
			} else {
				running := statusOK
				detail := fmt.Sprintf("running (pid %d)", status.PID)
				if !status.Running {
					running = statusWarn
					detail = "reachable but stopped"
				}
				p.line("Daemon", running, detail)
				p.line("Socket", statusInfo, ctx.socketPath())
				p.line("Queue DB", statusInfo, status.QueueDBPath)
				if status.PendingScans > 0 {
					p.line("Stabilizing", statusInfo, fmt.Sprintf("%d file(s)", status.PendingScans))
				}
				if status.LastError != "" {
					p.line("Last error", statusWarn, status.LastError)
				}
			}
			p.blank()

			p.section("Paths")
			p.line("Watch dir", pathStatus(cfg.Paths.WatchDir), cfg.Paths.WatchDir)
			p.line("Output dir", pathStatus(cfg.Paths.OutputDir), cfg.Paths.OutputDir)
			p.blank()

			p.section("Queue")
			if dialErr != nil || len(status.QueueStats) == 0 {
				p.text("Queue is empty or unavailable")
				return nil
			}
			rows := buildQueueStatusRows(status.QueueStats)
			if len(rows) == 0 {
				p.text("Queue is empty")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), countTable(rows))
			if status.AvgElapsedMs > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Average processing time: %dms\n", status.AvgElapsedMs)
			}
			return nil
		},
	}
}

func pathStatus(path string) statusKind {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return statusError
	}
	return statusOK
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the scanwatch daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Stop()
				if err != nil {
					return err
				}
				if resp.Stopped {
					fmt.Fprintln(cmd.OutOrStdout(), "Stop request sent")
				}
				return nil
			})
		},
	}
}
