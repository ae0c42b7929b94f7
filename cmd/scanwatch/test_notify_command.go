package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scanwatch/internal/ipc"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification through the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.Sent {
					fmt.Fprintln(out, "Test notification sent")
				} else {
					fmt.Fprintf(out, "Notification not sent: %s\n", resp.Message)
				}
				return nil
			})
		},
	}
}
