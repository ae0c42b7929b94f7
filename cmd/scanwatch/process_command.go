package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"scanwatch/internal/config"
	"scanwatch/internal/ipc"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <file>",
		Short: "Queue a document for processing, bypassing the watcher",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ProcessFile(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s (item %d)\n",
					filepath.Base(resp.Item.SourcePath), resp.Item.ID)
				return nil
			})
		},
	}
}
