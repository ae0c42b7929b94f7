package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"scanwatch/internal/ipc"
	"scanwatch/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the work queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueList(listStatuses)
				if err != nil {
					return err
				}
				if len(resp.Items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), queueTable(buildQueueListRows(resp.Items)))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by queue status (repeatable)")
	return cmd
}

func buildQueueListRows(items []ipc.QueueItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		finalName := ""
		if item.FinalPath != "" {
			finalName = filepath.Base(item.FinalPath)
		}
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			filepath.Base(item.SourcePath),
			item.Status,
			item.ProgressStage,
			item.DocumentType,
			finalName,
		})
	}
	return rows
}

func buildQueueStatusRows(stats map[string]int) [][]string {
	keys := make([]string, 0, len(stats))
	for key, count := range stats {
		if count == 0 {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{key, strconv.Itoa(stats[key])})
	}
	return rows
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return errors.New("specify only one of --completed or --failed")
			}
			scope := "all"
			switch {
			case clearCompleted:
				scope = "completed"
			case clearFailed:
				scope = "failed"
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueClear(scope)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d %s items\n", resp.Removed, scope)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove only completed items")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove only failed items")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [itemID...]",
		Short: "Retry failed queue items",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid item id %q", arg)
				}
				ids = append(ids, id)
			}

			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				if len(ids) == 0 {
					resp, err := client.QueueRetry(nil)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Retried %d failed items\n", resp.Updated)
					return nil
				}

				resp, err := client.QueueList([]string{string(queue.StatusFailed)})
				if err != nil {
					return err
				}
				failedByID := make(map[int64]struct{}, len(resp.Items))
				for _, item := range resp.Items {
					failedByID[item.ID] = struct{}{}
				}

				for _, id := range ids {
					if _, ok := failedByID[id]; !ok {
						fmt.Fprintf(out, "Item %d is not in failed state\n", id)
						continue
					}
					retryResp, retryErr := client.QueueRetry([]int64{id})
					if retryErr != nil {
						return retryErr
					}
					if retryResp.Updated > 0 {
						fmt.Fprintf(out, "Item %d reset for retry\n", id)
					} else {
						fmt.Fprintf(out, "Item %d is not in failed state\n", id)
					}
				}
				return nil
			})
		},
	}
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show queue health summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				health, err := client.QueueHealth()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Total: %d\nPending: %d\nProcessing: %d\nCompleted: %d\nFailed: %d\nReview: %d\n",
					health.Total,
					health.Pending,
					health.Processing,
					health.Completed,
					health.Failed,
					health.Review,
				)
				if health.AvgMs > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Average processing time: %dms\n", health.AvgMs)
				}
				return nil
			})
		},
	}
}
