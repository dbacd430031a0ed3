package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/cityhall/meetingpipe/internal/queue"
)

func init() {
	rootCmd.AddCommand(listCmd, statsCmd, addCmd, retryCmd, removeCmd, cleanCmd, clearCmd)
}

var listCmd = &cobra.Command{
	Use:   "list <queue> [state] [limit]",
	Short: "List jobs in a queue, optionally filtered by state",
	Args:  cobra.RangeArgs(1, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd.Context())
		if err != nil {
			return err
		}
		q, err := rt.queueByName(args[0])
		if err != nil {
			return err
		}

		state := queue.Waiting
		if len(args) >= 2 {
			state = queue.State(args[1])
		}
		limit := 50
		if len(args) == 3 {
			n, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid limit %q: %w", args[2], err)
			}
			limit = n
		}

		jobs, err := q.List(cmd.Context(), state, limit)
		if err != nil {
			return fmt.Errorf("list %s/%s: %w", args[0], state, err)
		}
		for _, job := range jobs {
			fmt.Printf("%s\tmeeting=%s\tattempts=%d\tupdated=%s\n", job.ID, job.MeetingID, job.Attempts, job.UpdatedAt.Format(time.RFC3339))
		}
		fmt.Printf("%d job(s)\n", len(jobs))
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <queue>",
	Short: "Show job counts per state for a queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd.Context())
		if err != nil {
			return err
		}
		q, err := rt.queueByName(args[0])
		if err != nil {
			return err
		}

		for _, state := range []queue.State{queue.Waiting, queue.Active, queue.Delayed, queue.Completed, queue.Failed} {
			jobs, err := q.List(cmd.Context(), state, 1<<30)
			if err != nil {
				return fmt.Errorf("list %s/%s: %w", args[0], state, err)
			}
			fmt.Printf("%-10s %d\n", state, len(jobs))
		}
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <queue> <meetingId>",
	Short: "Enqueue a meeting on the given queue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd.Context())
		if err != nil {
			return err
		}
		q, err := rt.queueByName(args[0])
		if err != nil {
			return err
		}
		enqueued, err := q.Enqueue(cmd.Context(), args[1])
		if err != nil {
			return fmt.Errorf("enqueue %s on %s: %w", args[1], args[0], err)
		}
		if !enqueued {
			fmt.Printf("already queued: %s\n", args[1])
			return nil
		}
		fmt.Printf("enqueued: %s\n", args[1])
		return nil
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <queue> <jobId>",
	Short: "Move a failed job back to waiting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd.Context())
		if err != nil {
			return err
		}
		q, err := rt.queueByName(args[0])
		if err != nil {
			return err
		}
		if err := q.Retry(cmd.Context(), args[1]); err != nil {
			return fmt.Errorf("retry %s: %w", args[1], err)
		}
		fmt.Printf("retried: %s\n", args[1])
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <queue> <jobId>",
	Short: "Delete a job outright, regardless of state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd.Context())
		if err != nil {
			return err
		}
		q, err := rt.queueByName(args[0])
		if err != nil {
			return err
		}
		if err := q.Remove(cmd.Context(), args[1]); err != nil {
			return fmt.Errorf("remove %s: %w", args[1], err)
		}
		fmt.Printf("removed: %s\n", args[1])
		return nil
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean <queue> <state>",
	Short: "Remove jobs older than one hour in the given state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runClean(cmd, args, time.Hour)
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear <queue> <state>",
	Short: "Remove every job in the given state, regardless of age",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runClean(cmd, args, 0)
	},
}

func runClean(cmd *cobra.Command, args []string, maxAge time.Duration) error {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	q, err := rt.queueByName(args[0])
	if err != nil {
		return err
	}
	removed, err := q.Clean(cmd.Context(), queue.State(args[1]), maxAge)
	if err != nil {
		return fmt.Errorf("clean %s/%s: %w", args[0], args[1], err)
	}
	fmt.Printf("removed %d job(s)\n", removed)
	return nil
}
