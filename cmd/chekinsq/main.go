// chekinsq inspects the media processing queue: live counters and the
// retained failed jobs.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/DikoMolly/chekins/internal/queue"
	"github.com/DikoMolly/chekins/internal/worker"
)

var (
	redisURL  string
	queueName string
)

func main() {
	root := &cobra.Command{
		Use:           "chekinsq",
		Short:         "Inspect the chekins media processing queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&redisURL, "redis", os.Getenv("REDIS_URL"), "redis connection URL")
	root.PersistentFlags().StringVar(&queueName, "queue", worker.QueueName, "queue name")

	root.AddCommand(statsCmd(), failedCmd(), submitCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func connect(ctx context.Context) (*queue.RedisStore, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL required (set --redis or REDIS_URL)")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return queue.NewRedisStore(client), nil
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue job counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			store, err := connect(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats(ctx, queueName)
			if err != nil {
				return err
			}

			bold := color.New(color.Bold)
			bold.Printf("queue %s\n", queueName)
			fmt.Printf("  %-10s %d\n", "waiting", stats.Waiting)
			fmt.Printf("  %-10s %d\n", "active", stats.Active)
			fmt.Printf("  %-10s %d\n", "delayed", stats.Delayed)
			fmt.Printf("  %-10s %s\n", "completed", color.GreenString("%d", stats.Completed))
			if stats.Failed > 0 {
				fmt.Printf("  %-10s %s\n", "failed", color.RedString("%d", stats.Failed))
			} else {
				fmt.Printf("  %-10s %d\n", "failed", stats.Failed)
			}
			fmt.Printf("  %-10s %d\n", "total", stats.Total)
			return nil
		},
	}
}

func failedCmd() *cobra.Command {
	var limit int64

	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List retained failed jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			store, err := connect(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			jobs, err := store.FailedJobs(ctx, queueName, limit)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				color.Green("no failed jobs")
				return nil
			}

			for _, j := range jobs {
				color.New(color.Bold).Printf("%s", j.ID)
				fmt.Printf("  %s  attempts=%d/%d\n", j.Type, j.Attempts, j.MaxAttempts)
				fmt.Printf("  enqueued: %s\n", j.EnqueuedAt.Format(time.RFC3339))
				fmt.Printf("  error:    %s\n", color.RedString(j.LastError))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&limit, "limit", 10, "maximum jobs to list")
	return cmd
}

func submitCmd() *cobra.Command {
	var (
		postID      string
		folder      string
		maxAttempts int
		backoff     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "submit <file>...",
		Short: "Queue processing jobs for a post's media files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if postID == "" {
				return fmt.Errorf("--post is required")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			store, err := connect(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			mgr := queue.NewManager(store)
			q := mgr.CreateQueue(queueName,
				queue.WithMaxAttempts(maxAttempts),
				queue.WithBackoff(backoff),
			)
			if err := worker.SubmitBatch(ctx, q, postID, folder, args); err != nil {
				return err
			}
			color.Green("queued %d media job(s) for post %s", len(args), postID)
			return nil
		},
	}
	cmd.Flags().StringVar(&postID, "post", "", "post id the files belong to")
	cmd.Flags().StringVar(&folder, "folder", "chekins_posts", "storage folder for processed assets")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", queue.DefaultMaxAttempts, "retry attempts per job")
	cmd.Flags().DurationVar(&backoff, "backoff", queue.DefaultBackoffBase, "base retry backoff")
	return cmd
}
