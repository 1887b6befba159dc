package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/sells-group/analyst/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run analysis tasks from the Temporal task queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("worker"); err != nil {
			return err
		}

		c, err := worker.DialTemporal(ctx, cfg.Worker.Temporal)
		if err != nil {
			return err
		}
		defer c.Close()

		env, err := initEnv(ctx, "worker", sharedTemporalSubmitter(c))
		if err != nil {
			return err
		}
		defer env.Close()

		w := worker.NewTemporalWorker(c, cfg.Worker.Temporal.TaskQueue, cfg.Worker.Concurrency, env.Pipeline)
		if err := w.Start(); err != nil {
			return eris.Wrap(err, "start temporal worker")
		}
		zap.L().Info("worker started",
			zap.String("task_queue", cfg.Worker.Temporal.TaskQueue),
			zap.Int("concurrency", cfg.Worker.Concurrency),
		)

		<-ctx.Done()
		zap.L().Info("stopping worker")
		w.Stop()
		return nil
	},
}

// sharedTemporalSubmitter reuses an already dialed client. The caller owns c.
func sharedTemporalSubmitter(c client.Client) submitterFunc {
	return func(context.Context, worker.Runner) (worker.Submitter, func(), error) {
		return worker.NewTemporalSubmitter(c, cfg.Worker.Temporal.TaskQueue, cfg.Pipeline.RunTimeout()), nil, nil
	}
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
