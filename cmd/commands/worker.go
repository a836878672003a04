package commands

import (
	"context"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/schoolfood/backoffice/internal/app"
)

var workerConcurrency int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Execute queued document jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		// the worker pool is sized when the app is built
		if workerConcurrency > 0 {
			_ = os.Setenv("WORKER_CONCURRENCY", strconv.Itoa(workerConcurrency))
		}
		return runApp(func(ctx context.Context, a *app.App) error {
			return a.RunWorker(ctx)
		})
	},
}

func init() {
	workerCmd.Flags().IntVar(&workerConcurrency, "concurrency", 0, "parallel jobs (overrides WORKER_CONCURRENCY)")
	rootCmd.AddCommand(workerCmd)
}
