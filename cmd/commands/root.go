package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/schoolfood/backoffice/internal/app"
)

var rootCmd = &cobra.Command{
	Use:   "backoffice",
	Short: "School food program back office",
	Long: `Back office for the school fruit, vegetable and dairy program.

serve   runs the task API that queues document jobs and reports progress.
worker  executes queued jobs: generates documents, uploads them and exports PDFs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() error {
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

func SetVersionInfo(version, commit string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s)", version, commit)
	if os.Getenv("APP_VERSION") == "" {
		_ = os.Setenv("APP_VERSION", version)
	}
}

// runApp builds the application and hands it to fn with a context that is
// cancelled on SIGINT or SIGTERM.
func runApp(fn func(ctx context.Context, a *app.App) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
