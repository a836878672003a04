package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/schoolfood/backoffice/internal/app"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the task API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(func(ctx context.Context, a *app.App) error {
			if serveAddr != "" {
				a.Cfg.HTTPAddr = serveAddr
			}
			return a.Serve(ctx)
		})
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides HTTP_ADDR)")
	rootCmd.AddCommand(serveCmd)
}
