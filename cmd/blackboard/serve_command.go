package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/blackboard-backend/internal/app"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server with board playback and event streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(runCtx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			a.Log.Info("blackboard starting", "port", cfg.Port, "version", app.Version)
			return a.Run(runCtx)
		},
	}
}
