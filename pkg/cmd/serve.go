package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yeisme/docvault/pkg/app"
	"github.com/yeisme/docvault/pkg/configs"
	"github.com/yeisme/docvault/pkg/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the event worker, scheduled jobs and the ops server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, *configs.GetConfig())
		if err != nil {
			return err
		}

		defer func() {
			if err := a.Close(); err != nil {
				log.Logger().Error().Err(err).Msg("close")
			}
		}()

		err = a.Run(ctx)
		if err != nil && ctx.Err() != nil {
			return nil
		}

		return err
	},
}

// withApp 为一次性命令装配 App 并启动事件消费者.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := app.New(ctx, *configs.GetConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.StartWorker(ctx); err != nil {
		return err
	}

	return fn(ctx, a)
}

func registerServeCommands() {
	rootCmd.AddCommand(serveCmd)
}
