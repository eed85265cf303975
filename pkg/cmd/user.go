package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/yeisme/docvault/pkg/app"
	"github.com/yeisme/docvault/pkg/configs"
)

var (
	userQuota string

	userCmd = &cobra.Command{
		Use:   "user",
		Short: "manage users",
	}

	userAddCmd = &cobra.Command{
		Use:   "add <user>",
		Short: "create a user with a fresh private key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				quota := a.DefaultQuota()

				if userQuota != "" {
					n, err := configs.ParseSize(userQuota)
					if err != nil {
						return err
					}

					quota = n
				}

				user, err := a.Files.ProvisionUser(ctx, args[0], quota)
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), user)
			})
		},
	}
)

func registerUserCommands() {
	userAddCmd.Flags().StringVar(&userQuota, "quota", "", "storage quota, e.g. 5GB; defaults to storage.default_quota")

	userCmd.AddCommand(userAddCmd)
	rootCmd.AddCommand(userCmd)
}
