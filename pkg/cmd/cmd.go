// Package cmd contains the command line applications for the project.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/yeisme/docvault/pkg/configs"
	"github.com/yeisme/docvault/pkg/log"
)

var (
	configPath string
	debug      bool

	rootCmd = &cobra.Command{
		Use:           "docvault",
		Short:         "Encrypted per-user file store with content extraction",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := configs.InitConfig(configPath); err != nil {
				return err
			}

			cfg := configs.GetConfig()
			log.Init(cfg.Log, debug || cfg.Server.Debug)

			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "config file or directory")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	registerServeCommands()
	registerKeygenCommands()
	registerOCRCommands()
	registerFileCommands()
	registerUserCommands()
	registerConfigsCommands()
	registerDBCommands()
	registerBackendsCommands()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
