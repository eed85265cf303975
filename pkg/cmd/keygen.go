package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/docvault/pkg/internal/encrypt"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "generate a random user private key",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := encrypt.GeneratePrivateKey()
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), key)

		return nil
	},
}

func registerKeygenCommands() {
	rootCmd.AddCommand(keygenCmd)
}
