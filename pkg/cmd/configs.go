package cmd

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/yeisme/docvault/pkg/configs"
)

// redacted 替换敏感配置值的占位符.
const redacted = "******"

// secretKeys 字段名包含这些片段时视为敏感.
var secretKeys = []string{"password", "secret", "token", "jwt", "nkey"}

var showSecrets bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "inspect the loaded configuration",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "print the config file in use",
	RunE: func(cmd *cobra.Command, _ []string) error {
		v := configs.GetViper()
		if v == nil {
			return fmt.Errorf("config not initialized")
		}

		if used := v.ConfigFileUsed(); used != "" {
			fmt.Fprintln(cmd.OutOrStdout(), used)

			return nil
		}

		fmt.Fprintln(cmd.OutOrStdout(), "(none: defaults and DOCVAULT_* environment)")

		return nil
	},
}

var configDebugCmd = &cobra.Command{
	Use:   "debug",
	Short: "print the effective config as JSON, secrets masked",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c := configs.GetConfig()
		if c == nil {
			return fmt.Errorf("config not initialized")
		}

		if debug {
			configs.GetViper().Debug()
		}

		if showSecrets {
			return printJSON(cmd.OutOrStdout(), c)
		}

		masked, err := maskSecrets(c)
		if err != nil {
			return err
		}

		return printJSON(cmd.OutOrStdout(), masked)
	},
}

// maskSecrets 把配置转成通用结构并遮盖敏感字段.
func maskSecrets(c *configs.AppConfig) (map[string]any, error) {
	raw, err := sonic.Marshal(c)
	if err != nil {
		return nil, err
	}

	var tree map[string]any
	if err := sonic.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}

	mask(tree)

	return tree, nil
}

func mask(node map[string]any) {
	for k, v := range node {
		switch val := v.(type) {
		case map[string]any:
			mask(val)
		case string:
			if val != "" && isSecret(k) {
				node[k] = redacted
			}
		}
	}
}

func isSecret(key string) bool {
	key = strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(key, s) {
			return true
		}
	}

	return false
}

func registerConfigsCommands() {
	configDebugCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "do not mask passwords and keys")

	configCmd.AddCommand(configPathCmd, configDebugCmd)
	rootCmd.AddCommand(configCmd)
}
