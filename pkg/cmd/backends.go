package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yeisme/docvault/pkg/configs"
	"github.com/yeisme/docvault/pkg/internal/storage/db"
	"github.com/yeisme/docvault/pkg/internal/storage/kv"
	"github.com/yeisme/docvault/pkg/internal/storage/mq"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "list the storage, kv and queue backends compiled into this binary",
	Long: `List the backends this binary was built with. The backend selected by
the current configuration is marked with "*". Drivers can be left out at
build time with the no_redis, no_sqlite and no_network_db tags.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printBackends(cmd.OutOrStdout(), configs.GetConfig())
	},
}

func printBackends(w io.Writer, cfg *configs.AppConfig) error {
	mqSelected := string(cfg.MQ.Type)
	if cfg.Events.Transport == configs.EventsTransportLocal {
		mqSelected = string(configs.MQTypeGoChannel)
	}

	groups := []struct {
		name     string
		selected string
		types    []string
	}{
		{"db", string(cfg.DB.Dialect()), names(db.GetRegisteredDBTypes())},
		{"kv", cfg.KV.Type, names(kv.GetRegisteredKVTypes())},
		{"mq", mqSelected, names(mq.GetRegisteredMQTypes())},
		{"blob", string(cfg.Storage.Backend), []string{string(configs.BackendFS), string(configs.BackendS3)}},
	}

	for _, g := range groups {
		if _, err := fmt.Fprintf(w, "%s:\n", g.name); err != nil {
			return err
		}

		for _, t := range g.types {
			mark := " "
			if t == g.selected {
				mark = "*"
			}

			if _, err := fmt.Fprintf(w, "  %s %s\n", mark, t); err != nil {
				return err
			}
		}
	}

	return nil
}

func names[T ~string](types []T) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}

	return out
}

func registerBackendsCommands() {
	rootCmd.AddCommand(backendsCmd)
}
