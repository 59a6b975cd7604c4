package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orrn/printdispatch/internal/config"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "printserver",
		Short:        "Print dispatch server for restaurant tickets",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg.ApplyEnv()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	root.AddCommand(
		newServeCommand(load),
		newMigrateCommand(load),
		newTokenCommand(load),
	)
	return root
}
