package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrpasztoradam/goadsdev"
	"github.com/mrpasztoradam/goadsdev/config"
)

const defaultConfigPath = "goadsdev.yaml"

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "goadsdev",
		Short: "Simulated ADS device",
		Long: `goadsdev - an ADS device speaking AMS/TCP.

Serves READ_DEVICE_INFO, READ_STATE, READ, WRITE, READ_WRITE and WRITE_CONTROL
against an in-memory symbol database, so ADS clients can be developed and
tested without a PLC.

The database comes from the configuration file (YAML or TOML, picked by
extension) and, when database.tmc is set, from a TwinCAT TMC file.`,
		Version:       goadsdev.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Configuration file (.yaml, .yml or .toml)")

	root.AddCommand(
		newServeCmd(&configPath),
		newConfigCmd(&configPath),
		newInspectCmd(&configPath),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the configuration file. A missing default file yields the
// default configuration; a missing file named with --config is an error.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.DefaultConfig(), nil
		}
	}
	return config.Load(path)
}
