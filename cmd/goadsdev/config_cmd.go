package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrpasztoradam/goadsdev/config"
)

func newConfigCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check configuration files",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [file]",
		Short: "Write an example configuration",
		Long: `Write an example configuration with one data area and a handful of
symbols. The format follows the extension: .toml writes TOML, anything else
YAML.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *configPath
			if len(args) == 1 {
				path = args[0]
			}
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				} else if !errors.Is(err, os.ErrNotExist) {
					return err
				}
			}
			if err := config.SaveExample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration and the database it describes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			db, err := cfg.BuildDatabase(nil)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%d areas, %d symbols)\n", *configPath, len(db.Areas()), len(db.Symbols()))
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
