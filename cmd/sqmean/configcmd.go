package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vango-dev/sqmean/internal/config"
	"github.com/vango-dev/sqmean/internal/errors"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage sqmean.json",
	}
	cmd.AddCommand(configInitCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a sqmean.json with the default settings",
		Long: `Write a sqmean.json holding every default setting, ready to edit.

The file goes to --config when set, otherwise to sqmean.json in dir
(default: the current directory). An existing file is kept unless
--force is given.

Examples:
  sqmean config init
  sqmean config init /etc/sqmean
  sqmean config init --config=./dev.json --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				dir := "."
				if len(args) == 1 {
					dir = args[0]
				}
				path = filepath.Join(dir, config.ConfigFileName)
			}
			force, _ := cmd.Flags().GetBool("force")
			return initConfig(path, force)
		},
	}
	cmd.Flags().BoolP("force", "f", false, "Overwrite an existing file")
	return cmd
}

// initConfig writes the default configuration to path.
func initConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.New("E047").
			WithSource(path).
			WithDetail("The file already exists.").
			WithSuggestion("Pass --force to overwrite it")
	}

	if err := config.New().SaveTo(path); err != nil {
		return err
	}
	success("Wrote %s", path)
	return nil
}
