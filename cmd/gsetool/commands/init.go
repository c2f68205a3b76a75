package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/gse/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Long: `Write a sample gsetool configuration file.

By default, the file is created at $XDG_CONFIG_HOME/gsetool/config.yaml.
Use --config to choose a different path.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := config.Save(config.Default(), path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	_, err := fmt.Fprintf(cmd.OutOrStdout(), "configuration written to %s\n", path)
	return err
}
