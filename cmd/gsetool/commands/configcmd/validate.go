package configcmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/gse/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a gsetool configuration file without starting
any command, reporting every struct-tag violation found.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
	return err
}
