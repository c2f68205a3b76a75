// Package configcmd implements gsetool's "config" command group.
package configcmd

import (
	"github.com/spf13/cobra"
)

// Cmd is the config subcommand group.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Inspect and validate gsetool configuration.

Subcommands:
  show      Display the resolved configuration
  validate  Validate a configuration file
  schema    Generate a JSON schema for the configuration file`,
}

func init() {
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(validateCmd)
	Cmd.AddCommand(schemaCmd)
}
