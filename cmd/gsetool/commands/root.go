// Package commands implements gsetool's CLI commands.
package commands

import (
	"os"

	"github.com/marmos91/gse/cmd/gsetool/commands/configcmd"
	"github.com/spf13/cobra"

	"github.com/marmos91/gse/internal/config"
	"github.com/marmos91/gse/internal/obslog"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gsetool",
	Short: "Inspect and drive a GSE (DVB A134 / ETSI TS 102 606) encapsulator",
	Long: `gsetool encapsulates PDUs into Generic Stream Encapsulation packets,
refragments them, and reassembles them back into PDUs, with the same
fixed-header and CRC32 semantics ETSI TS 102 606 / DVB A134 describe.

Use "gsetool [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		return obslog.Init(obslog.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: cfg.Logging.Output,
		})
	},
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/gsetool/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(encapCmd)
	rootCmd.AddCommand(deencapCmd)
	rootCmd.AddCommand(refragCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configcmd.Cmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global --config flag.
func GetConfigFile() string { return cfgFile }

// Cfg returns the configuration loaded by the root command's
// PersistentPreRunE. Subcommands call this after cobra has run the
// chain, never before.
func Cfg() *config.Config { return cfg }

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}
