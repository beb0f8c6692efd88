// Command quickshifter runs the motorcycle quick-shifter: it reads the shift
// sensor and engine speed, cuts ignition or injection on upshifts, and guards
// the bike with a tap-code lock.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sweeney/quickshifter/internal/logging"
)

// DefaultConfigPath is where the daemon keeps its settings.
const DefaultConfigPath = "/etc/quickshifter/config.yaml"

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	LogLevel   string

	logger *slog.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "quickshifter",
		Short:         "Motorcycle quick-shifter daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.logger = logging.New(cmd.ErrOrStderr(), logging.ParseLevel(opts.LogLevel))
			slog.SetDefault(opts.logger)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", DefaultConfigPath, "YAML settings file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newPrintStateCommand(opts))
	cmd.AddCommand(newConfigCommand(opts))
	return cmd
}
