package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sweeney/quickshifter/internal/config"
)

func newConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the settings file",
	}
	cmd.AddCommand(newConfigShowCommand(opts))
	cmd.AddCommand(newConfigCheckCommand(opts))
	return cmd
}

func newConfigShowCommand(opts *rootOptions) *cobra.Command {
	var includeSecret bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings as JSON",
		Long: `Print the effective settings (file values over defaults) as JSON.
The lock code is masked unless --include-secret is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := config.OpenFile(opts.ConfigPath)
			if err != nil {
				return err
			}
			data, err := config.ExportJSON(store.Get(), includeSecret)
			if err != nil {
				return err
			}
			var out bytes.Buffer
			if err := json.Indent(&out, data, "", "  "); err != nil {
				return err
			}
			out.WriteByte('\n')
			_, err = cmd.OutOrStdout().Write(out.Bytes())
			return err
		},
	}

	cmd.Flags().BoolVar(&includeSecret, "include-secret", false, "print the lock code in clear")
	return cmd
}

func newConfigCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the settings file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(opts.ConfigPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", opts.ConfigPath)
			return nil
		},
	}
}
