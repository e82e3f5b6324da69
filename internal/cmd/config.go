package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the CLI configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := a.settings
			path := a.cfgUsed
			if path == "" {
				path = DefaultConfigPath() + " (not found)"
			}
			if s.Output == "json" {
				masked := *s
				masked.Auth.APIKey = maskSecret(s.Auth.APIKey)
				masked.Auth.ClientSecret = maskSecret(s.Auth.ClientSecret)
				return writeJSON(cmd.OutOrStdout(), masked)
			}
			return renderTable(cmd.OutOrStdout(), []string{"Setting", "Value"}, [][]string{
				{"Server URL", s.ServerURL},
				{"Auth Mode", s.Auth.Mode},
				{"API Key", maskSecret(s.Auth.APIKey)},
				{"Timeout", s.Timeout.String()},
				{"Rate Limit", fmt.Sprintf("%g/s", s.RateLimit)},
				{"Save Mode", s.Save.Mode},
				{"Dry Run", fmt.Sprintf("%v", s.Save.DryRun)},
				{"Concurrency", fmt.Sprintf("%d", s.Save.Concurrency)},
				{"Config File", path},
			})
		},
	})
	return cmd
}
