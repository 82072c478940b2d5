package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newValidateCmd loads and validates the configuration without connecting anywhere.
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Loads the configuration file, applies defaults and reports warnings and
errors. Neither the directory nor GitLab is contacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := withLogger(cmd.Context(), cmd)

			cfg, err := loadConfig(ctx, configPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration %s is valid.\n", configPath)
			for _, name := range cfg.InstanceNames() {
				fmt.Fprintf(out, "  instance %s: %s\n", name, cfg.GitLab.Instances[name].URL)
			}
			return nil
		},
	}
}
