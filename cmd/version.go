package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of gitlab-ldap-sync",
		Long:  `All software has versions. This is gitlab-ldap-sync's.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gitlab-ldap-sync version %s\n", rootCmd.Version)
		},
	}
}
