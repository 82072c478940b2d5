package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/isometry/gitlab-ldap-sync/internal/config"
	"github.com/isometry/gitlab-ldap-sync/internal/logging"
	"github.com/isometry/gitlab-ldap-sync/internal/reconcile"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general or mutation failure.
	ExitCodeError = 1
	// ExitCodeConfiguration indicates invalid or unreadable configuration.
	ExitCodeConfiguration = 2
	// ExitCodeConnection indicates a directory bind or GitLab authentication failure.
	ExitCodeConnection = 3
)

var (
	configPath string
	logLevel   string
	logJSON    bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gitlab-ldap-sync",
	Short: "Synchronize GitLab users and groups from an LDAP directory",
	Long: `gitlab-ldap-sync reads users and groups from an LDAP directory and
converges one or more GitLab instances toward them: accounts are created,
updated, blocked and unblocked, groups are created and optionally deleted,
and direct group memberships are added and removed.`,
	SilenceUsage: true,
}

// SetVersion sets the version reported by the version command and --version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits with a code describing the failure.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "gitlab-ldap-sync version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps an error to the documented exit codes.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var cfgErr *reconcile.ConfigurationError
	if errors.As(err, &cfgErr) {
		return ExitCodeConfiguration
	}

	var connErr *reconcile.ConnectionError
	if errors.As(err, &connErr) {
		return ExitCodeConnection
	}

	return ExitCodeError
}

// withLogger returns ctx carrying the root logger configured by the global flags.
func withLogger(ctx context.Context, cmd *cobra.Command) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.New(logging.Options{
		Level:  logLevel,
		JSON:   logJSON,
		Output: cmd.ErrOrStderr(),
	})
	return logging.NewContext(ctx, logger)
}

// loadConfig reads the configuration file and logs its warnings. Any failure
// is returned as a configuration error.
func loadConfig(ctx context.Context, path string) (*config.Config, error) {
	cfg, problems, err := config.Load(path)

	logger := logging.FromContext(ctx)
	if problems != nil {
		for _, w := range problems.Warnings {
			logger.Warn(w)
		}
		for _, e := range problems.Errors {
			logger.Error(e)
		}
	}

	if err != nil {
		return nil, &reconcile.ConfigurationError{Err: err}
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error); "+logging.EnvLogLevel+" overrides it")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newSyncCmd())
}
