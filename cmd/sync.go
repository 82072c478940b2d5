package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/isometry/gitlab-ldap-sync/internal/config"
	"github.com/isometry/gitlab-ldap-sync/internal/directory"
	"github.com/isometry/gitlab-ldap-sync/internal/gitlab"
	"github.com/isometry/gitlab-ldap-sync/internal/ldap"
	"github.com/isometry/gitlab-ldap-sync/internal/logging"
	"github.com/isometry/gitlab-ldap-sync/internal/metrics"
	"github.com/isometry/gitlab-ldap-sync/internal/reconcile"
)

type syncFlags struct {
	dryRun         bool
	continueOnFail bool
}

// Collaborators are package variables so tests can replace them.
var (
	readSnapshot = readDirectory
	newPlatform  = func(ctx context.Context, gl config.GitLabConfig, instance config.InstanceConfig) (reconcile.Platform, error) {
		return gitlab.New(ctx, instance, gl.Debug, gitlab.WithRequestRate(gl.Options.RequestRate))
	}
)

func newSyncCmd() *cobra.Command {
	flags := &syncFlags{}

	cmd := &cobra.Command{
		Use:   "sync [instance]",
		Short: "Synchronize GitLab instances with the directory",
		Long: `Reads the directory once, then reconciles every configured GitLab instance
in name order, or only the named one. A fatal failure on one instance stops
the remaining instances.

Use --dryrun to log every change without calling the GitLab API.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(withLogger(cmd.Context(), cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var only string
			if len(args) == 1 {
				only = args[0]
			}
			return runSync(ctx, only, flags)
		},
	}

	cmd.Flags().BoolVarP(&flags.dryRun, "dryrun", "d", false, "log changes without applying them")
	cmd.Flags().BoolVar(&flags.continueOnFail, "continueOnFail", false, "skip users whose email address is already taken instead of aborting")

	return cmd
}

func runSync(ctx context.Context, only string, flags *syncFlags) error {
	runID := uuid.NewString()
	ctx = logging.NewContext(ctx, logging.FromContext(ctx).With("run_id", runID))

	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return err
	}

	instances, err := selectInstances(cfg, only)
	if err != nil {
		return err
	}

	if flags.dryRun {
		logging.SubsystemWarn(ctx, logging.SubsystemReconcile, "Dry run enabled: no changes will be made")
	}

	snapshot, err := readSnapshot(ctx, cfg)
	if err != nil {
		return err
	}

	reports, runErr := reconcile.RunInstances(ctx, instances, func(ctx context.Context, name string) (*reconcile.Report, error) {
		instance := cfg.GitLab.Instances[name]

		platform, err := newPlatform(ctx, cfg.GitLab, instance)
		if err != nil {
			return nil, err
		}

		report, err := reconcile.NewEngine(platform, syncOptions(cfg, instance, flags)).Run(ctx, name, snapshot)
		if report != nil {
			report.RunID = runID
		}
		return report, err
	})

	recorder := metrics.NewRecorder(GetVersion())
	for _, report := range reports {
		recorder.Observe(report)
	}
	if err := recorder.Export(ctx, cfg.Metrics); err != nil {
		logging.SubsystemWarn(ctx, logging.SubsystemMetrics, "Failed to export metrics", map[string]any{
			"error": err.Error(),
		})
	}

	return runErr
}

// selectInstances returns the instances to process in name order. A filter
// that matches no configured instance is a configuration error.
func selectInstances(cfg *config.Config, only string) ([]string, error) {
	names := cfg.InstanceNames()
	if only == "" {
		return names, nil
	}
	if !slices.Contains(names, only) {
		return nil, &reconcile.ConfigurationError{Err: fmt.Errorf("instance %q not found in gitlab->instances", only)}
	}
	return []string{only}, nil
}

func syncOptions(cfg *config.Config, instance config.InstanceConfig, flags *syncFlags) reconcile.Options {
	o := cfg.GitLab.Options
	return reconcile.Options{
		DryRun:               flags.dryRun,
		ContinueOnFail:       flags.continueOnFail,
		Provider:             instance.LDAPServerName,
		UserNamesToIgnore:    o.UserNamesToIgnore,
		GroupNamesToIgnore:   o.GroupNamesToIgnore,
		CreateEmptyGroups:    o.CreateEmptyGroups,
		DeleteExtraGroups:    o.DeleteExtraGroups,
		NewMemberAccessLevel: o.NewMemberAccessLevel,
		PageSize:             o.PageSize,
		Cooldown:             o.APICooldown,
	}
}

// readDirectory binds to the directory and builds the snapshot shared by all
// instances.
func readDirectory(ctx context.Context, cfg *config.Config) (*reconcile.Snapshot, error) {
	conn := ldap.FromConfig(cfg.LDAP)
	client := ldap.NewClient(conn)

	if err := client.Connect(ctx); err != nil {
		target := conn.Host
		if target == "" {
			target = conn.Domain
		}
		return nil, &reconcile.ConnectionError{Target: target, Err: err}
	}
	defer func() {
		if err := client.Close(); err != nil {
			logging.SubsystemWarn(ctx, logging.SubsystemLDAP, "Failed to close directory connection", map[string]any{
				"error": err.Error(),
			})
		}
	}()

	reader := ldap.NewReader(client, cfg.LDAP.Queries)
	return directory.NewBuilder(cfg.LDAP.Queries, cfg.GitLab.Options).Build(ctx, reader)
}
