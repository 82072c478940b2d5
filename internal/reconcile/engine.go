package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/isometry/gitlab-ldap-sync/internal/logging"
)

// Engine runs the three reconciliation phases against one platform instance.
type Engine struct {
	platform  Platform
	protected *ProtectedSet
	opts      Options

	// now is replaced in tests.
	now func() time.Time
}

// NewEngine creates an engine for one instance.
func NewEngine(platform Platform, opts Options) *Engine {
	return &Engine{
		platform:  platform,
		protected: DefaultProtected(),
		opts:      opts,
		now:       time.Now,
	}
}

// Run converges the platform toward snapshot. The returned report is never
// nil and carries the counts of every phase that completed.
func (e *Engine) Run(ctx context.Context, instance string, snapshot *Snapshot) (*Report, error) {
	exec := NewExecutor(e.opts.DryRun, e.opts.Cooldown)
	report := &Report{
		Instance:        instance,
		DryRun:          e.opts.DryRun,
		DirectoryUsers:  len(snapshot.Users),
		DirectoryGroups: len(snapshot.Groups),
		Started:         e.now(),
	}

	err := e.run(ctx, exec, snapshot, report)

	report.Calls = exec.Calls()
	report.Simulated = exec.Simulated()
	report.Duration = e.now().Sub(report.Started)
	report.Err = err

	for _, notice := range report.Notices() {
		logging.SubsystemInfo(ctx, logging.SubsystemReconcile, notice, map[string]any{"instance": instance})
	}

	return report, err
}

func (e *Engine) run(ctx context.Context, exec *Executor, snapshot *Snapshot, report *Report) error {
	users, err := NewUserReconciler(e.platform, exec, e.protected, e.opts).Reconcile(ctx, snapshot.Users)
	report.addUsers(users)
	if err != nil {
		return fmt.Errorf("user phase: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	groups, err := NewGroupReconciler(e.platform, exec, e.protected, e.opts).Reconcile(ctx, snapshot.Groups)
	report.addGroups(groups)
	if err != nil {
		return fmt.Errorf("group phase: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	members, err := NewMembershipReconciler(e.platform, exec, e.protected, e.opts).Reconcile(ctx, users, groups)
	report.addMemberships(members)
	if err != nil {
		return fmt.Errorf("membership phase: %w", err)
	}

	return nil
}

// InstanceFunc runs reconciliation for a single named instance.
type InstanceFunc func(ctx context.Context, instance string) (*Report, error)

// RunInstances processes instances one after another. The first failure
// aborts the remaining instances; the reports gathered so far are returned
// along with the error.
func RunInstances(ctx context.Context, instances []string, run InstanceFunc) ([]*Report, error) {
	reports := make([]*Report, 0, len(instances))

	for _, name := range instances {
		if err := ctx.Err(); err != nil {
			return reports, err
		}

		var report *Report
		err := logging.LogOperation(ctx, logging.SubsystemReconcile, "sync_instance", map[string]any{
			"instance": name,
		}, func() error {
			var err error
			report, err = run(ctx, name)
			return err
		})
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			return reports, fmt.Errorf("instance %q: %w", name, err)
		}
	}

	return reports, nil
}
