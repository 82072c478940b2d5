package reconcile

import (
	"context"
	"time"

	"github.com/isometry/gitlab-ldap-sync/internal/logging"
)

// Executor is the single path for mutating platform calls.
type Executor struct {
	dryRun   bool
	cooldown time.Duration
	lastCall time.Time

	calls     int
	simulated int
}

// NewExecutor creates an executor. After each real call the next one waits
// until cooldown has passed since the previous call returned; a zero
// cooldown disables the pause.
func NewExecutor(dryRun bool, cooldown time.Duration) *Executor {
	return &Executor{
		dryRun:   dryRun,
		cooldown: cooldown,
	}
}

// DryRun reports whether calls are suppressed.
func (e *Executor) DryRun() bool {
	return e.dryRun
}

// Calls returns the number of mutating calls actually issued.
func (e *Executor) Calls() int {
	return e.calls
}

// Simulated returns the number of calls suppressed by dry-run mode.
func (e *Executor) Simulated() int {
	return e.simulated
}

// Create runs a call that yields a new entity id. In dry-run mode the call
// is skipped and a simulated id derived from key is returned instead.
func (e *Executor) Create(ctx context.Context, operation, key string, fields map[string]any, fn func(context.Context) (int, error)) (PlatformID, error) {
	if e.skip(ctx, operation, fields) {
		return SimulatedID(key), nil
	}

	var id int
	err := e.call(ctx, operation, fields, func(ctx context.Context) error {
		var err error
		id, err = fn(ctx)
		return err
	})
	if err != nil {
		return PlatformID{}, &MutationError{Operation: operation, Target: key, Err: err}
	}

	return RealID(id), nil
}

// Mutate runs a call without a result. It is a no-op in dry-run mode.
func (e *Executor) Mutate(ctx context.Context, operation, target string, fields map[string]any, fn func(context.Context) error) error {
	if e.skip(ctx, operation, fields) {
		return nil
	}

	if err := e.call(ctx, operation, fields, fn); err != nil {
		return &MutationError{Operation: operation, Target: target, Err: err}
	}
	return nil
}

func (e *Executor) skip(ctx context.Context, operation string, fields map[string]any) bool {
	if !e.dryRun {
		return false
	}

	e.simulated++
	logging.SubsystemWarn(ctx, logging.SubsystemReconcile, "Operation skipped due to dry run", fields, map[string]any{
		"operation": operation,
	})
	return true
}

func (e *Executor) call(ctx context.Context, operation string, fields map[string]any, fn func(context.Context) error) error {
	if err := e.pause(ctx); err != nil {
		return err
	}

	e.calls++
	logging.SubsystemDebug(ctx, logging.SubsystemReconcile, "Calling platform", fields, map[string]any{
		"operation": operation,
	})
	err := fn(ctx)
	e.lastCall = time.Now()
	return err
}

func (e *Executor) pause(ctx context.Context) error {
	if e.cooldown <= 0 || e.lastCall.IsZero() {
		return nil
	}

	wait := time.Until(e.lastCall.Add(e.cooldown))
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
