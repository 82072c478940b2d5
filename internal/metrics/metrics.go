// Package metrics exports the outcome of a sync run as Prometheus metrics.
//
// A run is a batch job, so every value is a gauge describing the last run of
// an instance. The registry is written to a node-exporter textfile and/or
// pushed to a Pushgateway once all instances are done.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/isometry/gitlab-ldap-sync/internal/config"
	"github.com/isometry/gitlab-ldap-sync/internal/logging"
	"github.com/isometry/gitlab-ldap-sync/internal/reconcile"
)

const namespace = "gitlab_ldap_sync"

// Recorder holds the run metrics in a private registry.
type Recorder struct {
	registry *prometheus.Registry

	entities  *prometheus.GaugeVec
	calls     *prometheus.GaugeVec
	success   *prometheus.GaugeVec
	duration  *prometheus.GaugeVec
	timestamp *prometheus.GaugeVec
	buildInfo *prometheus.GaugeVec
}

func NewRecorder(version string) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		entities: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "entities",
				Help:      "Entities seen or changed by the last run, by kind and action.",
			},
			[]string{"instance", "kind", "action"},
		),
		calls: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "api_calls",
				Help:      "Mutating GitLab API calls in the last run; simulated calls were suppressed by dry-run.",
			},
			[]string{"instance", "mode"},
		),
		success: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_success",
				Help:      "Whether the last run completed (1) or failed (0).",
			},
			[]string{"instance", "dry_run"},
		),
		duration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_duration_seconds",
				Help:      "Duration of the last run.",
			},
			[]string{"instance"},
		),
		timestamp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Start time of the last run as a unix timestamp.",
			},
			[]string{"instance"},
		),
		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "build_info",
				Help:      "Build information.",
			},
			[]string{"version"},
		),
	}

	r.registry.MustRegister(r.entities, r.calls, r.success, r.duration, r.timestamp, r.buildInfo)
	r.buildInfo.WithLabelValues(version).Set(1)

	return r
}

// Gatherer exposes the registry, mostly for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Observe records one instance report.
func (r *Recorder) Observe(report *reconcile.Report) {
	if report == nil {
		return
	}
	instance := report.Instance

	set := func(kind, action string, v int) {
		r.entities.WithLabelValues(instance, kind, action).Set(float64(v))
	}

	set("directory_user", "recognised", report.DirectoryUsers)
	set("directory_group", "recognised", report.DirectoryGroups)

	set("user", "found", report.UsersFound)
	set("user", "created", report.UsersCreated)
	set("user", "disabled", report.UsersDisabled)
	set("user", "updated", report.UsersUpdated)
	set("user", "skipped", report.UsersSkipped)

	set("group", "found", report.GroupsFound)
	set("group", "created", report.GroupsCreated)
	set("group", "deleted", report.GroupsDeleted)
	set("group", "updated", report.GroupsUpdated)
	set("group", "kept", report.GroupsKept)
	set("group", "skipped", report.GroupsSkipped)

	set("member", "added", report.MembersAdded)
	set("member", "removed", report.MembersRemoved)
	set("member", "skipped", report.MembersSkipped)

	r.calls.WithLabelValues(instance, "real").Set(float64(report.Calls))
	r.calls.WithLabelValues(instance, "simulated").Set(float64(report.Simulated))

	success := 0.0
	if report.Succeeded() {
		success = 1
	}
	r.success.WithLabelValues(instance, strconv.FormatBool(report.DryRun)).Set(success)
	r.duration.WithLabelValues(instance).Set(report.Duration.Seconds())
	if !report.Started.IsZero() {
		r.timestamp.WithLabelValues(instance).Set(float64(report.Started.Unix()))
	}
}

// Export writes the registry to every configured sink. Both sinks are
// attempted; their errors are joined.
func (r *Recorder) Export(ctx context.Context, cfg config.MetricsConfig) error {
	var errs []error

	if cfg.Textfile != "" {
		if err := prometheus.WriteToTextfile(cfg.Textfile, r.registry); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics textfile: %w", err))
		} else {
			logging.SubsystemInfo(ctx, logging.SubsystemMetrics, "Metrics written", map[string]any{
				"textfile": cfg.Textfile,
			})
		}
	}

	if cfg.Pushgateway != "" {
		job := cfg.Job
		if job == "" {
			job = namespace
		}
		if err := push.New(cfg.Pushgateway, job).Gatherer(r.registry).PushContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to push metrics: %w", err))
		} else {
			logging.SubsystemInfo(ctx, logging.SubsystemMetrics, "Metrics pushed", map[string]any{
				"pushgateway": cfg.Pushgateway,
				"job":         job,
			})
		}
	}

	return errors.Join(errs...)
}
