package logging

import (
	"context"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Subsystem names used across the application.
const (
	SubsystemLDAP      = "ldap"
	SubsystemKerberos  = "kerberos"
	SubsystemDirectory = "directory"
	SubsystemGitLab    = "gitlab"
	SubsystemReconcile = "reconcile"
	SubsystemMetrics   = "metrics"
)

// EnvLogLevel overrides the configured log level when set.
const EnvLogLevel = "GITLAB_LDAP_SYNC_LOG"

// Options controls construction of the root logger.
type Options struct {
	Name   string
	Level  string
	JSON   bool
	Output io.Writer
}

// New builds the root logger. The level in EnvLogLevel wins over opts.Level.
func New(opts Options) hclog.Logger {
	level := opts.Level
	if env := os.Getenv(EnvLogLevel); env != "" {
		level = env
	}

	parsed := hclog.LevelFromString(level)
	if parsed == hclog.NoLevel {
		parsed = hclog.Info
	}

	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	name := opts.Name
	if name == "" {
		name = "gitlab-ldap-sync"
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      parsed,
		JSONFormat: opts.JSON,
		Output:     output,
		Color:      colorMode(opts.JSON, output),
	})
}

// colorMode allows colour only for text output to a file descriptor.
// hclog's AutoColor leaves other writers coloured.
func colorMode(json bool, w io.Writer) hclog.ColorOption {
	if json {
		return hclog.ColorOff
	}
	if _, ok := w.(interface{ Fd() uintptr }); !ok {
		return hclog.ColorOff
	}
	return hclog.AutoColor
}

// NewContext returns a copy of ctx carrying logger.
func NewContext(ctx context.Context, logger hclog.Logger) context.Context {
	return hclog.WithContext(ctx, logger)
}

// FromContext returns the logger carried by ctx, or the hclog default.
func FromContext(ctx context.Context) hclog.Logger {
	return hclog.FromContext(ctx)
}

func subsystem(ctx context.Context, name string) hclog.Logger {
	return FromContext(ctx).Named(name)
}

// flatten turns field maps into hclog key/value pairs ordered by key.
func flatten(fields []map[string]any) []any {
	merged := make(map[string]any)
	for _, f := range fields {
		maps.Copy(merged, f)
	}

	keys := slices.Sorted(maps.Keys(merged))
	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k, merged[k])
	}
	return args
}

func SubsystemTrace(ctx context.Context, name, msg string, fields ...map[string]any) {
	subsystem(ctx, name).Trace(msg, flatten(fields)...)
}

func SubsystemDebug(ctx context.Context, name, msg string, fields ...map[string]any) {
	subsystem(ctx, name).Debug(msg, flatten(fields)...)
}

func SubsystemInfo(ctx context.Context, name, msg string, fields ...map[string]any) {
	subsystem(ctx, name).Info(msg, flatten(fields)...)
}

func SubsystemWarn(ctx context.Context, name, msg string, fields ...map[string]any) {
	subsystem(ctx, name).Warn(msg, flatten(fields)...)
}

func SubsystemError(ctx context.Context, name, msg string, fields ...map[string]any) {
	subsystem(ctx, name).Error(msg, flatten(fields)...)
}

// LogOperation logs the start and outcome of fn with its duration.
func LogOperation(ctx context.Context, subsystem, operation string, fields map[string]any, fn func() error) error {
	start := time.Now()

	if fields == nil {
		fields = make(map[string]any)
	}
	fields["operation"] = operation

	SubsystemDebug(ctx, subsystem, "Starting operation", fields)

	err := fn()

	fields["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		fields["error"] = err.Error()
		SubsystemError(ctx, subsystem, "Operation failed", fields)
	} else {
		SubsystemDebug(ctx, subsystem, "Operation completed successfully", fields)
	}

	return err
}

// LogPerformance logs an operation duration, escalating the level for slow ones.
func LogPerformance(ctx context.Context, subsystem, operation string, duration time.Duration, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}

	fields["operation"] = operation
	fields["duration_ms"] = duration.Milliseconds()

	switch {
	case duration > 5*time.Minute:
		SubsystemWarn(ctx, subsystem, "Slow operation detected", fields)
	case duration > 30*time.Second:
		SubsystemInfo(ctx, subsystem, "Operation performance", fields)
	default:
		SubsystemDebug(ctx, subsystem, "Operation performance", fields)
	}
}

var sensitiveKeys = map[string]bool{
	"password":      true,
	"passwd":        true,
	"bind_password": true,
	"secret":        true,
	"token":         true,
	"private_token": true,
	"credential":    true,
	"credentials":   true,
}

// SanitizeFields returns a copy of fields with sensitive values redacted.
func SanitizeFields(fields map[string]any) map[string]any {
	sanitized := make(map[string]any, len(fields))

	for k, v := range fields {
		if sensitiveKeys[strings.ToLower(k)] {
			sanitized[k] = "[REDACTED]"
			continue
		}
		if str, ok := v.(string); ok && containsSensitivePattern(str) {
			sanitized[k] = "[REDACTED]"
			continue
		}
		sanitized[k] = v
	}

	return sanitized
}

func containsSensitivePattern(s string) bool {
	patterns := []string{
		"password=",
		"passwd=",
		"secret=",
		"token=",
		"private-token:",
	}

	lower := strings.ToLower(s)
	for _, pattern := range patterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	return false
}
