package reconcile

import (
	"time"
)

const (
	defaultPageSize    = 100
	defaultAccessLevel = 30
)

// Options tune a reconciliation run against one instance.
type Options struct {
	DryRun         bool
	ContinueOnFail bool

	// Provider is the GitLab LDAP server name stored alongside extern_uid.
	Provider string

	UserNamesToIgnore    []string
	GroupNamesToIgnore   []string
	CreateEmptyGroups    bool
	DeleteExtraGroups    bool
	NewMemberAccessLevel int

	PageSize int
	Cooldown time.Duration
}

func (o Options) pageSize() int {
	if o.PageSize < 1 || o.PageSize > 100 {
		return defaultPageSize
	}
	return o.PageSize
}

func (o Options) accessLevel() int {
	if o.NewMemberAccessLevel == 0 {
		return defaultAccessLevel
	}
	return o.NewMemberAccessLevel
}

// env bundles what every phase needs.
type env struct {
	platform  Platform
	exec      *Executor
	protected *ProtectedSet
	opts      Options
}
