package reconcile

import (
	"fmt"
	"time"
)

// Report summarizes one instance run.
type Report struct {
	Instance string
	RunID    string
	DryRun   bool

	DirectoryUsers  int
	DirectoryGroups int

	UsersFound    int
	UsersCreated  int
	UsersDisabled int
	UsersUpdated  int
	UsersSkipped  int

	GroupsFound   int
	GroupsCreated int
	GroupsDeleted int
	GroupsUpdated int
	GroupsKept    int
	GroupsSkipped int

	MembersAdded   int
	MembersRemoved int
	MembersSkipped int

	Calls     int
	Simulated int

	Started  time.Time
	Duration time.Duration
	Err      error
}

// Succeeded reports whether the run completed without a fatal error.
func (r *Report) Succeeded() bool {
	return r.Err == nil
}

func (r *Report) addUsers(u *UserResult) {
	if u == nil {
		return
	}
	r.UsersFound = len(u.Classification.Found)
	r.UsersCreated = len(u.Created)
	r.UsersDisabled = len(u.Retired)
	r.UsersUpdated = len(u.Updated)
	r.UsersSkipped = u.Skipped
}

func (r *Report) addGroups(g *GroupResult) {
	if g == nil {
		return
	}
	r.GroupsFound = len(g.Classification.Found)
	r.GroupsCreated = len(g.Created)
	r.GroupsDeleted = len(g.Deleted)
	r.GroupsUpdated = len(g.Updated)
	r.GroupsKept = len(g.Kept)
	r.GroupsSkipped = g.Skipped
}

func (r *Report) addMemberships(m *MembershipResult) {
	if m == nil {
		return
	}
	r.MembersAdded = m.Added
	r.MembersRemoved = m.Removed
	r.MembersSkipped = m.Skipped
}

// Notices returns the human-readable per-phase summary lines.
func (r *Report) Notices() []string {
	return []string{
		fmt.Sprintf("%d directory user(s) recognised", r.DirectoryUsers),
		fmt.Sprintf("%d directory group(s) recognised", r.DirectoryGroups),
		fmt.Sprintf("%d GitLab user(s) found", r.UsersFound),
		fmt.Sprintf("%d GitLab user(s) created", r.UsersCreated),
		fmt.Sprintf("%d GitLab user(s) disabled", r.UsersDisabled),
		fmt.Sprintf("%d GitLab user(s) updated", r.UsersUpdated),
		fmt.Sprintf("%d GitLab group(s) found", r.GroupsFound),
		fmt.Sprintf("%d GitLab group(s) created", r.GroupsCreated),
		fmt.Sprintf("%d GitLab group(s) deleted", r.GroupsDeleted),
		fmt.Sprintf("%d GitLab group(s) updated", r.GroupsUpdated),
		fmt.Sprintf("%d GitLab group member(s) added", r.MembersAdded),
		fmt.Sprintf("%d GitLab group member(s) removed", r.MembersRemoved),
	}
}
