package reconcile

import (
	"context"
	"fmt"

	"github.com/isometry/gitlab-ldap-sync/internal/logging"
)

// MemberTarget is a reconciled account that should belong to a group.
type MemberTarget struct {
	Username string
	ID       PlatformID
}

// MembershipResult records what the membership phase did.
type MembershipResult struct {
	Groups  int
	Added   int
	Removed int
	Skipped int
}

// MembershipReconciler aligns the direct members of each target group with
// the directory group's resolved members.
type MembershipReconciler struct {
	env
}

// NewMembershipReconciler creates a membership reconciler.
func NewMembershipReconciler(platform Platform, exec *Executor, protected *ProtectedSet, opts Options) *MembershipReconciler {
	return &MembershipReconciler{env{platform: platform, exec: exec, protected: protected, opts: opts}}
}

// Reconcile runs the membership phase for the groups produced by the group
// phase, using the account ids produced by the user phase.
func (r *MembershipReconciler) Reconcile(ctx context.Context, users *UserResult, groups *GroupResult) (*MembershipResult, error) {
	result := &MembershipResult{}
	excludedUsers := users.excludedNames()
	ignoredGroups := NewNameSet(r.opts.GroupNamesToIgnore...)

	for _, target := range groups.Targets {
		if r.protected.Group(target.Name) || ignoredGroups.Has(target.Name) {
			continue
		}

		if err := r.reconcileGroup(ctx, target, users, excludedUsers, result); err != nil {
			return result, err
		}
		result.Groups++
	}

	logging.SubsystemInfo(ctx, logging.SubsystemReconcile, "GitLab group memberships reconciled", map[string]any{
		"groups":  result.Groups,
		"added":   result.Added,
		"removed": result.Removed,
		"skipped": result.Skipped,
	})

	return result, nil
}

func (r *MembershipReconciler) reconcileGroup(ctx context.Context, target GroupTarget, users *UserResult, excludedUsers NameSet, result *MembershipResult) error {
	groupFields := map[string]any{
		"group": target.Name,
		"path":  target.Path,
		"id":    target.ID.String(),
	}
	logging.SubsystemInfo(ctx, logging.SubsystemReconcile, "Synchronising GitLab group members", groupFields)

	desired := r.desiredMembers(ctx, target, users)

	classifier := &Classifier[MemberTarget, PlatformMember]{
		Kind:          "member",
		PlatformID:    func(m PlatformMember) int { return m.UserID },
		PlatformName:  func(m PlatformMember) string { return m.Username },
		DirectoryName: func(m MemberTarget) string { return m.Username },
		Protected:     r.protected.User,
		Exclude: func(m PlatformMember) (string, bool) {
			if excludedUsers.Has(m.Username) {
				return "excluded account", true
			}
			return "", false
		},
	}

	listing := Listing[PlatformMember]{Excluded: NewNameSet()}
	if groupID, ok := target.ID.Real(); ok {
		var err error
		listing, err = classifier.Collect(ctx, func(ctx context.Context, page int) ([]PlatformMember, error) {
			return r.platform.ListGroupMembers(ctx, groupID, page, r.opts.pageSize())
		})
		if err != nil {
			return err
		}
	}

	cls := classifier.Classify(ctx, listing, desired)

	for _, m := range cls.ToCreate {
		fields := map[string]any{
			"group":        target.Name,
			"username":     m.Username,
			"user_id":      m.ID.String(),
			"access_level": r.opts.accessLevel(),
		}

		groupID, groupReal := target.ID.Real()
		userID, userReal := m.ID.Real()
		if !r.exec.DryRun() && (!groupReal || !userReal) {
			logRecordError(ctx, &RecordValidationError{Kind: "member", Record: m.Username, Reason: "no platform id"}, fields)
			result.Skipped++
			continue
		}

		logging.SubsystemInfo(ctx, logging.SubsystemReconcile, "Adding GitLab group member", fields)
		memberKey := fmt.Sprintf("%s:%s", target.Path, m.ID)
		if err := r.exec.Mutate(ctx, "add_member", memberKey, fields, func(ctx context.Context) error {
			return r.platform.AddGroupMember(ctx, groupID, userID, r.opts.accessLevel())
		}); err != nil {
			return err
		}
		result.Added++
	}

	for _, m := range cls.ToRetire {
		fields := map[string]any{
			"group":    target.Name,
			"username": m.Username,
			"user_id":  m.UserID,
		}

		groupID, _ := target.ID.Real()
		logging.SubsystemWarn(ctx, logging.SubsystemReconcile, "Removing GitLab group member", fields)
		if err := r.exec.Mutate(ctx, "remove_member", fmt.Sprintf("%s:%d", target.Path, m.UserID), fields, func(ctx context.Context) error {
			return r.platform.RemoveGroupMember(ctx, groupID, m.UserID)
		}); err != nil {
			return err
		}
		result.Removed++
	}

	return nil
}

// desiredMembers returns the reconciled accounts listed as members of the
// target's directory group.
func (r *MembershipReconciler) desiredMembers(ctx context.Context, target GroupTarget, users *UserResult) []MemberTarget {
	if target.Directory == nil {
		logging.SubsystemWarn(ctx, logging.SubsystemReconcile, "Directory group doesn't appear to exist, sub-groups are not supported", map[string]any{
			"group": target.Name,
			"path":  target.Path,
		})
		return nil
	}

	var desired []MemberTarget
	seen := NewNameSet()
	for _, username := range target.Directory.Members {
		if seen.Has(username) {
			continue
		}
		seen.Add(username)

		id, ok := users.IDs[foldKey(username)]
		if !ok {
			logging.SubsystemDebug(ctx, logging.SubsystemReconcile, "Directory group member has no GitLab account", map[string]any{
				"group":    target.Name,
				"username": username,
			})
			continue
		}
		desired = append(desired, MemberTarget{Username: username, ID: id})
	}

	return desired
}
