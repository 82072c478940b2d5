package reconcile

import (
	"context"

	"github.com/isometry/gitlab-ldap-sync/internal/logging"
)

// GroupTarget is a group whose membership is synchronized after the group phase.
type GroupTarget struct {
	ID   PlatformID
	Name string
	Path string

	// Directory is nil when the platform group has no directory counterpart.
	Directory *DirectoryGroup
}

// GroupResult records what the group phase did.
type GroupResult struct {
	Classification Classification[DirectoryGroup, PlatformGroup]

	Created []string
	Deleted []string
	Updated []string
	Kept    []string
	Skipped int

	Targets []GroupTarget
}

// GroupReconciler creates, deletes and repairs platform groups.
type GroupReconciler struct {
	env
}

// NewGroupReconciler creates a group reconciler.
func NewGroupReconciler(platform Platform, exec *Executor, protected *ProtectedSet, opts Options) *GroupReconciler {
	return &GroupReconciler{env{platform: platform, exec: exec, protected: protected, opts: opts}}
}

func (r *GroupReconciler) classifier() *Classifier[DirectoryGroup, PlatformGroup] {
	return &Classifier[DirectoryGroup, PlatformGroup]{
		Kind:          "group",
		PlatformID:    func(g PlatformGroup) int { return g.ID },
		PlatformName:  func(g PlatformGroup) string { return g.Name },
		DirectoryName: func(g DirectoryGroup) string { return g.DisplayName },
		Protected:     r.protected.Group,
		Ignored:       NewNameSet(r.opts.GroupNamesToIgnore...),
	}
}

// Reconcile runs the group phase.
func (r *GroupReconciler) Reconcile(ctx context.Context, groups []DirectoryGroup) (*GroupResult, error) {
	classifier := r.classifier()

	logging.SubsystemInfo(ctx, logging.SubsystemReconcile, "Finding all existing GitLab groups")
	listing, err := classifier.Collect(ctx, func(ctx context.Context, page int) ([]PlatformGroup, error) {
		return r.platform.ListGroups(ctx, page, r.opts.pageSize())
	})
	if err != nil {
		return nil, err
	}
	logging.SubsystemInfo(ctx, logging.SubsystemReconcile, "GitLab groups found", map[string]any{
		"count": len(listing.Found),
	})

	cls := classifier.Classify(ctx, listing, groups)
	result := &GroupResult{Classification: cls}

	if err := r.create(ctx, cls.ToCreate, result); err != nil {
		return result, err
	}
	if err := r.retire(ctx, cls.ToRetire, result); err != nil {
		return result, err
	}
	if err := r.update(ctx, cls.ToUpdate, result); err != nil {
		return result, err
	}

	sortByName(result.Targets, func(t GroupTarget) string { return t.Name })

	logging.SubsystemInfo(ctx, logging.SubsystemReconcile, "GitLab groups reconciled", map[string]any{
		"created": len(result.Created),
		"deleted": len(result.Deleted),
		"updated": len(result.Updated),
		"kept":    len(result.Kept),
		"skipped": result.Skipped,
	})

	return result, nil
}

func (r *GroupReconciler) create(ctx context.Context, groups []DirectoryGroup, result *GroupResult) error {
	for _, g := range groups {
		fields := map[string]any{
			"name":    g.DisplayName,
			"path":    g.Path,
			"members": len(g.Members),
		}

		if g.Path == "" {
			logRecordError(ctx, &RecordValidationError{Kind: "group", Record: g.Name, Reason: "empty path"}, fields)
			result.Skipped++
			continue
		}

		if len(g.Members) == 0 && !r.opts.CreateEmptyGroups {
			logging.SubsystemWarn(ctx, logging.SubsystemReconcile, "Not creating GitLab group: no members in directory group and empty groups are disabled", fields)
			result.Skipped++
			continue
		}

		logging.SubsystemInfo(ctx, logging.SubsystemReconcile, "Creating GitLab group", fields)
		id, err := r.exec.Create(ctx, "create_group", g.Path, fields, func(ctx context.Context) (int, error) {
			return r.platform.CreateGroup(ctx, g.DisplayName, g.Path)
		})
		if err != nil {
			return err
		}

		result.Created = append(result.Created, g.DisplayName)
		result.Targets = append(result.Targets, GroupTarget{
			ID:        id,
			Name:      g.DisplayName,
			Path:      g.Path,
			Directory: &g,
		})
	}

	return nil
}

func (r *GroupReconciler) retire(ctx context.Context, groups []PlatformGroup, result *GroupResult) error {
	for _, g := range groups {
		fields := map[string]any{
			"id":   g.ID,
			"name": g.Name,
			"path": g.Path,
		}

		deletable, err := r.deletable(ctx, g, fields)
		if err != nil {
			return err
		}
		if !deletable {
			result.Kept = append(result.Kept, g.Name)
			result.Targets = append(result.Targets, GroupTarget{ID: RealID(g.ID), Name: g.Name, Path: g.Path})
			continue
		}

		logging.SubsystemWarn(ctx, logging.SubsystemReconcile, "Deleting GitLab group", fields)
		if err := r.exec.Mutate(ctx, "delete_group", g.Name, fields, func(ctx context.Context) error {
			return r.platform.DeleteGroup(ctx, g.ID)
		}); err != nil {
			return err
		}

		result.Deleted = append(result.Deleted, g.Name)
	}

	return nil
}

// deletable decides whether a platform-only group may be removed. Content
// counts are fetched at decision time and never cached.
func (r *GroupReconciler) deletable(ctx context.Context, g PlatformGroup, fields map[string]any) (bool, error) {
	if !r.opts.DeleteExtraGroups {
		logging.SubsystemInfo(ctx, logging.SubsystemReconcile, "Not deleting GitLab group: extra group deletion is disabled", fields)
		return false, nil
	}

	projects, err := r.platform.GroupProjectCount(ctx, g.ID)
	if err != nil {
		return false, err
	}
	if projects > 0 {
		logging.SubsystemInfo(ctx, logging.SubsystemReconcile, "Not deleting GitLab group: it contains projects", fields, map[string]any{
			"projects": projects,
		})
		return false, nil
	}

	subgroups, err := r.platform.GroupSubgroupCount(ctx, g.ID)
	if err != nil {
		return false, err
	}
	if subgroups > 0 {
		logging.SubsystemInfo(ctx, logging.SubsystemReconcile, "Not deleting GitLab group: it contains subgroups", fields, map[string]any{
			"subgroups": subgroups,
		})
		return false, nil
	}

	return true, nil
}

func (r *GroupReconciler) update(ctx context.Context, matches []Match[DirectoryGroup, PlatformGroup], result *GroupResult) error {
	for _, m := range matches {
		g, p := m.Directory, m.Platform
		path := PathSlug.Slugify(p.Name)
		fields := map[string]any{
			"id":           p.ID,
			"name":         p.Name,
			"path":         p.Path,
			"desired_path": path,
		}

		result.Targets = append(result.Targets, GroupTarget{
			ID:        RealID(p.ID),
			Name:      p.Name,
			Path:      p.Path,
			Directory: &g,
		})

		if path == "" || path == p.Path {
			continue
		}

		logging.SubsystemInfo(ctx, logging.SubsystemReconcile, "Updating GitLab group path", fields)
		if err := r.exec.Mutate(ctx, "update_group", p.Name, fields, func(ctx context.Context) error {
			return r.platform.UpdateGroupPath(ctx, p.ID, path)
		}); err != nil {
			return err
		}

		result.Updated = append(result.Updated, p.Name)
	}

	return nil
}
