package reconcile

import (
	"context"
	"errors"
	"strings"

	"github.com/isometry/gitlab-ldap-sync/internal/logging"
)

// UserResult records what the user phase did.
type UserResult struct {
	Classification Classification[DirectoryUser, PlatformUser]

	Created []string
	Retired []string
	Updated []string
	Skipped int

	// IDs maps folded usernames of found and created accounts to their ids.
	IDs map[string]PlatformID

	// Excluded holds the platform usernames set aside during listing.
	Excluded NameSet
}

func (r *UserResult) excludedNames() NameSet {
	if r.Excluded == nil {
		return NewNameSet()
	}
	return r.Excluded
}

// UserReconciler creates, updates and blocks platform accounts.
type UserReconciler struct {
	env
}

// NewUserReconciler creates a user reconciler.
func NewUserReconciler(platform Platform, exec *Executor, protected *ProtectedSet, opts Options) *UserReconciler {
	return &UserReconciler{env{platform: platform, exec: exec, protected: protected, opts: opts}}
}

func (r *UserReconciler) classifier() *Classifier[DirectoryUser, PlatformUser] {
	return &Classifier[DirectoryUser, PlatformUser]{
		Kind:          "user",
		PlatformID:    func(u PlatformUser) int { return u.ID },
		PlatformName:  func(u PlatformUser) string { return u.Username },
		DirectoryName: func(u DirectoryUser) string { return u.Username },
		Protected:     r.protected.User,
		Ignored:       NewNameSet(r.opts.UserNamesToIgnore...),
		Exclude: func(u PlatformUser) (string, bool) {
			if u.State == UserBot {
				return "bot", true
			}
			return "", false
		},
	}
}

// Reconcile runs the user phase.
func (r *UserReconciler) Reconcile(ctx context.Context, users []DirectoryUser) (*UserResult, error) {
	classifier := r.classifier()

	logging.SubsystemInfo(ctx, logging.SubsystemReconcile, "Finding all existing GitLab users")
	listing, err := classifier.Collect(ctx, func(ctx context.Context, page int) ([]PlatformUser, error) {
		return r.platform.ListUsers(ctx, page, r.opts.pageSize())
	})
	if err != nil {
		return nil, err
	}
	logging.SubsystemInfo(ctx, logging.SubsystemReconcile, "GitLab users found", map[string]any{
		"count": len(listing.Found),
	})

	cls := classifier.Classify(ctx, listing, users)
	result := &UserResult{
		Classification: cls,
		IDs:            make(map[string]PlatformID, len(cls.Found)+len(cls.ToCreate)),
		Excluded:       listing.Excluded,
	}
	for _, u := range cls.Found {
		result.IDs[foldKey(u.Username)] = RealID(u.ID)
	}

	if err := r.create(ctx, cls.ToCreate, result); err != nil {
		return result, err
	}
	if err := r.retire(ctx, cls.ToRetire, result); err != nil {
		return result, err
	}
	if err := r.update(ctx, cls.ToUpdate, result); err != nil {
		return result, err
	}

	logging.SubsystemInfo(ctx, logging.SubsystemReconcile, "GitLab users reconciled", map[string]any{
		"created":  len(result.Created),
		"disabled": len(result.Retired),
		"updated":  len(result.Updated),
		"skipped":  result.Skipped,
	})

	return result, nil
}

func (r *UserReconciler) create(ctx context.Context, users []DirectoryUser, result *UserResult) error {
	for _, u := range users {
		if err := validateDirectoryUser(u); err != nil {
			logRecordError(ctx, err, nil)
			result.Skipped++
			continue
		}

		password, err := generatePassword(passwordLength)
		if err != nil {
			return err
		}

		fields := map[string]any{
			"username": u.Username,
			"dn":       u.ExternalID,
			"admin":    u.IsAdmin,
			"external": u.IsExternal,
		}
		logging.SubsystemInfo(ctx, logging.SubsystemReconcile, "Creating GitLab user", fields)
		logging.SubsystemDebug(ctx, logging.SubsystemReconcile, "Initial password for GitLab user", map[string]any{
			"username":         u.Username,
			"initial_password": password,
		})

		req := CreateUserRequest{
			Username:       u.Username,
			Name:           u.FullName,
			Email:          u.Email,
			Password:       password,
			ExternUID:      u.ExternalID,
			Provider:       r.opts.Provider,
			Admin:          u.IsAdmin,
			CanCreateGroup: u.IsAdmin,
			External:       u.IsExternal,
		}

		id, err := r.exec.Create(ctx, "create_user", u.ExternalID, fields, func(ctx context.Context) (int, error) {
			return r.platform.CreateUser(ctx, req)
		})
		if err != nil {
			if errors.Is(err, ErrEmailTaken) {
				logging.SubsystemError(ctx, logging.SubsystemReconcile, "GitLab user was not created, email address already used by another account", fields)
				if r.opts.ContinueOnFail {
					result.Skipped++
					continue
				}
			}
			return err
		}

		result.IDs[foldKey(u.Username)] = id
		result.Created = append(result.Created, u.Username)
	}

	return nil
}

func (r *UserReconciler) retire(ctx context.Context, users []PlatformUser, result *UserResult) error {
	for _, u := range users {
		fields := map[string]any{
			"id":       u.ID,
			"username": u.Username,
			"state":    string(u.State),
		}

		if u.State.Disabled() {
			logging.SubsystemDebug(ctx, logging.SubsystemReconcile, "GitLab user already disabled", fields)
			continue
		}

		logging.SubsystemWarn(ctx, logging.SubsystemReconcile, "Disabling GitLab user", fields)

		if err := r.exec.Mutate(ctx, "block_user", u.Username, fields, func(ctx context.Context) error {
			return r.platform.BlockUser(ctx, u.ID)
		}); err != nil {
			return err
		}

		demote := UserUpdate{
			Admin:          ptr(false),
			CanCreateGroup: ptr(false),
			External:       ptr(true),
		}
		if err := r.exec.Mutate(ctx, "demote_user", u.Username, fields, func(ctx context.Context) error {
			return r.platform.UpdateUser(ctx, u.ID, demote)
		}); err != nil {
			return err
		}

		result.Retired = append(result.Retired, u.Username)
	}

	return nil
}

func (r *UserReconciler) update(ctx context.Context, matches []Match[DirectoryUser, PlatformUser], result *UserResult) error {
	for _, m := range matches {
		u, p := m.Directory, m.Platform
		fields := map[string]any{
			"id":       p.ID,
			"username": p.Username,
			"state":    string(p.State),
		}

		if p.State == UserLdapBlocked {
			logRecordError(ctx, &ConflictingStateError{
				Kind:   "user",
				Name:   p.Username,
				State:  string(p.State),
				Action: "update",
			}, fields)
			result.Skipped++
			continue
		}

		if err := validateDirectoryUser(u); err != nil {
			logRecordError(ctx, err, fields)
			result.Skipped++
			continue
		}

		if p.State == UserBlocked {
			logging.SubsystemInfo(ctx, logging.SubsystemReconcile, "Enabling GitLab user", fields)
			if err := r.exec.Mutate(ctx, "unblock_user", p.Username, fields, func(ctx context.Context) error {
				return r.platform.UnblockUser(ctx, p.ID)
			}); err != nil {
				return err
			}
		}

		logging.SubsystemInfo(ctx, logging.SubsystemReconcile, "Updating GitLab user", fields)
		update := UserUpdate{
			Name:               ptr(u.FullName),
			Email:              ptr(u.Email),
			ExternUID:          ptr(u.ExternalID),
			Provider:           ptr(r.opts.Provider),
			Admin:              ptr(u.IsAdmin),
			CanCreateGroup:     ptr(u.IsAdmin),
			External:           ptr(u.IsExternal),
			SkipReconfirmation: ptr(true),
		}
		if err := r.exec.Mutate(ctx, "update_user", p.Username, fields, func(ctx context.Context) error {
			return r.platform.UpdateUser(ctx, p.ID, update)
		}); err != nil {
			return err
		}

		result.Updated = append(result.Updated, p.Username)
	}

	return nil
}

func validateDirectoryUser(u DirectoryUser) error {
	switch {
	case strings.TrimSpace(u.ExternalID) == "":
		return &RecordValidationError{Kind: "user", Record: u.Username, Reason: "empty distinguished name"}
	case strings.TrimSpace(u.Email) == "":
		return &RecordValidationError{Kind: "user", Record: u.Username, Reason: "empty email address"}
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}
