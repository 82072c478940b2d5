// Package directory turns raw directory records into the normalized snapshot
// a reconciliation run converges toward.
package directory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/isometry/gitlab-ldap-sync/internal/config"
	"github.com/isometry/gitlab-ldap-sync/internal/ldap"
	"github.com/isometry/gitlab-ldap-sync/internal/logging"
	"github.com/isometry/gitlab-ldap-sync/internal/reconcile"
)

// Source reads raw users and groups.
type Source interface {
	ReadUsers(ctx context.Context) ([]ldap.RawUser, error)
	ReadGroups(ctx context.Context) ([]ldap.RawGroup, error)
}

// Builder validates and normalizes directory records.
type Builder struct {
	scheme     Scheme
	byUsername bool

	ignoredUsers   reconcile.NameSet
	ignoredGroups  reconcile.NameSet
	adminGroups    reconcile.NameSet
	externalGroups reconcile.NameSet
}

func NewBuilder(queries config.QueriesConfig, options config.OptionsConfig) *Builder {
	match := queries.UserMatchAttribute
	if match == "" {
		match = queries.UserUniqueAttribute
	}

	return &Builder{
		scheme:         SchemeFor(queries.GroupMemberAttribute),
		byUsername:     strings.EqualFold(match, queries.UserUniqueAttribute),
		ignoredUsers:   reconcile.NewNameSet(options.UserNamesToIgnore...),
		ignoredGroups:  reconcile.NewNameSet(options.GroupNamesToIgnore...),
		adminGroups:    reconcile.NewNameSet(options.GroupNamesOfAdministrators...),
		externalGroups: reconcile.NewNameSet(options.GroupNamesOfExternal...),
	}
}

// Build reads src and returns the snapshot. Malformed records are logged and
// dropped; only read failures are returned.
func (b *Builder) Build(ctx context.Context, src Source) (*reconcile.Snapshot, error) {
	rawUsers, err := src.ReadUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory users: %w", err)
	}
	users := b.buildUsers(ctx, rawUsers)

	rawGroups, err := src.ReadGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory groups: %w", err)
	}
	groups := b.buildGroups(ctx, rawGroups, users)

	return &reconcile.Snapshot{Users: users, Groups: groups}, nil
}

func (b *Builder) buildUsers(ctx context.Context, raw []ldap.RawUser) []reconcile.DirectoryUser {
	logging.SubsystemInfo(ctx, logging.SubsystemDirectory, fmt.Sprintf("%d directory user(s) found", len(raw)))

	var (
		users     []reconcile.DirectoryUser
		usernames = reconcile.NewNameSet()
		matchKeys = make(map[string]struct{})
		dns       = make(map[string]struct{})
	)

	for i, r := range raw {
		n := i + 1

		user, err := b.buildUser(ctx, n, r)
		if err != nil {
			logRecord(ctx, err, map[string]any{"record": n})
			continue
		}

		if b.ignoredUsers.Has(user.Username) {
			logging.SubsystemInfo(ctx, logging.SubsystemDirectory, "User in ignore list", map[string]any{"username": user.Username})
			continue
		}

		dnKey := ldap.DNKey(user.ExternalID)
		switch {
		case usernames.Has(user.Username):
			err = &reconcile.DuplicateEntityError{Kind: "directory user", Key: user.Username}
		case hasKey(matchKeys, user.MatchKey):
			err = &reconcile.DuplicateEntityError{Kind: "directory user match key", Key: user.MatchKey}
		case hasKey(dns, dnKey):
			err = &reconcile.DuplicateEntityError{Kind: "directory user DN", Key: user.ExternalID}
		}
		if err != nil {
			logRecord(ctx, err, map[string]any{"record": n, "dn": user.ExternalID})
			continue
		}

		usernames.Add(user.Username)
		matchKeys[user.MatchKey] = struct{}{}
		dns[dnKey] = struct{}{}

		logging.SubsystemDebug(ctx, logging.SubsystemDirectory, "Found directory user", map[string]any{
			"username": user.Username,
			"dn":       user.ExternalID,
		})
		users = append(users, user)
	}

	slices.SortFunc(users, func(a, b reconcile.DirectoryUser) int {
		return compareFold(a.Username, b.Username)
	})

	logging.SubsystemInfo(ctx, logging.SubsystemDirectory, fmt.Sprintf("%d directory user(s) recognised", len(users)))
	return users
}

func (b *Builder) buildUser(ctx context.Context, n int, r ldap.RawUser) (reconcile.DirectoryUser, error) {
	record := fmt.Sprintf("#%d", n)
	invalid := func(reason string) error {
		return &reconcile.RecordValidationError{Kind: "directory user", Record: record, Reason: reason}
	}

	dn := strings.TrimSpace(r.DN)
	if dn == "" {
		return reconcile.DirectoryUser{}, invalid("empty distinguished name")
	}
	record = fmt.Sprintf("#%d [%s]", n, dn)

	unique := strings.TrimSpace(r.Unique)
	if unique == "" {
		return reconcile.DirectoryUser{}, invalid("missing unique attribute")
	}

	username := reconcile.UsernameSlug.Slugify(unique)
	if username == "" {
		return reconcile.DirectoryUser{}, invalid(fmt.Sprintf("username %q has no usable characters", unique))
	}
	if username != unique {
		logging.SubsystemWarn(ctx, logging.SubsystemDirectory, "Username is incompatible with GitLab, changed", map[string]any{
			"dn":       dn,
			"original": unique,
			"username": username,
		})
	}

	user := reconcile.DirectoryUser{
		Username:   username,
		ExternalID: dn,
		MatchKey:   strings.TrimSpace(r.Match),
		FullName:   strings.TrimSpace(r.FullName),
		Email:      strings.TrimSpace(r.Email),
	}

	switch {
	case user.MatchKey == "":
		return reconcile.DirectoryUser{}, invalid("missing match attribute")
	case user.FullName == "":
		return reconcile.DirectoryUser{}, invalid("missing name attribute")
	case user.Email == "":
		return reconcile.DirectoryUser{}, invalid("missing email attribute")
	}

	return user, nil
}

func (b *Builder) buildGroups(ctx context.Context, raw []ldap.RawGroup, users []reconcile.DirectoryUser) []reconcile.DirectoryGroup {
	logging.SubsystemInfo(ctx, logging.SubsystemDirectory, fmt.Sprintf("%d directory group(s) found", len(raw)))

	if b.scheme == SchemeUnsupported && len(raw) > 0 {
		logging.SubsystemWarn(ctx, logging.SubsystemDirectory, "Group member attribute is not supported, groups will have no members")
	}

	resolver := NewMemberResolver(b.scheme, b.byUsername, users)
	userIndex := make(map[string]int, len(users))
	for i, u := range users {
		userIndex[strings.ToLower(u.Username)] = i
	}

	var (
		groups       []reconcile.DirectoryGroup
		names        = reconcile.NewNameSet()
		displayNames = reconcile.NewNameSet()
	)

	for i, r := range raw {
		n := i + 1
		name := strings.TrimSpace(r.Name)
		if name == "" {
			logRecord(ctx, &reconcile.RecordValidationError{
				Kind:   "directory group",
				Record: fmt.Sprintf("#%d [%s]", n, r.DN),
				Reason: "missing unique attribute",
			}, nil)
			continue
		}

		if b.ignoredGroups.Has(name) {
			logging.SubsystemInfo(ctx, logging.SubsystemDirectory, "Group in ignore list", map[string]any{"group": name})
			continue
		}

		group := reconcile.DirectoryGroup{
			Name:               name,
			DisplayName:        reconcile.DisplayNameSlug.Slugify(name),
			Path:               reconcile.PathSlug.Slugify(name),
			MembersAreAdmins:   b.adminGroups.Has(name),
			MembersAreExternal: b.externalGroups.Has(name),
		}

		if names.Has(name) || displayNames.Has(group.DisplayName) {
			logRecord(ctx, &reconcile.DuplicateEntityError{Kind: "directory group", Key: name}, nil)
			continue
		}
		names.Add(name)
		displayNames.Add(group.DisplayName)

		fields := map[string]any{"group": name}
		if !r.HasMemberAttr {
			logging.SubsystemWarn(ctx, logging.SubsystemDirectory, "Group has no member attribute (could also mean it has no members)", fields)
		}

		members := reconcile.NewNameSet()
		for _, ref := range r.Members {
			username, ok := resolver.Resolve(ref)
			if !ok {
				logging.SubsystemWarn(ctx, logging.SubsystemDirectory, "No matching user found for group member", map[string]any{
					"group":  name,
					"member": ref,
				})
				continue
			}
			if b.ignoredUsers.Has(username) {
				logging.SubsystemInfo(ctx, logging.SubsystemDirectory, "Group member in ignore list", map[string]any{
					"group":    name,
					"username": username,
				})
				continue
			}
			if members.Has(username) {
				logging.SubsystemWarn(ctx, logging.SubsystemDirectory, "Duplicate group member", map[string]any{
					"group":    name,
					"username": username,
				})
				continue
			}
			members.Add(username)
			group.Members = append(group.Members, username)

			// Flags only ever upgrade.
			idx := userIndex[strings.ToLower(username)]
			if group.MembersAreAdmins {
				users[idx].IsAdmin = true
			}
			if group.MembersAreExternal {
				users[idx].IsExternal = true
			}
		}

		slices.SortFunc(group.Members, compareFold)

		fields["members"] = len(group.Members)
		fields["admins"] = group.MembersAreAdmins
		fields["external"] = group.MembersAreExternal
		logging.SubsystemDebug(ctx, logging.SubsystemDirectory, "Found directory group", fields)

		groups = append(groups, group)
	}

	slices.SortFunc(groups, func(a, b reconcile.DirectoryGroup) int {
		return compareFold(a.Name, b.Name)
	})

	logging.SubsystemInfo(ctx, logging.SubsystemDirectory, fmt.Sprintf("%d directory group(s) recognised", len(groups)))
	return groups
}

func hasKey(m map[string]struct{}, key string) bool {
	_, ok := m[key]
	return ok
}

// compareFold orders case-insensitively, then by raw value.
func compareFold(a, b string) int {
	return cmp.Or(
		strings.Compare(strings.ToLower(a), strings.ToLower(b)),
		strings.Compare(a, b),
	)
}

func logRecord(ctx context.Context, err error, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["error"] = err.Error()

	var duplicate *reconcile.DuplicateEntityError
	if errors.As(err, &duplicate) {
		logging.SubsystemWarn(ctx, logging.SubsystemDirectory, "Directory record skipped", fields)
		return
	}
	logging.SubsystemError(ctx, logging.SubsystemDirectory, "Directory record rejected", fields)
}
