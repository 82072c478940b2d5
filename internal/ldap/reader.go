package ldap

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/isometry/gitlab-ldap-sync/internal/config"
	"github.com/isometry/gitlab-ldap-sync/internal/logging"
)

// PagedSearcher runs a complete paged search.
type PagedSearcher interface {
	SearchWithPaging(ctx context.Context, req *SearchRequest) (*SearchResult, error)
}

// RawUser is a user entry as read from the directory. Missing attributes are
// left empty; validation happens when the snapshot is built.
type RawUser struct {
	DN       string
	Unique   string
	Match    string
	FullName string
	Email    string
}

// RawGroup is a group entry with its unresolved member references.
type RawGroup struct {
	DN      string
	Name    string
	Members []string
	// HasMemberAttr is false when the entry carried no member attribute.
	HasMemberAttr bool
}

// Reader reads users and groups with the configured queries.
type Reader struct {
	search  PagedSearcher
	queries config.QueriesConfig
}

func NewReader(search PagedSearcher, queries config.QueriesConfig) *Reader {
	return &Reader{search: search, queries: queries}
}

// ReadUsers returns every entry matching the user filter below the user base.
func (r *Reader) ReadUsers(ctx context.Context) ([]RawUser, error) {
	q := r.queries
	match := q.UserMatchAttribute
	if match == "" {
		match = q.UserUniqueAttribute
	}

	attrs := uniqueAttributes(q.UserUniqueAttribute, match, q.UserNameAttribute, q.UserEmailAttribute)
	start := time.Now()
	result, err := r.search.SearchWithPaging(ctx, &SearchRequest{
		BaseDN:     q.UserSearchBase(),
		Scope:      ScopeWholeSubtree,
		Filter:     q.UserFilter,
		Attributes: attrs,
	})
	if err != nil {
		return nil, err
	}

	users := make([]RawUser, 0, len(result.Entries))
	for _, entry := range result.Entries {
		users = append(users, RawUser{
			DN:       strings.TrimSpace(entry.DN),
			Unique:   attributeValue(entry, q.UserUniqueAttribute),
			Match:    attributeValue(entry, match),
			FullName: attributeValue(entry, q.UserNameAttribute),
			Email:    attributeValue(entry, q.UserEmailAttribute),
		})
	}

	logging.SubsystemInfo(ctx, logging.SubsystemLDAP, "Read directory users", map[string]any{
		"base_dn": q.UserSearchBase(),
		"count":   len(users),
	})
	logging.LogPerformance(ctx, logging.SubsystemLDAP, "read_users", time.Since(start), map[string]any{
		"count": len(users),
	})
	return users, nil
}

// ReadGroups returns every entry matching the group filter below the group base.
func (r *Reader) ReadGroups(ctx context.Context) ([]RawGroup, error) {
	q := r.queries

	start := time.Now()
	result, err := r.search.SearchWithPaging(ctx, &SearchRequest{
		BaseDN:     q.GroupSearchBase(),
		Scope:      ScopeWholeSubtree,
		Filter:     q.GroupFilter,
		Attributes: uniqueAttributes(q.GroupUniqueAttribute, q.GroupMemberAttribute),
	})
	if err != nil {
		return nil, err
	}

	groups := make([]RawGroup, 0, len(result.Entries))
	for _, entry := range result.Entries {
		group := RawGroup{
			DN:            strings.TrimSpace(entry.DN),
			Name:          attributeValue(entry, q.GroupUniqueAttribute),
			HasMemberAttr: hasAttribute(entry, q.GroupMemberAttribute),
		}
		for _, member := range entry.GetEqualFoldAttributeValues(q.GroupMemberAttribute) {
			if member = strings.TrimSpace(member); member != "" {
				group.Members = append(group.Members, member)
			}
		}
		groups = append(groups, group)
	}

	logging.SubsystemInfo(ctx, logging.SubsystemLDAP, "Read directory groups", map[string]any{
		"base_dn": q.GroupSearchBase(),
		"count":   len(groups),
	})
	logging.LogPerformance(ctx, logging.SubsystemLDAP, "read_groups", time.Since(start), map[string]any{
		"count": len(groups),
	})
	return groups, nil
}

// uniqueAttributes drops empty and repeated (case-insensitive) names.
func uniqueAttributes(names ...string) []string {
	var attrs []string
	for _, name := range names {
		if name == "" {
			continue
		}
		if slices.ContainsFunc(attrs, func(a string) bool { return strings.EqualFold(a, name) }) {
			continue
		}
		attrs = append(attrs, name)
	}
	return attrs
}
