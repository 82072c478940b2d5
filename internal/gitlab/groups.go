package gitlab

import (
	"context"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/isometry/gitlab-ldap-sync/internal/reconcile"
)

func (c *Client) ListGroups(ctx context.Context, page, perPage int) ([]reconcile.PlatformGroup, error) {
	groups, _, err := c.api.Groups.ListGroups(&gitlab.ListGroupsOptions{
		ListOptions:  listOptions(page, perPage),
		AllAvailable: gitlab.Ptr(true),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, c.wrap("list groups", err)
	}

	out := make([]reconcile.PlatformGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, reconcile.PlatformGroup{ID: g.ID, Name: g.Name, Path: g.Path})
	}
	return out, nil
}

func (c *Client) CreateGroup(ctx context.Context, name, path string) (int, error) {
	group, _, err := c.api.Groups.CreateGroup(&gitlab.CreateGroupOptions{
		Name: gitlab.Ptr(name),
		Path: gitlab.Ptr(path),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return 0, c.wrap("create group", err)
	}
	return group.ID, nil
}

func (c *Client) UpdateGroupPath(ctx context.Context, id int, path string) error {
	_, _, err := c.api.Groups.UpdateGroup(id, &gitlab.UpdateGroupOptions{
		Path: gitlab.Ptr(path),
	}, gitlab.WithContext(ctx))
	return c.wrap("update group", err)
}

func (c *Client) DeleteGroup(ctx context.Context, id int) error {
	_, err := c.api.Groups.DeleteGroup(id, &gitlab.DeleteGroupOptions{}, gitlab.WithContext(ctx))
	return c.wrap("delete group", err)
}

// GroupProjectCount asks for a single item and reads the total from the
// pagination headers.
func (c *Client) GroupProjectCount(ctx context.Context, id int) (int, error) {
	projects, resp, err := c.api.Groups.ListGroupProjects(id, &gitlab.ListGroupProjectsOptions{
		ListOptions: listOptions(1, 1),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return 0, c.wrap("count group projects", err)
	}
	return total(resp, len(projects)), nil
}

func (c *Client) GroupSubgroupCount(ctx context.Context, id int) (int, error) {
	subgroups, resp, err := c.api.Groups.ListSubGroups(id, &gitlab.ListSubGroupsOptions{
		ListOptions: listOptions(1, 1),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return 0, c.wrap("count subgroups", err)
	}
	return total(resp, len(subgroups)), nil
}

func (c *Client) ListGroupMembers(ctx context.Context, groupID, page, perPage int) ([]reconcile.PlatformMember, error) {
	members, _, err := c.api.Groups.ListGroupMembers(groupID, &gitlab.ListGroupMembersOptions{
		ListOptions: listOptions(page, perPage),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, c.wrap("list group members", err)
	}

	out := make([]reconcile.PlatformMember, 0, len(members))
	for _, m := range members {
		out = append(out, reconcile.PlatformMember{
			UserID:      m.ID,
			Username:    m.Username,
			AccessLevel: int(m.AccessLevel),
		})
	}
	return out, nil
}

func (c *Client) AddGroupMember(ctx context.Context, groupID, userID, accessLevel int) error {
	_, _, err := c.api.GroupMembers.AddGroupMember(groupID, &gitlab.AddGroupMemberOptions{
		UserID:      gitlab.Ptr(userID),
		AccessLevel: gitlab.Ptr(gitlab.AccessLevelValue(accessLevel)),
	}, gitlab.WithContext(ctx))
	return c.wrap("add group member", err)
}

func (c *Client) RemoveGroupMember(ctx context.Context, groupID, userID int) error {
	_, err := c.api.GroupMembers.RemoveGroupMember(groupID, userID, &gitlab.RemoveGroupMemberOptions{}, gitlab.WithContext(ctx))
	return c.wrap("remove group member", err)
}
