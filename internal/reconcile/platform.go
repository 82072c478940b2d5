package reconcile

import (
	"context"
)

// Platform is the GitLab surface reconciliation depends on. Listing calls
// are page-at-a-time; callers stop at the first empty page.
type Platform interface {
	ListUsers(ctx context.Context, page, perPage int) ([]PlatformUser, error)
	CreateUser(ctx context.Context, req CreateUserRequest) (int, error)
	UpdateUser(ctx context.Context, id int, update UserUpdate) error
	BlockUser(ctx context.Context, id int) error
	UnblockUser(ctx context.Context, id int) error

	ListGroups(ctx context.Context, page, perPage int) ([]PlatformGroup, error)
	CreateGroup(ctx context.Context, name, path string) (int, error)
	UpdateGroupPath(ctx context.Context, id int, path string) error
	DeleteGroup(ctx context.Context, id int) error
	GroupProjectCount(ctx context.Context, id int) (int, error)
	GroupSubgroupCount(ctx context.Context, id int) (int, error)

	ListGroupMembers(ctx context.Context, groupID, page, perPage int) ([]PlatformMember, error)
	AddGroupMember(ctx context.Context, groupID, userID, accessLevel int) error
	RemoveGroupMember(ctx context.Context, groupID, userID int) error
}
