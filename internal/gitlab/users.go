package gitlab

import (
	"context"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/isometry/gitlab-ldap-sync/internal/reconcile"
)

func (c *Client) ListUsers(ctx context.Context, page, perPage int) ([]reconcile.PlatformUser, error) {
	users, _, err := c.api.Users.ListUsers(&gitlab.ListUsersOptions{
		ListOptions: listOptions(page, perPage),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, c.wrap("list users", err)
	}

	out := make([]reconcile.PlatformUser, 0, len(users))
	for _, u := range users {
		out = append(out, reconcile.PlatformUser{
			ID:       u.ID,
			Username: u.Username,
			State:    userState(u),
		})
	}
	return out, nil
}

func userState(u *gitlab.User) reconcile.UserState {
	if u.Bot {
		return reconcile.UserBot
	}
	switch reconcile.UserState(u.State) {
	case reconcile.UserBlocked:
		return reconcile.UserBlocked
	case reconcile.UserLdapBlocked:
		return reconcile.UserLdapBlocked
	default:
		return reconcile.UserActive
	}
}

func (c *Client) CreateUser(ctx context.Context, req reconcile.CreateUserRequest) (int, error) {
	user, _, err := c.api.Users.CreateUser(&gitlab.CreateUserOptions{
		Username:         gitlab.Ptr(req.Username),
		Name:             gitlab.Ptr(req.Name),
		Email:            gitlab.Ptr(req.Email),
		Password:         gitlab.Ptr(req.Password),
		ExternUID:        gitlab.Ptr(req.ExternUID),
		Provider:         gitlab.Ptr(req.Provider),
		Admin:            gitlab.Ptr(req.Admin),
		CanCreateGroup:   gitlab.Ptr(req.CanCreateGroup),
		External:         gitlab.Ptr(req.External),
		SkipConfirmation: gitlab.Ptr(true),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return 0, c.wrap("create user", err)
	}
	return user.ID, nil
}

func (c *Client) UpdateUser(ctx context.Context, id int, update reconcile.UserUpdate) error {
	_, _, err := c.api.Users.ModifyUser(id, &gitlab.ModifyUserOptions{
		Name:               update.Name,
		Email:              update.Email,
		ExternUID:          update.ExternUID,
		Provider:           update.Provider,
		Admin:              update.Admin,
		CanCreateGroup:     update.CanCreateGroup,
		External:           update.External,
		SkipReconfirmation: update.SkipReconfirmation,
	}, gitlab.WithContext(ctx))
	return c.wrap("update user", err)
}

func (c *Client) BlockUser(ctx context.Context, id int) error {
	return c.wrap("block user", c.api.Users.BlockUser(id, gitlab.WithContext(ctx)))
}

func (c *Client) UnblockUser(ctx context.Context, id int) error {
	return c.wrap("unblock user", c.api.Users.UnblockUser(id, gitlab.WithContext(ctx)))
}
