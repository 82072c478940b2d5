package reconcile

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
)

type fakeUser struct {
	ID             int
	Username       string
	Name           string
	Email          string
	ExternUID      string
	Provider       string
	State          UserState
	Admin          bool
	CanCreateGroup bool
	External       bool
}

type fakeGroup struct {
	ID        int
	Name      string
	Path      string
	Projects  int
	Subgroups int
	Members   map[int]int // user id -> access level
}

// fakePlatform is an in-memory GitLab used for scenario tests.
type fakePlatform struct {
	users  map[int]*fakeUser
	groups map[int]*fakeGroup
	nextID int

	mutations []string
}

func newFakePlatform() *fakePlatform {
	f := &fakePlatform{
		users:  make(map[int]*fakeUser),
		groups: make(map[int]*fakeGroup),
		nextID: 100,
	}
	f.addUser("root", UserActive)
	return f
}

func (f *fakePlatform) id() int {
	f.nextID++
	return f.nextID
}

func (f *fakePlatform) addUser(username string, state UserState) *fakeUser {
	u := &fakeUser{ID: f.id(), Username: username, State: state, Email: username + "@example.com"}
	f.users[u.ID] = u
	return u
}

func (f *fakePlatform) addGroup(name, path string) *fakeGroup {
	g := &fakeGroup{ID: f.id(), Name: name, Path: path, Members: make(map[int]int)}
	f.groups[g.ID] = g
	return g
}

func (f *fakePlatform) user(username string) *fakeUser {
	for _, u := range f.users {
		if strings.EqualFold(u.Username, username) {
			return u
		}
	}
	return nil
}

func (f *fakePlatform) group(name string) *fakeGroup {
	for _, g := range f.groups {
		if strings.EqualFold(g.Name, name) {
			return g
		}
	}
	return nil
}

func (f *fakePlatform) memberNames(g *fakeGroup) []string {
	var names []string
	for id := range g.Members {
		names = append(names, f.users[id].Username)
	}
	slices.Sort(names)
	return names
}

func (f *fakePlatform) record(format string, args ...any) {
	f.mutations = append(f.mutations, fmt.Sprintf(format, args...))
}

func page[T any](items []T, page, perPage int) []T {
	start := (page - 1) * perPage
	if start >= len(items) {
		return nil
	}
	end := min(start+perPage, len(items))
	return items[start:end]
}

func (f *fakePlatform) ListUsers(_ context.Context, p, perPage int) ([]PlatformUser, error) {
	var out []PlatformUser
	for _, id := range slices.Sorted(maps.Keys(f.users)) {
		u := f.users[id]
		out = append(out, PlatformUser{ID: u.ID, Username: u.Username, State: u.State})
	}
	return page(out, p, perPage), nil
}

func (f *fakePlatform) CreateUser(_ context.Context, req CreateUserRequest) (int, error) {
	for _, u := range f.users {
		if strings.EqualFold(u.Email, req.Email) {
			return 0, ErrEmailTaken
		}
	}
	u := &fakeUser{
		ID:             f.id(),
		Username:       req.Username,
		Name:           req.Name,
		Email:          req.Email,
		ExternUID:      req.ExternUID,
		Provider:       req.Provider,
		State:          UserActive,
		Admin:          req.Admin,
		CanCreateGroup: req.CanCreateGroup,
		External:       req.External,
	}
	f.users[u.ID] = u
	f.record("create_user %s", req.Username)
	return u.ID, nil
}

func (f *fakePlatform) UpdateUser(_ context.Context, id int, update UserUpdate) error {
	u, ok := f.users[id]
	if !ok {
		return fmt.Errorf("404 user %d", id)
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Email != nil {
		u.Email = *update.Email
	}
	if update.ExternUID != nil {
		u.ExternUID = *update.ExternUID
	}
	if update.Provider != nil {
		u.Provider = *update.Provider
	}
	if update.Admin != nil {
		u.Admin = *update.Admin
	}
	if update.CanCreateGroup != nil {
		u.CanCreateGroup = *update.CanCreateGroup
	}
	if update.External != nil {
		u.External = *update.External
	}
	f.record("update_user %s", u.Username)
	return nil
}

func (f *fakePlatform) BlockUser(_ context.Context, id int) error {
	u, ok := f.users[id]
	if !ok {
		return fmt.Errorf("404 user %d", id)
	}
	u.State = UserBlocked
	f.record("block_user %s", u.Username)
	return nil
}

func (f *fakePlatform) UnblockUser(_ context.Context, id int) error {
	u, ok := f.users[id]
	if !ok {
		return fmt.Errorf("404 user %d", id)
	}
	u.State = UserActive
	f.record("unblock_user %s", u.Username)
	return nil
}

func (f *fakePlatform) ListGroups(_ context.Context, p, perPage int) ([]PlatformGroup, error) {
	var out []PlatformGroup
	for _, id := range slices.Sorted(maps.Keys(f.groups)) {
		g := f.groups[id]
		out = append(out, PlatformGroup{ID: g.ID, Name: g.Name, Path: g.Path})
	}
	return page(out, p, perPage), nil
}

func (f *fakePlatform) CreateGroup(_ context.Context, name, path string) (int, error) {
	g := f.addGroup(name, path)
	f.record("create_group %s", name)
	return g.ID, nil
}

func (f *fakePlatform) UpdateGroupPath(_ context.Context, id int, path string) error {
	g, ok := f.groups[id]
	if !ok {
		return fmt.Errorf("404 group %d", id)
	}
	g.Path = path
	f.record("update_group %s", g.Name)
	return nil
}

func (f *fakePlatform) DeleteGroup(_ context.Context, id int) error {
	g, ok := f.groups[id]
	if !ok {
		return fmt.Errorf("404 group %d", id)
	}
	delete(f.groups, id)
	f.record("delete_group %s", g.Name)
	return nil
}

func (f *fakePlatform) GroupProjectCount(_ context.Context, id int) (int, error) {
	return f.groups[id].Projects, nil
}

func (f *fakePlatform) GroupSubgroupCount(_ context.Context, id int) (int, error) {
	return f.groups[id].Subgroups, nil
}

func (f *fakePlatform) ListGroupMembers(_ context.Context, groupID, p, perPage int) ([]PlatformMember, error) {
	g, ok := f.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("404 group %d", groupID)
	}
	var out []PlatformMember
	for _, uid := range slices.Sorted(maps.Keys(g.Members)) {
		out = append(out, PlatformMember{UserID: uid, Username: f.users[uid].Username, AccessLevel: g.Members[uid]})
	}
	return page(out, p, perPage), nil
}

func (f *fakePlatform) AddGroupMember(_ context.Context, groupID, userID, accessLevel int) error {
	g, ok := f.groups[groupID]
	if !ok {
		return fmt.Errorf("404 group %d", groupID)
	}
	g.Members[userID] = accessLevel
	f.record("add_member %s %s", g.Name, f.users[userID].Username)
	return nil
}

func (f *fakePlatform) RemoveGroupMember(_ context.Context, groupID, userID int) error {
	g, ok := f.groups[groupID]
	if !ok {
		return fmt.Errorf("404 group %d", groupID)
	}
	delete(g.Members, userID)
	f.record("remove_member %s %s", g.Name, f.users[userID].Username)
	return nil
}

func directoryUser(username string) DirectoryUser {
	return DirectoryUser{
		Username:   username,
		ExternalID: "uid=" + username + ",ou=people,dc=example,dc=com",
		MatchKey:   username,
		FullName:   strings.ToUpper(username[:1]) + username[1:],
		Email:      username + "@example.com",
	}
}

func directoryGroup(name string, members ...string) DirectoryGroup {
	return DirectoryGroup{
		Name:        name,
		DisplayName: DisplayNameSlug.Slugify(name),
		Path:        PathSlug.Slugify(name),
		Members:     members,
	}
}
