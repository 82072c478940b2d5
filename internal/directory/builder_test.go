package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/gitlab-ldap-sync/internal/config"
	"github.com/isometry/gitlab-ldap-sync/internal/ldap"
	"github.com/isometry/gitlab-ldap-sync/internal/reconcile"
)

type fakeSource struct {
	users     []ldap.RawUser
	groups    []ldap.RawGroup
	usersErr  error
	groupsErr error
}

func (f *fakeSource) ReadUsers(context.Context) ([]ldap.RawUser, error) {
	return f.users, f.usersErr
}

func (f *fakeSource) ReadGroups(context.Context) ([]ldap.RawGroup, error) {
	return f.groups, f.groupsErr
}

func posixQueries() config.QueriesConfig {
	return config.QueriesConfig{
		UserUniqueAttribute:  "uid",
		UserMatchAttribute:   "uid",
		GroupUniqueAttribute: "cn",
		GroupMemberAttribute: "memberUid",
	}
}

func rawUser(uid string) ldap.RawUser {
	return ldap.RawUser{
		DN:       "uid=" + uid + ",ou=People,dc=example,dc=com",
		Unique:   uid,
		Match:    uid,
		FullName: uid + " Example",
		Email:    uid + "@example.com",
	}
}

func usernames(users []reconcile.DirectoryUser) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.Username)
	}
	return out
}

func TestBuilder_Users(t *testing.T) {
	missingEmail := rawUser("noemail")
	missingEmail.Email = ""
	missingName := rawUser("noname")
	missingName.FullName = ""
	missingDN := rawUser("nodn")
	missingDN.DN = ""
	sameDN := rawUser("other")
	sameDN.DN = "UID=carol, OU=People, DC=example, DC=com"
	renamed := rawUser("José Smith")

	src := &fakeSource{users: []ldap.RawUser{
		rawUser("carol"),
		rawUser("alice"),
		rawUser("root"),
		missingEmail,
		missingName,
		missingDN,
		rawUser("alice"),
		sameDN,
		renamed,
	}}

	options := config.OptionsConfig{UserNamesToIgnore: []string{"ROOT"}}
	snapshot, err := NewBuilder(posixQueries(), options).Build(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, []string{"alice", "carol", "Jose,Smith"}, usernames(snapshot.Users))
	assert.Equal(t, "uid=José Smith,ou=People,dc=example,dc=com", snapshot.Users[2].ExternalID)
	assert.Equal(t, "alice@example.com", snapshot.Users[0].Email)
	assert.Empty(t, snapshot.Groups)
}

func TestBuilder_DuplicateMatchKey(t *testing.T) {
	queries := posixQueries()
	queries.UserMatchAttribute = "uidNumber"

	a := rawUser("alice")
	a.Match = "1001"
	b := rawUser("bob")
	b.Match = "1001"

	snapshot, err := NewBuilder(queries, config.OptionsConfig{}).Build(context.Background(), &fakeSource{
		users: []ldap.RawUser{a, b},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, usernames(snapshot.Users))
}

func TestBuilder_Groups(t *testing.T) {
	src := &fakeSource{
		users: []ldap.RawUser{rawUser("alice"), rawUser("bob"), rawUser("root")},
		groups: []ldap.RawGroup{
			{DN: "cn=Ops,ou=Groups,dc=example,dc=com", Name: "Ops", Members: []string{"bob", "alice", "ghost", "root", "bob"}, HasMemberAttr: true},
			{DN: "cn=Admins,ou=Groups,dc=example,dc=com", Name: "Admins", Members: []string{"alice"}, HasMemberAttr: true},
			{DN: "cn=Contractors,ou=Groups,dc=example,dc=com", Name: "Contractors", Members: []string{"bob"}, HasMemberAttr: true},
			{DN: "cn=Empty,ou=Groups,dc=example,dc=com", Name: "Empty"},
			{DN: "cn=Hidden,ou=Groups,dc=example,dc=com", Name: "Hidden", Members: []string{"alice"}, HasMemberAttr: true},
			{DN: "cn=ops,ou=Other,dc=example,dc=com", Name: "ops", Members: []string{"alice"}, HasMemberAttr: true},
			{DN: "cn=R&D,ou=Groups,dc=example,dc=com", Name: "R&D"},
			{DN: "cn=R D,ou=Groups,dc=example,dc=com", Name: "R D"},
			{DN: "cn=nameless,ou=Groups,dc=example,dc=com", Name: " "},
		},
	}

	options := config.OptionsConfig{
		UserNamesToIgnore:          []string{"root"},
		GroupNamesToIgnore:         []string{"hidden"},
		GroupNamesOfAdministrators: []string{"Admins"},
		GroupNamesOfExternal:       []string{"Contractors"},
	}

	snapshot, err := NewBuilder(posixQueries(), options).Build(context.Background(), src)
	require.NoError(t, err)

	names := make([]string, 0, len(snapshot.Groups))
	for _, g := range snapshot.Groups {
		names = append(names, g.Name)
	}
	assert.Equal(t, []string{"Admins", "Contractors", "Empty", "Ops", "R&D"}, names)

	ops := snapshot.Groups[3]
	assert.Equal(t, []string{"alice", "bob"}, ops.Members)
	assert.Equal(t, "Ops", ops.DisplayName)
	assert.Equal(t, "ops", ops.Path)
	assert.False(t, ops.MembersAreAdmins)

	rd := snapshot.Groups[4]
	assert.Equal(t, "R D", rd.DisplayName)
	assert.Equal(t, "r-d", rd.Path)

	assert.Empty(t, snapshot.Groups[2].Members)
	assert.True(t, snapshot.Groups[0].MembersAreAdmins)
	assert.True(t, snapshot.Groups[1].MembersAreExternal)

	require.Len(t, snapshot.Users, 2)
	alice, bob := snapshot.Users[0], snapshot.Users[1]
	assert.True(t, alice.IsAdmin)
	assert.False(t, alice.IsExternal)
	assert.False(t, bob.IsAdmin)
	assert.True(t, bob.IsExternal)
}

func TestBuilder_DNMembers(t *testing.T) {
	queries := posixQueries()
	queries.GroupMemberAttribute = "member"

	src := &fakeSource{
		users: []ldap.RawUser{rawUser("alice")},
		groups: []ldap.RawGroup{{
			Name:          "Devs",
			Members:       []string{"UID=alice,OU=People,DC=example,DC=com", "uid=ghost,ou=People,dc=example,dc=com"},
			HasMemberAttr: true,
		}},
	}

	snapshot, err := NewBuilder(queries, config.OptionsConfig{}).Build(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, snapshot.Groups, 1)
	assert.Equal(t, []string{"alice"}, snapshot.Groups[0].Members)
}

func TestBuilder_UnsupportedMemberAttribute(t *testing.T) {
	queries := posixQueries()
	queries.GroupMemberAttribute = "owner"

	src := &fakeSource{
		users:  []ldap.RawUser{rawUser("alice")},
		groups: []ldap.RawGroup{{Name: "Devs", Members: []string{"alice"}, HasMemberAttr: true}},
	}

	snapshot, err := NewBuilder(queries, config.OptionsConfig{}).Build(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, snapshot.Groups, 1)
	assert.Empty(t, snapshot.Groups[0].Members)
}

func TestBuilder_ReadFailures(t *testing.T) {
	boom := errors.New("boom")

	_, err := NewBuilder(posixQueries(), config.OptionsConfig{}).Build(context.Background(), &fakeSource{usersErr: boom})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "users")

	_, err = NewBuilder(posixQueries(), config.OptionsConfig{}).Build(context.Background(), &fakeSource{groupsErr: boom})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "groups")
}
