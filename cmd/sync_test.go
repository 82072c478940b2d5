package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/gitlab-ldap-sync/internal/config"
	"github.com/isometry/gitlab-ldap-sync/internal/reconcile"
)

// stubPlatform is a GitLab with only the root account that records writes.
type stubPlatform struct {
	nextID  int
	created []string
	writes  int
}

func (s *stubPlatform) ListUsers(_ context.Context, page, _ int) ([]reconcile.PlatformUser, error) {
	if page > 1 {
		return nil, nil
	}
	return []reconcile.PlatformUser{{ID: 1, Username: "root", State: reconcile.UserActive}}, nil
}

func (s *stubPlatform) CreateUser(_ context.Context, req reconcile.CreateUserRequest) (int, error) {
	s.writes++
	s.created = append(s.created, req.Username)
	s.nextID++
	return 100 + s.nextID, nil
}

func (s *stubPlatform) UpdateUser(context.Context, int, reconcile.UserUpdate) error {
	s.writes++
	return nil
}

func (s *stubPlatform) BlockUser(context.Context, int) error   { s.writes++; return nil }
func (s *stubPlatform) UnblockUser(context.Context, int) error { s.writes++; return nil }

func (s *stubPlatform) ListGroups(context.Context, int, int) ([]reconcile.PlatformGroup, error) {
	return nil, nil
}

func (s *stubPlatform) CreateGroup(_ context.Context, name, _ string) (int, error) {
	s.writes++
	s.created = append(s.created, "group:"+name)
	s.nextID++
	return 100 + s.nextID, nil
}

func (s *stubPlatform) UpdateGroupPath(context.Context, int, string) error { s.writes++; return nil }
func (s *stubPlatform) DeleteGroup(context.Context, int) error             { s.writes++; return nil }

func (s *stubPlatform) GroupProjectCount(context.Context, int) (int, error)  { return 0, nil }
func (s *stubPlatform) GroupSubgroupCount(context.Context, int) (int, error) { return 0, nil }

func (s *stubPlatform) ListGroupMembers(context.Context, int, int, int) ([]reconcile.PlatformMember, error) {
	return nil, nil
}

func (s *stubPlatform) AddGroupMember(context.Context, int, int, int) error { s.writes++; return nil }
func (s *stubPlatform) RemoveGroupMember(context.Context, int, int) error  { s.writes++; return nil }

func testSnapshot() *reconcile.Snapshot {
	return &reconcile.Snapshot{
		Users: []reconcile.DirectoryUser{{
			Username:   "alice",
			ExternalID: "uid=alice,ou=People,dc=example,dc=com",
			MatchKey:   "alice",
			FullName:   "Alice Example",
			Email:      "alice@example.com",
		}},
	}
}

// stubCollaborators replaces the directory reader and platform factory.
func stubCollaborators(t *testing.T, snapshotErr error, platformErr error) (map[string]*stubPlatform, *int) {
	t.Helper()

	originalRead, originalPlatform, originalPath := readSnapshot, newPlatform, configPath
	t.Cleanup(func() {
		readSnapshot, newPlatform, configPath = originalRead, originalPlatform, originalPath
	})

	configPath = writeConfig(t, testConfig)

	reads := 0
	readSnapshot = func(context.Context, *config.Config) (*reconcile.Snapshot, error) {
		reads++
		if snapshotErr != nil {
			return nil, snapshotErr
		}
		return testSnapshot(), nil
	}

	platforms := make(map[string]*stubPlatform)
	newPlatform = func(_ context.Context, _ config.GitLabConfig, instance config.InstanceConfig) (reconcile.Platform, error) {
		if platformErr != nil {
			return nil, platformErr
		}
		p := &stubPlatform{}
		platforms[instance.URL] = p
		return p, nil
	}

	return platforms, &reads
}

func TestRunSync_AllInstances(t *testing.T) {
	platforms, reads := stubCollaborators(t, nil, nil)

	require.NoError(t, runSync(context.Background(), "", &syncFlags{}))

	assert.Equal(t, 1, *reads, "directory is read once for all instances")
	require.Len(t, platforms, 2)
	for url, p := range platforms {
		assert.Contains(t, p.created, "alice", url)
	}
}

func TestRunSync_SingleInstance(t *testing.T) {
	platforms, _ := stubCollaborators(t, nil, nil)

	require.NoError(t, runSync(context.Background(), "secondary", &syncFlags{}))

	require.Len(t, platforms, 1)
	assert.Contains(t, platforms, "https://gitlab-dr.example.com")
}

func TestRunSync_DryRunMakesNoWrites(t *testing.T) {
	platforms, _ := stubCollaborators(t, nil, nil)

	require.NoError(t, runSync(context.Background(), "primary", &syncFlags{dryRun: true}))

	p := platforms["https://gitlab.example.com"]
	require.NotNil(t, p)
	assert.Zero(t, p.writes)
	assert.Empty(t, p.created)
}

func TestRunSync_UnknownInstance(t *testing.T) {
	_, reads := stubCollaborators(t, nil, nil)

	err := runSync(context.Background(), "tertiary", &syncFlags{})
	assert.Equal(t, ExitCodeConfiguration, getExitCode(err))
	assert.Zero(t, *reads, "directory is not contacted for a bad filter")
}

func TestRunSync_DirectoryUnavailable(t *testing.T) {
	_, _ = stubCollaborators(t, &reconcile.ConnectionError{Target: "ldap.example.com", Err: errors.New("refused")}, nil)

	err := runSync(context.Background(), "", &syncFlags{})
	assert.Equal(t, ExitCodeConnection, getExitCode(err))
}

func TestRunSync_PlatformRejected(t *testing.T) {
	_, _ = stubCollaborators(t, nil, &reconcile.ConnectionError{Target: "https://gitlab.example.com", Err: errors.New("401")})

	err := runSync(context.Background(), "", &syncFlags{})
	assert.Equal(t, ExitCodeConnection, getExitCode(err))
	assert.Contains(t, err.Error(), `instance "primary"`, "first instance in name order fails first")
}

func TestSelectInstances(t *testing.T) {
	cfg := &config.Config{GitLab: config.GitLabConfig{Instances: map[string]config.InstanceConfig{
		"b": {}, "a": {}, "c": {},
	}}}

	all, err := selectInstances(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, all)

	one, err := selectInstances(cfg, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, one)

	_, err = selectInstances(cfg, "z")
	var cfgErr *reconcile.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestSyncOptions(t *testing.T) {
	cfg := &config.Config{GitLab: config.GitLabConfig{Options: config.OptionsConfig{
		UserNamesToIgnore:    []string{"svc"},
		CreateEmptyGroups:    true,
		DeleteExtraGroups:    true,
		NewMemberAccessLevel: 20,
		APICooldown:          250 * time.Millisecond,
		PageSize:             50,
	}}}

	opts := syncOptions(cfg, config.InstanceConfig{LDAPServerName: "corp"}, &syncFlags{dryRun: true, continueOnFail: true})

	assert.Equal(t, reconcile.Options{
		DryRun:               true,
		ContinueOnFail:       true,
		Provider:             "corp",
		UserNamesToIgnore:    []string{"svc"},
		CreateEmptyGroups:    true,
		DeleteExtraGroups:    true,
		NewMemberAccessLevel: 20,
		PageSize:             50,
		Cooldown:             250 * time.Millisecond,
	}, opts)
}
