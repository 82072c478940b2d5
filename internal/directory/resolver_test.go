package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/isometry/gitlab-ldap-sync/internal/reconcile"
)

func TestSchemeFor(t *testing.T) {
	tests := map[string]Scheme{
		"memberUid":    SchemeLogin,
		"member":       SchemeDN,
		"uniqueMember": SchemeDN,
		"MEMBER":       SchemeDN,
		"owner":        SchemeUnsupported,
		"":             SchemeUnsupported,
	}
	for attr, want := range tests {
		if got := SchemeFor(attr); got != want {
			t.Errorf("SchemeFor(%q) = %v, want %v", attr, got, want)
		}
	}
}

func TestMemberResolver(t *testing.T) {
	users := []reconcile.DirectoryUser{
		{Username: "alice", ExternalID: "uid=alice,ou=People,dc=example,dc=com", MatchKey: "1001"},
		{Username: "bob", ExternalID: "uid=bob,ou=People,dc=example,dc=com", MatchKey: "1002"},
		{Username: "bob2", ExternalID: "uid=bob2,ou=People,dc=example,dc=com", MatchKey: "1002"},
	}

	t.Run("login by match key", func(t *testing.T) {
		r := NewMemberResolver(SchemeLogin, false, users)

		got, ok := r.Resolve(" 1001 ")
		assert.True(t, ok)
		assert.Equal(t, "alice", got)

		got, ok = r.Resolve("1002")
		assert.True(t, ok)
		assert.Equal(t, "bob", got, "first claimant wins")

		_, ok = r.Resolve("alice")
		assert.False(t, ok)
	})

	t.Run("login by username is exact", func(t *testing.T) {
		r := NewMemberResolver(SchemeLogin, true, users)

		got, ok := r.Resolve("alice")
		assert.True(t, ok)
		assert.Equal(t, "alice", got)

		_, ok = r.Resolve("Alice")
		assert.False(t, ok)
	})

	t.Run("dn ignores case and spacing", func(t *testing.T) {
		r := NewMemberResolver(SchemeDN, false, users)

		got, ok := r.Resolve("UID=Alice, OU=People, DC=example, DC=com")
		assert.True(t, ok)
		assert.Equal(t, "alice", got)

		_, ok = r.Resolve("uid=carol,ou=People,dc=example,dc=com")
		assert.False(t, ok)
	})

	t.Run("unsupported resolves nothing", func(t *testing.T) {
		r := NewMemberResolver(SchemeUnsupported, false, users)
		_, ok := r.Resolve("alice")
		assert.False(t, ok)
	})

	t.Run("empty reference", func(t *testing.T) {
		r := NewMemberResolver(SchemeLogin, true, users)
		_, ok := r.Resolve("  ")
		assert.False(t, ok)
	})
}
