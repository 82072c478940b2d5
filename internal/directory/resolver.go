package directory

import (
	"strings"

	"github.com/isometry/gitlab-ldap-sync/internal/ldap"
	"github.com/isometry/gitlab-ldap-sync/internal/reconcile"
)

// Scheme is how group member references name their users.
type Scheme int

const (
	// SchemeUnsupported resolves nothing.
	SchemeUnsupported Scheme = iota
	// SchemeLogin compares references to the user's match key.
	SchemeLogin
	// SchemeDN compares references to the user's distinguished name.
	SchemeDN
)

func (s Scheme) String() string {
	switch s {
	case SchemeLogin:
		return "login"
	case SchemeDN:
		return "dn"
	default:
		return "unsupported"
	}
}

// SchemeFor derives the scheme from the group member attribute.
func SchemeFor(memberAttribute string) Scheme {
	switch strings.ToLower(memberAttribute) {
	case "memberuid":
		return SchemeLogin
	case "member", "uniquemember":
		return SchemeDN
	default:
		return SchemeUnsupported
	}
}

// MemberResolver maps raw member references to usernames.
type MemberResolver struct {
	scheme Scheme
	index  map[string]string
}

// NewMemberResolver indexes users for the given scheme. With byUsername set,
// login references are compared to the username rather than the match key;
// this is the case when the match attribute is the unique attribute.
func NewMemberResolver(scheme Scheme, byUsername bool, users []reconcile.DirectoryUser) *MemberResolver {
	r := &MemberResolver{
		scheme: scheme,
		index:  make(map[string]string, len(users)),
	}
	for _, u := range users {
		var key string
		switch scheme {
		case SchemeLogin:
			key = u.MatchKey
			if byUsername {
				key = u.Username
			}
		case SchemeDN:
			key = ldap.DNKey(u.ExternalID)
		}
		if key == "" {
			continue
		}
		if _, taken := r.index[key]; !taken {
			r.index[key] = u.Username
		}
	}
	return r
}

// Resolve returns the username a reference points at.
func (r *MemberResolver) Resolve(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}

	key := ref
	if r.scheme == SchemeDN {
		key = ldap.DNKey(ref)
	}

	username, ok := r.index[key]
	return username, ok
}
