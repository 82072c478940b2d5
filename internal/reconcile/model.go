package reconcile

// DirectoryUser is a normalized directory account.
type DirectoryUser struct {
	Username   string
	ExternalID string // DN, stored on the platform as extern_uid
	MatchKey   string
	FullName   string
	Email      string
	IsAdmin    bool
	IsExternal bool
}

// DirectoryGroup is a directory group with its members resolved to usernames.
type DirectoryGroup struct {
	Name               string
	DisplayName        string
	Path               string
	Members            []string
	MembersAreAdmins   bool
	MembersAreExternal bool
}

// Snapshot is the read-only directory state a run converges toward.
type Snapshot struct {
	Users  []DirectoryUser
	Groups []DirectoryGroup
}

// UserState is the lifecycle state of a platform account.
type UserState string

const (
	UserActive      UserState = "active"
	UserBlocked     UserState = "blocked"
	UserLdapBlocked UserState = "ldap_blocked"
	UserBot         UserState = "bot"
)

// Disabled reports whether the account is blocked in either way.
func (s UserState) Disabled() bool {
	return s == UserBlocked || s == UserLdapBlocked
}

// PlatformUser is an account as listed by the platform.
type PlatformUser struct {
	ID       int
	Username string
	State    UserState
}

// PlatformGroup is a group as listed by the platform.
type PlatformGroup struct {
	ID   int
	Name string
	Path string
}

// PlatformMember is a direct member of a platform group.
type PlatformMember struct {
	UserID      int
	Username    string
	AccessLevel int
}

// CreateUserRequest carries everything needed to create an account.
type CreateUserRequest struct {
	Username       string
	Name           string
	Email          string
	Password       string
	ExternUID      string
	Provider       string
	Admin          bool
	CanCreateGroup bool
	External       bool
}

// UserUpdate is a partial account update. Nil fields are left untouched.
type UserUpdate struct {
	Name               *string
	Email              *string
	ExternUID          *string
	Provider           *string
	Admin              *bool
	CanCreateGroup     *bool
	External           *bool
	SkipReconfirmation *bool
}
