package reconcile

// Built-in GitLab accounts. root is the instance superuser, the rest are
// internal service or bot accounts created by GitLab itself.
var builtInUserNames = []string{
	"root",
	"ghost",
	"support-bot",
	"alert-bot",
	"visual-review-bot",
	"migration-bot",
	"security-bot",
	"automation-bot",
	"admin-bot",
	"security-policy-bot",
}

// Built-in GitLab groups.
var builtInGroupNames = []string{
	"Root",
	"Users",
}

// ProtectedSet holds the accounts and groups reconciliation must never touch.
type ProtectedSet struct {
	users  NameSet
	groups NameSet
}

// DefaultProtected returns the GitLab built-in users and groups.
func DefaultProtected() *ProtectedSet {
	return &ProtectedSet{
		users:  NewNameSet(builtInUserNames...),
		groups: NewNameSet(builtInGroupNames...),
	}
}

func (p *ProtectedSet) User(name string) bool {
	return p.users.Has(name)
}

func (p *ProtectedSet) Group(name string) bool {
	return p.groups.Has(name)
}
