package reconcile

import (
	"strings"
)

// NameSet is a case-insensitive set of names.
type NameSet map[string]struct{}

// NewNameSet builds a set from names, ignoring blanks.
func NewNameSet(names ...string) NameSet {
	s := make(NameSet, len(names))
	for _, n := range names {
		s.Add(n)
	}
	return s
}

func foldKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (s NameSet) Add(name string) {
	if k := foldKey(name); k != "" {
		s[k] = struct{}{}
	}
}

func (s NameSet) Has(name string) bool {
	_, ok := s[foldKey(name)]
	return ok
}

func (s NameSet) Len() int {
	return len(s)
}
