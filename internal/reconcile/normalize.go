package reconcile

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugifier turns raw names into identifiers that satisfy one naming policy.
// Accents are folded first, then every run of disallowed characters becomes
// a single separator and separators are trimmed from both ends.
type Slugifier struct {
	disallowed *regexp.Regexp
	separator  string
	lowercase  bool
}

// NewSlugifier compiles a policy. disallowed must match runs of characters
// that are replaced by separator.
func NewSlugifier(disallowed, separator string, lowercase bool) *Slugifier {
	return &Slugifier{
		disallowed: regexp.MustCompile(disallowed),
		separator:  separator,
		lowercase:  lowercase,
	}
}

var (
	// UsernameSlug applies to directory usernames before they become keys.
	UsernameSlug = NewSlugifier(`[^A-Za-z0-9_.]+`, ",", false)

	// DisplayNameSlug produces platform group names.
	DisplayNameSlug = NewSlugifier(`([^A-Za-z0-9]|-_\. )+`, " ", false)

	// PathSlug produces platform group paths.
	PathSlug = NewSlugifier(`([^A-Za-z0-9]|-_\.)+`, "-", true)
)

// Slugify is pure: the same input always yields the same output.
func (s *Slugifier) Slugify(raw string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), raw)
	if err != nil {
		folded = raw
	}

	out := s.disallowed.ReplaceAllLiteralString(folded, s.separator)
	out = strings.Trim(out, s.separator)
	if s.lowercase {
		out = strings.ToLower(out)
	}
	return out
}
