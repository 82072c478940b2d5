package ldap

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// NormalizeDN rewrites a Distinguished Name with uppercase attribute types
// and no insignificant whitespace.
//
// Input:  "cn=john, ou=users,dc=example,dc=com"
// Output: "CN=john,OU=users,DC=example,DC=com"
func NormalizeDN(dn string) (string, error) {
	dn = strings.TrimSpace(dn)
	if dn == "" {
		return "", nil
	}

	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("invalid DN syntax: %w", err)
	}

	rdns := make([]string, 0, len(parsed.RDNs))
	for _, rdn := range parsed.RDNs {
		attrs := make([]string, 0, len(rdn.Attributes))
		for _, attr := range rdn.Attributes {
			attrs = append(attrs, strings.ToUpper(attr.Type)+"="+escapeDNValue(attr.Value))
		}
		rdns = append(rdns, strings.Join(attrs, "+"))
	}

	return strings.Join(rdns, ","), nil
}

// DNKey returns a lookup key for dn that matches equivalent spellings.
// Unparseable values fall back to their trimmed lowercase form.
func DNKey(dn string) string {
	normalized, err := NormalizeDN(dn)
	if err != nil {
		normalized = strings.TrimSpace(dn)
	}
	return strings.ToLower(normalized)
}

// EqualDN reports whether two DNs name the same entry, ignoring case.
func EqualDN(a, b string) bool {
	pa, errA := ldap.ParseDN(a)
	pb, errB := ldap.ParseDN(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return pa.EqualFold(pb)
}

// escapeDNValue escapes an attribute value per RFC 4514 section 2.4.
func escapeDNValue(value string) string {
	var b strings.Builder
	for i, r := range value {
		switch {
		case strings.ContainsRune(`,+"\<>;=`, r):
			b.WriteByte('\\')
		case r == '#' && i == 0:
			b.WriteByte('\\')
		case r == ' ' && (i == 0 || i == len(value)-1):
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
