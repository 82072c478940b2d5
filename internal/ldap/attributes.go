package ldap

import (
	"strings"

	"github.com/bwmarrin/go-objectsid"
	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
)

const guidBytesLength = 16

// attributeValue returns the first value of attr on entry as a string.
// Attribute names compare case-insensitively. Binary Active Directory identifiers are rendered in their text forms.
func attributeValue(entry *ldap.Entry, attr string) string {
	switch strings.ToLower(attr) {
	case "objectsid":
		if raw := entry.GetEqualFoldRawAttributeValue(attr); len(raw) > 0 {
			sid := objectsid.Decode(raw)
			return sid.String()
		}
		return ""
	case "objectguid":
		if guid, ok := decodeGUID(entry.GetEqualFoldRawAttributeValue(attr)); ok {
			return guid
		}
		return strings.TrimSpace(entry.GetEqualFoldAttributeValue(attr))
	default:
		return strings.TrimSpace(entry.GetEqualFoldAttributeValue(attr))
	}
}

// hasAttribute reports whether entry carries attr at all, even with no values.
func hasAttribute(entry *ldap.Entry, attr string) bool {
	for _, a := range entry.Attributes {
		if strings.EqualFold(a.Name, attr) {
			return true
		}
	}
	return false
}

// decodeGUID converts Active Directory's mixed-endian objectGUID bytes to the
// canonical hyphenated form.
func decodeGUID(raw []byte) (string, bool) {
	if len(raw) != guidBytesLength {
		return "", false
	}

	b := make([]byte, guidBytesLength)
	// Data1, Data2 and Data3 are little-endian; Data4 is kept as is.
	b[0], b[1], b[2], b[3] = raw[3], raw[2], raw[1], raw[0]
	b[4], b[5] = raw[5], raw[4]
	b[6], b[7] = raw[7], raw[6]
	copy(b[8:], raw[8:])

	id, err := uuid.FromBytes(b)
	if err != nil {
		return "", false
	}
	return id.String(), true
}
