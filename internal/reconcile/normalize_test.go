package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugifiers(t *testing.T) {
	tests := []struct {
		name   string
		slug   *Slugifier
		input  string
		expect string
	}{
		{"username kept", UsernameSlug, "john.doe_1", "john.doe_1"},
		{"username accents folded", UsernameSlug, "josé", "jose"},
		{"username space", UsernameSlug, "José Smith", "Jose,Smith"},
		{"username hyphen", UsernameSlug, "a-b", "a,b"},
		{"username trimmed", UsernameSlug, " bob ", "bob"},
		{"display name kept", DisplayNameSlug, "Dev Team", "Dev Team"},
		{"display name ampersand", DisplayNameSlug, "R&D", "R D"},
		{"display name hyphen", DisplayNameSlug, "Ops-Team", "Ops Team"},
		{"display name trimmed", DisplayNameSlug, "  Ops  ", "Ops"},
		{"path lowercased", PathSlug, "Ops", "ops"},
		{"path space", PathSlug, "Dev Team", "dev-team"},
		{"path accents", PathSlug, "Équipe Données", "equipe-donnees"},
		{"path dot", PathSlug, "a.b", "a-b"},
		{"path runs collapse", PathSlug, "a  &  b", "a-b"},
		{"empty", PathSlug, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.slug.Slugify(tt.input))
		})
	}
}

func TestSlugifyIsIdempotent(t *testing.T) {
	for _, input := range []string{"Équipe Données", "R&D", "josé smith"} {
		for _, slug := range []*Slugifier{UsernameSlug, DisplayNameSlug, PathSlug} {
			once := slug.Slugify(input)
			assert.Equal(t, once, slug.Slugify(once), input)
		}
	}
}
