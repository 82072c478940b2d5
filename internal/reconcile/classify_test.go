package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	id   int
	name string
}

func itemClassifier() *Classifier[string, item] {
	return &Classifier[string, item]{
		Kind:          "item",
		PlatformID:    func(i item) int { return i.id },
		PlatformName:  func(i item) string { return i.name },
		DirectoryName: func(s string) string { return s },
		Protected:     DefaultProtected().User,
		Ignored:       NewNameSet("ignored"),
		Exclude: func(i item) (string, bool) {
			return "bot", i.name == "helper-bot"
		},
	}
}

func pages(p ...[]item) PageFunc[item] {
	return func(_ context.Context, page int) ([]item, error) {
		if page > len(p) {
			return nil, nil
		}
		return p[page-1], nil
	}
}

func TestCollect(t *testing.T) {
	listing, err := itemClassifier().Collect(context.Background(), pages(
		[]item{{1, "root"}, {2, "Zed"}, {3, "alice"}},
		[]item{{4, ""}, {5, "ignored"}, {0, "noid"}, {6, "helper-bot"}},
		[]item{{3, "dup-id"}, {7, "ALICE"}, {8, "bob"}},
	))
	require.NoError(t, err)

	var names []string
	for _, i := range listing.Found {
		names = append(names, i.name)
	}
	assert.Equal(t, []string{"alice", "bob", "Zed"}, names)

	assert.True(t, listing.Excluded.Has("root"))
	assert.True(t, listing.Excluded.Has("ignored"))
	assert.True(t, listing.Excluded.Has("helper-bot"))
	assert.False(t, listing.Excluded.Has("noid"))
}

func TestCollectPropagatesListError(t *testing.T) {
	boom := errors.New("boom")
	_, err := itemClassifier().Collect(context.Background(), func(context.Context, int) ([]item, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestClassify(t *testing.T) {
	c := itemClassifier()
	listing, err := c.Collect(context.Background(), pages(
		[]item{{1, "root"}, {2, "alice"}, {3, "carol"}, {4, "helper-bot"}},
	))
	require.NoError(t, err)

	cls := c.Classify(context.Background(), listing, []string{"Bob", "ALICE", "root", "ignored", "helper-bot", "bob", "dave"})

	assert.Equal(t, []string{"Bob", "dave"}, cls.ToCreate)
	require.Len(t, cls.ToUpdate, 1)
	assert.Equal(t, "ALICE", cls.ToUpdate[0].Directory)
	assert.Equal(t, 2, cls.ToUpdate[0].Platform.id)
	require.Len(t, cls.ToRetire, 1)
	assert.Equal(t, "carol", cls.ToRetire[0].name)

	assert.Len(t, cls.Found, len(cls.ToUpdate)+len(cls.ToRetire))
}

func TestClassifyIsDisjoint(t *testing.T) {
	c := itemClassifier()
	listing, err := c.Collect(context.Background(), pages(
		[]item{{1, "a"}, {2, "b"}, {3, "c"}},
	))
	require.NoError(t, err)

	cls := c.Classify(context.Background(), listing, []string{"b", "c", "d"})

	retired := NewNameSet()
	for _, r := range cls.ToRetire {
		retired.Add(r.name)
	}
	for _, m := range cls.ToUpdate {
		assert.False(t, retired.Has(m.Platform.name))
	}
	for _, d := range cls.ToCreate {
		assert.False(t, retired.Has(d))
		for _, m := range cls.ToUpdate {
			assert.NotEqual(t, foldKey(d), foldKey(m.Platform.name))
		}
	}
}
