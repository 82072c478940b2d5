package reconcile

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/isometry/gitlab-ldap-sync/internal/logging"
)

// maxListPages bounds a listing in case the platform never returns an empty page.
const maxListPages = 100000

// Match pairs a directory record with the platform record it corresponds to.
type Match[D, P any] struct {
	Directory D
	Platform  P
}

// Classification is the outcome of comparing one kind of entity.
// Found is the disjoint union of ToRetire and ToUpdate.
type Classification[D, P any] struct {
	Found    []P
	ToCreate []D
	ToRetire []P
	ToUpdate []Match[D, P]
}

// Listing is the accepted platform records plus the names that were seen
// but set aside (protected, ignored or otherwise excluded).
type Listing[P any] struct {
	Found    []P
	Excluded NameSet
}

// PageFunc fetches one page of platform records, starting at page 1.
type PageFunc[P any] func(ctx context.Context, page int) ([]P, error)

// Classifier partitions platform records against directory records of one kind.
type Classifier[D, P any] struct {
	Kind          string
	PlatformID    func(P) int
	PlatformName  func(P) string
	DirectoryName func(D) string
	Protected     func(name string) bool
	Ignored       NameSet

	// Exclude sets aside platform records that are never reconciled.
	Exclude func(P) (reason string, excluded bool)
}

// Collect pages through the platform listing and keeps the records that
// reconciliation may act on. Malformed and duplicate records are logged
// and dropped, keeping the first occurrence.
func (c *Classifier[D, P]) Collect(ctx context.Context, list PageFunc[P]) (Listing[P], error) {
	excluded := NewNameSet()
	seenIDs := make(map[int]struct{})
	seenNames := NewNameSet()
	var found []P

	for page := 1; ; page++ {
		if page > maxListPages {
			return Listing[P]{}, fmt.Errorf("%s listing exceeded %d pages", c.Kind, maxListPages)
		}

		records, err := list(ctx, page)
		if err != nil {
			return Listing[P]{}, fmt.Errorf("failed to list %ss (page %d): %w", c.Kind, page, err)
		}
		if len(records) == 0 {
			break
		}

		for i, r := range records {
			id := c.PlatformID(r)
			name := strings.TrimSpace(c.PlatformName(r))
			ref := fmt.Sprintf("page %d #%d", page, i+1)

			if name == "" {
				logRecordError(ctx, &RecordValidationError{Kind: c.Kind, Record: ref, Reason: "missing name"}, nil)
				continue
			}

			if c.Protected != nil && c.Protected(name) {
				excluded.Add(name)
				logging.SubsystemInfo(ctx, logging.SubsystemReconcile, "Built-in entity will be ignored", map[string]any{
					"kind": c.Kind,
					"name": name,
				})
				continue
			}

			if c.Ignored.Has(name) {
				excluded.Add(name)
				logging.SubsystemInfo(ctx, logging.SubsystemReconcile, "Entity in ignore list", map[string]any{
					"kind": c.Kind,
					"name": name,
				})
				continue
			}

			if c.Exclude != nil {
				if reason, ok := c.Exclude(r); ok {
					excluded.Add(name)
					logging.SubsystemInfo(ctx, logging.SubsystemReconcile, "Entity excluded", map[string]any{
						"kind":   c.Kind,
						"name":   name,
						"reason": reason,
					})
					continue
				}
			}

			if id < 1 {
				logRecordError(ctx, &RecordValidationError{Kind: c.Kind, Record: name, Reason: "missing id"}, nil)
				continue
			}

			if _, dup := seenIDs[id]; dup || seenNames.Has(name) {
				logRecordError(ctx, &DuplicateEntityError{Kind: c.Kind, Key: name}, map[string]any{"id": id})
				continue
			}

			seenIDs[id] = struct{}{}
			seenNames.Add(name)
			found = append(found, r)
		}
	}

	sortByName(found, c.PlatformName)

	return Listing[P]{Found: found, Excluded: excluded}, nil
}

// Classify compares the collected listing with the desired directory records.
func (c *Classifier[D, P]) Classify(ctx context.Context, listing Listing[P], desired []D) Classification[D, P] {
	desiredIdx := make(map[string]D, len(desired))
	for _, d := range desired {
		name := c.DirectoryName(d)
		if c.Protected != nil && c.Protected(name) {
			continue
		}
		if c.Ignored.Has(name) {
			continue
		}
		key := foldKey(name)
		if key == "" {
			continue
		}
		if _, dup := desiredIdx[key]; dup {
			logRecordError(ctx, &DuplicateEntityError{Kind: c.Kind, Key: name}, nil)
			continue
		}
		desiredIdx[key] = d
	}

	result := Classification[D, P]{Found: listing.Found}
	foundNames := NewNameSet()

	for _, p := range listing.Found {
		name := c.PlatformName(p)
		foundNames.Add(name)

		if d, ok := desiredIdx[foldKey(name)]; ok {
			result.ToUpdate = append(result.ToUpdate, Match[D, P]{Directory: d, Platform: p})
		} else {
			result.ToRetire = append(result.ToRetire, p)
		}
	}

	queued := NewNameSet()
	for _, d := range desired {
		name := c.DirectoryName(d)
		if _, ok := desiredIdx[foldKey(name)]; !ok || queued.Has(name) {
			continue
		}
		queued.Add(name)
		if foundNames.Has(name) {
			continue
		}
		if listing.Excluded.Has(name) {
			logging.SubsystemWarn(ctx, logging.SubsystemReconcile, "Name is held by an excluded platform entity", map[string]any{
				"kind": c.Kind,
				"name": name,
			})
			continue
		}
		result.ToCreate = append(result.ToCreate, d)
	}

	sortByName(result.ToCreate, c.DirectoryName)
	sortByName(result.ToRetire, c.PlatformName)
	slices.SortStableFunc(result.ToUpdate, func(a, b Match[D, P]) int {
		return compareNames(c.PlatformName(a.Platform), c.PlatformName(b.Platform))
	})

	return result
}

func sortByName[T any](items []T, name func(T) string) {
	slices.SortStableFunc(items, func(a, b T) int {
		return compareNames(name(a), name(b))
	})
}

func compareNames(a, b string) int {
	return cmp.Or(strings.Compare(foldKey(a), foldKey(b)), strings.Compare(a, b))
}
