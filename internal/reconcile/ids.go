package reconcile

import (
	"strconv"
)

// simulatedPrefix marks identifiers handed out in dry-run mode.
const simulatedPrefix = "dry:"

// PlatformID identifies a platform entity. It is either a real numeric id
// returned by the platform or a simulated tag produced during a dry run.
// Simulated ids can never be turned back into a number.
type PlatformID struct {
	real      int
	simulated string
}

// RealID wraps an id returned by the platform.
func RealID(id int) PlatformID {
	return PlatformID{real: id}
}

// SimulatedID builds a dry-run placeholder from an entity's natural key.
func SimulatedID(key string) PlatformID {
	return PlatformID{simulated: simulatedPrefix + key}
}

// IsSimulated reports whether the id was produced during a dry run.
func (id PlatformID) IsSimulated() bool {
	return id.simulated != ""
}

// Real returns the numeric id. ok is false for simulated or zero ids.
func (id PlatformID) Real() (int, bool) {
	if id.IsSimulated() || id.real < 1 {
		return 0, false
	}
	return id.real, true
}

func (id PlatformID) String() string {
	if id.IsSimulated() {
		return id.simulated
	}
	return "#" + strconv.Itoa(id.real)
}
