package status

import (
	"sort"
	"time"
)

// Reading is the latest known state of one source.
type Reading struct {
	SourceID string
	Role     Role
	Value    Value

	// FetchedAt is the time of the successful fetch backing Value.
	// Zero when the source has never been fetched successfully.
	FetchedAt time.Time

	// Stale is set when the most recent fetch attempt did not succeed.
	Stale bool

	// Freshness is the maximum age of FetchedAt before Value is disregarded.
	Freshness time.Duration

	Detail string
	Err    string
}

// Age returns how old the backing fetch is at now.
func (r Reading) Age(now time.Time) time.Duration {
	if r.FetchedAt.IsZero() {
		return 0
	}
	return now.Sub(r.FetchedAt)
}

// Expired reports whether the reading has no usable value at now.
func (r Reading) Expired(now time.Time) bool {
	if r.FetchedAt.IsZero() {
		return true
	}
	if r.Freshness > 0 && now.Sub(r.FetchedAt) > r.Freshness {
		return true
	}
	return false
}

// Effective returns the value to use for decisions at now.
// Expired readings are Unknown regardless of their last value.
func (r Reading) Effective(now time.Time) Value {
	if r.Expired(now) {
		return ValueUnknown
	}
	return r.Value
}

// Snapshot holds one reading per configured source, keyed by source id.
type Snapshot map[string]Reading

// Clone returns an independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for id, r := range s {
		out[id] = r
	}
	return out
}

// IDs returns the source ids in sorted order.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ByRole returns the readings for role in source id order.
func (s Snapshot) ByRole(role Role) []Reading {
	var out []Reading
	for _, id := range s.IDs() {
		if r := s[id]; r.Role == role {
			out = append(out, r)
		}
	}
	return out
}
