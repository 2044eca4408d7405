package status

import (
	"testing"
	"time"
)

func TestReadingEffective(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name    string
		reading Reading
		want    Value
	}{
		{
			name:    "never fetched",
			reading: Reading{Value: ValueNominal, Freshness: time.Minute},
			want:    ValueUnknown,
		},
		{
			name:    "fresh",
			reading: Reading{Value: ValueNominal, FetchedAt: now.Add(-30 * time.Second), Freshness: time.Minute},
			want:    ValueNominal,
		},
		{
			name:    "stale within freshness keeps value",
			reading: Reading{Value: ValueWarning, FetchedAt: now.Add(-50 * time.Second), Freshness: time.Minute, Stale: true},
			want:    ValueWarning,
		},
		{
			name:    "older than freshness demoted",
			reading: Reading{Value: ValueNominal, FetchedAt: now.Add(-2 * time.Minute), Freshness: time.Minute},
			want:    ValueUnknown,
		},
		{
			name:    "zero freshness never expires",
			reading: Reading{Value: ValueActive, FetchedAt: now.Add(-24 * time.Hour)},
			want:    ValueActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.reading.Effective(now); got != tt.want {
				t.Errorf("Effective() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseValue(t *testing.T) {
	tests := map[string]Value{
		"nominal":  ValueNominal,
		" OK ":     ValueNominal,
		"Warning":  ValueWarning,
		"ERROR":    ValueCritical,
		"idle":     ValueInactive,
		"running":  ValueActive,
		"unknown":  ValueUnknown,
		"degraded": ValueWarning,
	}
	for in, want := range tests {
		got, err := ParseValue(in)
		if err != nil {
			t.Errorf("ParseValue(%q) error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseValue(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseValue("banana"); err == nil {
		t.Error("ParseValue(banana) should fail")
	}
}

func TestSnapshotCloneIsIndependent(t *testing.T) {
	snap := Snapshot{
		"b": {SourceID: "b", Role: RoleRecorder},
		"a": {SourceID: "a", Role: RoleStation},
	}
	dup := snap.Clone()
	dup["a"] = Reading{SourceID: "a", Role: RoleCamera}

	if snap["a"].Role != RoleStation {
		t.Error("Clone() shares storage with the original")
	}

	ids := snap.IDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("IDs() = %v, want [a b]", ids)
	}

	if got := snap.ByRole(RoleRecorder); len(got) != 1 || got[0].SourceID != "b" {
		t.Errorf("ByRole(recorder) = %v", got)
	}
}
