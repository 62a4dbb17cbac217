package timeutil

import (
	"testing"
	"time"
)

func TestIsLocked_Boundaries(t *testing.T) {
	t.Parallel()

	kickoff := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	window := 5 * time.Minute

	if IsLocked(kickoff, kickoff.Add(-6*time.Minute), window) {
		t.Fatalf("expected unlocked 6 minutes before kickoff")
	}
	if !IsLocked(kickoff, kickoff.Add(-5*time.Minute), window) {
		t.Fatalf("expected locked exactly at the deadline")
	}
	if !IsLocked(kickoff, kickoff.Add(-4*time.Minute), window) {
		t.Fatalf("expected locked 4 minutes before kickoff")
	}
}

func TestLockDeadline(t *testing.T) {
	t.Parallel()

	kickoff := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	got := LockDeadline(kickoff, 5*time.Minute)
	want := time.Date(2026, 3, 14, 8, 55, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("LockDeadline = %v, want %v", got, want)
	}
}

func TestResolveLocation_FallsBackToFixedOffset(t *testing.T) {
	t.Parallel()

	loc := ResolveLocation("Not/AZone")
	if loc == nil {
		t.Fatalf("expected a location, got nil")
	}
	ts := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC).In(loc)
	_, offset := ts.Zone()
	// Sydney is +10 in June; the fixed fallback is +10 as well.
	if offset != 10*60*60 {
		t.Fatalf("unexpected offset %d", offset)
	}
}

func TestParseKickoff(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		ok   bool
		want time.Time
	}{
		{"2026-03-05T09:50:00Z", true, time.Date(2026, 3, 5, 9, 50, 0, 0, time.UTC)},
		{"2026-03-05T20:50:00+11:00", true, time.Date(2026, 3, 5, 9, 50, 0, 0, time.UTC)},
		{"2026-03-05T09:50:00", true, time.Date(2026, 3, 5, 9, 50, 0, 0, time.UTC)},
		{"", false, time.Time{}},
		{"not-a-time", false, time.Time{}},
	}
	for _, tc := range cases {
		got, ok := ParseKickoff(tc.raw)
		if ok != tc.ok {
			t.Fatalf("ParseKickoff(%q) ok=%t, want %t", tc.raw, ok, tc.ok)
		}
		if ok && !got.Equal(tc.want) {
			t.Fatalf("ParseKickoff(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}
