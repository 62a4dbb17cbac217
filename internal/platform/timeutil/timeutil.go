package timeutil

import (
	"strings"
	"time"
)

// DefaultZoneName is tried first when resolving the display timezone.
const DefaultZoneName = "Australia/Sydney"

// fixedOffsetSeconds is the fallback offset (UTC+10) used when no tzdata
// is available on the host.
const fixedOffsetSeconds = 10 * 60 * 60

// ResolveLocation loads the named timezone, falling back to a fixed +10:00
// offset when the zone database is missing or the name is unknown. It never
// returns an error; callers resolve the location once at startup.
func ResolveLocation(name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultZoneName
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	if loc, err := time.LoadLocation(DefaultZoneName); err == nil {
		return loc
	}
	return time.FixedZone("AEST", fixedOffsetSeconds)
}

// LockDeadline returns the instant after which a fixture can no longer be
// tipped.
func LockDeadline(kickoff time.Time, lockWindow time.Duration) time.Time {
	return kickoff.Add(-lockWindow)
}

// IsLocked reports whether tipping is closed for a fixture. The boundary is
// inclusive: exactly at the deadline counts as locked.
func IsLocked(kickoff, now time.Time, lockWindow time.Duration) bool {
	return !now.Before(LockDeadline(kickoff, lockWindow))
}

// ParseKickoff parses an upstream timestamp. A trailing "Z" and RFC3339
// offsets are both accepted; naive values are treated as UTC. The zero time
// and an error-free false flag signal an unparseable input.
func ParseKickoff(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
