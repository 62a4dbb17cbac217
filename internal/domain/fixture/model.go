package fixture

import (
	"strconv"
	"strings"
	"time"
)

const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
)

const (
	// WinnerDraw marks a completed fixture that ended level.
	WinnerDraw = "draw"
	// WinnerUnknown marks a fixture reported as completed without parseable
	// scores. It is distinct from an empty winner, which means not yet
	// decided.
	WinnerUnknown = "unknown"
)

// Fixture is one canonical real-world match reconciled from all sources.
// The identity is the odds-market event id; draw-only fixtures carry a
// derived key (see DrawKey).
type Fixture struct {
	ID          string
	SeasonYear  int
	RoundNumber *int
	KickoffAt   time.Time
	HomeTeam    string
	AwayTeam    string
	StadiumName string
	StadiumCity string
	HomeLogoURL string
	AwayLogoURL string
	Status      string
	HomeScore   *int
	AwayScore   *int
	Winner      string
	HomePrice   *float64
	AwayPrice   *float64
	Source      string
	RawJSON     string
	UpdatedAt   time.Time
}

func NormalizeStatus(value string) string {
	status := strings.ToLower(strings.TrimSpace(value))
	if status == "" {
		return StatusScheduled
	}
	return status
}

func IsCompletedStatus(status string) bool {
	return NormalizeStatus(status) == StatusCompleted
}

// HasKnownWinner reports whether the fixture finished with a scoreable
// outcome. WinnerUnknown does not count.
func (f Fixture) HasKnownWinner() bool {
	return f.Winner != "" && f.Winner != WinnerUnknown
}

// NeedsFinalScore reports whether a kicked-off fixture is still waiting for
// a usable result.
func (f Fixture) NeedsFinalScore() bool {
	if !IsCompletedStatus(f.Status) {
		return true
	}
	return f.HomeScore == nil || f.AwayScore == nil || !f.HasKnownWinner()
}

// NormalizeTeamName lowercases a team name and strips every non-alphanumeric
// rune, producing the token used for cross-source matching and derived keys.
func NormalizeTeamName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TeamNamesMatch matches team names across sources by token containment:
// "Brisbane Broncos" and "Broncos" refer to the same club.
func TeamNamesMatch(left, right string) bool {
	l := NormalizeTeamName(left)
	r := NormalizeTeamName(right)
	if l == "" || r == "" {
		return false
	}
	return strings.Contains(l, r) || strings.Contains(r, l)
}

// DrawKey derives the identity for a fixture known only from the official
// draw, stable across syncs for the same match.
func DrawKey(seasonYear, round int, homeTeam, awayTeam string, kickoff time.Time) string {
	parts := []string{
		"draw",
		strconv.Itoa(seasonYear),
		"r" + strconv.Itoa(round),
		NormalizeTeamName(homeTeam),
		"vs",
		NormalizeTeamName(awayTeam),
		KickoffToken(kickoff),
	}
	return strings.Join(parts, ":")
}

// KickoffToken renders a kickoff instant keeping only the runes that are
// stable across ISO renderings ([0-9TZ:+-]).
func KickoffToken(kickoff time.Time) string {
	raw := kickoff.UTC().Format(time.RFC3339)
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'T' || r == 'Z' || r == ':' || r == '+' || r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}
