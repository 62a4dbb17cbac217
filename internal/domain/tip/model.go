package tip

import (
	"time"

	"github.com/footylab/nrl-tipping/internal/domain/fixture"
)

// Tip is one user's pick for one fixture, unique per (user, fixture).
type Tip struct {
	ID            int64
	UserID        int64
	FixtureID     string
	TipTeam       string
	PointsAwarded *int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Point values for a settled tip. A tip always names one of the two sides,
// so a drawn fixture scores nobody.
const (
	PointsCorrect = 1
	PointsMissed  = 0
)

// Points is the value of a tip once its fixture has a winner: one point iff
// the picked team is the winner, zero otherwise.
func Points(tipTeam, winner string) int {
	if winner != "" && winner == tipTeam {
		return PointsCorrect
	}
	return PointsMissed
}

// UnderdogTeam picks the side the market rates worse: the higher decimal
// price. With one price known that side is picked, with neither the home
// team is the default. A tie goes to the home team.
func UnderdogTeam(fx fixture.Fixture) string {
	switch {
	case fx.HomePrice != nil && fx.AwayPrice != nil:
		if *fx.AwayPrice > *fx.HomePrice {
			return fx.AwayTeam
		}
		return fx.HomeTeam
	case fx.HomePrice != nil:
		return fx.HomeTeam
	case fx.AwayPrice != nil:
		return fx.AwayTeam
	default:
		return fx.HomeTeam
	}
}
