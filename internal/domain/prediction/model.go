package prediction

import "time"

// Directions a post-round adjustment can move a team.
const (
	MoveUp   = "up"
	MoveDown = "down"
)

// Prediction is a user's pre-season guess at the full final team order for
// a season, unique per (user, season). TeamOrder always holds the current
// order with every adjustment already applied.
type Prediction struct {
	UserID      int64
	SeasonYear  int
	TeamOrder   []string
	Adjustments []Adjustment
	UpdatedAt   time.Time
}

// Adjustment records one spent post-round move: once a round completes the
// owner may shift a single team one position up or down. Each completed
// round grants exactly one move.
type Adjustment struct {
	Round     int       `json:"round"`
	Team      string    `json:"team"`
	Direction string    `json:"direction"`
	AppliedAt time.Time `json:"applied_at"`
}

// UsedRound reports whether the prediction already spent its move for the
// given round.
func (p Prediction) UsedRound(round int) bool {
	for _, adj := range p.Adjustments {
		if adj.Round == round {
			return true
		}
	}
	return false
}
