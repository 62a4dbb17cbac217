package tip

import (
	"context"
	"time"
)

// LeaderboardRow is one user's season aggregate.
type LeaderboardRow struct {
	UserID      int64
	Name        string
	TipsMade    int
	CorrectTips int
	TotalPoints int
}

// RoundPointsRow is one user's points total for a single round.
type RoundPointsRow struct {
	UserID int64
	Round  int
	Points int
}

// Repository persists tips and the aggregates derived from them.
type Repository interface {
	GetByUserFixture(ctx context.Context, userID int64, fixtureID string) (Tip, bool, error)
	ListByFixture(ctx context.Context, fixtureID string) ([]Tip, error)
	// Upsert inserts or replaces the picked team for (user, fixture).
	Upsert(ctx context.Context, item Tip) error
	// InsertMissing adds a tip for every listed user who has none for the
	// fixture yet and reports how many rows were created. Tips created this
	// way carry the given timestamp and no points.
	InsertMissing(ctx context.Context, fixtureID, tipTeam string, userIDs []int64, at time.Time) (int, error)
	// RescoreCompleted recomputes points_awarded for every tip joined to a
	// completed fixture with a known winner and returns the number of tips
	// whose points changed.
	RescoreCompleted(ctx context.Context) (int, error)
	LeaderboardTotals(ctx context.Context, seasonYear int) ([]LeaderboardRow, error)
	RoundPoints(ctx context.Context, seasonYear int) ([]RoundPointsRow, error)
}
