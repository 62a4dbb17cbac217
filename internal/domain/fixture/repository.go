package fixture

import (
	"context"
	"time"
)

// Repository persists canonical fixtures. Upserts are keyed by fixture ID
// and idempotent.
type Repository interface {
	ListBySeason(ctx context.Context, seasonYear int) ([]Fixture, error)
	ListBySeasonRound(ctx context.Context, seasonYear, round int) ([]Fixture, error)
	ListCompletedBySeason(ctx context.Context, seasonYear int) ([]Fixture, error)
	// ListPendingScores returns season fixtures kicked off at or before the
	// cutoff that still lack a usable result.
	ListPendingScores(ctx context.Context, seasonYear int, cutoff time.Time) ([]Fixture, error)
	GetByID(ctx context.Context, id string) (Fixture, bool, error)
	// Upsert writes one fixture atomically and reports whether a new row was
	// created.
	Upsert(ctx context.Context, item Fixture) (bool, error)
	// PruneOtherSeasons deletes every fixture outside the given season and
	// returns the number removed.
	PruneOtherSeasons(ctx context.Context, seasonYear int) (int, error)
	// SetRoundNumbers applies assigned round numbers by fixture ID.
	SetRoundNumbers(ctx context.Context, rounds map[string]int) error
}
