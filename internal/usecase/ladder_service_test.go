package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/footylab/nrl-tipping/internal/domain/fixture"
	"github.com/footylab/nrl-tipping/internal/domain/prediction"
	"github.com/footylab/nrl-tipping/internal/domain/user"
	"github.com/footylab/nrl-tipping/internal/platform/logging"
)

func newTestLadderService(
	fixtures *stubFixtureRepository,
	predictions *stubPredictionRepository,
	users *stubUserRepository,
	now time.Time,
) *LadderService {
	svc := NewLadderService(fixtures, predictions, users, time.UTC, logging.NewNop())
	svc.now = func() time.Time { return now }
	return svc
}

func completedMatch(id, home, away string, homeScore, awayScore int, kickoff time.Time) fixture.Fixture {
	winner := home
	if awayScore > homeScore {
		winner = away
	} else if awayScore == homeScore {
		winner = fixture.WinnerDraw
	}
	return fixture.Fixture{
		ID:         id,
		SeasonYear: 2026,
		KickoffAt:  kickoff,
		HomeTeam:   home,
		AwayTeam:   away,
		Status:     fixture.StatusCompleted,
		Winner:     winner,
		HomeScore:  intPtr(homeScore),
		AwayScore:  intPtr(awayScore),
	}
}

func TestLadder_ComputesFromCompletedFixtures(t *testing.T) {
	t.Parallel()

	kickoff := time.Date(2026, time.March, 6, 9, 0, 0, 0, time.UTC)
	fixtures := newStubFixtureRepository(
		completedMatch("m1", "Brisbane Broncos", "Melbourne Storm", 24, 12, kickoff),
		completedMatch("m2", "Melbourne Storm", "Sydney Roosters", 30, 10, kickoff.Add(24*time.Hour)),
		completedMatch("m3", "Sydney Roosters", "Brisbane Broncos", 18, 18, kickoff.Add(48*time.Hour)),
		// Still scheduled, must not count.
		fixture.Fixture{ID: "m4", SeasonYear: 2026, KickoffAt: kickoff.Add(7 * 24 * time.Hour), HomeTeam: "Brisbane Broncos", AwayTeam: "Sydney Roosters"},
	)

	svc := newTestLadderService(fixtures, newStubPredictionRepository(), &stubUserRepository{}, time.Now())
	rows, err := svc.Ladder(context.Background(), 2026)
	if err != nil {
		t.Fatalf("Ladder error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 teams, got %d", len(rows))
	}

	// Broncos and Storm both sit on 3 points (a win and a draw vs a win and a
	// loss is 3 vs 2), so the ladder is Broncos, Storm, Roosters.
	if rows[0].Team != "Brisbane Broncos" || rows[0].CompPoints != 3 {
		t.Fatalf("unexpected leader: %+v", rows[0])
	}
	if rows[1].Team != "Melbourne Storm" || rows[1].CompPoints != 2 {
		t.Fatalf("unexpected second place: %+v", rows[1])
	}
	if rows[2].Team != "Sydney Roosters" || rows[2].Drawn != 1 || rows[2].Played != 2 {
		t.Fatalf("unexpected third place: %+v", rows[2])
	}
}

func TestSavePrediction_DeadlineBoundary(t *testing.T) {
	t.Parallel()

	deadline := time.Date(2026, time.March, 12, 20, 0, 0, 0, time.UTC)
	order := []string{"Brisbane Broncos", "Melbourne Storm", "Sydney Roosters"}

	t.Run("exactly at the deadline still accepted", func(t *testing.T) {
		t.Parallel()
		predictions := newStubPredictionRepository()
		svc := newTestLadderService(newStubFixtureRepository(), predictions, &stubUserRepository{}, deadline)
		err := svc.SavePrediction(context.Background(), SavePredictionInput{UserID: 1, SeasonYear: 2026, TeamOrder: order})
		if err != nil {
			t.Fatalf("SavePrediction error: %v", err)
		}
		if _, ok, _ := predictions.GetByUserSeason(context.Background(), 1, 2026); !ok {
			t.Fatalf("expected prediction stored")
		}
	})

	t.Run("one second past the deadline rejected", func(t *testing.T) {
		t.Parallel()
		svc := newTestLadderService(newStubFixtureRepository(), newStubPredictionRepository(), &stubUserRepository{}, deadline.Add(time.Second))
		err := svc.SavePrediction(context.Background(), SavePredictionInput{UserID: 1, SeasonYear: 2026, TeamOrder: order})
		if !errors.Is(err, ErrLocked) {
			t.Fatalf("expected ErrLocked, got %v", err)
		}
	})
}

func TestSavePrediction_RejectsBadOrderings(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	svc := newTestLadderService(newStubFixtureRepository(), newStubPredictionRepository(), &stubUserRepository{}, now)

	err := svc.SavePrediction(context.Background(), SavePredictionInput{
		UserID:     1,
		SeasonYear: 2026,
		TeamOrder:  []string{"Brisbane Broncos", "broncos BRISBANE"},
	})
	if err == nil {
		err = svc.SavePrediction(context.Background(), SavePredictionInput{
			UserID:     1,
			SeasonYear: 2026,
			TeamOrder:  []string{"Brisbane Broncos", "Brisbane Broncos"},
		})
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for duplicate team, got %v", err)
	}

	err = svc.SavePrediction(context.Background(), SavePredictionInput{
		UserID:     1,
		SeasonYear: 2026,
		TeamOrder:  []string{"Brisbane Broncos", "   "},
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank team, got %v", err)
	}
}

func TestAdjustPrediction(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	kickoff := time.Date(2026, time.March, 6, 9, 0, 0, 0, time.UTC)

	newService := func(t *testing.T) (*LadderService, *stubPredictionRepository) {
		t.Helper()
		finished := completedMatch("m1", "Brisbane Broncos", "Melbourne Storm", 24, 12, kickoff)
		finished.RoundNumber = roundOf(1)
		inProgress := fixture.Fixture{
			ID: "m2", SeasonYear: 2026, KickoffAt: kickoff.Add(7 * 24 * time.Hour),
			HomeTeam: "Sydney Roosters", AwayTeam: "Brisbane Broncos",
			RoundNumber: roundOf(2), Status: fixture.StatusScheduled,
		}
		predictions := newStubPredictionRepository()
		_ = predictions.Upsert(context.Background(), prediction.Prediction{
			UserID: 1, SeasonYear: 2026,
			TeamOrder: []string{"Brisbane Broncos", "Melbourne Storm", "Sydney Roosters"},
		})
		return newTestLadderService(newStubFixtureRepository(finished, inProgress), predictions, &stubUserRepository{}, now), predictions
	}

	t.Run("moves one team one position after a completed round", func(t *testing.T) {
		t.Parallel()
		svc, predictions := newService(t)

		err := svc.AdjustPrediction(context.Background(), AdjustPredictionInput{
			UserID: 1, SeasonYear: 2026, Round: 1, Team: "Sydney Roosters", Direction: prediction.MoveUp,
		})
		if err != nil {
			t.Fatalf("AdjustPrediction error: %v", err)
		}

		pred, _, _ := predictions.GetByUserSeason(context.Background(), 1, 2026)
		want := []string{"Brisbane Broncos", "Sydney Roosters", "Melbourne Storm"}
		for i, team := range want {
			if pred.TeamOrder[i] != team {
				t.Fatalf("expected order %v, got %v", want, pred.TeamOrder)
			}
		}
		if len(pred.Adjustments) != 1 || pred.Adjustments[0].Round != 1 {
			t.Fatalf("expected the round 1 move recorded, got %+v", pred.Adjustments)
		}

		t.Run("second move in the same round rejected", func(t *testing.T) {
			err := svc.AdjustPrediction(context.Background(), AdjustPredictionInput{
				UserID: 1, SeasonYear: 2026, Round: 1, Team: "Melbourne Storm", Direction: prediction.MoveUp,
			})
			if !errors.Is(err, ErrLocked) {
				t.Fatalf("expected ErrLocked for a spent round, got %v", err)
			}
		})
	})

	t.Run("round with unfinished fixtures rejected", func(t *testing.T) {
		t.Parallel()
		svc, _ := newService(t)
		err := svc.AdjustPrediction(context.Background(), AdjustPredictionInput{
			UserID: 1, SeasonYear: 2026, Round: 2, Team: "Sydney Roosters", Direction: prediction.MoveUp,
		})
		if !errors.Is(err, ErrLocked) {
			t.Fatalf("expected ErrLocked for unfinished round, got %v", err)
		}
	})

	t.Run("unknown round rejected", func(t *testing.T) {
		t.Parallel()
		svc, _ := newService(t)
		err := svc.AdjustPrediction(context.Background(), AdjustPredictionInput{
			UserID: 1, SeasonYear: 2026, Round: 9, Team: "Sydney Roosters", Direction: prediction.MoveUp,
		})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for unknown round, got %v", err)
		}
	})

	t.Run("team outside the prediction rejected", func(t *testing.T) {
		t.Parallel()
		svc, _ := newService(t)
		err := svc.AdjustPrediction(context.Background(), AdjustPredictionInput{
			UserID: 1, SeasonYear: 2026, Round: 1, Team: "Canberra Raiders", Direction: prediction.MoveUp,
		})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for unknown team, got %v", err)
		}
	})

	t.Run("top team cannot move up", func(t *testing.T) {
		t.Parallel()
		svc, _ := newService(t)
		err := svc.AdjustPrediction(context.Background(), AdjustPredictionInput{
			UserID: 1, SeasonYear: 2026, Round: 1, Team: "Brisbane Broncos", Direction: prediction.MoveUp,
		})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput at the top of the order, got %v", err)
		}
	})

	t.Run("missing prediction rejected", func(t *testing.T) {
		t.Parallel()
		svc, _ := newService(t)
		err := svc.AdjustPrediction(context.Background(), AdjustPredictionInput{
			UserID: 7, SeasonYear: 2026, Round: 1, Team: "Melbourne Storm", Direction: prediction.MoveDown,
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound without a stored prediction, got %v", err)
		}
	})

	t.Run("direction must be up or down", func(t *testing.T) {
		t.Parallel()
		svc, _ := newService(t)
		err := svc.AdjustPrediction(context.Background(), AdjustPredictionInput{
			UserID: 1, SeasonYear: 2026, Round: 1, Team: "Melbourne Storm", Direction: "sideways",
		})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for bad direction, got %v", err)
		}
	})
}

func TestPredictionLeaderboard(t *testing.T) {
	t.Parallel()

	kickoff := time.Date(2026, time.March, 6, 9, 0, 0, 0, time.UTC)
	fixtures := newStubFixtureRepository(
		completedMatch("m1", "Brisbane Broncos", "Melbourne Storm", 24, 12, kickoff),
		completedMatch("m2", "Melbourne Storm", "Sydney Roosters", 30, 10, kickoff.Add(24*time.Hour)),
		completedMatch("m3", "Sydney Roosters", "Brisbane Broncos", 10, 20, kickoff.Add(48*time.Hour)),
	)
	// Actual ladder: Broncos, Storm, Roosters.

	predictions := newStubPredictionRepository()
	_ = predictions.Upsert(context.Background(), prediction.Prediction{
		UserID: 1, SeasonYear: 2026,
		TeamOrder: []string{"Brisbane Broncos", "Melbourne Storm", "Sydney Roosters"},
	})
	_ = predictions.Upsert(context.Background(), prediction.Prediction{
		UserID: 2, SeasonYear: 2026,
		TeamOrder: []string{"Sydney Roosters", "Melbourne Storm", "Brisbane Broncos"},
	})

	users := &stubUserRepository{users: []user.User{{ID: 1, DisplayName: "Alice"}}}
	svc := newTestLadderService(fixtures, predictions, users, time.Now())

	rows, err := svc.PredictionLeaderboard(context.Background(), 2026)
	if err != nil {
		t.Fatalf("PredictionLeaderboard error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].UserID != 1 || rows[0].Name != "Alice" || rows[0].Score != 0 {
		t.Fatalf("expected perfect prediction first, got %+v", rows[0])
	}
	if rows[1].UserID != 2 || rows[1].Name != "user 2" || rows[1].Score != 4 {
		t.Fatalf("expected reversed prediction scored 4 with fallback name, got %+v", rows[1])
	}
}
