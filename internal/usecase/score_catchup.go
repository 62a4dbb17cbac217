package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/footylab/nrl-tipping/internal/domain/fixture"
)

const fallbackCatchupDaysBack = 14

// CatchupOptions tunes a single catch-up pass. Zero values fall back to the
// service defaults.
type CatchupOptions struct {
	// DaysBack is a lower bound on the requested scores window; the service
	// widens it further when the oldest pending fixture is older.
	DaysBack int
	// MinAge excludes fixtures that kicked off too recently to have a
	// published result yet.
	MinAge time.Duration
}

type CatchupResult struct {
	SeasonYear    int `json:"season_year"`
	Due           int `json:"due"`
	Applied       int `json:"applied"`
	DaysBack      int `json:"days_back"`
	AutoTipsAdded int `json:"auto_tips_added"`
	TipsRescored  int `json:"tips_rescored"`
}

// UpdateCompletedScores backfills final scores for fixtures that have kicked
// off but still lack a usable result, widening the scores window to cover
// the oldest pending fixture. Auto-fill and rescoring only run when at least
// one fixture actually changed.
func (s *SyncService) UpdateCompletedScores(ctx context.Context, seasonYear int, opts CatchupOptions) (CatchupResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SyncService.UpdateCompletedScores")
	defer span.End()

	if seasonYear < 2000 || seasonYear > 2100 {
		return CatchupResult{}, fmt.Errorf("%w: season year %d is out of range", ErrInvalidInput, seasonYear)
	}
	if !s.cfg.APIKeySet {
		return CatchupResult{}, fmt.Errorf("%w: odds API key is not configured", ErrMissingCredentials)
	}

	now := s.now()
	minAge := opts.MinAge
	if minAge <= 0 {
		minAge = s.cfg.MinScoreAge
	}
	cutoff := now.Add(-minAge)

	due, err := s.fixtureRepo.ListPendingScores(ctx, seasonYear, cutoff)
	if err != nil {
		return CatchupResult{}, fmt.Errorf("list fixtures pending scores: %w", err)
	}
	result := CatchupResult{SeasonYear: seasonYear, Due: len(due)}
	if len(due) == 0 {
		return result, nil
	}

	oldest := due[0].KickoffAt
	for _, fx := range due[1:] {
		if fx.KickoffAt.Before(oldest) {
			oldest = fx.KickoffAt
		}
	}

	daysBack := fallbackCatchupDaysBack
	if age := now.Sub(oldest); age > 0 {
		daysBack = int(age.Hours()/24) + 2
	}
	if daysBack < 1 {
		daysBack = 1
	}
	if opts.DaysBack > daysBack {
		daysBack = opts.DaysBack
	}
	result.DaysBack = daysBack

	events, _, err := s.odds.FetchRecentScores(ctx, daysBack)
	if err != nil {
		return result, fmt.Errorf("fetch recent scores: %w", err)
	}

	for _, ev := range events {
		if !ev.Completed {
			continue
		}
		candidate := mapExternalEventToFixture(ev, sourceScores)
		if !candidate.HasKnownWinner() {
			continue
		}
		if candidate.SeasonYear != seasonYear {
			continue
		}

		stored, ok, err := s.fixtureRepo.GetByID(ctx, candidate.ID)
		if err != nil {
			return result, fmt.Errorf("load fixture id=%s: %w", candidate.ID, err)
		}
		if !ok {
			continue
		}
		merged := fixture.Merge(stored, candidate)
		if !scoreStateChanged(stored, merged) {
			continue
		}
		if _, err := s.fixtureRepo.Upsert(ctx, merged); err != nil {
			return result, fmt.Errorf("upsert fixture id=%s: %w", candidate.ID, err)
		}
		result.Applied++
	}

	if result.Applied == 0 {
		return result, nil
	}

	if s.autoTips != nil {
		result.AutoTipsAdded, err = s.autoTips.FillUnderdogTips(ctx, AutoFillParams{SeasonYear: seasonYear})
		if err != nil {
			return result, fmt.Errorf("auto-fill underdog tips: %w", err)
		}
	}
	if s.scoring != nil {
		result.TipsRescored, err = s.scoring.RescoreTips(ctx)
		if err != nil {
			return result, fmt.Errorf("rescore tips: %w", err)
		}
	}

	s.logger.InfoContext(ctx, "score catch-up applied results",
		"season_year", seasonYear,
		"due", result.Due,
		"applied", result.Applied,
		"days_back", result.DaysBack,
	)
	return result, nil
}

func scoreStateChanged(before, after fixture.Fixture) bool {
	if before.Status != after.Status || before.Winner != after.Winner {
		return true
	}
	return !intPtrEqual(before.HomeScore, after.HomeScore) ||
		!intPtrEqual(before.AwayScore, after.AwayScore)
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
