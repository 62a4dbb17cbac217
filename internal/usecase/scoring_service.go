package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/footylab/nrl-tipping/internal/domain/fixture"
	"github.com/footylab/nrl-tipping/internal/domain/tip"
	"github.com/footylab/nrl-tipping/internal/platform/cache"
	"github.com/footylab/nrl-tipping/internal/platform/logging"
)

const leaderboardCachePrefix = "leaderboard"

// ScoringService recomputes tip points and serves leaderboard views.
// Leaderboard reads go through an optional TTL cache that is flushed
// whenever a rescore changes anything.
type ScoringService struct {
	tipRepo     tip.Repository
	fixtureRepo fixture.Repository
	cache       *cache.Store
	logger      *logging.Logger
}

func NewScoringService(tipRepo tip.Repository, fixtureRepo fixture.Repository, store *cache.Store, logger *logging.Logger) *ScoringService {
	if logger == nil {
		logger = logging.Default()
	}
	return &ScoringService{
		tipRepo:     tipRepo,
		fixtureRepo: fixtureRepo,
		cache:       store,
		logger:      logger,
	}
}

// RescoreTips recomputes points for every tip on a completed fixture with a
// known winner: 1 point for picking the winner, 0 otherwise, so a drawn
// fixture pays nobody. Returns how many tips changed value.
func (s *ScoringService) RescoreTips(ctx context.Context) (int, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ScoringService.RescoreTips")
	defer span.End()

	changed, err := s.tipRepo.RescoreCompleted(ctx)
	if err != nil {
		return 0, fmt.Errorf("rescore completed tips: %w", err)
	}
	if changed > 0 {
		if s.cache != nil {
			s.cache.DeletePrefix(ctx, leaderboardCachePrefix)
		}
		s.logger.InfoContext(ctx, "rescored tips", "changed", changed)
	}
	return changed, nil
}

// Leaderboard returns season standings ordered by total points, then correct
// tips, then tips made, then display name.
func (s *ScoringService) Leaderboard(ctx context.Context, seasonYear int) ([]tip.LeaderboardRow, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ScoringService.Leaderboard")
	defer span.End()

	if seasonYear < 2000 || seasonYear > 2100 {
		return nil, fmt.Errorf("%w: season year %d is out of range", ErrInvalidInput, seasonYear)
	}

	key := fmt.Sprintf("%s:totals:%d", leaderboardCachePrefix, seasonYear)
	return cache.Fetch(ctx, s.cache, key, func(ctx context.Context) ([]tip.LeaderboardRow, error) {
		return s.loadLeaderboard(ctx, seasonYear)
	})
}

func (s *ScoringService) loadLeaderboard(ctx context.Context, seasonYear int) ([]tip.LeaderboardRow, error) {
	rows, err := s.tipRepo.LeaderboardTotals(ctx, seasonYear)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard totals: %w", err)
	}
	sortLeaderboardRows(rows)
	return rows, nil
}

// RoundLeaderboard is a leaderboard with a per-round points breakdown.
// Rounds lists every numbered round of the season; each row's RoundPoints
// aligns with it positionally, with explicit zeros for rounds a user scored
// nothing in.
type RoundLeaderboard struct {
	Rounds []int                 `json:"rounds"`
	Rows   []RoundLeaderboardRow `json:"rows"`
}

type RoundLeaderboardRow struct {
	tip.LeaderboardRow
	RoundPoints []int `json:"round_points"`
}

// LeaderboardWithRounds builds the round-by-round leaderboard view.
func (s *ScoringService) LeaderboardWithRounds(ctx context.Context, seasonYear int) (RoundLeaderboard, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ScoringService.LeaderboardWithRounds")
	defer span.End()

	totals, err := s.Leaderboard(ctx, seasonYear)
	if err != nil {
		return RoundLeaderboard{}, err
	}

	fixtures, err := s.fixtureRepo.ListBySeason(ctx, seasonYear)
	if err != nil {
		return RoundLeaderboard{}, fmt.Errorf("list season fixtures: %w", err)
	}
	roundSet := make(map[int]bool)
	for _, fx := range fixtures {
		if fx.RoundNumber != nil && *fx.RoundNumber > 0 {
			roundSet[*fx.RoundNumber] = true
		}
	}
	rounds := make([]int, 0, len(roundSet))
	for round := range roundSet {
		rounds = append(rounds, round)
	}
	sort.Ints(rounds)

	perRound, err := s.tipRepo.RoundPoints(ctx, seasonYear)
	if err != nil {
		return RoundLeaderboard{}, fmt.Errorf("load round points: %w", err)
	}
	byUser := make(map[int64]map[int]int)
	for _, row := range perRound {
		points, ok := byUser[row.UserID]
		if !ok {
			points = make(map[int]int)
			byUser[row.UserID] = points
		}
		points[row.Round] += row.Points
	}

	out := RoundLeaderboard{Rounds: rounds, Rows: make([]RoundLeaderboardRow, 0, len(totals))}
	for _, total := range totals {
		row := RoundLeaderboardRow{
			LeaderboardRow: total,
			RoundPoints:    make([]int, len(rounds)),
		}
		for i, round := range rounds {
			row.RoundPoints[i] = byUser[total.UserID][round]
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func sortLeaderboardRows(rows []tip.LeaderboardRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TotalPoints != rows[j].TotalPoints {
			return rows[i].TotalPoints > rows[j].TotalPoints
		}
		if rows[i].CorrectTips != rows[j].CorrectTips {
			return rows[i].CorrectTips > rows[j].CorrectTips
		}
		if rows[i].TipsMade != rows[j].TipsMade {
			return rows[i].TipsMade > rows[j].TipsMade
		}
		return rows[i].Name < rows[j].Name
	})
}
