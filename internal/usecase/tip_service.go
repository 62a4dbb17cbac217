package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/footylab/nrl-tipping/internal/domain/fixture"
	"github.com/footylab/nrl-tipping/internal/domain/tip"
	"github.com/footylab/nrl-tipping/internal/platform/logging"
	"github.com/footylab/nrl-tipping/internal/platform/timeutil"
)

// TipPick is one user selection for a fixture.
type TipPick struct {
	FixtureID string `validate:"required"`
	Team      string `validate:"required"`
}

type SaveTipsInput struct {
	UserID int64     `validate:"required,gt=0"`
	Picks  []TipPick `validate:"required,min=1,dive"`
}

// TipService handles user tip entry and round views.
type TipService struct {
	fixtureRepo fixture.Repository
	tipRepo     tip.Repository
	lockWindow  time.Duration
	logger      *logging.Logger
	now         func() time.Time
}

func NewTipService(fixtureRepo fixture.Repository, tipRepo tip.Repository, lockWindow time.Duration, logger *logging.Logger) *TipService {
	if lockWindow <= 0 {
		lockWindow = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TipService{
		fixtureRepo: fixtureRepo,
		tipRepo:     tipRepo,
		lockWindow:  lockWindow,
		logger:      logger,
		now:         time.Now,
	}
}

// SaveTips upserts the user's picks. Every pick is checked before any write:
// the fixture must exist, still be open for tipping, and the picked team
// must be one of its two sides.
func (s *TipService) SaveTips(ctx context.Context, input SaveTipsInput) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.TipService.SaveTips")
	defer span.End()

	if err := validateInput(input); err != nil {
		return err
	}

	now := s.now()
	resolved := make([]tip.Tip, 0, len(input.Picks))
	for _, pick := range input.Picks {
		fx, ok, err := s.fixtureRepo.GetByID(ctx, pick.FixtureID)
		if err != nil {
			return fmt.Errorf("load fixture id=%s: %w", pick.FixtureID, err)
		}
		if !ok {
			return fmt.Errorf("%w: fixture id=%s", ErrNotFound, pick.FixtureID)
		}
		if timeutil.IsLocked(fx.KickoffAt, now, s.lockWindow) {
			return fmt.Errorf("%w: fixture id=%s", ErrLocked, pick.FixtureID)
		}

		team, ok := canonicalTeam(fx, pick.Team)
		if !ok {
			return fmt.Errorf("%w: team %q is not playing in fixture id=%s", ErrInvalidInput, pick.Team, pick.FixtureID)
		}

		resolved = append(resolved, tip.Tip{
			UserID:    input.UserID,
			FixtureID: fx.ID,
			TipTeam:   team,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	for _, item := range resolved {
		if err := s.tipRepo.Upsert(ctx, item); err != nil {
			return fmt.Errorf("save tip fixture=%s: %w", item.FixtureID, err)
		}
	}

	s.logger.InfoContext(ctx, "tips saved", "user_id", input.UserID, "count", len(resolved))
	return nil
}

// CurrentRound returns the lowest round that still has an open fixture, or
// the last round of the season once everything is locked.
func (s *TipService) CurrentRound(ctx context.Context, seasonYear int) (int, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.TipService.CurrentRound")
	defer span.End()

	fixtures, err := s.fixtureRepo.ListBySeason(ctx, seasonYear)
	if err != nil {
		return 0, fmt.Errorf("list season fixtures: %w", err)
	}

	now := s.now()
	openRound := 0
	maxRound := 0
	for _, fx := range fixtures {
		if fx.RoundNumber == nil || *fx.RoundNumber < 1 {
			continue
		}
		round := *fx.RoundNumber
		if round > maxRound {
			maxRound = round
		}
		if timeutil.IsLocked(fx.KickoffAt, now, s.lockWindow) {
			continue
		}
		if openRound == 0 || round < openRound {
			openRound = round
		}
	}

	if openRound > 0 {
		return openRound, nil
	}
	if maxRound > 0 {
		return maxRound, nil
	}
	return 1, nil
}

// TipsheetFixture is one fixture on the round tipsheet. Tips are only
// disclosed once the fixture has locked.
type TipsheetFixture struct {
	Fixture fixture.Fixture `json:"fixture"`
	Locked  bool            `json:"locked"`
	Tips    []tip.Tip       `json:"tips,omitempty"`
}

type Tipsheet struct {
	SeasonYear int               `json:"season_year"`
	Round      int               `json:"round"`
	Fixtures   []TipsheetFixture `json:"fixtures"`
}

// RoundTipsheet lists a round's fixtures with everyone's tips on the locked
// ones. Tips on open fixtures stay hidden so nobody can copy picks before
// lock.
func (s *TipService) RoundTipsheet(ctx context.Context, seasonYear, round int) (Tipsheet, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.TipService.RoundTipsheet")
	defer span.End()

	if round < 1 {
		return Tipsheet{}, fmt.Errorf("%w: round %d is out of range", ErrInvalidInput, round)
	}

	fixtures, err := s.fixtureRepo.ListBySeasonRound(ctx, seasonYear, round)
	if err != nil {
		return Tipsheet{}, fmt.Errorf("list round fixtures: %w", err)
	}
	sort.SliceStable(fixtures, func(i, j int) bool {
		if !fixtures[i].KickoffAt.Equal(fixtures[j].KickoffAt) {
			return fixtures[i].KickoffAt.Before(fixtures[j].KickoffAt)
		}
		return fixtures[i].ID < fixtures[j].ID
	})

	now := s.now()
	sheet := Tipsheet{SeasonYear: seasonYear, Round: round, Fixtures: make([]TipsheetFixture, 0, len(fixtures))}
	for _, fx := range fixtures {
		entry := TipsheetFixture{
			Fixture: fx,
			Locked:  timeutil.IsLocked(fx.KickoffAt, now, s.lockWindow),
		}
		if entry.Locked {
			tips, err := s.tipRepo.ListByFixture(ctx, fx.ID)
			if err != nil {
				return Tipsheet{}, fmt.Errorf("list tips fixture=%s: %w", fx.ID, err)
			}
			entry.Tips = tips
		}
		sheet.Fixtures = append(sheet.Fixtures, entry)
	}
	return sheet, nil
}

func canonicalTeam(fx fixture.Fixture, picked string) (string, bool) {
	normalized := fixture.NormalizeTeamName(picked)
	if normalized == "" {
		return "", false
	}
	if normalized == fixture.NormalizeTeamName(fx.HomeTeam) {
		return fx.HomeTeam, true
	}
	if normalized == fixture.NormalizeTeamName(fx.AwayTeam) {
		return fx.AwayTeam, true
	}
	return "", false
}
