package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/footylab/nrl-tipping/internal/domain/fixture"
	"github.com/footylab/nrl-tipping/internal/domain/tip"
	"github.com/footylab/nrl-tipping/internal/domain/user"
	"github.com/footylab/nrl-tipping/internal/platform/logging"
	"github.com/footylab/nrl-tipping/internal/platform/timeutil"
)

// AutoFillParams scopes an auto-fill pass. Round and UserID are optional
// narrowing filters; zero means all.
type AutoFillParams struct {
	SeasonYear    int   `validate:"required,gte=2000,lte=2100"`
	Round         int   `validate:"gte=0"`
	UserID        int64 `validate:"gte=0"`
	IncludeAdmins bool
}

// AutoTipService fills missing tips on locked fixtures with the underdog
// side, so users who forgot to tip still take part in every match.
type AutoTipService struct {
	fixtureRepo fixture.Repository
	tipRepo     tip.Repository
	userRepo    user.Repository
	lockWindow  time.Duration
	logger      *logging.Logger
	now         func() time.Time
}

func NewAutoTipService(
	fixtureRepo fixture.Repository,
	tipRepo tip.Repository,
	userRepo user.Repository,
	lockWindow time.Duration,
	logger *logging.Logger,
) *AutoTipService {
	if lockWindow <= 0 {
		lockWindow = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AutoTipService{
		fixtureRepo: fixtureRepo,
		tipRepo:     tipRepo,
		userRepo:    userRepo,
		lockWindow:  lockWindow,
		logger:      logger,
		now:         time.Now,
	}
}

// FillUnderdogTips inserts underdog tips for every eligible user missing a
// tip on a locked fixture in scope. Existing tips are never touched, so
// repeat passes add nothing. Returns the number of tips inserted.
func (s *AutoTipService) FillUnderdogTips(ctx context.Context, params AutoFillParams) (int, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.AutoTipService.FillUnderdogTips")
	defer span.End()

	if err := validateInput(params); err != nil {
		return 0, err
	}

	var fixtures []fixture.Fixture
	var err error
	if params.Round > 0 {
		fixtures, err = s.fixtureRepo.ListBySeasonRound(ctx, params.SeasonYear, params.Round)
	} else {
		fixtures, err = s.fixtureRepo.ListBySeason(ctx, params.SeasonYear)
	}
	if err != nil {
		return 0, fmt.Errorf("list fixtures: %w", err)
	}

	now := s.now()
	total := 0
	for _, fx := range fixtures {
		if !timeutil.IsLocked(fx.KickoffAt, now, s.lockWindow) {
			continue
		}
		underdog := tip.UnderdogTeam(fx)
		if underdog == "" {
			continue
		}

		// Eligibility is judged as of the lock deadline, so late signups
		// are not back-filled into matches that locked before they joined.
		deadline := timeutil.LockDeadline(fx.KickoffAt, s.lockWindow)
		users, err := s.userRepo.ListEligible(ctx, deadline, params.IncludeAdmins, params.UserID)
		if err != nil {
			return total, fmt.Errorf("list eligible users: %w", err)
		}
		if len(users) == 0 {
			continue
		}

		userIDs := make([]int64, 0, len(users))
		for _, u := range users {
			userIDs = append(userIDs, u.ID)
		}

		added, err := s.tipRepo.InsertMissing(ctx, fx.ID, underdog, userIDs, now)
		if err != nil {
			return total, fmt.Errorf("insert underdog tips fixture=%s: %w", fx.ID, err)
		}
		total += added
	}

	if total > 0 {
		s.logger.InfoContext(ctx, "auto-filled underdog tips",
			"season_year", params.SeasonYear,
			"round", params.Round,
			"added", total,
		)
	}
	return total, nil
}
