package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/footylab/nrl-tipping/internal/domain/fixture"
	"github.com/footylab/nrl-tipping/internal/domain/ladder"
	"github.com/footylab/nrl-tipping/internal/domain/prediction"
	"github.com/footylab/nrl-tipping/internal/domain/user"
	"github.com/footylab/nrl-tipping/internal/platform/logging"
)

const (
	predictionDeadlineMonth = time.March
	predictionDeadlineDay   = 12
	predictionDeadlineHour  = 20
)

// LadderService computes the live competition ladder and manages preseason
// ladder predictions.
type LadderService struct {
	fixtureRepo    fixture.Repository
	predictionRepo prediction.Repository
	userRepo       user.Repository
	location       *time.Location
	logger         *logging.Logger
	now            func() time.Time
}

func NewLadderService(
	fixtureRepo fixture.Repository,
	predictionRepo prediction.Repository,
	userRepo user.Repository,
	location *time.Location,
	logger *logging.Logger,
) *LadderService {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LadderService{
		fixtureRepo:    fixtureRepo,
		predictionRepo: predictionRepo,
		userRepo:       userRepo,
		location:       location,
		logger:         logger,
		now:            time.Now,
	}
}

// Ladder computes the season ladder from completed fixtures with scores.
func (s *LadderService) Ladder(ctx context.Context, seasonYear int) ([]ladder.Row, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LadderService.Ladder")
	defer span.End()

	fixtures, err := s.fixtureRepo.ListCompletedBySeason(ctx, seasonYear)
	if err != nil {
		return nil, fmt.Errorf("list completed fixtures: %w", err)
	}
	return ladder.Compute(fixtures), nil
}

type SavePredictionInput struct {
	UserID     int64    `validate:"required,gt=0"`
	SeasonYear int      `validate:"required,gte=2000,lte=2100"`
	TeamOrder  []string `validate:"required,min=2"`
}

// PredictionDeadline is the moment preseason ladder predictions close for a
// season, in the competition's local timezone.
func (s *LadderService) PredictionDeadline(seasonYear int) time.Time {
	return time.Date(seasonYear, predictionDeadlineMonth, predictionDeadlineDay,
		predictionDeadlineHour, 0, 0, 0, s.location)
}

// SavePrediction stores a user's preseason ladder ordering. Rejected once
// the season's prediction deadline has passed, or when the ordering repeats
// a team.
func (s *LadderService) SavePrediction(ctx context.Context, input SavePredictionInput) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.LadderService.SavePrediction")
	defer span.End()

	if err := validateInput(input); err != nil {
		return err
	}

	seen := make(map[string]bool, len(input.TeamOrder))
	for _, team := range input.TeamOrder {
		key := fixture.NormalizeTeamName(team)
		if key == "" {
			return fmt.Errorf("%w: empty team name in prediction", ErrInvalidInput)
		}
		if seen[key] {
			return fmt.Errorf("%w: team %q appears more than once", ErrInvalidInput, team)
		}
		seen[key] = true
	}

	deadline := s.PredictionDeadline(input.SeasonYear)
	if s.now().After(deadline) {
		return fmt.Errorf("%w: ladder predictions closed at %s", ErrLocked, deadline.Format(time.RFC3339))
	}

	err := s.predictionRepo.Upsert(ctx, prediction.Prediction{
		UserID:     input.UserID,
		SeasonYear: input.SeasonYear,
		TeamOrder:  input.TeamOrder,
		UpdatedAt:  s.now(),
	})
	if err != nil {
		return fmt.Errorf("save ladder prediction: %w", err)
	}

	s.logger.InfoContext(ctx, "ladder prediction saved",
		"user_id", input.UserID,
		"season_year", input.SeasonYear,
		"teams", len(input.TeamOrder),
	)
	return nil
}

type AdjustPredictionInput struct {
	UserID     int64  `validate:"required,gt=0"`
	SeasonYear int    `validate:"required,gte=2000,lte=2100"`
	Round      int    `validate:"required,gt=0"`
	Team       string `validate:"required"`
	Direction  string `validate:"required,oneof=up down"`
}

// AdjustPrediction spends a user's post-round move: once a round has fully
// completed, its owner may shift one team in their stored ordering a single
// position up or down. Each completed round grants exactly one move, and
// the new ordering is what future leaderboard scoring sees.
func (s *LadderService) AdjustPrediction(ctx context.Context, input AdjustPredictionInput) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.LadderService.AdjustPrediction")
	defer span.End()

	if err := validateInput(input); err != nil {
		return err
	}

	pred, ok, err := s.predictionRepo.GetByUserSeason(ctx, input.UserID, input.SeasonYear)
	if err != nil {
		return fmt.Errorf("load ladder prediction: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: no ladder prediction for user %d season %d", ErrNotFound, input.UserID, input.SeasonYear)
	}
	if pred.UsedRound(input.Round) {
		return fmt.Errorf("%w: round %d move already used", ErrLocked, input.Round)
	}

	roundFixtures, err := s.fixtureRepo.ListBySeasonRound(ctx, input.SeasonYear, input.Round)
	if err != nil {
		return fmt.Errorf("list round fixtures: %w", err)
	}
	if len(roundFixtures) == 0 {
		return fmt.Errorf("%w: season %d has no round %d", ErrInvalidInput, input.SeasonYear, input.Round)
	}
	for _, fx := range roundFixtures {
		if !fixture.IsCompletedStatus(fx.Status) {
			return fmt.Errorf("%w: round %d has unfinished fixtures", ErrLocked, input.Round)
		}
	}

	key := fixture.NormalizeTeamName(input.Team)
	idx := -1
	for i, team := range pred.TeamOrder {
		if fixture.NormalizeTeamName(team) == key {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("%w: team %q is not in the prediction", ErrInvalidInput, input.Team)
	}

	target := idx + 1
	if input.Direction == prediction.MoveUp {
		target = idx - 1
	}
	if target < 0 || target >= len(pred.TeamOrder) {
		return fmt.Errorf("%w: team %q cannot move %s", ErrInvalidInput, input.Team, input.Direction)
	}

	pred.TeamOrder[idx], pred.TeamOrder[target] = pred.TeamOrder[target], pred.TeamOrder[idx]
	pred.Adjustments = append(pred.Adjustments, prediction.Adjustment{
		Round:     input.Round,
		Team:      pred.TeamOrder[target],
		Direction: input.Direction,
		AppliedAt: s.now(),
	})
	pred.UpdatedAt = s.now()

	if err := s.predictionRepo.Upsert(ctx, pred); err != nil {
		return fmt.Errorf("save adjusted prediction: %w", err)
	}

	s.logger.InfoContext(ctx, "ladder prediction adjusted",
		"user_id", input.UserID,
		"season_year", input.SeasonYear,
		"round", input.Round,
		"team", pred.TeamOrder[target],
		"direction", input.Direction,
	)
	return nil
}

// PredictionRow is one entry on the prediction leaderboard. Lower score is
// better: it is the sum of positional distances between the predicted and
// actual ladder.
type PredictionRow struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
}

// PredictionLeaderboard scores every stored prediction against the current
// ladder, ordered best first.
func (s *LadderService) PredictionLeaderboard(ctx context.Context, seasonYear int) ([]PredictionRow, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LadderService.PredictionLeaderboard")
	defer span.End()

	rows, err := s.Ladder(ctx, seasonYear)
	if err != nil {
		return nil, err
	}
	actual := make([]string, 0, len(rows))
	for _, row := range rows {
		actual = append(actual, row.Team)
	}

	predictions, err := s.predictionRepo.ListBySeason(ctx, seasonYear)
	if err != nil {
		return nil, fmt.Errorf("list ladder predictions: %w", err)
	}

	out := make([]PredictionRow, 0, len(predictions))
	for _, pred := range predictions {
		name := fmt.Sprintf("user %d", pred.UserID)
		if u, ok, err := s.userRepo.GetByID(ctx, pred.UserID); err != nil {
			return nil, fmt.Errorf("load user id=%d: %w", pred.UserID, err)
		} else if ok {
			name = u.DisplayName
		}
		out = append(out, PredictionRow{
			UserID: pred.UserID,
			Name:   name,
			Score:  ladder.ScorePrediction(pred.TeamOrder, actual),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
