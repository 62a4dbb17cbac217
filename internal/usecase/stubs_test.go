package usecase

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/footylab/nrl-tipping/internal/domain/fixture"
	"github.com/footylab/nrl-tipping/internal/domain/prediction"
	"github.com/footylab/nrl-tipping/internal/domain/tip"
	"github.com/footylab/nrl-tipping/internal/domain/user"
)

type stubFixtureRepository struct {
	byID    map[string]fixture.Fixture
	upserts int
	pruned  int
	rounds  map[string]int
}

func newStubFixtureRepository(items ...fixture.Fixture) *stubFixtureRepository {
	byID := make(map[string]fixture.Fixture, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	return &stubFixtureRepository{byID: byID}
}

func (s *stubFixtureRepository) list(filter func(fixture.Fixture) bool) []fixture.Fixture {
	out := make([]fixture.Fixture, 0, len(s.byID))
	for _, item := range s.byID {
		if filter(item) {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].KickoffAt.Equal(out[j].KickoffAt) {
			return out[i].KickoffAt.Before(out[j].KickoffAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *stubFixtureRepository) ListBySeason(_ context.Context, seasonYear int) ([]fixture.Fixture, error) {
	return s.list(func(f fixture.Fixture) bool { return f.SeasonYear == seasonYear }), nil
}

func (s *stubFixtureRepository) ListBySeasonRound(_ context.Context, seasonYear, round int) ([]fixture.Fixture, error) {
	return s.list(func(f fixture.Fixture) bool {
		return f.SeasonYear == seasonYear && f.RoundNumber != nil && *f.RoundNumber == round
	}), nil
}

func (s *stubFixtureRepository) ListCompletedBySeason(_ context.Context, seasonYear int) ([]fixture.Fixture, error) {
	return s.list(func(f fixture.Fixture) bool {
		return f.SeasonYear == seasonYear && fixture.IsCompletedStatus(f.Status)
	}), nil
}

func (s *stubFixtureRepository) ListPendingScores(_ context.Context, seasonYear int, cutoff time.Time) ([]fixture.Fixture, error) {
	return s.list(func(f fixture.Fixture) bool {
		return f.SeasonYear == seasonYear && !f.KickoffAt.After(cutoff) && f.NeedsFinalScore()
	}), nil
}

func (s *stubFixtureRepository) GetByID(_ context.Context, id string) (fixture.Fixture, bool, error) {
	item, ok := s.byID[id]
	return item, ok, nil
}

func (s *stubFixtureRepository) Upsert(_ context.Context, item fixture.Fixture) (bool, error) {
	_, exists := s.byID[item.ID]
	s.byID[item.ID] = item
	s.upserts++
	return !exists, nil
}

func (s *stubFixtureRepository) PruneOtherSeasons(_ context.Context, seasonYear int) (int, error) {
	removed := 0
	for id, item := range s.byID {
		if item.SeasonYear != seasonYear {
			delete(s.byID, id)
			removed++
		}
	}
	s.pruned = removed
	return removed, nil
}

func (s *stubFixtureRepository) SetRoundNumbers(_ context.Context, rounds map[string]int) error {
	if s.rounds == nil {
		s.rounds = make(map[string]int)
	}
	for id, round := range rounds {
		s.rounds[id] = round
		if item, ok := s.byID[id]; ok {
			value := round
			item.RoundNumber = &value
			s.byID[id] = item
		}
	}
	return nil
}

type stubTipRepository struct {
	byKey           map[string]tip.Tip
	nextID          int64
	fixtures        *stubFixtureRepository
	leaderboardRows []tip.LeaderboardRow
	roundPointsRows []tip.RoundPointsRow
	rescoreCalls    int
	leaderboardHits int
}

func newStubTipRepository() *stubTipRepository {
	return &stubTipRepository{byKey: make(map[string]tip.Tip)}
}

func (s *stubTipRepository) key(userID int64, fixtureID string) string {
	return fixtureID + "#" + strconv.FormatInt(userID, 10)
}

func (s *stubTipRepository) GetByUserFixture(_ context.Context, userID int64, fixtureID string) (tip.Tip, bool, error) {
	item, ok := s.byKey[s.key(userID, fixtureID)]
	return item, ok, nil
}

func (s *stubTipRepository) ListByFixture(_ context.Context, fixtureID string) ([]tip.Tip, error) {
	out := []tip.Tip{}
	for _, item := range s.byKey {
		if item.FixtureID == fixtureID {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *stubTipRepository) Upsert(_ context.Context, item tip.Tip) error {
	key := s.key(item.UserID, item.FixtureID)
	if existing, ok := s.byKey[key]; ok {
		existing.TipTeam = item.TipTeam
		existing.PointsAwarded = nil
		existing.UpdatedAt = item.UpdatedAt
		s.byKey[key] = existing
		return nil
	}
	s.nextID++
	item.ID = s.nextID
	s.byKey[key] = item
	return nil
}

func (s *stubTipRepository) InsertMissing(_ context.Context, fixtureID, tipTeam string, userIDs []int64, at time.Time) (int, error) {
	added := 0
	for _, userID := range userIDs {
		key := s.key(userID, fixtureID)
		if _, ok := s.byKey[key]; ok {
			continue
		}
		s.nextID++
		s.byKey[key] = tip.Tip{
			ID:        s.nextID,
			UserID:    userID,
			FixtureID: fixtureID,
			TipTeam:   tipTeam,
			CreatedAt: at,
			UpdatedAt: at,
		}
		added++
	}
	return added, nil
}

// RescoreCompleted mirrors the SQL rescore: every tip on a completed fixture
// with a known winner is set to tip.Points, and only changed rows count.
func (s *stubTipRepository) RescoreCompleted(_ context.Context) (int, error) {
	s.rescoreCalls++
	if s.fixtures == nil {
		return 0, nil
	}
	changed := 0
	for key, item := range s.byKey {
		fx, ok := s.fixtures.byID[item.FixtureID]
		if !ok || !fixture.IsCompletedStatus(fx.Status) || !fx.HasKnownWinner() {
			continue
		}
		points := tip.Points(item.TipTeam, fx.Winner)
		if item.PointsAwarded != nil && *item.PointsAwarded == points {
			continue
		}
		item.PointsAwarded = &points
		s.byKey[key] = item
		changed++
	}
	return changed, nil
}

func (s *stubTipRepository) LeaderboardTotals(_ context.Context, _ int) ([]tip.LeaderboardRow, error) {
	s.leaderboardHits++
	out := make([]tip.LeaderboardRow, len(s.leaderboardRows))
	copy(out, s.leaderboardRows)
	return out, nil
}

func (s *stubTipRepository) RoundPoints(_ context.Context, _ int) ([]tip.RoundPointsRow, error) {
	out := make([]tip.RoundPointsRow, len(s.roundPointsRows))
	copy(out, s.roundPointsRows)
	return out, nil
}

type stubUserRepository struct {
	users []user.User
}

func (s *stubUserRepository) GetByID(_ context.Context, id int64) (user.User, bool, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, true, nil
		}
	}
	return user.User{}, false, nil
}

func (s *stubUserRepository) ListEligible(_ context.Context, deadline time.Time, includeAdmins bool, onlyUserID int64) ([]user.User, error) {
	out := []user.User{}
	for _, u := range s.users {
		if u.CreatedAt.After(deadline) {
			continue
		}
		if u.IsAdmin && !includeAdmins {
			continue
		}
		if onlyUserID > 0 && u.ID != onlyUserID {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

type stubPredictionRepository struct {
	byKey map[string]prediction.Prediction
}

func newStubPredictionRepository() *stubPredictionRepository {
	return &stubPredictionRepository{byKey: make(map[string]prediction.Prediction)}
}

func (s *stubPredictionRepository) key(userID int64, seasonYear int) string {
	return strconv.FormatInt(userID, 10) + "#" + strconv.Itoa(seasonYear)
}

func (s *stubPredictionRepository) GetByUserSeason(_ context.Context, userID int64, seasonYear int) (prediction.Prediction, bool, error) {
	item, ok := s.byKey[s.key(userID, seasonYear)]
	return item, ok, nil
}

func (s *stubPredictionRepository) ListBySeason(_ context.Context, seasonYear int) ([]prediction.Prediction, error) {
	out := []prediction.Prediction{}
	for _, item := range s.byKey {
		if item.SeasonYear == seasonYear {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *stubPredictionRepository) Upsert(_ context.Context, item prediction.Prediction) error {
	s.byKey[s.key(item.UserID, item.SeasonYear)] = item
	return nil
}

type stubSettingsRepository struct {
	values map[string]string
}

func newStubSettingsRepository() *stubSettingsRepository {
	return &stubSettingsRepository{values: make(map[string]string)}
}

func (s *stubSettingsRepository) Get(_ context.Context, key string) (string, bool, error) {
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *stubSettingsRepository) Set(_ context.Context, key, value string) error {
	s.values[key] = value
	return nil
}

type stubOddsProvider struct {
	upcoming    []ExternalEvent
	upcomingErr error

	scores        []ExternalEvent
	scoresErr     error
	scoresCalls   int
	scoresDaysReq []int

	history    []ExternalEvent
	historyErr error
}

func (s *stubOddsProvider) FetchUpcomingOdds(context.Context) ([]ExternalEvent, SourceDetails, error) {
	return s.upcoming, SourceDetails{"events": len(s.upcoming)}, s.upcomingErr
}

func (s *stubOddsProvider) FetchRecentScores(_ context.Context, daysBack int) ([]ExternalEvent, SourceDetails, error) {
	s.scoresCalls++
	s.scoresDaysReq = append(s.scoresDaysReq, daysBack)
	return s.scores, SourceDetails{"events": len(s.scores)}, s.scoresErr
}

func (s *stubOddsProvider) FetchHistorySnapshots(context.Context, int) ([]ExternalEvent, SourceDetails, error) {
	return s.history, SourceDetails{"events": len(s.history)}, s.historyErr
}

type stubDrawProvider struct {
	entries []ExternalDrawFixture
	err     error
}

func (s *stubDrawProvider) FetchSeasonDraw(context.Context, int) ([]ExternalDrawFixture, SourceDetails, error) {
	return s.entries, SourceDetails{"entries": len(s.entries)}, s.err
}
