package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/footylab/nrl-tipping/internal/domain/fixture"
	qb "github.com/footylab/nrl-tipping/internal/platform/querybuilder"
)

// pendingScoreCondition selects fixtures without a usable final result.
const pendingScoreCondition = "(status <> 'completed' OR winner IN ('', 'unknown') OR home_score IS NULL OR away_score IS NULL)"

type FixtureRepository struct {
	db *sqlx.DB
}

func NewFixtureRepository(db *sqlx.DB) *FixtureRepository {
	return &FixtureRepository{db: db}
}

func (r *FixtureRepository) ListBySeason(ctx context.Context, seasonYear int) ([]fixture.Fixture, error) {
	query, args, err := qb.Select("*").From("fixtures").
		Where(qb.Eq("season_year", seasonYear)).
		OrderBy("kickoff_at", "id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select fixtures by season query: %w", err)
	}
	return r.selectFixtures(ctx, query, args)
}

func (r *FixtureRepository) ListBySeasonRound(ctx context.Context, seasonYear, round int) ([]fixture.Fixture, error) {
	query, args, err := qb.Select("*").From("fixtures").
		Where(
			qb.Eq("season_year", seasonYear),
			qb.Eq("round_number", round),
		).
		OrderBy("kickoff_at", "id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select fixtures by round query: %w", err)
	}
	return r.selectFixtures(ctx, query, args)
}

func (r *FixtureRepository) ListCompletedBySeason(ctx context.Context, seasonYear int) ([]fixture.Fixture, error) {
	query, args, err := qb.Select("*").From("fixtures").
		Where(
			qb.Eq("season_year", seasonYear),
			qb.Eq("status", fixture.StatusCompleted),
		).
		OrderBy("kickoff_at", "id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select completed fixtures query: %w", err)
	}
	return r.selectFixtures(ctx, query, args)
}

func (r *FixtureRepository) ListPendingScores(ctx context.Context, seasonYear int, cutoff time.Time) ([]fixture.Fixture, error) {
	query, args, err := qb.Select("*").From("fixtures").
		Where(
			qb.Eq("season_year", seasonYear),
			qb.Lte("kickoff_at", cutoff.UTC()),
			qb.Expr(pendingScoreCondition),
		).
		OrderBy("kickoff_at", "id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select pending score fixtures query: %w", err)
	}
	return r.selectFixtures(ctx, query, args)
}

func (r *FixtureRepository) GetByID(ctx context.Context, id string) (fixture.Fixture, bool, error) {
	query, args, err := qb.Select("*").From("fixtures").
		Where(qb.Eq("id", id)).
		ToSQL()
	if err != nil {
		return fixture.Fixture{}, false, fmt.Errorf("build select fixture by id query: %w", err)
	}

	var row fixtureTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return fixture.Fixture{}, false, nil
		}
		return fixture.Fixture{}, false, fmt.Errorf("select fixture by id: %w", err)
	}
	return row.toDomain(), true, nil
}

// Upsert writes one fixture keyed by its provider identity and reports
// whether the row was newly created.
func (r *FixtureRepository) Upsert(ctx context.Context, item fixture.Fixture) (bool, error) {
	query, args, err := qb.InsertInto("fixtures").
		Columns(
			"id", "season_year", "round_number", "kickoff_at",
			"home_team", "away_team", "stadium_name", "stadium_city",
			"home_logo_url", "away_logo_url", "status",
			"home_score", "away_score", "winner",
			"home_price", "away_price", "source", "raw_json",
		).
		Values(
			item.ID, item.SeasonYear, intPtrToNullInt64(item.RoundNumber), item.KickoffAt.UTC(),
			item.HomeTeam, item.AwayTeam, item.StadiumName, item.StadiumCity,
			item.HomeLogoURL, item.AwayLogoURL, fixture.NormalizeStatus(item.Status),
			intPtrToNullInt64(item.HomeScore), intPtrToNullInt64(item.AwayScore), item.Winner,
			floatPtrToNullFloat64(item.HomePrice), floatPtrToNullFloat64(item.AwayPrice), item.Source, item.RawJSON,
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			season_year = EXCLUDED.season_year,
			round_number = EXCLUDED.round_number,
			kickoff_at = EXCLUDED.kickoff_at,
			home_team = EXCLUDED.home_team,
			away_team = EXCLUDED.away_team,
			stadium_name = EXCLUDED.stadium_name,
			stadium_city = EXCLUDED.stadium_city,
			home_logo_url = EXCLUDED.home_logo_url,
			away_logo_url = EXCLUDED.away_logo_url,
			status = EXCLUDED.status,
			home_score = EXCLUDED.home_score,
			away_score = EXCLUDED.away_score,
			winner = EXCLUDED.winner,
			home_price = EXCLUDED.home_price,
			away_price = EXCLUDED.away_price,
			source = EXCLUDED.source,
			raw_json = EXCLUDED.raw_json,
			updated_at = NOW()
		RETURNING (xmax = 0) AS created`).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build upsert fixture query: %w", err)
	}

	var created bool
	if err := r.db.GetContext(ctx, &created, query, args...); err != nil {
		return false, fmt.Errorf("upsert fixture: %w", err)
	}
	return created, nil
}

func (r *FixtureRepository) PruneOtherSeasons(ctx context.Context, seasonYear int) (int, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM fixtures WHERE season_year <> $1", seasonYear)
	if err != nil {
		return 0, fmt.Errorf("delete fixtures outside season: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count pruned fixtures: %w", err)
	}
	return int(affected), nil
}

func (r *FixtureRepository) SetRoundNumbers(ctx context.Context, assignments map[string]int) error {
	if len(assignments) == 0 {
		return nil
	}

	ids := make([]string, 0, len(assignments))
	for id := range assignments {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set round numbers tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		query, args, err := qb.Update("fixtures").
			Set("round_number", assignments[id]).
			SetExpr("updated_at", "NOW()").
			Where(qb.Eq("id", id)).
			ToSQL()
		if err != nil {
			return fmt.Errorf("build update round number query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("update round number fixture=%s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set round numbers tx: %w", err)
	}
	return nil
}

func (r *FixtureRepository) selectFixtures(ctx context.Context, query string, args []any) ([]fixture.Fixture, error) {
	var rows []fixtureTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select fixtures: %w", err)
	}
	out := make([]fixture.Fixture, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
