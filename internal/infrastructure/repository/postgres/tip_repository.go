package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/footylab/nrl-tipping/internal/domain/tip"
	qb "github.com/footylab/nrl-tipping/internal/platform/querybuilder"
)

// tipPointsExpr is the SQL rendering of tip.Points: one point iff the picked
// team is the fixture winner. A draw pays nobody, since a tip always names
// one of the two sides.
var tipPointsExpr = fmt.Sprintf(
	`CASE WHEN f.winner = tips.tip_team THEN %d ELSE %d END`,
	tip.PointsCorrect, tip.PointsMissed,
)

type TipRepository struct {
	db *sqlx.DB
}

func NewTipRepository(db *sqlx.DB) *TipRepository {
	return &TipRepository{db: db}
}

func (r *TipRepository) GetByUserFixture(ctx context.Context, userID int64, fixtureID string) (tip.Tip, bool, error) {
	query, args, err := qb.Select("*").From("tips").
		Where(
			qb.Eq("user_id", userID),
			qb.Eq("fixture_id", fixtureID),
		).
		ToSQL()
	if err != nil {
		return tip.Tip{}, false, fmt.Errorf("build select tip query: %w", err)
	}

	var row tipTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return tip.Tip{}, false, nil
		}
		return tip.Tip{}, false, fmt.Errorf("select tip by user and fixture: %w", err)
	}
	return row.toDomain(), true, nil
}

func (r *TipRepository) ListByFixture(ctx context.Context, fixtureID string) ([]tip.Tip, error) {
	query, args, err := qb.Select("*").From("tips").
		Where(qb.Eq("fixture_id", fixtureID)).
		OrderBy("user_id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select tips by fixture query: %w", err)
	}

	var rows []tipTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select tips by fixture: %w", err)
	}
	out := make([]tip.Tip, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// Upsert replaces the picked team for (user, fixture). A changed pick drops
// any previously awarded points until the next rescore.
func (r *TipRepository) Upsert(ctx context.Context, item tip.Tip) error {
	query, args, err := qb.InsertInto("tips").
		Columns("user_id", "fixture_id", "tip_team").
		Values(item.UserID, item.FixtureID, item.TipTeam).
		Suffix(`ON CONFLICT (user_id, fixture_id) DO UPDATE SET
			tip_team = EXCLUDED.tip_team,
			points_awarded = NULL,
			updated_at = NOW()`).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build upsert tip query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert tip: %w", err)
	}
	return nil
}

func (r *TipRepository) InsertMissing(ctx context.Context, fixtureID, tipTeam string, userIDs []int64, at time.Time) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}

	const query = `INSERT INTO tips (user_id, fixture_id, tip_team, created_at, updated_at)
		SELECT uid, $2, $3, $4, $4 FROM unnest($1::bigint[]) AS uid
		ON CONFLICT (user_id, fixture_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query, pq.Array(userIDs), fixtureID, tipTeam, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert missing tips: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count inserted tips: %w", err)
	}
	return int(affected), nil
}

func (r *TipRepository) RescoreCompleted(ctx context.Context) (int, error) {
	query := fmt.Sprintf(`UPDATE tips SET
			points_awarded = %[1]s,
			updated_at = NOW()
		FROM fixtures f
		WHERE f.id = tips.fixture_id
			AND f.status = 'completed'
			AND f.winner NOT IN ('', 'unknown')
			AND tips.points_awarded IS DISTINCT FROM (%[1]s)`, tipPointsExpr)

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("rescore completed tips: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count rescored tips: %w", err)
	}
	return int(affected), nil
}

func (r *TipRepository) LeaderboardTotals(ctx context.Context, seasonYear int) ([]tip.LeaderboardRow, error) {
	// LEFT JOIN keeps users with no tips on the board with zeros. The season
	// filter lives in the fixture join so those users survive it, and the
	// aggregates count only rows where a season fixture actually matched.
	const query = `SELECT
			u.id AS user_id,
			u.display_name AS name,
			COUNT(f.id) AS tips_made,
			COUNT(f.id) FILTER (WHERE t.points_awarded > 0) AS correct_tips,
			COALESCE(SUM(t.points_awarded) FILTER (WHERE f.id IS NOT NULL), 0) AS total_points
		FROM users u
		LEFT JOIN tips t ON t.user_id = u.id
		LEFT JOIN fixtures f ON f.id = t.fixture_id AND f.season_year = $1
		GROUP BY u.id, u.display_name
		ORDER BY total_points DESC, correct_tips DESC, tips_made DESC, name ASC`

	var rows []struct {
		UserID      int64  `db:"user_id"`
		Name        string `db:"name"`
		TipsMade    int    `db:"tips_made"`
		CorrectTips int    `db:"correct_tips"`
		TotalPoints int    `db:"total_points"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, seasonYear); err != nil {
		return nil, fmt.Errorf("select leaderboard totals: %w", err)
	}

	out := make([]tip.LeaderboardRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, tip.LeaderboardRow{
			UserID:      row.UserID,
			Name:        row.Name,
			TipsMade:    row.TipsMade,
			CorrectTips: row.CorrectTips,
			TotalPoints: row.TotalPoints,
		})
	}
	return out, nil
}

func (r *TipRepository) RoundPoints(ctx context.Context, seasonYear int) ([]tip.RoundPointsRow, error) {
	const query = `SELECT
			t.user_id AS user_id,
			f.round_number AS round,
			COALESCE(SUM(t.points_awarded), 0) AS points
		FROM tips t
		JOIN fixtures f ON f.id = t.fixture_id
		WHERE f.season_year = $1 AND f.round_number IS NOT NULL
		GROUP BY t.user_id, f.round_number
		ORDER BY t.user_id, f.round_number`

	var rows []struct {
		UserID int64 `db:"user_id"`
		Round  int   `db:"round"`
		Points int   `db:"points"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, seasonYear); err != nil {
		return nil, fmt.Errorf("select round points: %w", err)
	}

	out := make([]tip.RoundPointsRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, tip.RoundPointsRow{
			UserID: row.UserID,
			Round:  row.Round,
			Points: row.Points,
		})
	}
	return out, nil
}
