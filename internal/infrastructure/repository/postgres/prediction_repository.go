package postgres

import (
	"context"
	"fmt"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/jmoiron/sqlx"

	"github.com/footylab/nrl-tipping/internal/domain/prediction"
	qb "github.com/footylab/nrl-tipping/internal/platform/querybuilder"
)

type predictionTableModel struct {
	UserID      int64     `db:"user_id"`
	SeasonYear  int       `db:"season_year"`
	TeamOrder   string    `db:"team_order"`
	Adjustments string    `db:"adjustments"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (m predictionTableModel) toDomain() (prediction.Prediction, error) {
	var order []string
	if m.TeamOrder != "" {
		if err := sonic.Unmarshal([]byte(m.TeamOrder), &order); err != nil {
			return prediction.Prediction{}, fmt.Errorf("decode team order user=%d season=%d: %w", m.UserID, m.SeasonYear, err)
		}
	}
	var adjustments []prediction.Adjustment
	if m.Adjustments != "" {
		if err := sonic.Unmarshal([]byte(m.Adjustments), &adjustments); err != nil {
			return prediction.Prediction{}, fmt.Errorf("decode adjustments user=%d season=%d: %w", m.UserID, m.SeasonYear, err)
		}
	}
	return prediction.Prediction{
		UserID:      m.UserID,
		SeasonYear:  m.SeasonYear,
		TeamOrder:   order,
		Adjustments: adjustments,
		UpdatedAt:   m.UpdatedAt.UTC(),
	}, nil
}

type PredictionRepository struct {
	db *sqlx.DB
}

func NewPredictionRepository(db *sqlx.DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

func (r *PredictionRepository) GetByUserSeason(ctx context.Context, userID int64, seasonYear int) (prediction.Prediction, bool, error) {
	query, args, err := qb.Select("*").From("ladder_predictions").
		Where(
			qb.Eq("user_id", userID),
			qb.Eq("season_year", seasonYear),
		).
		ToSQL()
	if err != nil {
		return prediction.Prediction{}, false, fmt.Errorf("build select prediction query: %w", err)
	}

	var row predictionTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return prediction.Prediction{}, false, nil
		}
		return prediction.Prediction{}, false, fmt.Errorf("select prediction: %w", err)
	}

	out, err := row.toDomain()
	if err != nil {
		return prediction.Prediction{}, false, err
	}
	return out, true, nil
}

func (r *PredictionRepository) ListBySeason(ctx context.Context, seasonYear int) ([]prediction.Prediction, error) {
	query, args, err := qb.Select("*").From("ladder_predictions").
		Where(qb.Eq("season_year", seasonYear)).
		OrderBy("user_id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select predictions by season query: %w", err)
	}

	var rows []predictionTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select predictions by season: %w", err)
	}

	out := make([]prediction.Prediction, 0, len(rows))
	for _, row := range rows {
		item, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *PredictionRepository) Upsert(ctx context.Context, item prediction.Prediction) error {
	encoded, err := sonic.Marshal(item.TeamOrder)
	if err != nil {
		return fmt.Errorf("encode team order: %w", err)
	}
	adjustments := item.Adjustments
	if adjustments == nil {
		adjustments = []prediction.Adjustment{}
	}
	encodedAdjustments, err := sonic.Marshal(adjustments)
	if err != nil {
		return fmt.Errorf("encode adjustments: %w", err)
	}

	query, args, err := qb.InsertInto("ladder_predictions").
		Columns("user_id", "season_year", "team_order", "adjustments").
		Values(item.UserID, item.SeasonYear, string(encoded), string(encodedAdjustments)).
		Suffix(`ON CONFLICT (user_id, season_year) DO UPDATE SET
			team_order = EXCLUDED.team_order,
			adjustments = EXCLUDED.adjustments,
			updated_at = NOW()`).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build upsert prediction query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert prediction: %w", err)
	}
	return nil
}
