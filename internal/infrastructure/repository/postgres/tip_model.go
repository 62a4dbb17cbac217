package postgres

import (
	"database/sql"
	"time"

	"github.com/footylab/nrl-tipping/internal/domain/tip"
)

type tipTableModel struct {
	ID            int64         `db:"id"`
	UserID        int64         `db:"user_id"`
	FixtureID     string        `db:"fixture_id"`
	TipTeam       string        `db:"tip_team"`
	PointsAwarded sql.NullInt64 `db:"points_awarded"`
	CreatedAt     time.Time     `db:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at"`
}

func (m tipTableModel) toDomain() tip.Tip {
	return tip.Tip{
		ID:            m.ID,
		UserID:        m.UserID,
		FixtureID:     m.FixtureID,
		TipTeam:       m.TipTeam,
		PointsAwarded: nullInt64ToIntPtr(m.PointsAwarded),
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
}
