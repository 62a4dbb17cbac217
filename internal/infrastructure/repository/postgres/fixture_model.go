package postgres

import (
	"database/sql"
	"time"

	"github.com/footylab/nrl-tipping/internal/domain/fixture"
)

type fixtureTableModel struct {
	ID          string          `db:"id"`
	SeasonYear  int             `db:"season_year"`
	RoundNumber sql.NullInt64   `db:"round_number"`
	KickoffAt   time.Time       `db:"kickoff_at"`
	HomeTeam    string          `db:"home_team"`
	AwayTeam    string          `db:"away_team"`
	StadiumName string          `db:"stadium_name"`
	StadiumCity string          `db:"stadium_city"`
	HomeLogoURL string          `db:"home_logo_url"`
	AwayLogoURL string          `db:"away_logo_url"`
	Status      string          `db:"status"`
	HomeScore   sql.NullInt64   `db:"home_score"`
	AwayScore   sql.NullInt64   `db:"away_score"`
	Winner      string          `db:"winner"`
	HomePrice   sql.NullFloat64 `db:"home_price"`
	AwayPrice   sql.NullFloat64 `db:"away_price"`
	Source      string          `db:"source"`
	RawJSON     string          `db:"raw_json"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

func (m fixtureTableModel) toDomain() fixture.Fixture {
	return fixture.Fixture{
		ID:          m.ID,
		SeasonYear:  m.SeasonYear,
		RoundNumber: nullInt64ToIntPtr(m.RoundNumber),
		KickoffAt:   m.KickoffAt.UTC(),
		HomeTeam:    m.HomeTeam,
		AwayTeam:    m.AwayTeam,
		StadiumName: m.StadiumName,
		StadiumCity: m.StadiumCity,
		HomeLogoURL: m.HomeLogoURL,
		AwayLogoURL: m.AwayLogoURL,
		Status:      m.Status,
		HomeScore:   nullInt64ToIntPtr(m.HomeScore),
		AwayScore:   nullInt64ToIntPtr(m.AwayScore),
		Winner:      m.Winner,
		HomePrice:   nullFloat64ToPtr(m.HomePrice),
		AwayPrice:   nullFloat64ToPtr(m.AwayPrice),
		Source:      m.Source,
		RawJSON:     m.RawJSON,
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

func nullInt64ToIntPtr(value sql.NullInt64) *int {
	if !value.Valid {
		return nil
	}
	v := int(value.Int64)
	return &v
}

func nullFloat64ToPtr(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	v := value.Float64
	return &v
}

func intPtrToNullInt64(value *int) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*value), Valid: true}
}

func floatPtrToNullFloat64(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}
