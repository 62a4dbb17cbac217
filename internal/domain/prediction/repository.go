package prediction

import "context"

type Repository interface {
	GetByUserSeason(ctx context.Context, userID int64, seasonYear int) (Prediction, bool, error)
	ListBySeason(ctx context.Context, seasonYear int) ([]Prediction, error)
	Upsert(ctx context.Context, item Prediction) error
}
