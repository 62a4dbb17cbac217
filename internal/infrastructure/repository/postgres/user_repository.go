package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/footylab/nrl-tipping/internal/domain/user"
	qb "github.com/footylab/nrl-tipping/internal/platform/querybuilder"
)

type userTableModel struct {
	ID          int64     `db:"id"`
	Email       string    `db:"email"`
	DisplayName string    `db:"display_name"`
	IsAdmin     bool      `db:"is_admin"`
	CreatedAt   time.Time `db:"created_at"`
}

func (m userTableModel) toDomain() user.User {
	return user.User{
		ID:          m.ID,
		Email:       m.Email,
		DisplayName: m.DisplayName,
		IsAdmin:     m.IsAdmin,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (user.User, bool, error) {
	query, args, err := qb.Select("*").From("users").
		Where(qb.Eq("id", id)).
		ToSQL()
	if err != nil {
		return user.User{}, false, fmt.Errorf("build select user by id query: %w", err)
	}

	var row userTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return user.User{}, false, nil
		}
		return user.User{}, false, fmt.Errorf("select user by id: %w", err)
	}
	return row.toDomain(), true, nil
}

func (r *UserRepository) ListEligible(ctx context.Context, deadline time.Time, includeAdmins bool, onlyUserID int64) ([]user.User, error) {
	conditions := []qb.Condition{
		qb.Lte("created_at", deadline.UTC()),
	}
	if !includeAdmins {
		conditions = append(conditions, qb.Eq("is_admin", false))
	}
	if onlyUserID > 0 {
		conditions = append(conditions, qb.Eq("id", onlyUserID))
	}

	query, args, err := qb.Select("*").From("users").
		Where(conditions...).
		OrderBy("id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select eligible users query: %w", err)
	}

	var rows []userTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select eligible users: %w", err)
	}

	out := make([]user.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
