package user

import (
	"context"
	"time"
)

// Repository reads accounts. This engine never writes user rows.
type Repository interface {
	GetByID(ctx context.Context, id int64) (User, bool, error)
	// ListEligible returns users whose account existed at or before the
	// deadline. Admins are excluded unless includeAdmins is set; a non-zero
	// onlyUserID narrows the result to that account.
	ListEligible(ctx context.Context, deadline time.Time, includeAdmins bool, onlyUserID int64) ([]User, error)
}
