package user

import "time"

// User is the slice of an account this engine needs: identity, admin flag
// and creation time for retroactive tip eligibility. Account management
// lives elsewhere.
type User struct {
	ID          int64
	Email       string
	DisplayName string
	IsAdmin     bool
	CreatedAt   time.Time
}
