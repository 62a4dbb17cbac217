package settings

import "context"

// Repository is a generic key/value store used for operational records such
// as the last sync timestamp and summary.
type Repository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

const (
	KeyLastSyncAt      = "last_sync_at_utc"
	KeyLastSyncSummary = "last_sync_summary"
)
