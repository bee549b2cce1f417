package domain

import "time"

// SyncResult contains the result of a sync with object storage.
type SyncResult struct {
	PackagesAdded   int       `json:"packages_added"`
	PackagesRemoved int       `json:"packages_removed"`
	PackagesTotal   int       `json:"packages_total"`
	SyncedAt        time.Time `json:"synced_at"`
	NextScheduledAt time.Time `json:"next_scheduled_at,omitempty"`
}
