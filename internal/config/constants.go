// Package config - centralized tuning constants.
//
// This file centralizes values that would otherwise be scattered throughout
// the codebase, making them easier to find, modify, and test.
package config

import "time"

// Load-tracking windows. These are rolling windows measured back from the
// distribution reference instant, not calendar-aligned boundaries, so a
// burst cannot land right after a reset.
const (
	// DayWindow bounds assignedToday counts.
	DayWindow = 24 * time.Hour

	// HourWindow bounds assignedThisHour counts.
	HourWindow = time.Hour
)

// SQL interval strings for use in database queries.
// These must match the Go duration constants above.
const (
	SQLDayWindowInterval  = "24 hours"
	SQLHourWindowInterval = "1 hour"
)

// Distribution engine defaults.
const (
	// DefaultBatchLimit caps leads processed per distributePending run.
	DefaultBatchLimit = 500

	// DefaultPendingRetrySchedule re-runs pending distribution every
	// ten minutes (cron syntax).
	DefaultPendingRetrySchedule = "*/10 * * * *"

	// BatchLockTTL bounds how long one distributePending run may hold the
	// per-workspace lock before it is considered abandoned.
	BatchLockTTL = 5 * time.Minute
)

// Lead-intake rate limiting defaults.
const (
	DefaultIngestRatePerSecond = 20
	DefaultIngestBurst         = 40
)

// Cache TTLs for read endpoints.
const (
	CacheTTLStats             = 30 * time.Second
	CacheTTLRecentAssignments = 15 * time.Second
)

// Pagination defaults for API list endpoints.
const (
	DefaultPaginationLimit = 50
	MaxPaginationLimit     = 500
)
