package domain

import "time"

// Bounds on Queue configuration, enforced on create and on every update
// (spec §3 "Queue" invariants).
const (
	MinMaxConcurrentUsers   = 1
	MaxMaxConcurrentUsers   = 10000
	MinReleaseRatePerMinute = 1
	MaxReleaseRatePerMinute = 1000
)

// Queue is the admission unit: a tenant-owned named waiting room with a
// release rate, a concurrency cap, and an optional weekly Schedule.
type Queue struct {
	ID                   string
	TenantID             string
	Name                 string
	Description          string
	MaxConcurrentUsers   int
	ReleaseRatePerMinute int
	Active               bool
	LastReleaseAt        time.Time
	Schedule             *Schedule
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ValidateConfig checks MaxConcurrentUsers/ReleaseRatePerMinute against the
// documented bounds. Returns the offending field name on failure so the
// caller (outside this package) can produce a Validation error that echoes
// it, per spec §7.
func (q *Queue) ValidateConfig() (field string, ok bool) {
	if q.MaxConcurrentUsers < MinMaxConcurrentUsers || q.MaxConcurrentUsers > MaxMaxConcurrentUsers {
		return "max_concurrent_users", false
	}
	if q.ReleaseRatePerMinute < MinReleaseRatePerMinute || q.ReleaseRatePerMinute > MaxReleaseRatePerMinute {
		return "release_rate_per_minute", false
	}
	return "", true
}
