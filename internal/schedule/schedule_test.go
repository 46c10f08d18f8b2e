package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aliabuzahra/queue-sub006/internal/domain"
)

func mustWeekdaySchedule(t *testing.T) *domain.Schedule {
	t.Helper()
	start, err := domain.ParseTimeOfDay("09:00")
	require.NoError(t, err)
	end, err := domain.ParseTimeOfDay("17:00")
	require.NoError(t, err)
	return &domain.Schedule{
		Timezone: "UTC",
		Windows: map[domain.Weekday][]domain.Window{
			time.Monday: {{Start: start, End: end}},
		},
	}
}

func TestIsActive_NilScheduleAlwaysOpen(t *testing.T) {
	active, err := IsActive(nil, time.Now())
	require.NoError(t, err)
	require.True(t, active)
}

func TestIsActive_WithinWindow(t *testing.T) {
	s := mustWeekdaySchedule(t)
	at := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC) // Monday
	active, err := IsActive(s, at)
	require.NoError(t, err)
	require.True(t, active)
}

// S4 — half-open window boundary: a tick exactly at 17:00:00 is closed.
func TestIsActive_HalfOpenBoundary(t *testing.T) {
	s := mustWeekdaySchedule(t)
	at := time.Date(2026, 8, 3, 17, 0, 0, 0, time.UTC)
	active, err := IsActive(s, at)
	require.NoError(t, err)
	require.False(t, active)
}

func TestIsActive_OutsideDay(t *testing.T) {
	s := mustWeekdaySchedule(t)
	at := time.Date(2026, 8, 4, 12, 0, 0, 0, time.UTC) // Tuesday
	active, err := IsActive(s, at)
	require.NoError(t, err)
	require.False(t, active)
}

func TestIsActive_UnknownTimezone(t *testing.T) {
	s := mustWeekdaySchedule(t)
	s.Timezone = "Not/AZone"
	_, err := IsActive(s, time.Now())
	require.Error(t, err)
	var unavailable *ErrUnavailable
	require.ErrorAs(t, err, &unavailable)
}

func TestNextActivation_SameDayBeforeWindow(t *testing.T) {
	s := mustWeekdaySchedule(t)
	at := time.Date(2026, 8, 3, 6, 0, 0, 0, time.UTC)
	next, ok, err := NextActivation(s, at)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC), next)
}

func TestNextActivation_AlreadyOpen(t *testing.T) {
	s := mustWeekdaySchedule(t)
	at := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)
	next, ok, err := NextActivation(s, at)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, at, next)
}

func TestNextActivation_NextWeek(t *testing.T) {
	s := mustWeekdaySchedule(t)
	at := time.Date(2026, 8, 3, 18, 0, 0, 0, time.UTC) // Monday after close
	next, ok, err := NextActivation(s, at)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC), next)
}

func TestNextActivation_NoWindows(t *testing.T) {
	s := &domain.Schedule{Timezone: "UTC", Windows: map[domain.Weekday][]domain.Window{}}
	_, ok, err := NextActivation(s, time.Now())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPrevActivation_AfterWindow(t *testing.T) {
	s := mustWeekdaySchedule(t)
	at := time.Date(2026, 8, 3, 20, 0, 0, 0, time.UTC)
	prev, ok, err := PrevActivation(s, at)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, time.Date(2026, 8, 3, 16, 59, 59, 999999999, time.UTC), prev)
}
