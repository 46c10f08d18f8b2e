package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock HH:MM, interpreted in the Schedule's timezone.
// Stored as minutes-since-midnight so interval comparisons are cheap
// integer comparisons rather than repeated time.Time construction.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" (24h, no seconds), the shape fixed by
// SPEC_FULL.md for the persisted Schedule JSON.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("domain: invalid time-of-day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("domain: invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m >= 60 {
		return 0, fmt.Errorf("domain: invalid minute in %q", s)
	}
	return TimeOfDay(h*60 + m), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Window is a half-open [Start, End) interval within a single day.
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

// contains reports whether minute-of-day m falls in [Start, End).
func (w Window) contains(m TimeOfDay) bool {
	return m >= w.Start && m < w.End
}

// Weekday indexes Schedule.Windows the same way as time.Weekday, but the
// persisted JSON form (see SPEC_FULL.md) uses lower-case English names.
type Weekday = time.Weekday

// Schedule is a value object attached to a Queue: a set of recurring
// weekly availability windows in a named IANA timezone. Has no identity of
// its own (spec §3).
type Schedule struct {
	Timezone string
	Windows  map[Weekday][]Window
}

// dayKeys is the persisted-JSON weekday key order/spelling fixed in
// SPEC_FULL.md (Open Question 1).
var dayKeys = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var dayNames = [...]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

type scheduleJSON struct {
	Timezone string                      `json:"timezone"`
	Windows  map[string][]windowJSON     `json:"windows"`
}

type windowJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// MarshalJSON emits the persisted shape: {"timezone":"...","windows":{"monday":[{"start":"09:00","end":"17:00"}]}}.
func (s Schedule) MarshalJSON() ([]byte, error) {
	out := scheduleJSON{Timezone: s.Timezone, Windows: map[string][]windowJSON{}}
	for day, windows := range s.Windows {
		key := dayNames[int(day)]
		for _, w := range windows {
			out.Windows[key] = append(out.Windows[key], windowJSON{Start: w.Start.String(), End: w.End.String()})
		}
	}
	return json.Marshal(out)
}

func (s *Schedule) UnmarshalJSON(data []byte) error {
	var in scheduleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	s.Timezone = in.Timezone
	s.Windows = map[Weekday][]Window{}
	for key, windows := range in.Windows {
		day, ok := dayKeys[strings.ToLower(key)]
		if !ok {
			return fmt.Errorf("domain: unknown weekday key %q", key)
		}
		for _, wj := range windows {
			start, err := ParseTimeOfDay(wj.Start)
			if err != nil {
				return err
			}
			end, err := ParseTimeOfDay(wj.End)
			if err != nil {
				return err
			}
			s.Windows[day] = append(s.Windows[day], Window{Start: start, End: end})
		}
	}
	return nil
}
