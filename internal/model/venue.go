package model

import "time"

// DayHours is the opening window of a venue on one weekday.
type DayHours struct {
	Open  string `json:"open"`  // "07:30"
	Close string `json:"close"` // "18:00"
}

// OperatingHours describes on which weekdays a venue is open.
// A descriptor without any configured day is treated as open every day.
type OperatingHours struct {
	Days map[time.Weekday]DayHours `json:"days,omitempty"`
}

// IsOpen reports whether the venue opens on the given weekday.
func (h OperatingHours) IsOpen(day time.Weekday) bool {
	if len(h.Days) == 0 {
		return true
	}
	_, ok := h.Days[day]
	return ok
}

// ClosingTime returns the HH:MM closing time for a weekday, or "" when unknown.
func (h OperatingHours) ClosingTime(day time.Weekday) string {
	return h.Days[day].Close
}

// Venue is a kindergarten accepting visit appointments.
type Venue struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Address      string         `json:"address"`
	Hours        OperatingHours `json:"hours"`
	BlockedDates []string       `json:"blocked_dates,omitempty"`
	MinChildAge  int            `json:"min_child_age"`
	MaxChildAge  int            `json:"max_child_age"` // 0 means no upper bound
}

// IsBlocked reports whether date (YYYY-MM-DD) is administratively closed.
func (v *Venue) IsBlocked(date string) bool {
	for _, d := range v.BlockedDates {
		if d == date {
			return true
		}
	}
	return false
}

// AcceptsAge checks the child age against the venue bounds, inclusive.
func (v *Venue) AcceptsAge(age int) bool {
	if age < v.MinChildAge {
		return false
	}
	return v.MaxChildAge == 0 || age <= v.MaxChildAge
}
