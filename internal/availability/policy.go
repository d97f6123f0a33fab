// Package availability computes which visit slots are currently bookable.
package availability

import (
	"fmt"
	"time"

	"kinderbook/internal/model"
)

// Catalog is the slot lookup the policy reads from.
type Catalog interface {
	SlotsFor(venueID, date string) ([]string, error)
	Dates(venueID string) ([]string, error)
}

// ClosedDayFunc reports whether a venue takes no visits on day.
type ClosedDayFunc func(venue *model.Venue, day time.Time) bool

// ClosedByOperatingHours closes the weekdays the venue's hours do not list.
func ClosedByOperatingHours(venue *model.Venue, day time.Time) bool {
	return !venue.Hours.IsOpen(day.Weekday())
}

// ClosedOnWeekends closes Saturdays and Sundays regardless of the venue hours.
func ClosedOnWeekends(_ *model.Venue, day time.Time) bool {
	wd := day.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Option configures a Policy.
type Option func(*Policy)

// WithClosedDays replaces the weekday closure predicate.
func WithClosedDays(fn ClosedDayFunc) Option {
	return func(p *Policy) {
		if fn != nil {
			p.closed = fn
		}
	}
}

// Policy derives bookable dates and times from a catalog and existing bookings.
type Policy struct {
	catalog Catalog
	closed  ClosedDayFunc
}

// NewPolicy creates a policy reading from catalog.
func NewPolicy(catalog Catalog, opts ...Option) *Policy {
	p := &Policy{
		catalog: catalog,
		closed:  ClosedByOperatingHours,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AvailableSlots returns the catalog times of venue on date that no active
// booking occupies, in ascending order.
func (p *Policy) AvailableSlots(venue *model.Venue, date string, existing []model.Booking) ([]string, error) {
	slots, err := p.catalog.SlotsFor(venue.ID, date)
	if err != nil {
		return nil, err
	}
	return subtract(slots, occupiedTimes(venue.ID, existing)[date]), nil
}

// AvailableDates returns the dates on which venue still has a bookable slot,
// in ascending order. A date qualifies when it is not before asOf (today only
// while the venue has not closed yet), is not blocked by the venue or by the
// caller, falls on an open weekday and keeps at least one free time.
func (p *Policy) AvailableDates(venue *model.Venue, blocked []string, existing []model.Booking, asOf time.Time) ([]string, error) {
	dates, err := p.catalog.Dates(venue.ID)
	if err != nil {
		return nil, err
	}

	extra := make(map[string]bool, len(blocked))
	for _, d := range blocked {
		extra[d] = true
	}
	occupied := occupiedTimes(venue.ID, existing)
	today := model.DateOf(asOf)
	clock := asOf.Format(model.TimeLayout)

	out := make([]string, 0, len(dates))
	for _, date := range dates {
		if date < today {
			continue
		}
		if extra[date] || venue.IsBlocked(date) {
			continue
		}

		day, err := model.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("catalog date: %w", err)
		}
		if p.closed(venue, day) {
			continue
		}
		if date == today {
			if closing := venue.Hours.ClosingTime(day.Weekday()); closing != "" && clock >= closing {
				continue
			}
		}

		slots, err := p.catalog.SlotsFor(venue.ID, date)
		if err != nil {
			return nil, err
		}
		if len(subtract(slots, occupied[date])) == 0 {
			continue
		}
		out = append(out, date)
	}
	return out, nil
}

// IsDateAvailable reports whether date is among AvailableDates.
func (p *Policy) IsDateAvailable(venue *model.Venue, date string, blocked []string, existing []model.Booking, asOf time.Time) (bool, error) {
	dates, err := p.AvailableDates(venue, blocked, existing, asOf)
	if err != nil {
		return false, err
	}
	return contains(dates, date), nil
}

// IsSlotAvailable reports whether clock time tm is among AvailableSlots for date.
func (p *Policy) IsSlotAvailable(venue *model.Venue, date, tm string, existing []model.Booking) (bool, error) {
	slots, err := p.AvailableSlots(venue, date, existing)
	if err != nil {
		return false, err
	}
	return contains(slots, tm), nil
}

func occupiedTimes(venueID string, existing []model.Booking) map[string]map[string]bool {
	out := make(map[string]map[string]bool)
	for i := range existing {
		b := &existing[i]
		if b.VenueID != venueID || !b.Status.IsActive() {
			continue
		}
		if out[b.Date] == nil {
			out[b.Date] = make(map[string]bool)
		}
		out[b.Date][b.Time] = true
	}
	return out
}

func subtract(slots []string, taken map[string]bool) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		if !taken[s] {
			out = append(out, s)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
