// Package catalog keeps venues and the visit slots they publish per date.
package catalog

import (
	"sort"
	"sync"
	"time"

	"kinderbook/internal/domain"
	"kinderbook/internal/model"
)

// Catalog is an in-memory slot catalog safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	venues  map[string]model.Venue
	entries map[string]map[string][]string // venue -> date -> sorted times
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		venues:  make(map[string]model.Venue),
		entries: make(map[string]map[string][]string),
	}
}

// AddVenue registers or replaces a venue.
func (c *Catalog) AddVenue(v model.Venue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.venues[v.ID] = cloneVenue(v)
	if _, ok := c.entries[v.ID]; !ok {
		c.entries[v.ID] = make(map[string][]string)
	}
}

// Publish sets the open times of a venue on a date. Times are normalized,
// deduplicated and sorted; an empty list removes the date.
func (c *Catalog) Publish(venueID, date string, times []string) error {
	day, err := model.NormalizeDate(date)
	if err != nil {
		return err
	}

	set := make(map[string]struct{}, len(times))
	for _, raw := range times {
		t, err := model.NormalizeTime(raw)
		if err != nil {
			return err
		}
		set[t] = struct{}{}
	}
	sorted := make([]string, 0, len(set))
	for t := range set {
		sorted = append(sorted, t)
	}
	sort.Strings(sorted)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.venues[venueID]; !ok {
		return &domain.NotFoundError{Kind: "venue", ID: venueID}
	}
	if len(sorted) == 0 {
		delete(c.entries[venueID], day)
		return nil
	}
	c.entries[venueID][day] = sorted
	return nil
}

// Replace atomically swaps the whole content of c with next.
// next must not be used afterwards.
func (c *Catalog) Replace(next *Catalog) {
	next.mu.Lock()
	venues, entries := next.venues, next.entries
	next.mu.Unlock()

	c.mu.Lock()
	c.venues = venues
	c.entries = entries
	c.mu.Unlock()
}

// Venue returns the venue with the given id.
func (c *Catalog) Venue(venueID string) (model.Venue, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.venues[venueID]
	if !ok {
		return model.Venue{}, &domain.NotFoundError{Kind: "venue", ID: venueID}
	}
	return cloneVenue(v), nil
}

// Venues lists all venues ordered by id.
func (c *Catalog) Venues() []model.Venue {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Venue, 0, len(c.venues))
	for _, v := range c.venues {
		out = append(out, cloneVenue(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SlotsFor returns the ordered open times of a venue on date. It is empty when
// nothing is published for that date and fails only for unknown venues.
func (c *Catalog) SlotsFor(venueID, date string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.venues[venueID]; !ok {
		return nil, &domain.NotFoundError{Kind: "venue", ID: venueID}
	}
	times := c.entries[venueID][date]
	out := make([]string, len(times))
	copy(out, times)
	return out, nil
}

// HasAnyOpenSlot reports whether the venue publishes at least one time on date.
func (c *Catalog) HasAnyOpenSlot(venueID, date string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.venues[venueID]; !ok {
		return false, &domain.NotFoundError{Kind: "venue", ID: venueID}
	}
	return len(c.entries[venueID][date]) > 0, nil
}

// Dates returns the dates with published slots for a venue, ascending.
func (c *Catalog) Dates(venueID string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.venues[venueID]; !ok {
		return nil, &domain.NotFoundError{Kind: "venue", ID: venueID}
	}
	dates := make([]string, 0, len(c.entries[venueID]))
	for d := range c.entries[venueID] {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates, nil
}

func cloneVenue(v model.Venue) model.Venue {
	if v.BlockedDates != nil {
		v.BlockedDates = append([]string(nil), v.BlockedDates...)
	}
	if v.Hours.Days != nil {
		days := make(map[time.Weekday]model.DayHours, len(v.Hours.Days))
		for d, h := range v.Hours.Days {
			days[d] = h
		}
		v.Hours.Days = days
	}
	return v
}
