package model

import (
	"fmt"
	"time"
)

// Status is the lifecycle status of a booking.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// IsActive reports whether a booking with this status occupies its slot.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

// IsValid returns true for known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// Slot identifies one appointment at a venue.
type Slot struct {
	VenueID string `json:"venue_id"`
	Date    string `json:"date"`
	Time    string `json:"time"`
}

func (s Slot) String() string {
	return fmt.Sprintf("%s %s %s", s.VenueID, s.Date, s.Time)
}

// Draft is the data a booking is created from.
type Draft struct {
	VenueID            string
	VenueName          string
	Date               string
	Time               string
	ParentName         string
	ParentEmail        string
	ParentPhone        string
	ChildName          string
	ChildAge           int
	RequestedStartDate string
	Note               string
}

// Slot returns the slot the draft asks for.
func (d *Draft) Slot() Slot {
	return Slot{VenueID: d.VenueID, Date: d.Date, Time: d.Time}
}

// Booking is a visit appointment recorded in a user's ledger.
type Booking struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	VenueID            string    `json:"venue_id"`
	VenueName          string    `json:"venue_name"`
	Date               string    `json:"date"` // YYYY-MM-DD
	Time               string    `json:"time"` // HH:MM
	ParentName         string    `json:"parent_name"`
	ParentEmail        string    `json:"parent_email"`
	ParentPhone        string    `json:"parent_phone"`
	ChildName          string    `json:"child_name"`
	ChildAge           int       `json:"child_age"`
	RequestedStartDate string    `json:"requested_start_date"`
	Note               string    `json:"note,omitempty"`
	ReferenceCode      string    `json:"reference_code"`
	Status             Status    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Slot returns the slot this booking refers to.
func (b *Booking) Slot() Slot {
	return Slot{VenueID: b.VenueID, Date: b.Date, Time: b.Time}
}

// Occupies reports whether the booking is active and holds the given slot.
func (b *Booking) Occupies(slot Slot) bool {
	return b.Status.IsActive() && b.Slot() == slot
}

// Snapshot is the whole persisted ledger of one user, in insertion order.
// Version grows by one on every successful save.
type Snapshot struct {
	UserID   string    `json:"user_id"`
	Version  int64     `json:"version,omitempty"`
	Bookings []Booking `json:"bookings"`
}

// Clone returns a deep copy that shares no backing array with s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{UserID: s.UserID, Version: s.Version}
	if s.Bookings != nil {
		out.Bookings = make([]Booking, len(s.Bookings))
		copy(out.Bookings, s.Bookings)
	}
	return out
}

// Index returns the position of the booking with the given id.
func (s Snapshot) Index(id string) (int, bool) {
	for i := range s.Bookings {
		if s.Bookings[i].ID == id {
			return i, true
		}
	}
	return -1, false
}
