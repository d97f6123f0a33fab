package api

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"kinderbook/internal/booking"
	"kinderbook/internal/domain"
	"kinderbook/internal/export"
	"kinderbook/internal/model"
)

// VenueResponse is a venue in API responses.
type VenueResponse struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Address      string         `json:"address"`
	MinChildAge  int            `json:"min_child_age"`
	MaxChildAge  int            `json:"max_child_age"`
	BlockedDates []string       `json:"blocked_dates,omitempty"`
	Hours        map[string]any `json:"hours,omitempty"`
}

// DatesResponse is the response for GET /api/venues/{id}/dates.
type DatesResponse struct {
	VenueID string   `json:"venue_id"`
	AsOf    string   `json:"as_of"`
	Dates   []string `json:"dates"`
}

// SlotsResponse is the response for GET /api/venues/{id}/slots.
type SlotsResponse struct {
	VenueID string   `json:"venue_id"`
	Date    string   `json:"date"`
	Slots   []string `json:"slots"`
}

// StartSessionRequest is the request body for POST /api/sessions.
type StartSessionRequest struct {
	UserID  string `json:"user_id"`
	VenueID string `json:"venue_id"`
}

// SessionResponse is a session with the choices valid in its current step.
type SessionResponse struct {
	booking.View
	AvailableDates []string `json:"available_dates,omitempty"`
	AvailableSlots []string `json:"available_slots,omitempty"`
}

// SelectDateRequest is the request body for POST /api/sessions/{id}/date.
type SelectDateRequest struct {
	Date string `json:"date"` // Format: YYYY-MM-DD
}

// SelectTimeRequest is the request body for POST /api/sessions/{id}/time.
type SelectTimeRequest struct {
	Time string `json:"time"` // Format: HH:MM
}

// BookingsResponse is the response for GET /api/users/{id}/bookings.
type BookingsResponse struct {
	UserID   string          `json:"user_id"`
	Bookings []model.Booking `json:"bookings"`
}

// handleVenues lists venues.
// GET /api/venues
func (s *HTTPServer) handleVenues(w http.ResponseWriter, _ *http.Request) {
	venues := s.Catalog.Venues()
	out := make([]VenueResponse, 0, len(venues))
	for i := range venues {
		out = append(out, venueResponse(&venues[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"venues": out})
}

func venueResponse(v *model.Venue) VenueResponse {
	resp := VenueResponse{
		ID:           v.ID,
		Name:         v.Name,
		Address:      v.Address,
		MinChildAge:  v.MinChildAge,
		MaxChildAge:  v.MaxChildAge,
		BlockedDates: v.BlockedDates,
	}
	if len(v.Hours.Days) > 0 {
		resp.Hours = make(map[string]any, len(v.Hours.Days))
		for day, h := range v.Hours.Days {
			resp.Hours[day.String()] = h
		}
	}
	return resp
}

// handleVenueDates returns the bookable dates of a venue.
// GET /api/venues/{id}/dates?as_of=RFC3339
func (s *HTTPServer) handleVenueDates(w http.ResponseWriter, r *http.Request) {
	venue, err := s.Catalog.Venue(r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err, nil)
		return
	}

	asOf := s.now()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		asOf, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid as_of format; expected RFC3339")
			return
		}
	}

	dates, err := s.Policy.AvailableDates(&venue, s.blocked, s.Ledger.ActiveBookings(venue.ID), asOf)
	if err != nil {
		s.writeDomainError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, DatesResponse{VenueID: venue.ID, AsOf: asOf.Format(time.RFC3339), Dates: dates})
}

// handleVenueSlots returns the free times of a venue on a date.
// GET /api/venues/{id}/slots?date=YYYY-MM-DD
func (s *HTTPServer) handleVenueSlots(w http.ResponseWriter, r *http.Request) {
	venue, err := s.Catalog.Venue(r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err, nil)
		return
	}

	date, err := model.NormalizeDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	slots, err := s.Policy.AvailableSlots(&venue, date, s.Ledger.ActiveBookings(venue.ID))
	if err != nil {
		s.writeDomainError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, SlotsResponse{VenueID: venue.ID, Date: date, Slots: slots})
}

// handleStartSession opens a booking session.
// POST /api/sessions
func (s *HTTPServer) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	session, err := s.Workflow.Start(req.UserID, req.VenueID)
	if err != nil {
		s.writeDomainError(w, err, nil)
		return
	}
	s.Sessions.Put(session)
	s.writeSession(w, http.StatusCreated, session)
}

// handleGetSession returns a session and its current choices.
// GET /api/sessions/{id}
func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	s.writeSession(w, http.StatusOK, session)
}

// handleAbandonSession cancels a session without any booking.
// DELETE /api/sessions/{id}
func (s *HTTPServer) handleAbandonSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := s.Workflow.Cancel(session); err != nil {
		s.writeDomainError(w, err, session)
		return
	}
	s.Sessions.Delete(session.ID)
	writeJSON(w, http.StatusOK, session.View())
}

// POST /api/sessions/{id}/date
func (s *HTTPServer) handleSelectDate(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	var req SelectDateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.Workflow.SelectDate(session, req.Date); err != nil {
		s.writeDomainError(w, err, session)
		return
	}
	s.writeSession(w, http.StatusOK, session)
}

// POST /api/sessions/{id}/time
func (s *HTTPServer) handleSelectTime(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	var req SelectTimeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.Workflow.SelectTime(session, req.Time); err != nil {
		s.writeDomainError(w, err, session)
		return
	}
	s.writeSession(w, http.StatusOK, session)
}

// handleSubmitDetails validates the form and creates the booking.
// POST /api/sessions/{id}/details
func (s *HTTPServer) handleSubmitDetails(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	var form booking.Form
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, err := s.Workflow.SubmitDetails(r.Context(), session, form); err != nil {
		s.writeDomainError(w, err, session)
		return
	}
	s.writeSession(w, http.StatusCreated, session)
}

// POST /api/sessions/{id}/back
func (s *HTTPServer) handleBack(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := s.Workflow.Back(session); err != nil {
		s.writeDomainError(w, err, session)
		return
	}
	s.writeSession(w, http.StatusOK, session)
}

// handleUserBookings lists a user's bookings, most recent first.
// GET /api/users/{id}/bookings
func (s *HTTPServer) handleUserBookings(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	bookings, err := s.Ledger.List(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, BookingsResponse{UserID: userID, Bookings: bookings})
}

// handleUserBookingsExport downloads a user's bookings as a workbook.
// GET /api/users/{id}/bookings.xlsx
func (s *HTTPServer) handleUserBookingsExport(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	bookings, err := s.Ledger.List(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, err, nil)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteBookings(&buf, bookings); err != nil {
		s.writeDomainError(w, err, nil)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(userID, s.now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleBookingAction applies a status change to a booking.
// POST /api/bookings/{id}/cancel|reactivate|confirm
func (s *HTTPServer) handleBookingAction(action func(Ledger, context.Context, string) (model.Booking, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := action(s.Ledger, r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeDomainError(w, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

func (s *HTTPServer) session(w http.ResponseWriter, r *http.Request) (*booking.Session, bool) {
	id := r.PathValue("id")
	session := s.Sessions.Get(id)
	if session == nil {
		s.writeDomainError(w, &domain.NotFoundError{Kind: "session", ID: id}, nil)
		return nil, false
	}
	return session, true
}

func (s *HTTPServer) writeSession(w http.ResponseWriter, status int, session *booking.Session) {
	resp := SessionResponse{View: session.View()}

	var err error
	switch resp.Step {
	case booking.StepSelectingDate:
		resp.AvailableDates, err = s.Workflow.AvailableDates(session)
	case booking.StepSelectingTime:
		resp.AvailableSlots, err = s.Workflow.AvailableSlots(session)
	}
	if err != nil {
		s.writeDomainError(w, err, session)
		return
	}
	writeJSON(w, status, resp)
}
