package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kinderbook/internal/availability"
	"kinderbook/internal/domain"
	"kinderbook/internal/events"
	"kinderbook/internal/model"
)

// Rejection reasons published with events.WorkflowRejected.
const (
	RejectInvalidDate   = "invalid_date"
	RejectInvalidTime   = "invalid_time"
	RejectValidation    = "validation"
	RejectSlotWithdrawn = "slot_withdrawn"
	RejectSlotTaken     = "slot_taken"
	RejectWrongStep     = "wrong_step"
)

// Catalog is the venue and slot lookup used by the workflow.
type Catalog interface {
	Venue(venueID string) (model.Venue, error)
	SlotsFor(venueID, date string) ([]string, error)
	Dates(venueID string) ([]string, error)
}

// Ledger records bookings and exposes the active ones per venue.
type Ledger interface {
	Create(ctx context.Context, userID string, draft model.Draft) (model.Booking, error)
	ActiveBookings(venueID string) []model.Booking
}

// Session is one booking attempt. It is never persisted.
type Session struct {
	ID              string
	UserID          string
	VenueID         string
	Step            Step
	SelectedDate    string
	SelectedTime    string
	Form            Form
	Errors          map[string]string
	SlotUnavailable bool
	Booking         *model.Booking
	StartedAt       time.Time
	UpdatedAt       time.Time
	mu              sync.Mutex
}

// View is a read-only copy of a session for rendering.
type View struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	VenueID         string            `json:"venue_id"`
	Step            Step              `json:"step"`
	SelectedDate    string            `json:"selected_date,omitempty"`
	SelectedTime    string            `json:"selected_time,omitempty"`
	Form            Form              `json:"form"`
	Errors          map[string]string `json:"errors,omitempty"`
	SlotUnavailable bool              `json:"slot_unavailable"`
	Booking         *model.Booking    `json:"booking,omitempty"`
	ReferenceCode   string            `json:"reference_code,omitempty"`
}

// View returns a consistent copy of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	v := View{
		ID:              s.ID,
		UserID:          s.UserID,
		VenueID:         s.VenueID,
		Step:            s.Step,
		SelectedDate:    s.SelectedDate,
		SelectedTime:    s.SelectedTime,
		Form:            s.Form,
		SlotUnavailable: s.SlotUnavailable,
	}
	if len(s.Errors) > 0 {
		v.Errors = make(map[string]string, len(s.Errors))
		for k, m := range s.Errors {
			v.Errors[k] = m
		}
	}
	if s.Booking != nil {
		b := *s.Booking
		v.Booking = &b
		v.ReferenceCode = b.ReferenceCode
	}
	return v
}

// IsExpired checks if the session was idle longer than timeout.
func (s *Session) IsExpired(now time.Time, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.UpdatedAt) > timeout
}

// WorkflowOptions tune a Workflow. Zero values fall back to defaults.
type WorkflowOptions struct {
	Policy       *availability.Policy
	Validator    *Validator
	BlockedDates []string
	Now          func() time.Time
	Logger       *zerolog.Logger
	Events       events.Publisher
}

// Workflow moves sessions through date, time and details selection and
// commits the booking into the ledger on successful submission.
type Workflow struct {
	catalog   Catalog
	ledger    Ledger
	policy    *availability.Policy
	validator *Validator
	fsm       *FSM
	blocked   []string
	now       func() time.Time
	logger    zerolog.Logger
	events    events.Publisher
}

// NewWorkflow wires a workflow over catalog and ledger.
func NewWorkflow(catalog Catalog, ledger Ledger, opts WorkflowOptions) *Workflow {
	w := &Workflow{
		catalog:   catalog,
		ledger:    ledger,
		policy:    opts.Policy,
		validator: opts.Validator,
		fsm:       NewFSM(),
		blocked:   append([]string(nil), opts.BlockedDates...),
		now:       time.Now,
		logger:    zerolog.Nop(),
		events:    events.Nop{},
	}
	if w.policy == nil {
		w.policy = availability.NewPolicy(catalog)
	}
	if w.validator == nil {
		w.validator, _ = NewValidator("")
	}
	if opts.Now != nil {
		w.now = opts.Now
	}
	if opts.Logger != nil {
		w.logger = opts.Logger.With().Str("component", "workflow").Logger()
	}
	if opts.Events != nil {
		w.events = opts.Events
	}
	return w
}

// Start opens a new session for userID at venueID.
func (w *Workflow) Start(userID, venueID string) (*Session, error) {
	if userID == "" {
		verr := &domain.ValidationError{}
		verr.Add("userId", "is required")
		return nil, verr
	}
	if _, err := w.catalog.Venue(venueID); err != nil {
		return nil, err
	}

	now := w.now()
	return &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		VenueID:   venueID,
		Step:      StepSelectingDate,
		StartedAt: now,
		UpdatedAt: now,
	}, nil
}

// AvailableDates lists the dates the session may select right now.
func (w *Workflow) AvailableDates(s *Session) ([]string, error) {
	venue, err := w.catalog.Venue(s.VenueID)
	if err != nil {
		return nil, err
	}
	return w.policy.AvailableDates(&venue, w.blocked, w.ledger.ActiveBookings(venue.ID), w.now())
}

// AvailableSlots lists the times the session may select for its date.
func (w *Workflow) AvailableSlots(s *Session) ([]string, error) {
	s.mu.Lock()
	date := s.SelectedDate
	s.mu.Unlock()
	if date == "" {
		return []string{}, nil
	}

	venue, err := w.catalog.Venue(s.VenueID)
	if err != nil {
		return nil, err
	}
	return w.policy.AvailableSlots(&venue, date, w.ledger.ActiveBookings(venue.ID))
}

// SelectDate picks a date and clears any selected time.
func (w *Workflow) SelectDate(s *Session, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := w.checkStep(s, "select date", StepSelectingTime); err != nil {
		return err
	}

	venue, err := w.catalog.Venue(s.VenueID)
	if err != nil {
		return err
	}

	day, err := model.NormalizeDate(date)
	if err != nil {
		w.reject(s, RejectInvalidDate)
		return &domain.InvalidSelectionError{Field: "date", Value: date, Reason: "expected YYYY-MM-DD"}
	}

	available, err := w.policy.IsDateAvailable(&venue, day, w.blocked, w.ledger.ActiveBookings(venue.ID), w.now())
	if err != nil {
		return err
	}
	if !available {
		w.reject(s, RejectInvalidDate)
		return &domain.InvalidSelectionError{Field: "date", Value: day, Reason: "no bookable slots on this date"}
	}

	s.SelectedDate = day
	s.SelectedTime = ""
	s.SlotUnavailable = false
	s.Errors = nil
	w.move(s, StepSelectingTime)
	return nil
}

// SelectTime picks a time on the selected date.
func (w *Workflow) SelectTime(s *Session, tm string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := w.checkStep(s, "select time", StepEnteringDetails); err != nil {
		return err
	}

	venue, err := w.catalog.Venue(s.VenueID)
	if err != nil {
		return err
	}

	clock, err := model.NormalizeTime(tm)
	if err != nil {
		w.reject(s, RejectInvalidTime)
		return &domain.InvalidSelectionError{Field: "time", Value: tm, Reason: "expected HH:MM"}
	}

	available, err := w.policy.IsSlotAvailable(&venue, s.SelectedDate, clock, w.ledger.ActiveBookings(venue.ID))
	if err != nil {
		return err
	}
	if !available {
		w.reject(s, RejectInvalidTime)
		return &domain.InvalidSelectionError{Field: "time", Value: clock, Reason: "slot is not available on " + s.SelectedDate}
	}

	s.SelectedTime = clock
	s.SlotUnavailable = false
	w.move(s, StepEnteringDetails)
	return nil
}

// SubmitDetails validates form and, on success, creates the booking.
// On a lost race the session returns to time selection with the time cleared
// and SlotUnavailable set.
func (w *Workflow) SubmitDetails(ctx context.Context, s *Session, form Form) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := w.checkStep(s, "submit details", StepConfirmed); err != nil {
		return nil, err
	}

	venue, err := w.catalog.Venue(s.VenueID)
	if err != nil {
		return nil, err
	}

	form = form.Normalize()
	s.Form = form
	if verr := w.validator.Validate(form, &venue); verr != nil {
		s.Errors = verr.Map()
		s.UpdatedAt = w.now()
		w.reject(s, RejectValidation)
		return nil, verr
	}
	s.Errors = nil

	slots, err := w.catalog.SlotsFor(venue.ID, s.SelectedDate)
	if err != nil {
		return nil, err
	}
	if !contains(slots, s.SelectedTime) {
		withdrawn := s.SelectedTime
		s.SelectedTime = ""
		w.move(s, StepSelectingTime)
		w.reject(s, RejectSlotWithdrawn)
		return nil, &domain.InvalidSelectionError{Field: "time", Value: withdrawn, Reason: "slot was withdrawn"}
	}

	booking, err := w.ledger.Create(ctx, s.UserID, model.Draft{
		VenueID:            venue.ID,
		VenueName:          venue.Name,
		Date:               s.SelectedDate,
		Time:               s.SelectedTime,
		ParentName:         form.ParentName,
		ParentEmail:        form.ParentEmail,
		ParentPhone:        form.ParentPhone,
		ChildName:          form.ChildName,
		ChildAge:           form.ChildAge,
		RequestedStartDate: form.RequestedStartDate,
		Note:               form.Note,
	})
	if err != nil {
		var dup *domain.DuplicateBookingError
		if errors.As(err, &dup) {
			s.SelectedTime = ""
			s.SlotUnavailable = true
			w.move(s, StepSelectingTime)
			w.reject(s, RejectSlotTaken)
		}
		return nil, err
	}

	s.Booking = &booking
	w.move(s, StepConfirmed)
	w.logger.Info().
		Str("session_id", s.ID).
		Str("booking_id", booking.ID).
		Str("reference", booking.ReferenceCode).
		Msg("booking confirmed")

	out := booking
	return &out, nil
}

// Back returns to the previous selection step.
func (w *Workflow) Back(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := backTargets[s.Step]
	if !ok {
		w.reject(s, RejectWrongStep)
		return fmt.Errorf("%w: back from %s", domain.ErrWrongStep, s.Step)
	}

	switch target {
	case StepSelectingTime:
		s.Errors = nil
	case StepSelectingDate:
		s.SelectedDate = ""
		s.SelectedTime = ""
	}
	s.SlotUnavailable = false
	w.move(s, target)
	return nil
}

// Cancel abandons the session without touching the ledger.
func (w *Workflow) Cancel(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := w.checkStep(s, "cancel", StepCancelled); err != nil {
		return err
	}
	w.move(s, StepCancelled)
	return nil
}

func (w *Workflow) checkStep(s *Session, op string, to Step) error {
	if w.fsm.CanTransition(s.Step, to) {
		return nil
	}
	w.reject(s, RejectWrongStep)
	return fmt.Errorf("%w: %s in step %s", domain.ErrWrongStep, op, s.Step)
}

func (w *Workflow) move(s *Session, to Step) {
	w.logger.Debug().Str("session_id", s.ID).Str("from", string(s.Step)).Str("to", string(to)).Msg("step changed")
	s.Step = to
	s.UpdatedAt = w.now()
}

func (w *Workflow) reject(s *Session, reason string) {
	w.events.Publish(events.Event{Type: events.WorkflowRejected, UserID: s.UserID, Reason: reason})
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
