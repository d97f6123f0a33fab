// Package ledger keeps every user's bookings and enforces slot exclusivity.
package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kinderbook/internal/domain"
	"kinderbook/internal/events"
	"kinderbook/internal/model"
)

const (
	defaultTimeout           = 5 * time.Second
	defaultReferenceAttempts = 10
)

// Storage persists whole per-user snapshots. Load of an unknown user returns an
// empty snapshot and no error.
type Storage interface {
	Load(ctx context.Context, userID string) (model.Snapshot, error)
	Save(ctx context.Context, userID string, snapshot model.Snapshot) error
}

// UserLister is implemented by storages that can enumerate stored users.
type UserLister interface {
	Users(ctx context.Context) ([]string, error)
}

// Options tune a Ledger. Zero values fall back to defaults.
type Options struct {
	Logger            *zerolog.Logger
	Now               func() time.Time
	Timeout           time.Duration
	NewID             func() string
	NewReference      func() string
	ReferenceAttempts int
	Events            events.Publisher
}

// Ledger is the single serialization point for booking mutations. Every
// mutation saves the resulting snapshot first and updates memory only after
// the save succeeded.
type Ledger struct {
	storage  Storage
	logger   zerolog.Logger
	now      func() time.Time
	timeout  time.Duration
	newID    func() string
	newRef   func() string
	attempts int
	events   events.Publisher

	mu        sync.Mutex
	snapshots map[string]model.Snapshot
	owners    map[string]string // booking id -> user id
	codes     map[string]string // reference code -> booking id
}

// New creates a ledger on top of storage.
func New(storage Storage, opts Options) *Ledger {
	l := &Ledger{
		storage:   storage,
		logger:    zerolog.Nop(),
		now:       time.Now,
		timeout:   defaultTimeout,
		newID:     uuid.NewString,
		newRef:    NewReferenceCode,
		attempts:  defaultReferenceAttempts,
		events:    events.Nop{},
		snapshots: make(map[string]model.Snapshot),
		owners:    make(map[string]string),
		codes:     make(map[string]string),
	}
	if opts.Logger != nil {
		l.logger = opts.Logger.With().Str("component", "ledger").Logger()
	}
	if opts.Now != nil {
		l.now = opts.Now
	}
	if opts.Timeout > 0 {
		l.timeout = opts.Timeout
	}
	if opts.NewID != nil {
		l.newID = opts.NewID
	}
	if opts.NewReference != nil {
		l.newRef = opts.NewReference
	}
	if opts.ReferenceAttempts > 0 {
		l.attempts = opts.ReferenceAttempts
	}
	if opts.Events != nil {
		l.events = opts.Events
	}
	return l
}

// Open loads the snapshot of every stored user so that the duplicate check
// sees all active bookings. Storages without a user listing are loaded lazily.
func (l *Ledger) Open(ctx context.Context) error {
	lister, ok := l.storage.(UserLister)
	if !ok {
		l.logger.Warn().Msg("storage cannot list users, snapshots are loaded on demand")
		return nil
	}

	listCtx, cancel := context.WithTimeout(ctx, l.timeout)
	users, err := lister.Users(listCtx)
	cancel()
	if err != nil {
		return l.storageErr("list", "*", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, userID := range users {
		if _, err := l.snapshotLocked(ctx, userID); err != nil {
			return err
		}
	}
	l.logger.Info().Int("users", len(users)).Int("bookings", len(l.owners)).Msg("ledger loaded")
	return nil
}

// Create records a new pending booking for userID. It fails with
// DuplicateBookingError when any active booking already holds the slot.
func (l *Ledger) Create(ctx context.Context, userID string, draft model.Draft) (model.Booking, error) {
	if err := checkDraft(userID, &draft); err != nil {
		return model.Booking{}, err
	}

	l.mu.Lock()
	booking, err := l.createLocked(ctx, userID, &draft)
	l.mu.Unlock()
	if err != nil {
		var dup *domain.DuplicateBookingError
		if errors.As(err, &dup) {
			l.events.Publish(events.Event{Type: events.SlotRaceLost, UserID: userID, Err: err})
		}
		return model.Booking{}, err
	}

	l.logger.Info().
		Str("booking_id", booking.ID).
		Str("user_id", userID).
		Str("slot", booking.Slot().String()).
		Str("reference", booking.ReferenceCode).
		Msg("booking created")
	l.events.Publish(events.Event{Type: events.BookingCreated, UserID: userID, Booking: &booking})
	return booking, nil
}

func (l *Ledger) createLocked(ctx context.Context, userID string, draft *model.Draft) (model.Booking, error) {
	snap, err := l.snapshotLocked(ctx, userID)
	if err != nil {
		return model.Booking{}, err
	}

	slot := draft.Slot()
	if holder, ok := l.activeHolderLocked(slot, ""); ok {
		l.logger.Debug().Str("slot", slot.String()).Str("holder", holder.ID).Msg("slot already taken")
		return model.Booking{}, &domain.DuplicateBookingError{VenueID: slot.VenueID, Date: slot.Date, Time: slot.Time}
	}

	code, err := l.referenceLocked()
	if err != nil {
		return model.Booking{}, err
	}

	now := l.now().UTC()
	booking := model.Booking{
		ID:                 l.newID(),
		UserID:             userID,
		VenueID:            draft.VenueID,
		VenueName:          draft.VenueName,
		Date:               draft.Date,
		Time:               draft.Time,
		ParentName:         draft.ParentName,
		ParentEmail:        draft.ParentEmail,
		ParentPhone:        draft.ParentPhone,
		ChildName:          draft.ChildName,
		ChildAge:           draft.ChildAge,
		RequestedStartDate: draft.RequestedStartDate,
		Note:               draft.Note,
		ReferenceCode:      code,
		Status:             model.StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	next := snap.Clone()
	next.Bookings = append(next.Bookings, booking)
	if err := l.saveLocked(ctx, userID, next); err != nil {
		return model.Booking{}, err
	}
	l.owners[booking.ID] = userID
	l.codes[booking.ReferenceCode] = booking.ID
	return booking, nil
}

// Cancel marks a booking cancelled. Cancelling a cancelled booking is a no-op.
func (l *Ledger) Cancel(ctx context.Context, bookingID string) (model.Booking, error) {
	return l.transition(ctx, bookingID, events.BookingCancelled, func(b *model.Booking) (bool, error) {
		if b.Status == model.StatusCancelled {
			return false, nil
		}
		b.Status = model.StatusCancelled
		return true, nil
	})
}

// Reactivate returns a cancelled booking to pending. It fails with
// ConflictError when another active booking took the slot meanwhile.
func (l *Ledger) Reactivate(ctx context.Context, bookingID string) (model.Booking, error) {
	return l.transition(ctx, bookingID, events.BookingReactivated, func(b *model.Booking) (bool, error) {
		if b.Status.IsActive() {
			return false, nil
		}
		if holder, ok := l.activeHolderLocked(b.Slot(), b.ID); ok {
			return false, &domain.ConflictError{BookingID: b.ID, ConflictingID: holder.ID}
		}
		b.Status = model.StatusPending
		return true, nil
	})
}

// Confirm accepts a pending booking. Confirming a confirmed booking is a no-op.
func (l *Ledger) Confirm(ctx context.Context, bookingID string) (model.Booking, error) {
	return l.transition(ctx, bookingID, events.BookingConfirmed, func(b *model.Booking) (bool, error) {
		switch b.Status {
		case model.StatusConfirmed:
			return false, nil
		case model.StatusCancelled:
			return false, &domain.ConflictError{BookingID: b.ID, Reason: "cancelled bookings cannot be confirmed"}
		}
		b.Status = model.StatusConfirmed
		return true, nil
	})
}

// transition applies mutate to a copy of the booking and persists it when
// mutate reports a change.
func (l *Ledger) transition(ctx context.Context, bookingID, eventType string, mutate func(*model.Booking) (bool, error)) (model.Booking, error) {
	l.mu.Lock()
	userID, ok := l.owners[bookingID]
	if !ok {
		l.mu.Unlock()
		return model.Booking{}, &domain.NotFoundError{Kind: "booking", ID: bookingID}
	}

	snap := l.snapshots[userID]
	idx, _ := snap.Index(bookingID)
	next := snap.Clone()
	booking := &next.Bookings[idx]

	changed, err := mutate(booking)
	if err != nil || !changed {
		out := *booking
		l.mu.Unlock()
		return out, err
	}

	booking.UpdatedAt = l.now().UTC()
	if err := l.saveLocked(ctx, userID, next); err != nil {
		l.mu.Unlock()
		return model.Booking{}, err
	}
	out := *booking
	l.mu.Unlock()

	l.logger.Info().Str("booking_id", out.ID).Str("status", string(out.Status)).Msg("booking updated")
	l.events.Publish(events.Event{Type: eventType, UserID: userID, Booking: &out})
	return out, nil
}

// Get returns the booking with the given id.
func (l *Ledger) Get(bookingID string) (model.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	userID, ok := l.owners[bookingID]
	if !ok {
		return model.Booking{}, &domain.NotFoundError{Kind: "booking", ID: bookingID}
	}
	snap := l.snapshots[userID]
	idx, _ := snap.Index(bookingID)
	return snap.Bookings[idx], nil
}

// List returns a copy of the user's bookings, most recent first.
func (l *Ledger) List(ctx context.Context, userID string) ([]model.Booking, error) {
	l.mu.Lock()
	snap, err := l.snapshotLocked(ctx, userID)
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]model.Booking, 0, len(snap.Bookings))
	for i := len(snap.Bookings) - 1; i >= 0; i-- {
		out = append(out, snap.Bookings[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ActiveBookings returns every active booking at the venue across loaded users.
func (l *Ledger) ActiveBookings(venueID string) []model.Booking {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []model.Booking
	for _, snap := range l.snapshots {
		for _, b := range snap.Bookings {
			if b.VenueID == venueID && b.Status.IsActive() {
				out = append(out, b)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out
}

// snapshotLocked returns the cached snapshot of userID, loading it on first use.
func (l *Ledger) snapshotLocked(ctx context.Context, userID string) (model.Snapshot, error) {
	if snap, ok := l.snapshots[userID]; ok {
		return snap, nil
	}

	loadCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	snap, err := l.storage.Load(loadCtx, userID)
	if err != nil {
		return model.Snapshot{}, l.storageErr("load", userID, err)
	}
	snap.UserID = userID

	for _, b := range snap.Bookings {
		l.owners[b.ID] = userID
		if b.ReferenceCode != "" {
			l.codes[b.ReferenceCode] = b.ID
		}
	}
	l.snapshots[userID] = snap
	return snap, nil
}

func (l *Ledger) saveLocked(ctx context.Context, userID string, next model.Snapshot) error {
	next.Version++
	saveCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.storage.Save(saveCtx, userID, next); err != nil {
		return l.storageErr("save", userID, err)
	}
	l.snapshots[userID] = next
	return nil
}

// activeHolderLocked finds an active booking on slot other than excludeID.
func (l *Ledger) activeHolderLocked(slot model.Slot, excludeID string) (model.Booking, bool) {
	for _, snap := range l.snapshots {
		for _, b := range snap.Bookings {
			if b.ID != excludeID && b.Occupies(slot) {
				return b, true
			}
		}
	}
	return model.Booking{}, false
}

func (l *Ledger) referenceLocked() (string, error) {
	for i := 0; i < l.attempts; i++ {
		code := l.newRef()
		if _, taken := l.codes[code]; !taken && code != "" {
			return code, nil
		}
		l.logger.Debug().Str("code", code).Int("attempt", i+1).Msg("reference code collision")
	}
	return "", domain.ErrReferenceExhausted
}

func (l *Ledger) storageErr(op, userID string, err error) error {
	l.logger.Error().Err(err).Str("op", op).Str("user_id", userID).Msg("storage failure")
	l.events.Publish(events.Event{Type: events.StorageFailed, UserID: userID, Reason: op, Err: err})
	return &domain.StorageError{Op: op, UserID: userID, Err: err}
}

// checkDraft validates d and rewrites its date and time into canonical form so
// that slot comparisons are exact.
func checkDraft(userID string, d *model.Draft) error {
	verr := &domain.ValidationError{}
	if userID == "" {
		verr.Add("userId", "is required")
	}
	if d.VenueID == "" {
		verr.Add("venueId", "is required")
	}
	if date, err := model.NormalizeDate(d.Date); err != nil {
		verr.Add("date", "must be a date in YYYY-MM-DD format")
	} else {
		d.Date = date
	}
	if clock, err := model.NormalizeTime(d.Time); err != nil {
		verr.Add("time", "must be a time in HH:MM format")
	} else {
		d.Time = clock
	}
	if verr.Empty() {
		return nil
	}
	return verr
}
