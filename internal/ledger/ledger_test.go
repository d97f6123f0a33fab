package ledger

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kinderbook/internal/domain"
	"kinderbook/internal/events"
	"kinderbook/internal/model"
	"kinderbook/internal/storage"
)

// flakyStorage fails saves while failSave is set.
type flakyStorage struct {
	*storage.Memory
	failSave atomic.Bool
	saves    atomic.Int32
}

func (f *flakyStorage) Save(ctx context.Context, userID string, snap model.Snapshot) error {
	f.saves.Add(1)
	if f.failSave.Load() {
		return errors.New("disk unavailable")
	}
	return f.Memory.Save(ctx, userID, snap)
}

// blockingStorage never answers before the context expires.
type blockingStorage struct{}

func (blockingStorage) Load(ctx context.Context, _ string) (model.Snapshot, error) {
	<-ctx.Done()
	return model.Snapshot{}, ctx.Err()
}

func (blockingStorage) Save(ctx context.Context, _ string, _ model.Snapshot) error {
	<-ctx.Done()
	return ctx.Err()
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fixedClock {
	return &fixedClock{now: time.Date(2025, 3, 18, 9, 0, 0, 0, time.UTC)}
}

func draft(tm string) model.Draft {
	return model.Draft{
		VenueID:            "V1",
		VenueName:          "Sunshine Kindergarten",
		Date:               "2025-03-20",
		Time:               tm,
		ParentName:         "Maria Georgiou",
		ParentEmail:        "maria@example.com",
		ParentPhone:        "+357 991 23456",
		ChildName:          "Eleni",
		ChildAge:           3,
		RequestedStartDate: "2025-09-01",
	}
}

func TestLedger_Create(t *testing.T) {
	clock := newClock()
	l := New(storage.NewMemory(), Options{Now: clock.Now})
	ctx := context.Background()

	b, err := l.Create(ctx, "u1", draft("11:00"))
	require.NoError(t, err)

	assert.NotEmpty(t, b.ID)
	assert.Equal(t, "u1", b.UserID)
	assert.Equal(t, model.StatusPending, b.Status)
	assert.Equal(t, "Sunshine Kindergarten", b.VenueName)
	assert.Equal(t, clock.Now(), b.CreatedAt)
	assert.Equal(t, b.CreatedAt, b.UpdatedAt)
	assert.Regexp(t, regexp.MustCompile(`^[0-9A-Z]{8}$`), b.ReferenceCode)

	got, err := l.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestLedger_DuplicateSlotUnpaddedTime(t *testing.T) {
	l := New(storage.NewMemory(), Options{})
	ctx := context.Background()

	first, err := l.Create(ctx, "u1", draft("09:00"))
	require.NoError(t, err)

	_, err = l.Create(ctx, "u2", draft("9:00"))
	var dup *domain.DuplicateBookingError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "09:00", dup.Time)

	active := l.ActiveBookings("V1")
	require.Len(t, active, 1)
	assert.Equal(t, first.ID, active[0].ID)
}

func TestLedger_CreateStoresCanonicalTime(t *testing.T) {
	l := New(storage.NewMemory(), Options{})

	b, err := l.Create(context.Background(), "u1", draft("9:05"))
	require.NoError(t, err)
	assert.Equal(t, "09:05", b.Time)
	assert.Equal(t, "2025-03-20", b.Date)
}

func TestLedger_CreateRejectsIncompleteDraft(t *testing.T) {
	l := New(storage.NewMemory(), Options{})

	_, err := l.Create(context.Background(), "", model.Draft{Date: "20.03.2025", Time: "25:00"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"date", "time", "userId", "venueId"}, verr.FieldNames())
}

func TestLedger_DuplicateSlot(t *testing.T) {
	bus := events.NewEventBus(nil)
	var raceLost atomic.Int32
	bus.Subscribe(func(events.Event) error {
		raceLost.Add(1)
		return nil
	}, events.SlotRaceLost)

	l := New(storage.NewMemory(), Options{Events: bus})
	ctx := context.Background()

	first, err := l.Create(ctx, "u1", draft("11:00"))
	require.NoError(t, err)

	_, err = l.Create(ctx, "u2", draft("11:00"))
	var dup *domain.DuplicateBookingError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "11:00", dup.Time)
	assert.False(t, domain.IsRetryable(err))
	assert.Equal(t, int32(1), raceLost.Load())

	active := l.ActiveBookings("V1")
	require.Len(t, active, 1)
	assert.Equal(t, first.ID, active[0].ID)

	// Same time on another date or venue is free.
	other := draft("11:00")
	other.Date = "2025-03-21"
	_, err = l.Create(ctx, "u2", other)
	assert.NoError(t, err)

	// A cancelled booking releases its slot.
	_, err = l.Cancel(ctx, first.ID)
	require.NoError(t, err)
	_, err = l.Create(ctx, "u2", draft("11:00"))
	assert.NoError(t, err)
}

func TestLedger_ConcurrentCreate(t *testing.T) {
	l := New(storage.NewMemory(), Options{})
	ctx := context.Background()

	const racers = 25
	var (
		wg         sync.WaitGroup
		successes  atomic.Int32
		duplicates atomic.Int32
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Create(ctx, fmt.Sprintf("u%d", i), draft("11:00"))
			var dup *domain.DuplicateBookingError
			switch {
			case err == nil:
				successes.Add(1)
			case errors.As(err, &dup):
				duplicates.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(racers-1), duplicates.Load())
	assert.Len(t, l.ActiveBookings("V1"), 1)
}

func TestLedger_CancelAndReactivate(t *testing.T) {
	clock := newClock()
	l := New(storage.NewMemory(), Options{Now: clock.Now})
	ctx := context.Background()

	b, err := l.Create(ctx, "u1", draft("11:00"))
	require.NoError(t, err)

	clock.Advance(time.Hour)
	cancelled, err := l.Cancel(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	assert.Equal(t, clock.Now(), cancelled.UpdatedAt)

	clock.Advance(time.Hour)
	again, err := l.Cancel(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, cancelled, again, "cancel is idempotent")

	reactivated, err := l.Reactivate(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, reactivated.Status)
	assert.Equal(t, b.ReferenceCode, reactivated.ReferenceCode)

	same, err := l.Reactivate(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, reactivated, same, "reactivate is idempotent")
}

func TestLedger_ReactivateConflict(t *testing.T) {
	l := New(storage.NewMemory(), Options{})
	ctx := context.Background()

	original, err := l.Create(ctx, "u1", draft("11:00"))
	require.NoError(t, err)
	_, err = l.Cancel(ctx, original.ID)
	require.NoError(t, err)

	reclaimed, err := l.Create(ctx, "u2", draft("11:00"))
	require.NoError(t, err)

	_, err = l.Reactivate(ctx, original.ID)
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, original.ID, conflict.BookingID)
	assert.Equal(t, reclaimed.ID, conflict.ConflictingID)

	got, err := l.Get(original.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	got, err = l.Get(reclaimed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestLedger_Confirm(t *testing.T) {
	l := New(storage.NewMemory(), Options{})
	ctx := context.Background()

	b, err := l.Create(ctx, "u1", draft("11:00"))
	require.NoError(t, err)

	confirmed, err := l.Confirm(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, confirmed.Status)

	again, err := l.Confirm(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, confirmed, again)

	// Confirmed bookings still occupy the slot.
	_, err = l.Create(ctx, "u2", draft("11:00"))
	var dup *domain.DuplicateBookingError
	assert.ErrorAs(t, err, &dup)

	_, err = l.Cancel(ctx, b.ID)
	require.NoError(t, err)
	_, err = l.Confirm(ctx, b.ID)
	var conflict *domain.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestLedger_UnknownBooking(t *testing.T) {
	l := New(storage.NewMemory(), Options{})
	ctx := context.Background()

	for name, op := range map[string]func(context.Context, string) (model.Booking, error){
		"cancel":     l.Cancel,
		"reactivate": l.Reactivate,
		"confirm":    l.Confirm,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := op(ctx, "missing")
			assert.True(t, domain.IsNotFound(err))
		})
	}
	_, err := l.Get("missing")
	assert.True(t, domain.IsNotFound(err))
}

func TestLedger_ReferenceCollision(t *testing.T) {
	codes := []string{"AAAAAAAA", "AAAAAAAA", "AAAAAAAA", "BBBBBBBB"}
	var i int
	next := func() string {
		c := codes[i]
		i++
		return c
	}
	l := New(storage.NewMemory(), Options{NewReference: next})
	ctx := context.Background()

	first, err := l.Create(ctx, "u1", draft("10:00"))
	require.NoError(t, err)
	second, err := l.Create(ctx, "u1", draft("11:00"))
	require.NoError(t, err)

	assert.Equal(t, "AAAAAAAA", first.ReferenceCode)
	assert.Equal(t, "BBBBBBBB", second.ReferenceCode)
}

func TestLedger_ReferenceExhausted(t *testing.T) {
	l := New(storage.NewMemory(), Options{
		NewReference:      func() string { return "AAAAAAAA" },
		ReferenceAttempts: 3,
	})
	ctx := context.Background()

	_, err := l.Create(ctx, "u1", draft("10:00"))
	require.NoError(t, err)

	_, err = l.Create(ctx, "u1", draft("11:00"))
	assert.ErrorIs(t, err, domain.ErrReferenceExhausted)

	list, err := l.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestLedger_StorageFailureLeavesNoTrace(t *testing.T) {
	store := &flakyStorage{Memory: storage.NewMemory()}
	l := New(store, Options{})
	ctx := context.Background()

	b, err := l.Create(ctx, "u1", draft("10:00"))
	require.NoError(t, err)

	store.failSave.Store(true)

	_, err = l.Create(ctx, "u1", draft("11:00"))
	var serr *domain.StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "save", serr.Op)
	assert.True(t, domain.IsRetryable(err))

	_, err = l.Cancel(ctx, b.ID)
	require.ErrorAs(t, err, &serr)

	list, err := l.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.StatusPending, list[0].Status)
	assert.Len(t, l.ActiveBookings("V1"), 1)

	// The failed slot was never taken, so a retry succeeds.
	store.failSave.Store(false)
	_, err = l.Create(ctx, "u1", draft("11:00"))
	assert.NoError(t, err)

	persisted, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, persisted.Bookings, 2)
	// Failed saves do not consume a version.
	assert.Equal(t, int64(2), persisted.Version)
}

func TestLedger_StorageTimeout(t *testing.T) {
	l := New(blockingStorage{}, Options{Timeout: 20 * time.Millisecond})

	_, err := l.Create(context.Background(), "u1", draft("10:00"))
	var serr *domain.StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "load", serr.Op)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLedger_OpenWarmsAllUsers(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()

	seed := New(store, Options{})
	b, err := seed.Create(ctx, "u1", draft("11:00"))
	require.NoError(t, err)

	l := New(store, Options{})
	require.NoError(t, l.Open(ctx))

	_, err = l.Create(ctx, "u2", draft("11:00"))
	var dup *domain.DuplicateBookingError
	assert.ErrorAs(t, err, &dup)

	cancelled, err := l.Cancel(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
}

func TestLedger_ListMostRecentFirst(t *testing.T) {
	clock := newClock()
	l := New(storage.NewMemory(), Options{Now: clock.Now})
	ctx := context.Background()

	a, err := l.Create(ctx, "u1", draft("09:00"))
	require.NoError(t, err)
	clock.Advance(time.Minute)
	b, err := l.Create(ctx, "u1", draft("10:00"))
	require.NoError(t, err)
	// Same timestamp as b: insertion order breaks the tie.
	c, err := l.Create(ctx, "u1", draft("11:00"))
	require.NoError(t, err)
	_, err = l.Create(ctx, "u2", draft("14:00"))
	require.NoError(t, err)

	list, err := l.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{c.ID, b.ID, a.ID}, []string{list[0].ID, list[1].ID, list[2].ID})

	list[0].Status = model.StatusCancelled
	got, err := l.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status, "list is a copy")

	empty, err := l.List(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLedger_PublishesEvents(t *testing.T) {
	bus := events.NewEventBus(nil)
	var seen []string
	var mu sync.Mutex
	bus.Subscribe(func(e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.Type)
		return nil
	}, events.BookingCreated, events.BookingCancelled, events.BookingReactivated, events.BookingConfirmed, events.StorageFailed)

	store := &flakyStorage{Memory: storage.NewMemory()}
	l := New(store, Options{Events: bus})
	ctx := context.Background()

	b, err := l.Create(ctx, "u1", draft("11:00"))
	require.NoError(t, err)
	_, err = l.Cancel(ctx, b.ID)
	require.NoError(t, err)
	_, err = l.Cancel(ctx, b.ID) // no-op, no event
	require.NoError(t, err)
	_, err = l.Reactivate(ctx, b.ID)
	require.NoError(t, err)
	_, err = l.Confirm(ctx, b.ID)
	require.NoError(t, err)

	store.failSave.Store(true)
	_, err = l.Cancel(ctx, b.ID)
	require.Error(t, err)

	assert.Equal(t, []string{
		events.BookingCreated,
		events.BookingCancelled,
		events.BookingReactivated,
		events.BookingConfirmed,
		events.StorageFailed,
	}, seen)
}

func TestNewReferenceCode(t *testing.T) {
	re := regexp.MustCompile(`^[0-9A-Z]{8}$`)
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		code := NewReferenceCode()
		require.Regexp(t, re, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 990)
}
