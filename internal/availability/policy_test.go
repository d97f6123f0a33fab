package availability

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kinderbook/internal/catalog"
	"kinderbook/internal/domain"
	"kinderbook/internal/model"
)

func weekdayHours() model.OperatingHours {
	days := make(map[time.Weekday]model.DayHours)
	for wd := time.Monday; wd <= time.Friday; wd++ {
		days[wd] = model.DayHours{Open: "07:30", Close: "18:00"}
	}
	return model.OperatingHours{Days: days}
}

func setup(t *testing.T) (*catalog.Catalog, model.Venue) {
	t.Helper()
	venue := model.Venue{
		ID:           "V1",
		Name:         "Sunshine Kindergarten",
		Hours:        weekdayHours(),
		BlockedDates: []string{"2025-03-24"},
	}
	cat := catalog.New()
	cat.AddVenue(venue)
	for date, times := range map[string][]string{
		"2025-03-18": {"09:00", "10:00"},
		"2025-03-20": {"10:00", "11:00", "14:00"},
		"2025-03-21": {"10:00", "11:00"},
		"2025-03-22": {"09:00", "10:00"}, // Saturday
		"2025-03-24": {"10:00"},          // blocked by venue
		"2025-03-25": {"10:00"},          // blocked by caller
		"2025-03-26": {"10:00"},          // fully booked
	} {
		require.NoError(t, cat.Publish(venue.ID, date, times))
	}
	return cat, venue
}

func booking(id, date, tm string, status model.Status) model.Booking {
	return model.Booking{ID: id, VenueID: "V1", Date: date, Time: tm, Status: status}
}

func TestAvailableSlots_Scenario(t *testing.T) {
	cat, venue := setup(t)
	policy := NewPolicy(cat)

	slots, err := policy.AvailableSlots(&venue, "2025-03-20", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "11:00", "14:00"}, slots)

	existing := []model.Booking{booking("b1", "2025-03-20", "11:00", model.StatusPending)}
	slots, err = policy.AvailableSlots(&venue, "2025-03-20", existing)
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "14:00"}, slots)
}

func TestAvailableSlots_StatusAndScope(t *testing.T) {
	cat, venue := setup(t)
	policy := NewPolicy(cat)

	existing := []model.Booking{
		booking("b1", "2025-03-20", "10:00", model.StatusConfirmed),
		booking("b2", "2025-03-20", "11:00", model.StatusCancelled),
		booking("b3", "2025-03-21", "14:00", model.StatusPending),
		{ID: "b4", VenueID: "V2", Date: "2025-03-20", Time: "14:00", Status: model.StatusPending},
	}

	slots, err := policy.AvailableSlots(&venue, "2025-03-20", existing)
	require.NoError(t, err)
	assert.Equal(t, []string{"11:00", "14:00"}, slots)

	slots, err = policy.AvailableSlots(&venue, "2025-04-01", existing)
	require.NoError(t, err)
	assert.Empty(t, slots)

	unknown := model.Venue{ID: "V404"}
	_, err = policy.AvailableSlots(&unknown, "2025-03-20", nil)
	assert.True(t, domain.IsNotFound(err))
}

func TestAvailableDates(t *testing.T) {
	cat, venue := setup(t)
	existing := []model.Booking{booking("b1", "2025-03-26", "10:00", model.StatusPending)}
	blocked := []string{"2025-03-25"}

	tests := []struct {
		name string
		opts []Option
		asOf time.Time
		want []string
	}{
		{
			name: "morning keeps today",
			asOf: time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC),
			want: []string{"2025-03-20", "2025-03-21"},
		},
		{
			name: "after closing drops today",
			asOf: time.Date(2025, 3, 20, 18, 30, 0, 0, time.UTC),
			want: []string{"2025-03-21"},
		},
		{
			name: "exactly at closing drops today",
			asOf: time.Date(2025, 3, 20, 18, 0, 0, 0, time.UTC),
			want: []string{"2025-03-21"},
		},
		{
			name: "earlier asOf includes older dates",
			asOf: time.Date(2025, 3, 17, 12, 0, 0, 0, time.UTC),
			want: []string{"2025-03-18", "2025-03-20", "2025-03-21"},
		},
		{
			name: "custom predicate opens weekends",
			opts: []Option{WithClosedDays(func(*model.Venue, time.Time) bool { return false })},
			asOf: time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC),
			want: []string{"2025-03-20", "2025-03-21", "2025-03-22"},
		},
		{
			name: "nothing after the catalog",
			asOf: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC),
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := NewPolicy(cat, tt.opts...)
			dates, err := policy.AvailableDates(&venue, blocked, existing, tt.asOf)
			require.NoError(t, err)
			assert.Equal(t, tt.want, dates)
		})
	}
}

func TestAvailableDates_CancelledBookingFreesDate(t *testing.T) {
	cat, venue := setup(t)
	policy := NewPolicy(cat)
	asOf := time.Date(2025, 3, 26, 8, 0, 0, 0, time.UTC)

	dates, err := policy.AvailableDates(&venue, nil, []model.Booking{booking("b1", "2025-03-26", "10:00", model.StatusCancelled)}, asOf)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-26"}, dates)
}

func TestClosedOnWeekends(t *testing.T) {
	venue := model.Venue{ID: "V1"}
	cat := catalog.New()
	cat.AddVenue(venue)
	require.NoError(t, cat.Publish("V1", "2025-03-22", []string{"10:00"}))
	require.NoError(t, cat.Publish("V1", "2025-03-23", []string{"10:00"}))
	require.NoError(t, cat.Publish("V1", "2025-03-24", []string{"10:00"}))

	asOf := time.Date(2025, 3, 21, 9, 0, 0, 0, time.UTC)

	open, err := NewPolicy(cat).AvailableDates(&venue, nil, nil, asOf)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-22", "2025-03-23", "2025-03-24"}, open)

	weekdays, err := NewPolicy(cat, WithClosedDays(ClosedOnWeekends)).AvailableDates(&venue, nil, nil, asOf)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-24"}, weekdays)
}

func TestIsAvailableHelpers(t *testing.T) {
	cat, venue := setup(t)
	policy := NewPolicy(cat)
	asOf := time.Date(2025, 3, 19, 9, 0, 0, 0, time.UTC)

	ok, err := policy.IsDateAvailable(&venue, "2025-03-20", nil, nil, asOf)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = policy.IsDateAvailable(&venue, "2025-03-22", nil, nil, asOf)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = policy.IsSlotAvailable(&venue, "2025-03-20", "14:00", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = policy.IsSlotAvailable(&venue, "2025-03-20", "12:00", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

// Random bookings never leak into the offered slots or dates.
func TestAvailability_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	venue := model.Venue{ID: "V1", BlockedDates: []string{"2025-03-05", "2025-03-12"}}
	cat := catalog.New()
	cat.AddVenue(venue)

	var dates []string
	times := []string{"09:00", "09:30", "10:00", "10:30", "11:00"}
	for d := 1; d <= 20; d++ {
		date := fmt.Sprintf("2025-03-%02d", d)
		dates = append(dates, date)
		require.NoError(t, cat.Publish("V1", date, times))
	}

	statuses := []model.Status{model.StatusPending, model.StatusConfirmed, model.StatusCancelled}
	policy := NewPolicy(cat)

	for round := 0; round < 50; round++ {
		var existing []model.Booking
		n := rng.Intn(40)
		for i := 0; i < n; i++ {
			existing = append(existing, booking(
				fmt.Sprintf("b%d", i),
				dates[rng.Intn(len(dates))],
				times[rng.Intn(len(times))],
				statuses[rng.Intn(len(statuses))],
			))
		}
		asOf := time.Date(2025, 3, 1+rng.Intn(20), rng.Intn(24), 0, 0, 0, time.UTC)
		today := model.DateOf(asOf)

		for _, date := range dates {
			slots, err := policy.AvailableSlots(&venue, date, existing)
			require.NoError(t, err)
			assert.IsIncreasing(t, append([]string{""}, slots...))
			for _, b := range existing {
				if b.Status.IsActive() && b.Date == date {
					assert.NotContains(t, slots, b.Time)
				}
			}
		}

		available, err := policy.AvailableDates(&venue, nil, existing, asOf)
		require.NoError(t, err)
		for i, date := range available {
			assert.GreaterOrEqual(t, date, today)
			assert.False(t, venue.IsBlocked(date))
			if i > 0 {
				assert.Less(t, available[i-1], date)
			}
		}
	}
}
