package export

import (
	"fmt"
	"io"
	"time"

	"kinderbook/internal/model"
)

// ContentType is the MIME type of the produced workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var bookingColumns = []string{
	"Reference", "Status", "Venue", "Date", "Time",
	"Parent", "Email", "Phone", "Child", "Age",
	"Start date", "Note", "Created", "Updated",
}

// Filename returns the download name for a user's bookings, e.g.
// "bookings_u1_2025-03-18.xlsx".
func Filename(userID string, t time.Time) string {
	return fmt.Sprintf("bookings_%s_%s.xlsx", userID, model.DateOf(t))
}

// WriteBookings renders bookings into a workbook with a "Bookings" sheet and
// a per-status "Summary" sheet.
func WriteBookings(wr io.Writer, bookings []model.Booking) error {
	wb := NewWorkbook()
	defer wb.Close()

	if err := wb.AddSheet("Bookings"); err != nil {
		return err
	}
	if err := wb.WriteHeader(bookingColumns); err != nil {
		return err
	}

	counts := map[model.Status]int{}
	for i := range bookings {
		b := &bookings[i]
		counts[b.Status]++
		if err := wb.WriteRow([]interface{}{
			b.ReferenceCode,
			string(b.Status),
			b.VenueName,
			b.Date,
			b.Time,
			b.ParentName,
			b.ParentEmail,
			b.ParentPhone,
			b.ChildName,
			b.ChildAge,
			b.RequestedStartDate,
			b.Note,
			b.CreatedAt.UTC().Format(time.RFC3339),
			b.UpdatedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return fmt.Errorf("write booking %s: %w", b.ID, err)
		}
	}

	if err := wb.AddSheet("Summary"); err != nil {
		return err
	}
	if err := wb.WriteHeader([]string{"Status", "Count"}); err != nil {
		return err
	}
	for _, st := range []model.Status{model.StatusPending, model.StatusConfirmed, model.StatusCancelled} {
		if err := wb.WriteRow([]interface{}{string(st), counts[st]}); err != nil {
			return err
		}
	}
	if err := wb.WriteRow([]interface{}{"total", len(bookings)}); err != nil {
		return err
	}

	return wb.Save(wr)
}
