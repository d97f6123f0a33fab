package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"kinderbook/internal/model"
)

// ScheduleInfo contains the visit schedule parameters for a day.
type ScheduleInfo struct {
	StartTime    string // "09:00"
	EndTime      string // "17:00"
	LunchStart   string // "12:00" (optional)
	LunchEnd     string // "13:00" (optional)
	SlotDuration int    // minutes
}

// GenerateTimes returns the ordered visit start times a schedule produces.
func GenerateTimes(schedule ScheduleInfo) ([]string, error) {
	if schedule.SlotDuration <= 0 {
		schedule.SlotDuration = 30
	}

	// Any fixed day works, only the time of day matters.
	day := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

	startTime, err := parseTimeOnDate(day, schedule.StartTime)
	if err != nil {
		return nil, fmt.Errorf("parse start time: %w", err)
	}

	endTime, err := parseTimeOnDate(day, schedule.EndTime)
	if err != nil {
		return nil, fmt.Errorf("parse end time: %w", err)
	}

	var lunchStart, lunchEnd time.Time
	hasLunch := schedule.LunchStart != "" && schedule.LunchEnd != ""
	if hasLunch {
		if lunchStart, err = parseTimeOnDate(day, schedule.LunchStart); err != nil {
			return nil, fmt.Errorf("parse lunch start: %w", err)
		}
		if lunchEnd, err = parseTimeOnDate(day, schedule.LunchEnd); err != nil {
			return nil, fmt.Errorf("parse lunch end: %w", err)
		}
	}

	slotDuration := time.Duration(schedule.SlotDuration) * time.Minute
	var times []string

	for cursor := startTime; !cursor.Add(slotDuration).After(endTime); cursor = cursor.Add(slotDuration) {
		slotEnd := cursor.Add(slotDuration)

		if hasLunch && isOverlapping(cursor, slotEnd, lunchStart, lunchEnd) {
			continue
		}

		times = append(times, cursor.Format(model.TimeLayout))
	}

	return times, nil
}

func parseTimeOnDate(date time.Time, timeStr string) (time.Time, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("invalid time format: %s", timeStr)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 24 {
		return time.Time{}, fmt.Errorf("invalid hour in %q", timeStr)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("invalid minute in %q", timeStr)
	}

	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location()), nil
}

func isOverlapping(start1, end1, start2, end2 time.Time) bool {
	return start1.Before(end2) && start2.Before(end1)
}
