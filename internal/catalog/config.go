package catalog

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"kinderbook/internal/model"
)

// ScheduleConfig represents a weekly visit schedule.
type ScheduleConfig struct {
	StartTime           string `yaml:"start_time"`            // "09:00"
	EndTime             string `yaml:"end_time"`              // "17:00"
	SlotDurationMinutes int    `yaml:"slot_duration_minutes"` // 30
	LunchStart          string `yaml:"lunch_start,omitempty"` // "12:00"
	LunchEnd            string `yaml:"lunch_end,omitempty"`   // "13:00"
}

// HoursConfig is the opening window of a venue.
type HoursConfig struct {
	Open  string `yaml:"open"`
	Close string `yaml:"close"`
}

// DateSlotsConfig publishes an explicit list of times for one date.
type DateSlotsConfig struct {
	Date  string   `yaml:"date"`
	Times []string `yaml:"times"`
}

// VenueConfig represents a single kindergarten.
type VenueConfig struct {
	ID           string            `yaml:"id"`
	Name         string            `yaml:"name"`
	Address      string            `yaml:"address"`
	Hours        *HoursConfig      `yaml:"hours,omitempty"`
	Schedule     *ScheduleConfig   `yaml:"schedule,omitempty"`
	DaysOff      []int             `yaml:"days_off,omitempty"` // 1=Mon, 7=Sun
	BlockedDates []string          `yaml:"blocked_dates,omitempty"`
	MinChildAge  *int              `yaml:"min_child_age,omitempty"`
	MaxChildAge  *int              `yaml:"max_child_age,omitempty"`
	Slots        []DateSlotsConfig `yaml:"slots,omitempty"`
}

// HolidayConfig represents a public holiday closing every venue.
type HolidayConfig struct {
	Date string `yaml:"date"` // "2025-12-25"
	Name string `yaml:"name"`
}

// DefaultsConfig represents settings applied to venues that do not override them.
type DefaultsConfig struct {
	Schedule    *ScheduleConfig `yaml:"schedule"`
	DaysOff     []int           `yaml:"days_off"`
	MinChildAge int             `yaml:"min_child_age"`
	MaxChildAge int             `yaml:"max_child_age"`
	HorizonDays int             `yaml:"horizon_days"`
}

// VenuesConfig is the root of venues.yaml.
type VenuesConfig struct {
	Venues   []VenueConfig   `yaml:"venues"`
	Defaults DefaultsConfig  `yaml:"defaults"`
	Holidays []HolidayConfig `yaml:"holidays"`
}

// LoadVenuesConfig loads and validates the venue catalog from a YAML file.
func LoadVenuesConfig(path string) (*VenuesConfig, error) {
	if path == "" {
		path = "configs/venues.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read venues config: %w", err)
	}

	return ParseVenuesConfig(data)
}

// ParseVenuesConfig parses, validates and applies defaults to YAML data.
func ParseVenuesConfig(data []byte) (*VenuesConfig, error) {
	var cfg VenuesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse venues config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate venues config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *VenuesConfig) Validate() error {
	if len(c.Venues) == 0 {
		return fmt.Errorf("no venues defined")
	}

	ids := make(map[string]bool)
	names := make(map[string]bool)

	for i := range c.Venues {
		v := &c.Venues[i]
		if v.ID == "" {
			return fmt.Errorf("venue[%d]: id is required", i)
		}
		if ids[v.ID] {
			return fmt.Errorf("venue[%d]: duplicate id %q", i, v.ID)
		}
		ids[v.ID] = true

		if v.Name == "" {
			return fmt.Errorf("venue[%d]: name is required", i)
		}
		if names[v.Name] {
			return fmt.Errorf("venue[%d]: duplicate name '%s'", i, v.Name)
		}
		names[v.Name] = true

		if v.MinChildAge != nil && *v.MinChildAge < 0 {
			return fmt.Errorf("venue[%d]: min_child_age cannot be negative", i)
		}
		if v.MinChildAge != nil && v.MaxChildAge != nil && *v.MaxChildAge != 0 && *v.MaxChildAge < *v.MinChildAge {
			return fmt.Errorf("venue[%d]: max_child_age is below min_child_age", i)
		}

		if v.Hours != nil {
			if err := validateHours(v.Hours, fmt.Sprintf("venue[%d].hours", i)); err != nil {
				return err
			}
		}
		if v.Schedule != nil {
			if err := validateSchedule(v.Schedule, fmt.Sprintf("venue[%d].schedule", i)); err != nil {
				return err
			}
		}
		if err := validateDaysOff(v.DaysOff, fmt.Sprintf("venue[%d].days_off", i)); err != nil {
			return err
		}
		for j, d := range v.BlockedDates {
			if _, err := model.ParseDate(d); err != nil {
				return fmt.Errorf("venue[%d].blocked_dates[%d]: %w", i, j, err)
			}
		}
		for j, s := range v.Slots {
			if _, err := model.ParseDate(s.Date); err != nil {
				return fmt.Errorf("venue[%d].slots[%d]: %w", i, j, err)
			}
			for _, tm := range s.Times {
				if _, err := model.NormalizeTime(tm); err != nil {
					return fmt.Errorf("venue[%d].slots[%d]: %w", i, j, err)
				}
			}
		}
	}

	if c.Defaults.Schedule != nil {
		if err := validateSchedule(c.Defaults.Schedule, "defaults.schedule"); err != nil {
			return err
		}
	}
	if err := validateDaysOff(c.Defaults.DaysOff, "defaults.days_off"); err != nil {
		return err
	}
	if c.Defaults.HorizonDays < 0 {
		return fmt.Errorf("defaults.horizon_days cannot be negative")
	}

	for i, h := range c.Holidays {
		if h.Date == "" {
			return fmt.Errorf("holiday[%d]: date is required", i)
		}
		if _, err := time.Parse(model.DateLayout, h.Date); err != nil {
			return fmt.Errorf("holiday[%d]: invalid date format '%s', expected YYYY-MM-DD", i, h.Date)
		}
	}

	return nil
}

func validateSchedule(s *ScheduleConfig, prefix string) error {
	day := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

	start, err := parseTimeOnDate(day, s.StartTime)
	if err != nil {
		return fmt.Errorf("%s.start_time: %w", prefix, err)
	}
	end, err := parseTimeOnDate(day, s.EndTime)
	if err != nil {
		return fmt.Errorf("%s.end_time: %w", prefix, err)
	}
	if !end.After(start) {
		return fmt.Errorf("%s: end_time must be after start_time", prefix)
	}
	if s.SlotDurationMinutes < 0 {
		return fmt.Errorf("%s.slot_duration_minutes cannot be negative", prefix)
	}

	if (s.LunchStart == "") != (s.LunchEnd == "") {
		return fmt.Errorf("%s: lunch_start and lunch_end must be set together", prefix)
	}
	if s.LunchStart != "" {
		ls, err := parseTimeOnDate(day, s.LunchStart)
		if err != nil {
			return fmt.Errorf("%s.lunch_start: %w", prefix, err)
		}
		le, err := parseTimeOnDate(day, s.LunchEnd)
		if err != nil {
			return fmt.Errorf("%s.lunch_end: %w", prefix, err)
		}
		if !le.After(ls) {
			return fmt.Errorf("%s: lunch_end must be after lunch_start", prefix)
		}
	}
	return nil
}

func validateHours(h *HoursConfig, prefix string) error {
	return validateSchedule(&ScheduleConfig{StartTime: h.Open, EndTime: h.Close}, prefix)
}

func validateDaysOff(days []int, prefix string) error {
	for i, d := range days {
		if d < 1 || d > 7 {
			return fmt.Errorf("%s[%d]: invalid day %d, must be 1-7 (1=Mon, 7=Sun)", prefix, i, d)
		}
	}
	return nil
}

func (c *VenuesConfig) applyDefaults() {
	if c.Defaults.Schedule == nil {
		c.Defaults.Schedule = &ScheduleConfig{
			StartTime:           "09:00",
			EndTime:             "17:00",
			SlotDurationMinutes: 30,
		}
	}
	if c.Defaults.Schedule.SlotDurationMinutes == 0 {
		c.Defaults.Schedule.SlotDurationMinutes = 30
	}
	if c.Defaults.DaysOff == nil {
		c.Defaults.DaysOff = []int{6, 7}
	}
	if c.Defaults.MinChildAge == 0 && c.Defaults.MaxChildAge == 0 {
		c.Defaults.MinChildAge = 2
		c.Defaults.MaxChildAge = 6
	}
	if c.Defaults.HorizonDays == 0 {
		c.Defaults.HorizonDays = 30
	}

	for i := range c.Venues {
		v := &c.Venues[i]
		if v.Schedule == nil {
			sched := *c.Defaults.Schedule
			v.Schedule = &sched
		}
		if v.Schedule.SlotDurationMinutes == 0 {
			v.Schedule.SlotDurationMinutes = c.Defaults.Schedule.SlotDurationMinutes
		}
		if v.Hours == nil {
			v.Hours = &HoursConfig{Open: v.Schedule.StartTime, Close: v.Schedule.EndTime}
		}
		if v.DaysOff == nil {
			v.DaysOff = append([]int(nil), c.Defaults.DaysOff...)
		}
		if v.MinChildAge == nil {
			minAge := c.Defaults.MinChildAge
			v.MinChildAge = &minAge
		}
		if v.MaxChildAge == nil {
			maxAge := c.Defaults.MaxChildAge
			v.MaxChildAge = &maxAge
		}
	}
}

// Venue converts a venue config into the model, merging global holidays
// into its blocked dates.
func (c *VenuesConfig) Venue(v *VenueConfig) model.Venue {
	off := make(map[time.Weekday]bool, len(v.DaysOff))
	for _, d := range v.DaysOff {
		off[time.Weekday(d%7)] = true
	}

	days := make(map[time.Weekday]model.DayHours, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if off[wd] {
			continue
		}
		days[wd] = model.DayHours{Open: v.Hours.Open, Close: v.Hours.Close}
	}

	blocked := make([]string, 0, len(v.BlockedDates)+len(c.Holidays))
	seen := make(map[string]bool)
	for _, d := range v.BlockedDates {
		if !seen[d] {
			seen[d] = true
			blocked = append(blocked, d)
		}
	}
	for _, h := range c.Holidays {
		if !seen[h.Date] {
			seen[h.Date] = true
			blocked = append(blocked, h.Date)
		}
	}

	out := model.Venue{
		ID:           v.ID,
		Name:         v.Name,
		Address:      v.Address,
		Hours:        model.OperatingHours{Days: days},
		BlockedDates: blocked,
	}
	if v.MinChildAge != nil {
		out.MinChildAge = *v.MinChildAge
	}
	if v.MaxChildAge != nil {
		out.MaxChildAge = *v.MaxChildAge
	}
	return out
}

// Build creates a catalog from the configuration. Generated slots cover
// HorizonDays open weekdays starting at from; explicit per-date slots
// replace generated ones for their date.
func (c *VenuesConfig) Build(from time.Time) (*Catalog, error) {
	cat := New()
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)

	for i := range c.Venues {
		vc := &c.Venues[i]
		venue := c.Venue(vc)
		cat.AddVenue(venue)

		times, err := GenerateTimes(ScheduleInfo{
			StartTime:    vc.Schedule.StartTime,
			EndTime:      vc.Schedule.EndTime,
			LunchStart:   vc.Schedule.LunchStart,
			LunchEnd:     vc.Schedule.LunchEnd,
			SlotDuration: vc.Schedule.SlotDurationMinutes,
		})
		if err != nil {
			return nil, fmt.Errorf("venue %s: %w", vc.ID, err)
		}

		for d := 0; d < c.Defaults.HorizonDays; d++ {
			day := start.AddDate(0, 0, d)
			if !venue.Hours.IsOpen(day.Weekday()) {
				continue
			}
			if err := cat.Publish(venue.ID, model.DateOf(day), times); err != nil {
				return nil, fmt.Errorf("venue %s: %w", vc.ID, err)
			}
		}

		for _, s := range vc.Slots {
			if err := cat.Publish(venue.ID, s.Date, s.Times); err != nil {
				return nil, fmt.Errorf("venue %s: %w", vc.ID, err)
			}
		}
	}

	return cat, nil
}
