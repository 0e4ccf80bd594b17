package model

import (
	"fmt"
	"strings"
	"time"
)

// Weekday uses ISO numbering: 1=Monday ... 7=Sunday.
type Weekday int

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = map[Weekday]string{
	Monday:    "monday",
	Tuesday:   "tuesday",
	Wednesday: "wednesday",
	Thursday:  "thursday",
	Friday:    "friday",
	Saturday:  "saturday",
	Sunday:    "sunday",
}

// AllWeekdays lists weekdays in calendar order.
var AllWeekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

func (d Weekday) Valid() bool {
	return d >= Monday && d <= Sunday
}

func (d Weekday) String() string {
	if name, ok := weekdayNames[d]; ok {
		return name
	}
	return fmt.Sprintf("weekday(%d)", int(d))
}

// ParseWeekday accepts "mon".."sun" and full English names, case-insensitively.
func ParseWeekday(s string) (Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) >= 3 {
		for d, name := range weekdayNames {
			if s == name || s == name[:3] {
				return d, nil
			}
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

// WeekdayOf returns the ISO weekday of the date (Sunday = 7).
func WeekdayOf(date time.Time) Weekday {
	wd := int(date.Weekday())
	if wd == 0 {
		wd = 7
	}
	return Weekday(wd)
}

func (d Weekday) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid weekday %d", int(d))
	}
	return []byte(d.String()), nil
}

func (d *Weekday) UnmarshalText(b []byte) error {
	parsed, err := ParseWeekday(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Clock is a time of day in minutes since midnight.
type Clock int

const minutesPerDay = 24 * 60

// ParseClock parses "HH:MM" with exactly two digits on each side.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time format: %s", s)
	}

	hour, ok := twoDigits(parts[0])
	if !ok || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}

	minute, ok := twoDigits(parts[1])
	if !ok || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}

	return Clock(hour*60 + minute), nil
}

func twoDigits(s string) (int, bool) {
	if len(s) != 2 || s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

// MustClock is ParseClock for literals; it panics on bad input.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) Valid() bool {
	return c >= 0 && c < minutesPerDay
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On places the clock on the calendar day of date.
func (c Clock) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), int(c)/60, int(c)%60, 0, 0, date.Location())
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Window is the half-open range [Start, End) a doctor is available on a weekday.
type Window struct {
	Start Clock `json:"start" yaml:"start"`
	End   Clock `json:"end" yaml:"end"`
}

func (w Window) Valid() bool {
	return w.Start.Valid() && w.End.Valid() && w.Start < w.End
}

func (w Window) Minutes() int {
	return int(w.End - w.Start)
}

// DoctorAvailability is a doctor's recurring weekly schedule.
type DoctorAvailability struct {
	DoctorID            string             `json:"doctor_id"`
	Weekdays            []Weekday          `json:"available_days"`
	Windows             map[Weekday]Window `json:"available_time_slots"`
	ConsultationMinutes int                `json:"consultation_minutes"`
	Version             int64              `json:"version"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// Window returns the window for a weekday, if the doctor works that day.
func (a *DoctorAvailability) Window(day Weekday) (Window, bool) {
	if a == nil {
		return Window{}, false
	}
	for _, d := range a.Weekdays {
		if d == day {
			w, ok := a.Windows[day]
			return w, ok
		}
	}
	return Window{}, false
}
