// Package availability owns doctors' recurring weekly schedules.
package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"clinicsched/internal/model"
)

var (
	ErrInvalidAvailability = errors.New("invalid availability")
	ErrNotFound            = errors.New("availability not found")
)

// Store persists weekly schedules. It knows nothing about bookings.
type Store interface {
	Get(ctx context.Context, doctorID string) (*model.DoctorAvailability, error)
	GetWindow(ctx context.Context, doctorID string, day model.Weekday) (model.Window, bool, error)
	GetConsultationMinutes(ctx context.Context, doctorID string) (int, error)
	SetAvailability(ctx context.Context, doctorID string, weekdays []model.Weekday, windows map[model.Weekday]model.Window, consultationMinutes int) error
	IsClosed(ctx context.Context, date time.Time) (bool, error)
	SetHolidays(ctx context.Context, holidays []Holiday) error
}

// Holiday closes the clinic for every doctor on a date.
type Holiday struct {
	Date time.Time
	Name string
}

// RawWindow is the loosely typed wire/config form of a window.
type RawWindow struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// Validate checks the schedule invariants: positive consultation length,
// exactly one window with start < end per listed weekday, no stray windows.
func Validate(a model.DoctorAvailability) error {
	if strings.TrimSpace(a.DoctorID) == "" {
		return fmt.Errorf("%w: doctor id is required", ErrInvalidAvailability)
	}
	if a.ConsultationMinutes <= 0 {
		return fmt.Errorf("%w: consultation minutes must be positive, got %d", ErrInvalidAvailability, a.ConsultationMinutes)
	}

	seen := make(map[model.Weekday]bool, len(a.Weekdays))
	for _, d := range a.Weekdays {
		if !d.Valid() {
			return fmt.Errorf("%w: invalid weekday %d", ErrInvalidAvailability, int(d))
		}
		if seen[d] {
			return fmt.Errorf("%w: duplicate weekday %s", ErrInvalidAvailability, d)
		}
		seen[d] = true

		w, ok := a.Windows[d]
		if !ok {
			return fmt.Errorf("%w: no window for %s", ErrInvalidAvailability, d)
		}
		if !w.Valid() {
			return fmt.Errorf("%w: %s window %s-%s must start before it ends", ErrInvalidAvailability, d, w.Start, w.End)
		}
	}

	for d := range a.Windows {
		if !seen[d] {
			return fmt.Errorf("%w: window for %s which is not an available day", ErrInvalidAvailability, d)
		}
	}
	return nil
}

// Parse converts the wire shape used by the doctor-profile editor and the
// seed file into a validated schedule.
func Parse(doctorID string, days []string, windows map[string]RawWindow, consultationMinutes int) (model.DoctorAvailability, error) {
	a := model.DoctorAvailability{
		DoctorID:            doctorID,
		Windows:             make(map[model.Weekday]model.Window, len(windows)),
		ConsultationMinutes: consultationMinutes,
	}

	for _, s := range days {
		d, err := model.ParseWeekday(s)
		if err != nil {
			return model.DoctorAvailability{}, fmt.Errorf("%w: %v", ErrInvalidAvailability, err)
		}
		a.Weekdays = append(a.Weekdays, d)
	}

	for key, raw := range windows {
		d, err := model.ParseWeekday(key)
		if err != nil {
			return model.DoctorAvailability{}, fmt.Errorf("%w: %v", ErrInvalidAvailability, err)
		}
		if _, dup := a.Windows[d]; dup {
			return model.DoctorAvailability{}, fmt.Errorf("%w: duplicate window for %s", ErrInvalidAvailability, d)
		}
		start, err := model.ParseClock(raw.Start)
		if err != nil {
			return model.DoctorAvailability{}, fmt.Errorf("%w: %s start: %v", ErrInvalidAvailability, d, err)
		}
		end, err := model.ParseClock(raw.End)
		if err != nil {
			return model.DoctorAvailability{}, fmt.Errorf("%w: %s end: %v", ErrInvalidAvailability, d, err)
		}
		a.Windows[d] = model.Window{Start: start, End: end}
	}

	sortWeekdays(a.Weekdays)
	if err := Validate(a); err != nil {
		return model.DoctorAvailability{}, err
	}
	return a, nil
}

func sortWeekdays(days []model.Weekday) {
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
}
