package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"clinicsched/internal/config"
)

// SyncFromConfig applies doctors.yaml through the store. Doctors whose schedule
// breaks the invariants are logged and skipped; storage failures abort.
// It returns the number of doctors applied.
func SyncFromConfig(ctx context.Context, store Store, cfg *config.DoctorsConfig, logger *zerolog.Logger) (int, error) {
	if cfg == nil {
		return 0, fmt.Errorf("doctors config is nil")
	}

	applied := 0
	for _, d := range cfg.Doctors {
		windows := make(map[string]RawWindow, len(d.AvailableTimeSlots))
		for day, h := range d.AvailableTimeSlots {
			windows[day] = RawWindow{Start: h.Start, End: h.End}
		}

		a, err := Parse(d.ID, d.AvailableDays, windows, d.ConsultationMinutes)
		if err != nil {
			logger.Error().Err(err).Str("doctor_id", d.ID).Msg("skipping doctor with invalid schedule")
			continue
		}

		err = store.SetAvailability(ctx, a.DoctorID, a.Weekdays, a.Windows, a.ConsultationMinutes)
		if errors.Is(err, ErrInvalidAvailability) {
			logger.Error().Err(err).Str("doctor_id", d.ID).Msg("skipping doctor with invalid schedule")
			continue
		}
		if err != nil {
			return applied, fmt.Errorf("sync doctor %s: %w", d.ID, err)
		}
		applied++
	}

	holidays := make([]Holiday, 0, len(cfg.Holidays))
	for _, h := range cfg.Holidays {
		dt, err := time.Parse("2006-01-02", h.Date)
		if err != nil {
			return applied, fmt.Errorf("parse holiday %s: %w", h.Date, err)
		}
		holidays = append(holidays, Holiday{Date: dt, Name: h.Name})
	}
	if err := store.SetHolidays(ctx, holidays); err != nil {
		return applied, fmt.Errorf("sync holidays: %w", err)
	}

	return applied, nil
}
