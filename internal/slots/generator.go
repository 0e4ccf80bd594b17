package slots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinicsched/internal/availability"
	"clinicsched/internal/model"
)

// ScheduleSource is the read side of the availability store.
type ScheduleSource interface {
	GetWindow(ctx context.Context, doctorID string, day model.Weekday) (model.Window, bool, error)
	GetConsultationMinutes(ctx context.Context, doctorID string) (int, error)
	IsClosed(ctx context.Context, date time.Time) (bool, error)
}

// BookingChecker lists the slots of a day that hold a confirmed appointment.
type BookingChecker interface {
	BookedSlots(ctx context.Context, doctorID string, date time.Time) ([]model.Clock, error)
}

// Generator derives bookable slots for a doctor on a date.
type Generator struct {
	schedule ScheduleSource
	checker  BookingChecker
}

// NewGenerator creates a new slot generator. checker may be nil, in which
// case ComputeSlots equals ScheduleSlots.
func NewGenerator(schedule ScheduleSource, checker BookingChecker) *Generator {
	return &Generator{schedule: schedule, checker: checker}
}

// Expand emits window.Start, Start+m, ... while slot+m <= End. A trailing
// remainder shorter than m is dropped.
func Expand(w model.Window, minutes int) []model.Clock {
	if minutes <= 0 || !w.Valid() {
		return nil
	}

	step := model.Clock(minutes)
	var out []model.Clock
	for cursor := w.Start; cursor+step <= w.End; cursor += step {
		out = append(out, cursor)
	}
	return out
}

// ScheduleSlots returns every slot the schedule produces for the date,
// booked or not. Past dates are computed like any other date.
func (g *Generator) ScheduleSlots(ctx context.Context, doctorID string, date time.Time) ([]model.Clock, error) {
	closed, err := g.schedule.IsClosed(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("check holiday: %w", err)
	}
	if closed {
		return nil, nil
	}

	w, ok, err := g.schedule.GetWindow(ctx, doctorID, model.WeekdayOf(date))
	if err != nil {
		return nil, fmt.Errorf("get window: %w", err)
	}
	if !ok {
		return nil, nil
	}

	minutes, err := g.schedule.GetConsultationMinutes(ctx, doctorID)
	if errors.Is(err, availability.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get consultation minutes: %w", err)
	}

	if minutes <= 0 || !w.Valid() {
		return nil, fmt.Errorf("%w: doctor %s has window %s-%s with %d minute slots",
			availability.ErrInvalidAvailability, doctorID, w.Start, w.End, minutes)
	}

	return Expand(w, minutes), nil
}

// ComputeSlots returns the schedule's slots minus those already confirmed.
// The result is advisory: it can be stale by the time a booking is submitted.
func (g *Generator) ComputeSlots(ctx context.Context, doctorID string, date time.Time) ([]model.Clock, error) {
	all, err := g.ScheduleSlots(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	if g.checker == nil || len(all) == 0 {
		return all, nil
	}

	booked, err := g.checker.BookedSlots(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list booked slots: %w", err)
	}
	taken := make(map[model.Clock]bool, len(booked))
	for _, slot := range booked {
		taken[slot] = true
	}

	free := make([]model.Clock, 0, len(all))
	for _, slot := range all {
		if !taken[slot] {
			free = append(free, slot)
		}
	}
	return free, nil
}

// Contains reports whether slot is in the sorted slot list.
func Contains(slots []model.Clock, slot model.Clock) bool {
	for _, s := range slots {
		if s == slot {
			return true
		}
		if s > slot {
			return false
		}
	}
	return false
}

// Format converts slots to "HH:MM" strings for the UI.
func Format(slots []model.Clock) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.String()
	}
	return out
}
