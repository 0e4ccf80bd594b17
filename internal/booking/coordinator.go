package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clinicsched/internal/events"
	"clinicsched/internal/metrics"
	"clinicsched/internal/model"
	"clinicsched/internal/registry"
	"clinicsched/internal/slots"
)

// SlotSource yields the slots a doctor's schedule produces on a date,
// ignoring current bookings.
type SlotSource interface {
	ScheduleSlots(ctx context.Context, doctorID string, date time.Time) ([]model.Clock, error)
}

// Committer performs the conditional insert.
type Committer interface {
	InsertConfirmed(ctx context.Context, rec *model.AppointmentRecord) error
}

// Request is a booking submission.
type Request struct {
	DoctorID         string                `json:"doctorId"`
	BranchID         string                `json:"branchId"`
	Date             string                `json:"date"`
	TimeSlot         string                `json:"timeSlot"`
	Patient          model.PatientSnapshot `json:"patient"`
	ReferredDoctorID string                `json:"referredDoctorId,omitempty"`
	Notes            string                `json:"notes,omitempty"`
}

// Coordinator validates booking requests and commits them.
type Coordinator struct {
	slots     SlotSource
	committer Committer
	publisher events.Publisher
	fsm       *FSM
	logger    *zerolog.Logger
	newID     func() string
}

// NewCoordinator creates a coordinator. publisher may be nil.
func NewCoordinator(slots SlotSource, committer Committer, publisher events.Publisher, logger *zerolog.Logger) *Coordinator {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Coordinator{
		slots:     slots,
		committer: committer,
		publisher: publisher,
		fsm:       NewFSM(),
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// Book validates req and inserts a confirmed appointment. It returns
// *MissingFieldError, ErrInvalidSlot or ErrInvalidAvailability before any
// write, ErrSlotConflict when another confirmed appointment holds the slot,
// and a wrapped storage error otherwise. On a storage error the outcome is
// unknown and the caller should re-query the registry.
func (c *Coordinator) Book(ctx context.Context, req Request) (*model.AppointmentRecord, error) {
	attempt := NewAttempt()
	if err := c.advance(attempt, StateValidating); err != nil {
		return nil, err
	}

	date, slot, err := c.validate(ctx, req)
	if err != nil {
		return nil, c.reject(attempt, req, err)
	}

	if err := c.advance(attempt, StateCommitting); err != nil {
		return nil, err
	}

	rec := &model.AppointmentRecord{
		ID:               c.newID(),
		DoctorID:         strings.TrimSpace(req.DoctorID),
		BranchID:         strings.TrimSpace(req.BranchID),
		Date:             date,
		TimeSlot:         slot,
		Patient:          snapshot(req.Patient),
		ReferredDoctorID: strings.TrimSpace(req.ReferredDoctorID),
		Notes:            req.Notes,
	}

	start := time.Now()
	err = c.committer.InsertConfirmed(ctx, rec)
	metrics.ObserveCommit(time.Since(start))
	if err != nil {
		if errors.Is(err, registry.ErrConflict) {
			err = fmt.Errorf("%w: %s", ErrSlotConflict, rec.Key())
		} else {
			err = fmt.Errorf("commit appointment: %w", err)
		}
		return nil, c.reject(attempt, req, err)
	}

	// The row is committed; a refused step here is logged, not returned.
	if !c.fsm.Transition(attempt, StateConfirmed, nil) {
		c.logger.Error().Str("appointment_id", rec.ID).Str("state", string(attempt.GetState())).
			Msg("committed appointment left attempt in a non-terminal state")
	}
	metrics.IncBookingAttempt(Outcome(nil))
	c.logger.Info().
		Str("appointment_id", rec.ID).
		Str("doctor_id", rec.DoctorID).
		Str("date", rec.DateString()).
		Str("time_slot", rec.TimeSlot.String()).
		Str("state", string(attempt.GetState())).
		Dur("elapsed", attempt.Elapsed()).
		Msg("Appointment confirmed")

	if c.publisher != nil {
		payload := events.AppointmentPayload{
			AppointmentID: rec.ID,
			DoctorID:      rec.DoctorID,
			Date:          rec.DateString(),
			TimeSlot:      rec.TimeSlot.String(),
			Status:        string(rec.Status),
		}
		if err := c.publisher.PublishJSON(events.AppointmentConfirmed, payload); err != nil {
			c.logger.Warn().Err(err).Str("appointment_id", rec.ID).Msg("publish appointment event")
		}
	}

	return rec, nil
}

// validate checks the request without touching the registry.
func (c *Coordinator) validate(ctx context.Context, req Request) (time.Time, model.Clock, error) {
	required := []struct {
		field string
		value string
	}{
		{"patient.name", req.Patient.Name},
		{"patient.contact", req.Patient.Contact},
		{"branchId", req.BranchID},
		{"doctorId", req.DoctorID},
		{"date", req.Date},
		{"timeSlot", req.TimeSlot},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return time.Time{}, 0, &MissingFieldError{Field: r.field}
		}
	}

	date, err := model.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("%w: date %q", ErrInvalidSlot, req.Date)
	}
	slot, err := model.ParseClock(strings.TrimSpace(req.TimeSlot))
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("%w: time slot %q", ErrInvalidSlot, req.TimeSlot)
	}

	derivable, err := c.slots.ScheduleSlots(ctx, strings.TrimSpace(req.DoctorID), date)
	if err != nil {
		return time.Time{}, 0, err
	}
	if !slots.Contains(derivable, slot) {
		return time.Time{}, 0, fmt.Errorf("%w: %s is not offered by doctor %s on %s",
			ErrInvalidSlot, slot, req.DoctorID, req.Date)
	}
	return date, slot, nil
}

// advance moves the attempt forward or fails the booking before any write.
func (c *Coordinator) advance(attempt *Attempt, to State) error {
	from := attempt.GetState()
	if c.fsm.Transition(attempt, to, nil) {
		return nil
	}
	err := fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	metrics.IncBookingAttempt(Outcome(err))
	c.logger.Error().Err(err).Msg("Booking aborted")
	return err
}

func (c *Coordinator) reject(attempt *Attempt, req Request, err error) error {
	if !c.fsm.Transition(attempt, StateRejected, err) {
		c.logger.Error().Str("state", string(attempt.GetState())).Msg("attempt could not be marked rejected")
	}
	outcome := Outcome(err)
	metrics.IncBookingAttempt(outcome)

	event := c.logger.Warn()
	if outcome == "error" {
		event = c.logger.Error()
	}
	event.Err(err).
		Str("doctor_id", req.DoctorID).
		Str("date", req.Date).
		Str("time_slot", req.TimeSlot).
		Str("outcome", outcome).
		Str("state", string(attempt.GetState())).
		Msg("Booking rejected")
	return err
}

func snapshot(p model.PatientSnapshot) model.PatientSnapshot {
	out := model.PatientSnapshot{
		Name:    strings.TrimSpace(p.Name),
		Contact: strings.TrimSpace(p.Contact),
		Gender:  strings.TrimSpace(p.Gender),
		Address: strings.TrimSpace(p.Address),
		Email:   strings.TrimSpace(p.Email),
	}
	if p.Age != nil {
		age := *p.Age
		out.Age = &age
	}
	return out
}
