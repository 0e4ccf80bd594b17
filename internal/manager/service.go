// Package manager implements the admin status workflow for appointments.
package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"clinicsched/internal/events"
	"clinicsched/internal/metrics"
	"clinicsched/internal/model"
)

// AppointmentRepository provides appointment operations.
type AppointmentRepository interface {
	Get(ctx context.Context, id string) (*model.AppointmentRecord, error)
	UpdateStatus(ctx context.Context, id string, status model.Status) (*model.AppointmentRecord, error)
	ListByDoctorDate(ctx context.Context, doctorID string, date time.Time) ([]model.AppointmentRecord, error)
}

// Service provides manager operations.
type Service struct {
	appointments AppointmentRepository
	publisher    events.Publisher
	logger       *zerolog.Logger
}

// NewService creates a new manager service. publisher may be nil.
func NewService(appointments AppointmentRepository, publisher events.Publisher, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{appointments: appointments, publisher: publisher, logger: logger}
}

// GetAppointment returns an appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id string) (*model.AppointmentRecord, error) {
	return s.appointments.Get(ctx, id)
}

// DaySheet returns the doctor's appointments on date, every status.
func (s *Service) DaySheet(ctx context.Context, doctorID string, date time.Time) ([]model.AppointmentRecord, error) {
	return s.appointments.ListByDoctorDate(ctx, doctorID, date)
}

// Cancel cancels a confirmed appointment and frees its slot.
func (s *Service) Cancel(ctx context.Context, id string) (*model.AppointmentRecord, error) {
	return s.transition(ctx, id, model.StatusCancelled)
}

// Complete marks a confirmed appointment as attended.
func (s *Service) Complete(ctx context.Context, id string) (*model.AppointmentRecord, error) {
	return s.transition(ctx, id, model.StatusCompleted)
}

func (s *Service) transition(ctx context.Context, id string, to model.Status) (*model.AppointmentRecord, error) {
	rec, err := s.appointments.UpdateStatus(ctx, id, to)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	metrics.IncStatusChange(string(to))
	s.logger.Info().
		Str("appointment_id", rec.ID).
		Str("doctor_id", rec.DoctorID).
		Str("date", rec.DateString()).
		Str("time_slot", rec.TimeSlot.String()).
		Str("status", string(rec.Status)).
		Msg("Appointment status changed")

	if s.publisher != nil {
		payload := events.AppointmentPayload{
			AppointmentID: rec.ID,
			DoctorID:      rec.DoctorID,
			Date:          rec.DateString(),
			TimeSlot:      rec.TimeSlot.String(),
			Status:        string(rec.Status),
			PreviousState: string(model.StatusConfirmed),
		}
		if err := s.publisher.PublishJSON(events.AppointmentStatusChanged, payload); err != nil {
			s.logger.Warn().Err(err).Str("appointment_id", rec.ID).Msg("publish status event")
		}
	}
	return rec, nil
}
