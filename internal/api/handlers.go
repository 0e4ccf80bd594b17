package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"clinicsched/internal/availability"
	"clinicsched/internal/booking"
	"clinicsched/internal/events"
	"clinicsched/internal/metrics"
	"clinicsched/internal/model"
	"clinicsched/internal/registry"
	"clinicsched/internal/report"
	"clinicsched/internal/slots"
)

const maxBodyBytes = 1 << 20

// SlotsResponse is the response for GET /doctors/{doctorID}/slots.
type SlotsResponse struct {
	DoctorID string   `json:"doctor_id"`
	Date     string   `json:"date"`
	Slots    []string `json:"slots"`
}

// AvailabilityRequest is the body of PUT /doctors/{doctorID}/availability and
// the response of GET on the same path, so a fetched schedule can be sent back.
type AvailabilityRequest struct {
	DoctorID            string                            `json:"doctorId,omitempty"`
	AvailableDays       []string                          `json:"availableDays"`
	AvailableTimeSlots  map[string]availability.RawWindow `json:"availableTimeSlots"`
	ConsultationMinutes int                               `json:"consultationMinutes"`
}

// AppointmentResponse is the appointment summary returned by the API.
type AppointmentResponse struct {
	ID               string                `json:"id"`
	DoctorID         string                `json:"doctor_id"`
	BranchID         string                `json:"branch_id"`
	Date             string                `json:"date"`
	TimeSlot         string                `json:"time_slot"`
	Patient          model.PatientSnapshot `json:"patient"`
	ReferredDoctorID string                `json:"referred_doctor_id,omitempty"`
	Notes            string                `json:"notes,omitempty"`
	Status           string                `json:"status"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

func toAvailabilityResponse(a *model.DoctorAvailability) AvailabilityRequest {
	resp := AvailabilityRequest{
		DoctorID:            a.DoctorID,
		AvailableDays:       make([]string, 0, len(a.Weekdays)),
		AvailableTimeSlots:  make(map[string]availability.RawWindow, len(a.Weekdays)),
		ConsultationMinutes: a.ConsultationMinutes,
	}
	for _, d := range a.Weekdays {
		resp.AvailableDays = append(resp.AvailableDays, d.String())
		if w, ok := a.Windows[d]; ok {
			resp.AvailableTimeSlots[d.String()] = availability.RawWindow{Start: w.Start.String(), End: w.End.String()}
		}
	}
	return resp
}

func toAppointmentResponse(rec *model.AppointmentRecord) AppointmentResponse {
	return AppointmentResponse{
		ID:               rec.ID,
		DoctorID:         rec.DoctorID,
		BranchID:         rec.BranchID,
		Date:             rec.DateString(),
		TimeSlot:         rec.TimeSlot.String(),
		Patient:          rec.Patient,
		ReferredDoctorID: rec.ReferredDoctorID,
		Notes:            rec.Notes,
		Status:           string(rec.Status),
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
}

// handleSlots returns free slots for a doctor on a date.
// GET /api/v1/doctors/{doctorID}/slots?date=YYYY-MM-DD
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	doctorID := r.PathValue("doctorID")
	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "date is required")
		return
	}
	date, err := model.ParseDate(dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "invalid date format; expected YYYY-MM-DD")
		return
	}

	free, err := s.deps.Slots.ComputeSlots(r.Context(), doctorID, date)
	if err != nil {
		if errors.Is(err, availability.ErrInvalidAvailability) {
			writeError(w, http.StatusBadRequest, "invalid_availability", err.Error())
			return
		}
		s.internalError(w, r, err, "compute slots")
		return
	}
	metrics.IncSlotsComputed()

	writeJSON(w, http.StatusOK, SlotsResponse{DoctorID: doctorID, Date: dateStr, Slots: slots.Format(free)})
}

// handleCreateBooking commits a booking.
// POST /api/v1/bookings
func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req booking.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	rec, err := s.deps.Bookings.Book(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrSlotConflict):
			writeError(w, http.StatusConflict, "slot_conflict", booking.ErrSlotConflict.Error())
		case errors.Is(err, booking.ErrMissingField):
			writeError(w, http.StatusBadRequest, "missing_field", err.Error())
		case errors.Is(err, booking.ErrInvalidSlot):
			writeError(w, http.StatusBadRequest, "invalid_slot", err.Error())
		case errors.Is(err, booking.ErrInvalidAvailability):
			writeError(w, http.StatusBadRequest, "invalid_availability", err.Error())
		default:
			// The insert may or may not have happened; the client must re-query.
			s.internalError(w, r, err, "create booking")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(rec))
}

// handleGetAvailability returns a doctor's stored schedule.
// GET /api/v1/doctors/{doctorID}/availability
func (s *HTTPServer) handleGetAvailability(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Availability.Get(r.Context(), r.PathValue("doctorID"))
	if err != nil {
		if errors.Is(err, availability.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no availability for doctor")
			return
		}
		s.internalError(w, r, err, "get availability")
		return
	}
	writeJSON(w, http.StatusOK, toAvailabilityResponse(a))
}

// handlePutAvailability replaces a doctor's weekly schedule.
// PUT /api/v1/doctors/{doctorID}/availability
func (s *HTTPServer) handlePutAvailability(w http.ResponseWriter, r *http.Request) {
	doctorID := r.PathValue("doctorID")

	var req AvailabilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.DoctorID != "" && req.DoctorID != doctorID {
		writeError(w, http.StatusBadRequest, "invalid_availability", "doctorId does not match path")
		return
	}

	a, err := availability.Parse(doctorID, req.AvailableDays, req.AvailableTimeSlots, req.ConsultationMinutes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_availability", err.Error())
		return
	}
	if err := s.deps.Availability.SetAvailability(r.Context(), a.DoctorID, a.Weekdays, a.Windows, a.ConsultationMinutes); err != nil {
		if errors.Is(err, availability.ErrInvalidAvailability) {
			writeError(w, http.StatusBadRequest, "invalid_availability", err.Error())
			return
		}
		s.internalError(w, r, err, "set availability")
		return
	}

	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.PublishJSON(events.AvailabilityUpdated, events.AvailabilityPayload{DoctorID: doctorID}); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("publish availability event")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/appointments/{id}
func (s *HTTPServer) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Manager.GetAppointment(r.Context(), r.PathValue("id"))
	if err != nil {
		s.managerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(rec))
}

// POST /api/v1/appointments/{id}/cancel
func (s *HTTPServer) handleCancelAppointment(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Manager.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		s.managerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(rec))
}

// POST /api/v1/appointments/{id}/complete
func (s *HTTPServer) handleCompleteAppointment(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Manager.Complete(r.Context(), r.PathValue("id"))
	if err != nil {
		s.managerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(rec))
}

// handleAppointmentsReport streams an XLSX export.
// GET /api/v1/reports/appointments?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *HTTPServer) handleAppointmentsReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("from") == "" || q.Get("to") == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "from and to are required")
		return
	}
	from, err := model.ParseDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "invalid from format; expected YYYY-MM-DD")
		return
	}
	to, err := model.ParseDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "invalid to format; expected YYYY-MM-DD")
		return
	}
	if err := report.ValidateRange(from, to); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}

	// Buffer so a failed export still gets a JSON error instead of a truncated file.
	var buf bytes.Buffer
	if _, err := s.deps.Reports.ExportAppointments(r.Context(), from, to, &buf); err != nil {
		if errors.Is(err, report.ErrInvalidRange) {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}
		s.internalError(w, r, err, "export appointments")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(from, to)))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *HTTPServer) managerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "appointment not found")
	case errors.Is(err, registry.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	default:
		s.internalError(w, r, err, "appointment status")
	}
}

func (s *HTTPServer) internalError(w http.ResponseWriter, r *http.Request, err error, op string) {
	zerolog.Ctx(r.Context()).Error().Err(err).Str("op", op).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal", "internal error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
