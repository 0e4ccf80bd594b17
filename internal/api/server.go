// Package api exposes slot discovery, booking and admin operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"clinicsched/internal/booking"
	"clinicsched/internal/events"
	"clinicsched/internal/model"
)

// SlotComputer returns free slots for a doctor on a date.
type SlotComputer interface {
	ComputeSlots(ctx context.Context, doctorID string, date time.Time) ([]model.Clock, error)
}

// Booker commits booking requests.
type Booker interface {
	Book(ctx context.Context, req booking.Request) (*model.AppointmentRecord, error)
}

// AvailabilityEditor reads and replaces doctor schedules.
type AvailabilityEditor interface {
	Get(ctx context.Context, doctorID string) (*model.DoctorAvailability, error)
	SetAvailability(ctx context.Context, doctorID string, weekdays []model.Weekday, windows map[model.Weekday]model.Window, consultationMinutes int) error
}

// AppointmentManager runs the admin status workflow.
type AppointmentManager interface {
	GetAppointment(ctx context.Context, id string) (*model.AppointmentRecord, error)
	Cancel(ctx context.Context, id string) (*model.AppointmentRecord, error)
	Complete(ctx context.Context, id string) (*model.AppointmentRecord, error)
}

// ReportExporter writes appointment workbooks.
type ReportExporter interface {
	ExportAppointments(ctx context.Context, from, to time.Time, out io.Writer) (int, error)
}

// Deps are the services behind the HTTP surface. Publisher may be nil.
type Deps struct {
	Slots        SlotComputer
	Bookings     Booker
	Availability AvailabilityEditor
	Manager      AppointmentManager
	Reports      ReportExporter
	Publisher    events.Publisher
}

// Options tune the server.
type Options struct {
	// BookingsPerSecond <= 0 disables rate limiting of POST /bookings.
	BookingsPerSecond float64
	BookingBurst      int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

// HTTPServer serves the scheduling API.
type HTTPServer struct {
	deps    Deps
	logger  *zerolog.Logger
	limiter *rate.Limiter
	server  *http.Server
}

// NewHTTPServer builds the server listening on addr.
func NewHTTPServer(addr string, deps Deps, opts Options, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &HTTPServer{deps: deps, logger: logger}
	if opts.BookingsPerSecond > 0 {
		burst := opts.BookingBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.BookingsPerSecond), burst)
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      opts.WriteTimeout,
	}
	return s
}

func (s *HTTPServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/doctors/{doctorID}/slots", s.handleSlots)
	mux.HandleFunc("GET /api/v1/doctors/{doctorID}/availability", s.handleGetAvailability)
	mux.HandleFunc("PUT /api/v1/doctors/{doctorID}/availability", s.handlePutAvailability)
	mux.Handle("POST /api/v1/bookings", s.rateLimit(http.HandlerFunc(s.handleCreateBooking)))
	mux.HandleFunc("GET /api/v1/appointments/{id}", s.handleGetAppointment)
	mux.HandleFunc("POST /api/v1/appointments/{id}/cancel", s.handleCancelAppointment)
	mux.HandleFunc("POST /api/v1/appointments/{id}/complete", s.handleCompleteAppointment)
	mux.HandleFunc("GET /api/v1/reports/appointments", s.handleAppointmentsReport)

	return s.requestID(s.accessLog(mux))
}

// Handler returns the root handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start blocks serving until Shutdown.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("API server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}
