// Package report exports appointments to XLSX workbooks.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"clinicsched/internal/model"
)

// maxRangeDays bounds a single export.
const maxRangeDays = 366

// ErrInvalidRange rejects reversed or oversized export ranges.
var ErrInvalidRange = errors.New("invalid report range")

// AppointmentLister provides appointments for a date range.
type AppointmentLister interface {
	ListRange(ctx context.Context, from, to time.Time) ([]model.AppointmentRecord, error)
}

var columns = []string{
	"ID", "Date", "Time", "Doctor", "Branch", "Patient", "Contact",
	"Age", "Gender", "Email", "Referred By", "Status", "Notes", "Created At",
}

// Exporter writes appointment reports.
type Exporter struct {
	appointments AppointmentLister
	newWriter    func() SheetWriter
	logger       *zerolog.Logger
}

// NewExporter creates an exporter. writerFactory defaults to NewExcelizeWriter.
func NewExporter(appointments AppointmentLister, writerFactory func() SheetWriter, logger *zerolog.Logger) *Exporter {
	if writerFactory == nil {
		writerFactory = NewExcelizeWriter
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Exporter{appointments: appointments, newWriter: writerFactory, logger: logger}
}

// ValidateRange checks from <= to and that the range spans at most maxRangeDays.
func ValidateRange(from, to time.Time) error {
	if to.Before(from) {
		return fmt.Errorf("%w: %s is before %s", ErrInvalidRange, to.Format(model.DateLayout), from.Format(model.DateLayout))
	}
	if to.Sub(from) > maxRangeDays*24*time.Hour {
		return fmt.Errorf("%w: more than %d days", ErrInvalidRange, maxRangeDays)
	}
	return nil
}

// Filename returns "appointments_<from>_<to>.xlsx".
func Filename(from, to time.Time) string {
	return fmt.Sprintf("appointments_%s_%s.xlsx", from.Format(model.DateLayout), to.Format(model.DateLayout))
}

// ExportAppointments writes every appointment with from <= date <= to to out
// and returns the number of rows written.
func (e *Exporter) ExportAppointments(ctx context.Context, from, to time.Time, out io.Writer) (int, error) {
	if err := ValidateRange(from, to); err != nil {
		return 0, err
	}

	list, err := e.appointments.ListRange(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("list appointments: %w", err)
	}

	w := e.newWriter()
	defer w.Close()

	if err := w.AddSheet("Appointments"); err != nil {
		return 0, err
	}
	if err := w.WriteHeader(columns); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	for i := range list {
		if err := w.WriteRow(row(&list[i])); err != nil {
			return 0, fmt.Errorf("write row %s: %w", list[i].ID, err)
		}
	}
	if err := w.Save(out); err != nil {
		return 0, fmt.Errorf("save workbook: %w", err)
	}

	e.logger.Info().
		Str("from", from.Format(model.DateLayout)).
		Str("to", to.Format(model.DateLayout)).
		Int("rows", len(list)).
		Msg("Appointments exported")
	return len(list), nil
}

func row(a *model.AppointmentRecord) []any {
	var age any = ""
	if a.Patient.Age != nil {
		age = *a.Patient.Age
	}
	return []any{
		a.ID,
		a.DateString(),
		a.TimeSlot.String(),
		a.DoctorID,
		a.BranchID,
		a.Patient.Name,
		a.Patient.Contact,
		age,
		a.Patient.Gender,
		a.Patient.Email,
		a.ReferredDoctorID,
		string(a.Status),
		a.Notes,
		a.CreatedAt.UTC().Format(time.RFC3339),
	}
}
