package report

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"clinicsched/internal/model"
)

type stubLister struct {
	records []model.AppointmentRecord
	err     error
}

func (s *stubLister) ListRange(ctx context.Context, from, to time.Time) ([]model.AppointmentRecord, error) {
	return s.records, s.err
}

var day = time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)

func TestExportAppointments(t *testing.T) {
	age := 30
	lister := &stubLister{records: []model.AppointmentRecord{
		{
			ID: "a-1", DoctorID: "doc-1", BranchID: "b-1", Date: day, TimeSlot: model.MustClock("10:00"),
			Patient: model.PatientSnapshot{Name: "Jane Roe", Contact: "+15550100", Age: &age},
			Status:  model.StatusConfirmed, CreatedAt: day,
		},
		{
			ID: "a-2", DoctorID: "doc-1", BranchID: "b-1", Date: day, TimeSlot: model.MustClock("10:30"),
			Patient: model.PatientSnapshot{Name: "John Doe", Contact: "+15550101"},
			Status:  model.StatusCancelled, CreatedAt: day,
		},
	}}
	logger := zerolog.New(io.Discard)
	exp := NewExporter(lister, nil, &logger)

	var buf bytes.Buffer
	n, err := exp.ExportAppointments(context.Background(), day, day, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Appointments")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, columns, rows[0])
	assert.Equal(t, "a-1", rows[1][0])
	assert.Equal(t, "2026-01-12", rows[1][1])
	assert.Equal(t, "10:00", rows[1][2])
	assert.Equal(t, "30", rows[1][7])
	assert.Equal(t, "cancelled", rows[2][11])
}

func TestExportAppointments_InvalidRange(t *testing.T) {
	exp := NewExporter(&stubLister{}, nil, nil)

	_, err := exp.ExportAppointments(context.Background(), day, day.AddDate(0, 0, -1), io.Discard)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = exp.ExportAppointments(context.Background(), day, day.AddDate(2, 0, 0), io.Discard)
	assert.ErrorIs(t, err, ErrInvalidRange)

	assert.NoError(t, ValidateRange(day, day))
	assert.NoError(t, ValidateRange(day, day.AddDate(0, 0, maxRangeDays)))
	assert.ErrorIs(t, ValidateRange(day, day.AddDate(0, 0, maxRangeDays+1)), ErrInvalidRange)
}

func TestExportAppointments_ListError(t *testing.T) {
	exp := NewExporter(&stubLister{err: errors.New("db down")}, nil, nil)
	_, err := exp.ExportAppointments(context.Background(), day, day, io.Discard)
	assert.Error(t, err)
}

func TestExcelizeWriter_NoSheet(t *testing.T) {
	w := NewExcelizeWriter()
	defer w.Close()
	assert.Error(t, w.WriteHeader([]string{"a"}))
	assert.Error(t, w.WriteRow([]any{"a"}))
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "appointments_2026-01-12_2026-01-18.xlsx", Filename(day, day.AddDate(0, 0, 6)))
}
