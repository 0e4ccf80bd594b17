package availability

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicsched/internal/database"
	"clinicsched/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteStore(db)
}

func window(start, end string) model.Window {
	return model.Window{Start: model.MustClock(start), End: model.MustClock(end)}
}

func TestValidate(t *testing.T) {
	valid := model.DoctorAvailability{
		DoctorID:            "doc-1",
		Weekdays:            []model.Weekday{model.Monday},
		Windows:             map[model.Weekday]model.Window{model.Monday: window("09:00", "17:00")},
		ConsultationMinutes: 30,
	}
	require.NoError(t, Validate(valid))

	// No working days at all is a valid schedule that yields no slots.
	require.NoError(t, Validate(model.DoctorAvailability{DoctorID: "doc-2", ConsultationMinutes: 15}))

	tests := []struct {
		name   string
		mutate func(a *model.DoctorAvailability)
	}{
		{"empty doctor", func(a *model.DoctorAvailability) { a.DoctorID = "" }},
		{"zero minutes", func(a *model.DoctorAvailability) { a.ConsultationMinutes = 0 }},
		{"negative minutes", func(a *model.DoctorAvailability) { a.ConsultationMinutes = -10 }},
		{"start after end", func(a *model.DoctorAvailability) {
			a.Windows = map[model.Weekday]model.Window{model.Monday: window("17:00", "09:00")}
		}},
		{"start equals end", func(a *model.DoctorAvailability) {
			a.Windows = map[model.Weekday]model.Window{model.Monday: window("09:00", "09:00")}
		}},
		{"missing window", func(a *model.DoctorAvailability) {
			a.Weekdays = []model.Weekday{model.Monday, model.Tuesday}
		}},
		{"stray window", func(a *model.DoctorAvailability) {
			a.Windows = map[model.Weekday]model.Window{
				model.Monday:  window("09:00", "17:00"),
				model.Tuesday: window("09:00", "17:00"),
			}
		}},
		{"duplicate weekday", func(a *model.DoctorAvailability) {
			a.Weekdays = []model.Weekday{model.Monday, model.Monday}
		}},
		{"invalid weekday", func(a *model.DoctorAvailability) {
			a.Weekdays = []model.Weekday{0}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid
			a.Weekdays = append([]model.Weekday(nil), valid.Weekdays...)
			a.Windows = map[model.Weekday]model.Window{model.Monday: valid.Windows[model.Monday]}
			tt.mutate(&a)
			assert.ErrorIs(t, Validate(a), ErrInvalidAvailability)
		})
	}
}

func TestParse(t *testing.T) {
	a, err := Parse("doc-1",
		[]string{"wednesday", "Mon"},
		map[string]RawWindow{
			"monday": {Start: "09:00", End: "12:00"},
			"wed":    {Start: "14:00", End: "18:30"},
		},
		20,
	)
	require.NoError(t, err)
	assert.Equal(t, []model.Weekday{model.Monday, model.Wednesday}, a.Weekdays)
	assert.Equal(t, window("14:00", "18:30"), a.Windows[model.Wednesday])

	_, err = Parse("doc-1", []string{"someday"}, nil, 20)
	assert.ErrorIs(t, err, ErrInvalidAvailability)

	_, err = Parse("doc-1", []string{"mon"}, map[string]RawWindow{"mon": {Start: "9am", End: "12:00"}}, 20)
	assert.ErrorIs(t, err, ErrInvalidAvailability)

	_, err = Parse("doc-1", []string{"mon"},
		map[string]RawWindow{"mon": {Start: "09:00", End: "12:00"}, "monday": {Start: "10:00", End: "11:00"}}, 20)
	assert.ErrorIs(t, err, ErrInvalidAvailability)
}

func TestSQLiteStore_SetAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.SetAvailability(ctx, "doc-1",
		[]model.Weekday{model.Monday, model.Thursday},
		map[model.Weekday]model.Window{
			model.Monday:   window("09:00", "17:00"),
			model.Thursday: window("10:00", "11:00"),
		},
		30,
	)
	require.NoError(t, err)

	w, ok, err := store.GetWindow(ctx, "doc-1", model.Monday)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, window("09:00", "17:00"), w)

	_, ok, err = store.GetWindow(ctx, "doc-1", model.Tuesday)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.GetWindow(ctx, "unknown", model.Monday)
	require.NoError(t, err)
	assert.False(t, ok)

	minutes, err := store.GetConsultationMinutes(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 30, minutes)

	_, err = store.GetConsultationMinutes(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	a, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, []model.Weekday{model.Monday, model.Thursday}, a.Weekdays)
	assert.False(t, a.UpdatedAt.IsZero())

	_, err = store.Get(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_SetReplacesSchedule(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetAvailability(ctx, "doc-1",
		[]model.Weekday{model.Monday},
		map[model.Weekday]model.Window{model.Monday: window("09:00", "17:00")},
		30,
	))
	require.NoError(t, store.SetAvailability(ctx, "doc-1",
		[]model.Weekday{model.Friday},
		map[model.Weekday]model.Window{model.Friday: window("08:00", "12:00")},
		15,
	))

	_, ok, err := store.GetWindow(ctx, "doc-1", model.Monday)
	require.NoError(t, err)
	assert.False(t, ok, "monday window must be gone after replace")

	minutes, err := store.GetConsultationMinutes(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 15, minutes)
}

func TestSQLiteStore_SetRejectsInvalid(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.SetAvailability(ctx, "doc-1",
		[]model.Weekday{model.Monday},
		map[model.Weekday]model.Window{model.Monday: window("17:00", "09:00")},
		30,
	)
	assert.ErrorIs(t, err, ErrInvalidAvailability)

	err = store.SetAvailability(ctx, "doc-1", nil, nil, 0)
	assert.ErrorIs(t, err, ErrInvalidAvailability)

	_, err = store.Get(ctx, "doc-1")
	assert.ErrorIs(t, err, ErrNotFound, "rejected schedule must not be persisted")
}

func TestSQLiteStore_Holidays(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	newYear := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.SetHolidays(ctx, []Holiday{{Date: newYear, Name: "New Year"}}))

	closed, err := store.IsClosed(ctx, newYear)
	require.NoError(t, err)
	assert.True(t, closed)

	closed, err = store.IsClosed(ctx, newYear.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.False(t, closed)

	require.NoError(t, store.SetHolidays(ctx, nil))
	closed, err = store.IsClosed(ctx, newYear)
	require.NoError(t, err)
	assert.False(t, closed)
}
