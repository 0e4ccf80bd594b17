package availability

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicsched/internal/config"
	"clinicsched/internal/model"
)

func TestSyncFromConfig(t *testing.T) {
	store := newTestStore(t)
	logger := zerolog.New(io.Discard)
	ctx := context.Background()

	cfg := &config.DoctorsConfig{
		Doctors: []config.DoctorConfig{
			{
				ID:            "doc-1",
				AvailableDays: []string{"mon"},
				AvailableTimeSlots: map[string]config.HoursConfig{
					"mon": {Start: "10:00", End: "11:00"},
				},
				ConsultationMinutes: 30,
			},
			{
				// start after end: skipped
				ID:            "doc-2",
				AvailableDays: []string{"tue"},
				AvailableTimeSlots: map[string]config.HoursConfig{
					"tue": {Start: "18:00", End: "09:00"},
				},
				ConsultationMinutes: 30,
			},
		},
		Holidays: []config.HolidayConfig{{Date: "2026-01-01", Name: "New Year"}},
	}

	applied, err := SyncFromConfig(ctx, store, cfg, &logger)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	w, ok, err := store.GetWindow(ctx, "doc-1", model.Monday)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, window("10:00", "11:00"), w)

	_, err = store.Get(ctx, "doc-2")
	assert.ErrorIs(t, err, ErrNotFound)

	closed, err := store.IsClosed(ctx, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, closed)
}

func TestSyncFromConfig_Nil(t *testing.T) {
	logger := zerolog.New(io.Discard)
	_, err := SyncFromConfig(context.Background(), newTestStore(t), nil, &logger)
	assert.Error(t, err)
}
