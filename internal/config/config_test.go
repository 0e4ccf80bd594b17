package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEST_REDIS_PASSWORD", "s3cret")

	path := writeFile(t, dir, "config.yaml", `
database:
  path: `+filepath.Join(dir, "data", "app.db")+`
redis:
  address: localhost:6379
  password: ${TEST_REDIS_PASSWORD}
rate_limit:
  bookings_per_second: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "s3cret", cfg.Redis.Password)
	assert.Equal(t, 8090, cfg.Monitoring.HealthCheckPort)
	assert.Equal(t, "configs/doctors.yaml", cfg.Doctors.SeedPath)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL())
	assert.Equal(t, 24*time.Hour, cfg.BackupInterval())
	assert.Equal(t, 30*time.Second, cfg.DoctorsReloadInterval())
	assert.DirExists(t, filepath.Join(dir, "data"))

	rate, burst := cfg.BookingRate()
	assert.Equal(t, 5.0, rate)
	assert.Equal(t, 10, burst)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

const doctorsYAML = `
defaults:
  consultation_minutes: 20
doctors:
  - id: doc-1
    available_days: [mon, wed]
    available_time_slots:
      mon: {start: "09:00", end: "17:00"}
      wed: {start: "10:00", end: "12:00"}
    consultation_minutes: 30
  - id: doc-2
    available_days: [friday]
    available_time_slots:
      friday: {start: "08:00", end: "09:00"}
holidays:
  - date: "2026-01-01"
    name: New Year
`

func TestLoadDoctorsConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "doctors.yaml", doctorsYAML)

	cfg, err := LoadDoctorsConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Doctors, 2)

	assert.Equal(t, 30, cfg.Doctors[0].ConsultationMinutes)
	assert.Equal(t, 20, cfg.Doctors[1].ConsultationMinutes)
	assert.Equal(t, HoursConfig{Start: "09:00", End: "17:00"}, cfg.Doctors[0].AvailableTimeSlots["mon"])
	require.Len(t, cfg.Holidays, 1)
	assert.Equal(t, "2026-01-01", cfg.Holidays[0].Date)
}

func TestDoctorsConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  DoctorsConfig
	}{
		{"missing id", DoctorsConfig{Doctors: []DoctorConfig{{}}}},
		{"duplicate id", DoctorsConfig{Doctors: []DoctorConfig{{ID: "a"}, {ID: "a"}}}},
		{"bad holiday", DoctorsConfig{Holidays: []HolidayConfig{{Date: "01.01.2026"}}}},
		{"negative default", DoctorsConfig{Defaults: DefaultsConfig{ConsultationMinutes: -5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestWatchDoctors_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doctors.yaml", doctorsYAML)

	var mu sync.Mutex
	var seen []*DoctorsConfig

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := WatchDoctors(ctx, path, 10*time.Millisecond, nil, func(cfg *DoctorsConfig) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, cfg)
	})
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, seen, 1)
	mu.Unlock()

	writeFile(t, dir, "doctors.yaml", `
doctors:
  - id: doc-3
    available_days: [tue]
    available_time_slots:
      tue: {start: "09:00", end: "10:00"}
`)
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2 && seen[1].Doctors[0].ID == "doc-3"
	}, 2*time.Second, 10*time.Millisecond)
}

// touch moves the mtime forward so the next poll sees a new revision.
func touch(t *testing.T, path string, offset time.Duration) {
	t.Helper()
	ts := time.Now().Add(offset)
	require.NoError(t, os.Chtimes(path, ts, ts))
}

func TestDoctorsWatcher_RejectedEditKeepsLastGood(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doctors.yaml", doctorsYAML)

	var logs bytes.Buffer
	logger := zerolog.New(&logs)
	var applied []*DoctorsConfig

	w, err := NewDoctorsWatcher(path, &logger, func(cfg *DoctorsConfig) {
		applied = append(applied, cfg)
	})
	require.NoError(t, err)
	require.Len(t, applied, 1)
	good := w.Current()

	writeFile(t, dir, "doctors.yaml", `
doctors:
  - id: doc-9
  - id: doc-9
`)
	touch(t, path, time.Minute)

	assert.False(t, w.Poll())
	assert.Len(t, applied, 1)
	assert.Same(t, good, w.Current())
	assert.Contains(t, logs.String(), "doctors config reload rejected")
	assert.Contains(t, logs.String(), path)
	assert.Contains(t, logs.String(), "duplicate id")

	// The same broken revision is not retried or logged again.
	logs.Reset()
	assert.False(t, w.Poll())
	assert.Empty(t, logs.String())

	writeFile(t, dir, "doctors.yaml", `
doctors:
  - id: doc-3
    available_days: [tue]
    available_time_slots:
      tue: {start: "09:00", end: "10:00"}
`)
	touch(t, path, 2*time.Minute)

	assert.True(t, w.Poll())
	require.Len(t, applied, 2)
	assert.Equal(t, "doc-3", w.Current().Doctors[0].ID)
}

func TestDoctorsWatcher_MissingFileLogsOnce(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doctors.yaml", doctorsYAML)

	var logs bytes.Buffer
	logger := zerolog.New(&logs)
	w, err := NewDoctorsWatcher(path, &logger, nil)
	require.NoError(t, err)
	good := w.Current()

	require.NoError(t, os.Remove(path))
	assert.False(t, w.Poll())
	assert.Contains(t, logs.String(), "doctors config unreadable")

	logs.Reset()
	assert.False(t, w.Poll())
	assert.Empty(t, logs.String())
	assert.Same(t, good, w.Current())

	writeFile(t, dir, "doctors.yaml", doctorsYAML)
	touch(t, path, time.Minute)
	assert.True(t, w.Poll())
	assert.Contains(t, logs.String(), "doctors config readable again")
}

func TestNewDoctorsWatcher_InvalidInitial(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doctors.yaml", "doctors: [")

	_, err := NewDoctorsWatcher(path, nil, nil)
	assert.Error(t, err)

	_, err = NewDoctorsWatcher(filepath.Join(dir, "absent.yaml"), nil, nil)
	assert.Error(t, err)
}
