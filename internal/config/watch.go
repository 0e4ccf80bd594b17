package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// DoctorsWatcher polls the doctor seed file and hands every valid revision to
// onUpdate. A revision that fails to load is logged and skipped; the last
// accepted config stays in force until the file changes again.
type DoctorsWatcher struct {
	path     string
	onUpdate func(*DoctorsConfig)
	logger   *zerolog.Logger

	seenMod   time.Time
	current   *DoctorsConfig
	statFails bool
}

// NewDoctorsWatcher loads path once. It fails if the initial revision is
// unreadable or invalid, so the caller decides whether to run without a seed.
func NewDoctorsWatcher(path string, logger *zerolog.Logger, onUpdate func(*DoctorsConfig)) (*DoctorsWatcher, error) {
	if path == "" {
		path = "configs/doctors.yaml"
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat doctors config: %w", err)
	}
	cfg, err := LoadDoctorsConfig(path)
	if err != nil {
		return nil, err
	}

	w := &DoctorsWatcher{path: path, onUpdate: onUpdate, logger: logger, seenMod: info.ModTime(), current: cfg}
	if onUpdate != nil {
		onUpdate(cfg)
	}
	return w, nil
}

// Current returns the last accepted config.
func (w *DoctorsWatcher) Current() *DoctorsConfig {
	return w.current
}

// Poll checks the file once and applies it if its mtime moved past the last
// revision seen. It reports whether a new config was applied.
func (w *DoctorsWatcher) Poll() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		if !w.statFails {
			w.logger.Warn().Err(err).Str("path", w.path).Msg("doctors config unreadable, keeping last schedules")
		}
		w.statFails = true
		return false
	}
	if w.statFails {
		w.logger.Info().Str("path", w.path).Msg("doctors config readable again")
		w.statFails = false
	}
	if !info.ModTime().After(w.seenMod) {
		return false
	}
	// Each revision is tried once; fixing the file bumps the mtime again.
	w.seenMod = info.ModTime()

	cfg, err := LoadDoctorsConfig(w.path)
	if err != nil {
		w.logger.Error().Err(err).Str("path", w.path).Time("modified", info.ModTime()).
			Msg("doctors config reload rejected, keeping last schedules")
		return false
	}

	w.current = cfg
	w.logger.Info().Str("path", w.path).Int("doctors", len(cfg.Doctors)).Msg("doctors config reloaded")
	if w.onUpdate != nil {
		w.onUpdate(cfg)
	}
	return true
}

// Run polls every interval until ctx is done.
func (w *DoctorsWatcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll()
		}
	}
}

// WatchDoctors loads the seed file, calls onUpdate with it and keeps polling
// in the background until ctx is done.
func WatchDoctors(
	ctx context.Context,
	path string,
	interval time.Duration,
	logger *zerolog.Logger,
	onUpdate func(*DoctorsConfig),
) error {
	w, err := NewDoctorsWatcher(path, logger, onUpdate)
	if err != nil {
		return err
	}
	go w.Run(ctx, interval)
	return nil
}
