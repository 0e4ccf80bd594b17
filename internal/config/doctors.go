package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DoctorConfig is one doctor's weekly schedule in doctors.yaml.
type DoctorConfig struct {
	ID                  string                 `yaml:"id"`
	AvailableDays       []string               `yaml:"available_days"`
	AvailableTimeSlots  map[string]HoursConfig `yaml:"available_time_slots"`
	ConsultationMinutes int                    `yaml:"consultation_minutes"`
}

// HoursConfig is a start/end pair, "09:00" / "17:00".
type HoursConfig struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// HolidayConfig closes the clinic on a date.
type HolidayConfig struct {
	Date string `yaml:"date"` // "2026-01-01"
	Name string `yaml:"name"`
}

// DefaultsConfig is applied to doctors that leave fields empty.
type DefaultsConfig struct {
	ConsultationMinutes int `yaml:"consultation_minutes"`
}

// DoctorsConfig is the root of doctors.yaml.
type DoctorsConfig struct {
	Doctors  []DoctorConfig  `yaml:"doctors"`
	Defaults DefaultsConfig  `yaml:"defaults"`
	Holidays []HolidayConfig `yaml:"holidays"`
}

// LoadDoctorsConfig loads the schedule seed file. Shape errors fail the load;
// schedule invariants are checked per doctor when the file is applied.
func LoadDoctorsConfig(path string) (*DoctorsConfig, error) {
	if path == "" {
		path = "configs/doctors.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read doctors config: %w", err)
	}

	var cfg DoctorsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse doctors config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate doctors config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Validate checks identifiers and holiday dates.
func (c *DoctorsConfig) Validate() error {
	ids := make(map[string]bool)
	for i, d := range c.Doctors {
		if d.ID == "" {
			return fmt.Errorf("doctors[%d]: id is required", i)
		}
		if ids[d.ID] {
			return fmt.Errorf("doctors[%d]: duplicate id '%s'", i, d.ID)
		}
		ids[d.ID] = true
	}

	if c.Defaults.ConsultationMinutes < 0 {
		return fmt.Errorf("defaults.consultation_minutes cannot be negative")
	}

	for i, h := range c.Holidays {
		if _, err := time.Parse("2006-01-02", h.Date); err != nil {
			return fmt.Errorf("holidays[%d]: invalid date '%s', expected YYYY-MM-DD", i, h.Date)
		}
	}
	return nil
}

func (c *DoctorsConfig) applyDefaults() {
	if c.Defaults.ConsultationMinutes == 0 {
		c.Defaults.ConsultationMinutes = 30
	}
	for i := range c.Doctors {
		if c.Doctors[i].ConsultationMinutes == 0 {
			c.Doctors[i].ConsultationMinutes = c.Defaults.ConsultationMinutes
		}
	}
}
