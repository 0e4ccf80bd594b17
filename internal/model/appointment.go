package model

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date wire format.
const DateLayout = "2006-01-02"

// Status of an appointment record.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// PatientSnapshot is copied into the appointment at booking time.
type PatientSnapshot struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Age     *int   `json:"age,omitempty"`
	Gender  string `json:"gender,omitempty"`
	Address string `json:"address,omitempty"`
	Email   string `json:"email,omitempty"`
}

type AppointmentRecord struct {
	ID               string          `json:"id"`
	DoctorID         string          `json:"doctor_id"`
	BranchID         string          `json:"branch_id"`
	Date             time.Time       `json:"-"`
	TimeSlot         Clock           `json:"time_slot"`
	Patient          PatientSnapshot `json:"patient"`
	ReferredDoctorID string          `json:"referred_doctor_id,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	Status           Status          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// DateString returns the appointment date as YYYY-MM-DD.
func (a *AppointmentRecord) DateString() string {
	return a.Date.Format(DateLayout)
}

// StartsAt returns the slot start on the appointment date.
func (a *AppointmentRecord) StartsAt() time.Time {
	return a.TimeSlot.On(a.Date)
}

// Key identifies the (doctor, date, slot) triple guarded by the uniqueness constraint.
func (a *AppointmentRecord) Key() SlotKey {
	return SlotKey{DoctorID: a.DoctorID, Date: a.DateString(), TimeSlot: a.TimeSlot}
}

type SlotKey struct {
	DoctorID string
	Date     string
	TimeSlot Clock
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.DoctorID, k.Date, k.TimeSlot)
}

// ParseDate parses YYYY-MM-DD into a UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// DateOnly truncates t to its calendar day in UTC.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
