// Package registry persists appointment records and enforces the
// one-confirmed-appointment-per-slot rule at the storage layer.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clinicsched/internal/database"
	"clinicsched/internal/model"
)

var (
	// ErrConflict is returned when a confirmed appointment already holds the slot.
	ErrConflict = errors.New("slot already booked")
	// ErrNotFound is returned for unknown appointment ids.
	ErrNotFound = errors.New("appointment not found")
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Registry is the appointment store used by the booking coordinator.
type Registry interface {
	Exists(ctx context.Context, doctorID string, date time.Time, slot model.Clock) (bool, error)
	BookedSlots(ctx context.Context, doctorID string, date time.Time) ([]model.Clock, error)
	InsertConfirmed(ctx context.Context, rec *model.AppointmentRecord) error
	UpdateStatus(ctx context.Context, id string, status model.Status) (*model.AppointmentRecord, error)
	Get(ctx context.Context, id string) (*model.AppointmentRecord, error)
	ListByDoctorDate(ctx context.Context, doctorID string, date time.Time) ([]model.AppointmentRecord, error)
	ListRange(ctx context.Context, from, to time.Time) ([]model.AppointmentRecord, error)
}

// SQLiteRegistry stores appointments in the shared sqlite database.
type SQLiteRegistry struct {
	db *database.DB
}

func NewSQLiteRegistry(db *database.DB) *SQLiteRegistry {
	return &SQLiteRegistry{db: db}
}

const selectColumns = `id, doctor_id, branch_id, date, time_slot,
	patient_name, patient_contact, patient_age, patient_gender, patient_address, patient_email,
	referred_doctor_id, notes, status, created_at, updated_at`

// Exists reports whether a confirmed appointment holds the slot.
func (r *SQLiteRegistry) Exists(ctx context.Context, doctorID string, date time.Time, slot model.Clock) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE doctor_id = ? AND date = ? AND time_slot = ? AND status = ?`,
		doctorID, date.Format(model.DateLayout), int(slot), string(model.StatusConfirmed),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count appointments: %w", err)
	}
	return n > 0, nil
}

// BookedSlots returns the confirmed slots of a doctor on a date, ascending.
func (r *SQLiteRegistry) BookedSlots(ctx context.Context, doctorID string, date time.Time) ([]model.Clock, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT time_slot FROM appointments
		WHERE doctor_id = ? AND date = ? AND status = ?
		ORDER BY time_slot`,
		doctorID, date.Format(model.DateLayout), string(model.StatusConfirmed),
	)
	if err != nil {
		return nil, fmt.Errorf("list booked slots: %w", err)
	}
	defer rows.Close()

	var booked []model.Clock
	for rows.Next() {
		var slot int
		if err := rows.Scan(&slot); err != nil {
			return nil, err
		}
		booked = append(booked, model.Clock(slot))
	}
	return booked, rows.Err()
}

// InsertConfirmed stores rec with status confirmed. The check and the write
// are a single statement guarded by the partial unique index, so two
// concurrent inserts for one slot cannot both succeed.
func (r *SQLiteRegistry) InsertConfirmed(ctx context.Context, rec *model.AppointmentRecord) error {
	if rec.ID == "" {
		return errors.New("appointment id is required")
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Status = model.StatusConfirmed

	var age sql.NullInt64
	if rec.Patient.Age != nil {
		age = sql.NullInt64{Int64: int64(*rec.Patient.Age), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO appointments (
			id, doctor_id, branch_id, date, time_slot,
			patient_name, patient_contact, patient_age, patient_gender, patient_address, patient_email,
			referred_doctor_id, notes, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.DoctorID, rec.BranchID, rec.DateString(), int(rec.TimeSlot),
		rec.Patient.Name, rec.Patient.Contact, age,
		nullString(rec.Patient.Gender), nullString(rec.Patient.Address), nullString(rec.Patient.Email),
		nullString(rec.ReferredDoctorID), nullString(rec.Notes),
		string(rec.Status), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrConflict, rec.Key())
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

// UpdateStatus moves a confirmed appointment to cancelled or completed.
// Terminal records cannot change again.
func (r *SQLiteRegistry) UpdateStatus(ctx context.Context, id string, status model.Status) (*model.AppointmentRecord, error) {
	if status != model.StatusCancelled && status != model.StatusCompleted {
		return nil, fmt.Errorf("%w: to %q", ErrInvalidTransition, status)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE appointments SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(status), time.Now().UTC(), id, string(model.StatusConfirmed),
	)
	if err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}

	rec, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, status)
	}
	return rec, nil
}

func (r *SQLiteRegistry) Get(ctx context.Context, id string) (*model.AppointmentRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM appointments WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListByDoctorDate returns every appointment of the doctor on date, any status, by slot.
func (r *SQLiteRegistry) ListByDoctorDate(ctx context.Context, doctorID string, date time.Time) ([]model.AppointmentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM appointments
		WHERE doctor_id = ? AND date = ?
		ORDER BY time_slot, created_at`,
		doctorID, date.Format(model.DateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collect(rows)
}

// ListRange returns appointments with from <= date <= to.
func (r *SQLiteRegistry) ListRange(ctx context.Context, from, to time.Time) ([]model.AppointmentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM appointments
		WHERE date >= ? AND date <= ?
		ORDER BY date, doctor_id, time_slot`,
		from.Format(model.DateLayout), to.Format(model.DateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collect(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*model.AppointmentRecord, error) {
	var (
		rec                     model.AppointmentRecord
		date, status            string
		slot                    int
		age                     sql.NullInt64
		gender, address, email  sql.NullString
		referredDoctorID, notes sql.NullString
	)
	if err := s.Scan(
		&rec.ID, &rec.DoctorID, &rec.BranchID, &date, &slot,
		&rec.Patient.Name, &rec.Patient.Contact, &age, &gender, &address, &email,
		&referredDoctorID, &notes, &status, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	d, err := model.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("parse stored date %q: %w", date, err)
	}
	rec.Date = d
	rec.TimeSlot = model.Clock(slot)
	rec.Status = model.Status(status)
	if age.Valid {
		v := int(age.Int64)
		rec.Patient.Age = &v
	}
	rec.Patient.Gender = gender.String
	rec.Patient.Address = address.String
	rec.Patient.Email = email.String
	rec.ReferredDoctorID = referredDoctorID.String
	rec.Notes = notes.String
	return &rec, nil
}

func collect(rows *sql.Rows) ([]model.AppointmentRecord, error) {
	defer rows.Close()
	var out []model.AppointmentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
