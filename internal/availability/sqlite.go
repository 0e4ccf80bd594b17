package availability

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clinicsched/internal/database"
	"clinicsched/internal/model"
)

// SQLiteStore keeps schedules in doctor_availability / doctor_windows.
type SQLiteStore struct {
	db *database.DB
}

func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get returns the full weekly schedule of a doctor.
func (s *SQLiteStore) Get(ctx context.Context, doctorID string) (*model.DoctorAvailability, error) {
	a := model.DoctorAvailability{
		DoctorID: doctorID,
		Windows:  make(map[model.Weekday]model.Window),
	}

	err := s.db.QueryRowContext(ctx,
		"SELECT consultation_minutes, version, updated_at FROM doctor_availability WHERE doctor_id = ?",
		doctorID,
	).Scan(&a.ConsultationMinutes, &a.Version, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get availability %s: %w", doctorID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT weekday, start_minute, end_minute
		FROM doctor_windows
		WHERE doctor_id = ?
		ORDER BY weekday`,
		doctorID,
	)
	if err != nil {
		return nil, fmt.Errorf("list windows %s: %w", doctorID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var day, start, end int
		if err := rows.Scan(&day, &start, &end); err != nil {
			return nil, err
		}
		wd := model.Weekday(day)
		a.Weekdays = append(a.Weekdays, wd)
		a.Windows[wd] = model.Window{Start: model.Clock(start), End: model.Clock(end)}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetWindow returns the doctor's window for a weekday. An unknown doctor or a
// day off yields ok=false without an error.
func (s *SQLiteStore) GetWindow(ctx context.Context, doctorID string, day model.Weekday) (model.Window, bool, error) {
	var start, end int
	err := s.db.QueryRowContext(ctx,
		"SELECT start_minute, end_minute FROM doctor_windows WHERE doctor_id = ? AND weekday = ?",
		doctorID, int(day),
	).Scan(&start, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Window{}, false, nil
	}
	if err != nil {
		return model.Window{}, false, fmt.Errorf("get window %s/%s: %w", doctorID, day, err)
	}
	return model.Window{Start: model.Clock(start), End: model.Clock(end)}, true, nil
}

func (s *SQLiteStore) GetConsultationMinutes(ctx context.Context, doctorID string) (int, error) {
	var minutes int
	err := s.db.QueryRowContext(ctx,
		"SELECT consultation_minutes FROM doctor_availability WHERE doctor_id = ?",
		doctorID,
	).Scan(&minutes)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get consultation minutes %s: %w", doctorID, err)
	}
	return minutes, nil
}

// SetAvailability validates and replaces the doctor's whole weekly schedule.
func (s *SQLiteStore) SetAvailability(
	ctx context.Context,
	doctorID string,
	weekdays []model.Weekday,
	windows map[model.Weekday]model.Window,
	consultationMinutes int,
) error {
	a := model.DoctorAvailability{
		DoctorID:            doctorID,
		Weekdays:            weekdays,
		Windows:             windows,
		ConsultationMinutes: consultationMinutes,
	}
	if err := Validate(a); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO doctor_availability (doctor_id, consultation_minutes, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(doctor_id) DO UPDATE SET
			consultation_minutes = excluded.consultation_minutes,
			version = doctor_availability.version + 1,
			updated_at = excluded.updated_at`,
		doctorID, consultationMinutes, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert availability %s: %w", doctorID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM doctor_windows WHERE doctor_id = ?", doctorID); err != nil {
		return fmt.Errorf("clear windows %s: %w", doctorID, err)
	}

	for _, d := range weekdays {
		w := windows[d]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO doctor_windows (doctor_id, weekday, start_minute, end_minute)
			VALUES (?, ?, ?, ?)`,
			doctorID, int(d), int(w.Start), int(w.End),
		)
		if err != nil {
			return fmt.Errorf("insert window %s/%s: %w", doctorID, d, err)
		}
	}

	return tx.Commit()
}

// IsClosed reports whether the clinic is closed on the date.
func (s *SQLiteStore) IsClosed(ctx context.Context, date time.Time) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM clinic_holidays WHERE date = ?",
		date.Format(model.DateLayout),
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SetHolidays replaces the holiday calendar.
func (s *SQLiteStore) SetHolidays(ctx context.Context, holidays []Holiday) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM clinic_holidays"); err != nil {
		return fmt.Errorf("clear holidays: %w", err)
	}
	for _, h := range holidays {
		_, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO clinic_holidays (date, name) VALUES (?, ?)",
			h.Date.Format(model.DateLayout), h.Name,
		)
		if err != nil {
			return fmt.Errorf("insert holiday %s: %w", h.Date.Format(model.DateLayout), err)
		}
	}
	return tx.Commit()
}
