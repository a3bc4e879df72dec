package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"mindconnect_booking/internal/schedule"
	"mindconnect_booking/internal/storage"
	"mindconnect_booking/internal/storage/models"
	"mindconnect_booking/pkg/metrics"
)

// SQLiteStorage реализует интерфейс Storage для SQLite
type SQLiteStorage struct {
	db *sql.DB
}

var _ storage.Storage = (*SQLiteStorage)(nil)

// connPragmas применяются драйвером к каждому новому подключению
var connPragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"busy_timeout(5000)",
}

// dsn добавляет к пути параметры _pragma
func dsn(dbPath string) string {
	params := make([]string, 0, len(connPragmas))
	for _, p := range connPragmas {
		params = append(params, "_pragma="+p)
	}

	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + strings.Join(params, "&")
}

// New создает новое подключение к SQLite базе данных
func New(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка подключения
	db.SetMaxOpenConns(1) // SQLite поддерживает только одно write-подключение
	db.SetMaxIdleConns(1)
	// Без ограничения времени жизни: база :memory: существует, пока открыто подключение
	db.SetConnMaxLifetime(0)

	s := &SQLiteStorage{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return s, nil
}

// NewWithDB оборачивает готовое подключение без миграций
func NewWithDB(db *sql.DB) *SQLiteStorage {
	return &SQLiteStorage{db: db}
}

// migrate выполняет миграции базы данных
func (s *SQLiteStorage) migrate() error {
	var foreignKeys int
	if err := s.db.QueryRow(`PRAGMA foreign_keys`).Scan(&foreignKeys); err != nil {
		return fmt.Errorf("failed to read foreign_keys pragma: %w", err)
	}
	if foreignKeys != 1 {
		return fmt.Errorf("foreign keys are disabled")
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS counselors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			credential TEXT NOT NULL UNIQUE,
			phone TEXT NOT NULL,
			chat_id INTEGER UNIQUE,
			work_start TEXT NOT NULL,
			work_end TEXT NOT NULL,
			interval_mins INTEGER NOT NULL,
			schedule TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS patients (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL,
			chat_id INTEGER UNIQUE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS occupancies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			counselor_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			slot TEXT NOT NULL,
			UNIQUE(counselor_id, date, slot),
			FOREIGN KEY(counselor_id) REFERENCES counselors(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS appointments (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			date TEXT NOT NULL,
			slot TEXT NOT NULL,
			patient_id INTEGER NOT NULL,
			counselor_id INTEGER NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'booked',
			occupancy_id INTEGER,
			reminder_sent INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			cancelled_at DATETIME,
			FOREIGN KEY(patient_id) REFERENCES patients(id) ON DELETE CASCADE,
			FOREIGN KEY(counselor_id) REFERENCES counselors(id) ON DELETE CASCADE,
			FOREIGN KEY(occupancy_id) REFERENCES occupancies(id) ON DELETE SET NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_occupancies_counselor_date ON occupancies(counselor_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_patient ON appointments(patient_id)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_counselor_date ON appointments(counselor_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_reminder ON appointments(status, reminder_sent)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration query: %w", err)
		}
	}

	return nil
}

// Close закрывает подключение к базе данных
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping проверяет подключение к базе данных
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// isUniqueViolation распознает нарушение UNIQUE/PRIMARY KEY ограничения
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func observe(operation, table string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordDatabaseOperation(operation, table, status)
}

// CreateCounselor сохраняет психолога вместе с расписанием
func (s *SQLiteStorage) CreateCounselor(ctx context.Context, c *models.Counselor) (err error) {
	defer func() { observe("insert", "counselors", err) }()

	now := time.Now().UTC()
	query := `INSERT INTO counselors (name, email, credential, phone, chat_id, work_start, work_end, interval_mins, schedule, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		c.Name, c.Email, c.Credential, c.Phone, c.ChatID,
		c.WorkStart, c.WorkEnd, c.IntervalMins, c.Schedule, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("failed to create counselor: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get counselor ID: %w", err)
	}

	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

const counselorColumns = `id, name, email, credential, phone, chat_id, work_start, work_end, interval_mins, schedule, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCounselor(row rowScanner) (*models.Counselor, error) {
	c := &models.Counselor{}
	err := row.Scan(
		&c.ID, &c.Name, &c.Email, &c.Credential, &c.Phone, &c.ChatID,
		&c.WorkStart, &c.WorkEnd, &c.IntervalMins, &c.Schedule, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetCounselor получает психолога по ID
func (s *SQLiteStorage) GetCounselor(ctx context.Context, id int64) (*models.Counselor, error) {
	query := `SELECT ` + counselorColumns + ` FROM counselors WHERE id = ?`

	c, err := scanCounselor(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get counselor: %w", err)
	}

	return c, nil
}

// ListCounselors возвращает всех психологов по имени
func (s *SQLiteStorage) ListCounselors(ctx context.Context) ([]*models.Counselor, error) {
	query := `SELECT ` + counselorColumns + ` FROM counselors ORDER BY name, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list counselors: %w", err)
	}
	defer rows.Close()

	counselors := []*models.Counselor{}
	for rows.Next() {
		c, err := scanCounselor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan counselor: %w", err)
		}
		counselors = append(counselors, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate counselors: %w", err)
	}

	return counselors, nil
}

// UpdateWorkingHours целиком заменяет рабочие часы и расписание психолога
func (s *SQLiteStorage) UpdateWorkingHours(ctx context.Context, id int64, workStart, workEnd string, intervalMins int, labels schedule.Labels) (err error) {
	defer func() { observe("update", "counselors", err) }()

	query := `UPDATE counselors SET work_start = ?, work_end = ?, interval_mins = ?, schedule = ?, updated_at = ?
			  WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, workStart, workEnd, intervalMins, labels, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update working hours: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rowsAffected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// CreatePatient сохраняет пациента
func (s *SQLiteStorage) CreatePatient(ctx context.Context, p *models.Patient) (err error) {
	defer func() { observe("insert", "patients", err) }()

	now := time.Now().UTC()
	query := `INSERT INTO patients (name, email, phone, chat_id, created_at) VALUES (?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query, p.Name, p.Email, p.Phone, p.ChatID, now)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("failed to create patient: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get patient ID: %w", err)
	}

	p.ID = id
	p.CreatedAt = now
	return nil
}

const patientColumns = `id, name, email, phone, chat_id, created_at`

func (s *SQLiteStorage) getPatient(ctx context.Context, where string, arg interface{}) (*models.Patient, error) {
	p := &models.Patient{}
	query := `SELECT ` + patientColumns + ` FROM patients WHERE ` + where

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&p.ID, &p.Name, &p.Email, &p.Phone, &p.ChatID, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}

	return p, nil
}

// GetPatient получает пациента по ID
func (s *SQLiteStorage) GetPatient(ctx context.Context, id int64) (*models.Patient, error) {
	return s.getPatient(ctx, "id = ?", id)
}

// GetPatientByChatID получает пациента по Telegram chat_id
func (s *SQLiteStorage) GetPatientByChatID(ctx context.Context, chatID int64) (*models.Patient, error) {
	return s.getPatient(ctx, "chat_id = ?", chatID)
}

// ListOccupiedSlots возвращает занятые слоты психолога на дату
func (s *SQLiteStorage) ListOccupiedSlots(ctx context.Context, counselorID int64, date string) ([]schedule.Label, error) {
	query := `SELECT slot FROM occupancies WHERE counselor_id = ? AND date = ?`

	rows, err := s.db.QueryContext(ctx, query, counselorID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list occupied slots: %w", err)
	}
	defer rows.Close()

	var slots []schedule.Label
	for rows.Next() {
		var label schedule.Label
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("failed to scan occupied slot: %w", err)
		}
		slots = append(slots, label)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate occupied slots: %w", err)
	}

	return slots, nil
}

// CreateBooking атомарно занимает слот и создает запись
func (s *SQLiteStorage) CreateBooking(ctx context.Context, appt *models.Appointment) (err error) {
	defer func() { observe("insert", "appointments", err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO occupancies (counselor_id, date, slot) VALUES (?, ?, ?)`,
		appt.CounselorID, appt.Date, string(appt.Slot),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("failed to occupy slot: %w", err)
	}

	occupancyID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get occupancy ID: %w", err)
	}

	if appt.Status == "" {
		appt.Status = models.StatusBooked
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO appointments (id, kind, date, slot, patient_id, counselor_id, notes, status, occupancy_id, reminder_sent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		appt.ID, string(appt.Kind), appt.Date, string(appt.Slot), appt.PatientID, appt.CounselorID,
		appt.Notes, string(appt.Status), occupancyID, appt.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("failed to create appointment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	appt.OccupancyID = &occupancyID
	return nil
}

// CancelAppointment освобождает слот и помечает запись отмененной
func (s *SQLiteStorage) CancelAppointment(ctx context.Context, appointmentID string, patientID int64, cancelledAt time.Time) (err error) {
	defer func() { observe("update", "appointments", err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var occupancyID sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT occupancy_id FROM appointments WHERE id = ? AND patient_id = ? AND status = ?`,
		appointmentID, patientID, string(models.StatusBooked),
	).Scan(&occupancyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("failed to get appointment: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE appointments SET status = ?, cancelled_at = ?, occupancy_id = NULL WHERE id = ?`,
		string(models.StatusCancelled), cancelledAt.UTC(), appointmentID,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel appointment: %w", err)
	}

	if occupancyID.Valid {
		if _, err = tx.ExecContext(ctx, `DELETE FROM occupancies WHERE id = ?`, occupancyID.Int64); err != nil {
			return fmt.Errorf("failed to release slot: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cancellation: %w", err)
	}

	return nil
}

const appointmentSelect = `SELECT a.id, a.kind, a.date, a.slot, a.patient_id, a.counselor_id, COALESCE(c.name, ''),
		a.notes, a.status, a.occupancy_id, a.reminder_sent, a.created_at, a.cancelled_at
	FROM appointments a LEFT JOIN counselors c ON c.id = a.counselor_id`

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	a := &models.Appointment{}
	var cancelledAt sql.NullTime
	err := row.Scan(
		&a.ID, &a.Kind, &a.Date, &a.Slot, &a.PatientID, &a.CounselorID, &a.CounselorName,
		&a.Notes, &a.Status, &a.OccupancyID, &a.ReminderSent, &a.CreatedAt, &cancelledAt,
	)
	if err != nil {
		return nil, err
	}
	if cancelledAt.Valid {
		a.CancelledAt = &cancelledAt.Time
	}
	return a, nil
}

func (s *SQLiteStorage) queryAppointments(ctx context.Context, query string, args ...interface{}) ([]*models.Appointment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	appointments := []*models.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appointments = append(appointments, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointments: %w", err)
	}

	return appointments, nil
}

// GetAppointment получает запись по ID
func (s *SQLiteStorage) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	a, err := scanAppointment(s.db.QueryRowContext(ctx, appointmentSelect+` WHERE a.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}

	return a, nil
}

// ListPatientAppointments возвращает записи пациента в хронологическом порядке
func (s *SQLiteStorage) ListPatientAppointments(ctx context.Context, patientID int64) ([]*models.Appointment, error) {
	return s.queryAppointments(ctx,
		appointmentSelect+` WHERE a.patient_id = ? ORDER BY a.date, a.slot`,
		patientID,
	)
}

// ListCounselorAppointments возвращает записи к психологу, при непустой date только на эту дату
func (s *SQLiteStorage) ListCounselorAppointments(ctx context.Context, counselorID int64, date string) ([]*models.Appointment, error) {
	if date == "" {
		return s.queryAppointments(ctx,
			appointmentSelect+` WHERE a.counselor_id = ? ORDER BY a.date, a.slot`,
			counselorID,
		)
	}

	return s.queryAppointments(ctx,
		appointmentSelect+` WHERE a.counselor_id = ? AND a.date = ? ORDER BY a.slot`,
		counselorID, date,
	)
}

// ListPendingReminders возвращает действующие записи без отправленного напоминания
func (s *SQLiteStorage) ListPendingReminders(ctx context.Context, fromDate string) ([]*models.Appointment, error) {
	return s.queryAppointments(ctx,
		appointmentSelect+` WHERE a.status = ? AND a.reminder_sent = 0 AND a.date >= ? ORDER BY a.date, a.slot`,
		string(models.StatusBooked), fromDate,
	)
}

// ReminderDue проверяет, нужно ли еще отправлять напоминание по записи
func (s *SQLiteStorage) ReminderDue(ctx context.Context, appointmentID string) (due bool, err error) {
	defer func() { observe("select", "appointments", err) }()

	var status models.AppointmentStatus
	var sent bool
	err = s.db.QueryRowContext(ctx,
		`SELECT status, reminder_sent FROM appointments WHERE id = ?`, appointmentID,
	).Scan(&status, &sent)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check reminder: %w", err)
	}

	return status == models.StatusBooked && !sent, nil
}

// MarkReminderSent помечает напоминание отправленным
func (s *SQLiteStorage) MarkReminderSent(ctx context.Context, appointmentID string) (err error) {
	defer func() { observe("update", "appointments", err) }()

	_, err = s.db.ExecContext(ctx, `UPDATE appointments SET reminder_sent = 1 WHERE id = ?`, appointmentID)
	if err != nil {
		return fmt.Errorf("failed to mark reminder as sent: %w", err)
	}

	return nil
}
