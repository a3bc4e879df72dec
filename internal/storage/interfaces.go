package storage

import (
	"context"
	"errors"
	"time"

	"mindconnect_booking/internal/schedule"
	"mindconnect_booking/internal/storage/models"
)

var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")
	// ErrConflict нарушено ограничение уникальности
	ErrConflict = errors.New("unique constraint violation")
)

// CounselorRepository определяет интерфейс для работы с психологами
type CounselorRepository interface {
	CreateCounselor(ctx context.Context, c *models.Counselor) error
	GetCounselor(ctx context.Context, id int64) (*models.Counselor, error)
	ListCounselors(ctx context.Context) ([]*models.Counselor, error)
	UpdateWorkingHours(ctx context.Context, id int64, workStart, workEnd string, intervalMins int, labels schedule.Labels) error
}

// PatientRepository определяет интерфейс для работы с пациентами
type PatientRepository interface {
	CreatePatient(ctx context.Context, p *models.Patient) error
	GetPatient(ctx context.Context, id int64) (*models.Patient, error)
	GetPatientByChatID(ctx context.Context, chatID int64) (*models.Patient, error)
}

// BookingRepository определяет интерфейс для работы с занятостью и записями
type BookingRepository interface {
	ListOccupiedSlots(ctx context.Context, counselorID int64, date string) ([]schedule.Label, error)
	// CreateBooking в одной транзакции создает занятость и запись.
	// При занятом слоте возвращает ErrConflict и ничего не сохраняет.
	CreateBooking(ctx context.Context, appt *models.Appointment) error
	// CancelAppointment освобождает слот и помечает запись отмененной
	CancelAppointment(ctx context.Context, appointmentID string, patientID int64, cancelledAt time.Time) error
	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	ListPatientAppointments(ctx context.Context, patientID int64) ([]*models.Appointment, error)
	ListCounselorAppointments(ctx context.Context, counselorID int64, date string) ([]*models.Appointment, error)
	ListPendingReminders(ctx context.Context, fromDate string) ([]*models.Appointment, error)
	ReminderDue(ctx context.Context, appointmentID string) (bool, error)
	MarkReminderSent(ctx context.Context, appointmentID string) error
}

// Storage объединяет все репозитории в единый интерфейс
type Storage interface {
	CounselorRepository
	PatientRepository
	BookingRepository
	Close() error
	Ping(ctx context.Context) error
}
