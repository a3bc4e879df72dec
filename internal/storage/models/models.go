package models

import (
	"time"

	"mindconnect_booking/internal/schedule"
)

// AppointmentKind формат консультации
type AppointmentKind string

const (
	KindOnline   AppointmentKind = "online"
	KindInPerson AppointmentKind = "in_person"
)

// Valid проверяет, известен ли формат консультации
func (k AppointmentKind) Valid() bool {
	return k == KindOnline || k == KindInPerson
}

// AppointmentStatus статус записи
type AppointmentStatus string

const (
	StatusBooked    AppointmentStatus = "booked"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Counselor представляет психолога и его рабочее расписание
type Counselor struct {
	ID           int64           `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	Email        string          `json:"email" db:"email"`
	Credential   string          `json:"credential" db:"credential"`
	Phone        string          `json:"phone" db:"phone"`
	ChatID       *int64          `json:"chat_id,omitempty" db:"chat_id"`
	WorkStart    string          `json:"work_start" db:"work_start"`
	WorkEnd      string          `json:"work_end" db:"work_end"`
	IntervalMins int             `json:"interval_mins" db:"interval_mins"`
	Schedule     schedule.Labels `json:"schedule" db:"schedule"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// Patient представляет пациента
type Patient struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email,omitempty" db:"email"`
	Phone     string    `json:"phone" db:"phone"`
	ChatID    *int64    `json:"chat_id,omitempty" db:"chat_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Occupancy занятый слот психолога на дату
type Occupancy struct {
	ID          int64          `json:"id" db:"id"`
	CounselorID int64          `json:"counselor_id" db:"counselor_id"`
	Date        string         `json:"date" db:"date"`
	Slot        schedule.Label `json:"slot" db:"slot"`
}

// Appointment представляет запись пациента к психологу
type Appointment struct {
	ID            string            `json:"id" db:"id"`
	Kind          AppointmentKind   `json:"kind" db:"kind"`
	Date          string            `json:"date" db:"date"`
	Slot          schedule.Label    `json:"slot" db:"slot"`
	PatientID     int64             `json:"patient_id" db:"patient_id"`
	CounselorID   int64             `json:"counselor_id" db:"counselor_id"`
	CounselorName string            `json:"counselor_name,omitempty" db:"-"`
	Notes         string            `json:"notes,omitempty" db:"notes"`
	Status        AppointmentStatus `json:"status" db:"status"`
	OccupancyID   *int64            `json:"-" db:"occupancy_id"`
	ReminderSent  bool              `json:"reminder_sent" db:"reminder_sent"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	CancelledAt   *time.Time        `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

// IsActive проверяет, действует ли запись
func (a *Appointment) IsActive() bool {
	return a.Status == StatusBooked
}

// StartsAt возвращает момент начала консультации в часовом поясе loc
func (a *Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	date, err := time.ParseInLocation("2006-01-02", a.Date, loc)
	if err != nil {
		return time.Time{}, err
	}
	start, err := a.Slot.Start()
	if err != nil {
		return time.Time{}, err
	}
	return start.On(date, loc), nil
}

// GetFormattedDateTime возвращает отформатированные дату и время
func (a *Appointment) GetFormattedDateTime() string {
	return a.Date + " " + string(a.Slot)
}
