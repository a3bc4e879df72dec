package scheduler

import (
	"context"
	"time"

	"mindconnect_booking/internal/storage/models"
)

// ReminderScheduler определяет интерфейс для планирования напоминаний о записи
type ReminderScheduler interface {
	// Schedule планирует напоминание для записи
	Schedule(ctx context.Context, appt *models.Appointment, notifyAt time.Time) error

	// Cancel отменяет запланированное напоминание
	Cancel(ctx context.Context, appointmentID string) error

	// ReschedulePending сбрасывает все таймеры перед повторной загрузкой из хранилища
	ReschedulePending(ctx context.Context) error

	// Start запускает планировщик
	Start(ctx context.Context) error

	// Stop останавливает планировщик
	Stop() error
}

// ReminderSender определяет интерфейс для отправки напоминаний
type ReminderSender interface {
	// SendReminder отправляет пациенту напоминание о записи
	SendReminder(ctx context.Context, appt *models.Appointment) error

	// Channel название канала доставки для метрик
	Channel() string
}

// ReminderAcknowledger фиксирует отправленные напоминания
type ReminderAcknowledger interface {
	// ReminderDue сообщает, что запись действует и напоминание еще не отправлено
	ReminderDue(ctx context.Context, appointmentID string) (bool, error)
	MarkReminderSent(ctx context.Context, appointmentID string) error
}
