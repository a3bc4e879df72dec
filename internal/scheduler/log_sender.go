package scheduler

import (
	"context"

	"mindconnect_booking/internal/storage/models"
	"mindconnect_booking/pkg/logger"
)

// LogSender пишет напоминания в лог, когда Telegram бот не настроен
type LogSender struct {
	log *logger.Logger
}

// NewLogSender создает отправителя напоминаний в лог
func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log}
}

// SendReminder записывает напоминание в лог
func (s *LogSender) SendReminder(ctx context.Context, appt *models.Appointment) error {
	s.log.WithContext(ctx).Info("Appointment reminder",
		logger.String("appointment_id", appt.ID),
		logger.Int64("patient_id", appt.PatientID),
		logger.Int64("counselor_id", appt.CounselorID),
		logger.String("date", appt.Date),
		logger.String("slot", string(appt.Slot)),
	)
	return nil
}

// Channel возвращает название канала
func (s *LogSender) Channel() string {
	return "log"
}
