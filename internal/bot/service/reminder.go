package service

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"

	"mindconnect_booking/internal/storage"
	"mindconnect_booking/internal/storage/models"
	"mindconnect_booking/pkg/errors"
	"mindconnect_booking/pkg/logger"
)

// ReminderSender отправляет напоминания о записи в Telegram
type ReminderSender struct {
	messenger Messenger
	patients  storage.PatientRepository
	log       *logger.Logger
}

// NewReminderSender создает отправителя напоминаний через Telegram
func NewReminderSender(messenger Messenger, patients storage.PatientRepository, log *logger.Logger) *ReminderSender {
	return &ReminderSender{
		messenger: messenger,
		patients:  patients,
		log:       log,
	}
}

// SendReminder отправляет пациенту напоминание о предстоящей консультации
func (s *ReminderSender) SendReminder(ctx context.Context, appt *models.Appointment) error {
	patient, err := s.patients.GetPatient(ctx, appt.PatientID)
	if err != nil {
		return fmt.Errorf("load patient %d: %w", appt.PatientID, err)
	}

	if patient.ChatID == nil {
		// Пациент записан через HTTP API и не подключал бота
		s.log.Info("Patient has no telegram chat, reminder skipped",
			logger.String("appointment_id", appt.ID),
			logger.Int64("patient_id", appt.PatientID),
		)
		return nil
	}

	text := fmt.Sprintf("Напоминание: консультация %s", appt.GetFormattedDateTime())
	if appt.CounselorName != "" {
		text += " с психологом " + appt.CounselorName
	}
	if appt.Kind == models.KindOnline {
		text += " (онлайн)"
	}

	_, err = s.messenger.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: *patient.ChatID,
		Text:   text,
	})
	if err != nil {
		return errors.ErrTelegramAPI.WithError(err)
	}

	return nil
}

// Channel возвращает название канала
func (s *ReminderSender) Channel() string {
	return "telegram"
}
