package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot/models"

	"mindconnect_booking/internal/booking"
	"mindconnect_booking/internal/bot/keyboard"
	botservice "mindconnect_booking/internal/bot/service"
	"mindconnect_booking/pkg/logger"
)

// ContactHandler регистрирует пациента по присланному контакту
type ContactHandler struct {
	service *botservice.Service
}

// NewContactHandler создает новый обработчик контактов
func NewContactHandler(service *botservice.Service) *ContactHandler {
	return &ContactHandler{service: service}
}

// Handle обрабатывает сообщения с контактной информацией
func (h *ContactHandler) Handle(ctx context.Context, update *models.Update) error {
	if update.Message == nil || update.Message.Contact == nil {
		return nil
	}

	chatID := update.Message.Chat.ID
	contact := update.Message.Contact

	if contact.PhoneNumber == "" {
		h.service.SendError(ctx, chatID, "Не получен номер телефона. Попробуйте еще раз.")
		return nil
	}

	name := strings.TrimSpace(contact.FirstName + " " + contact.LastName)
	patient, err := h.service.Booking().RegisterPatient(ctx, booking.PatientInput{
		Name:   name,
		Phone:  contact.PhoneNumber,
		ChatID: &chatID,
	})
	if err != nil {
		h.service.Logger().Warn("Failed to register patient",
			logger.Int64("chat_id", chatID),
			logger.Error(err),
		)
		h.service.SendError(ctx, chatID, botservice.UserMessage(err))
		return err
	}

	h.service.Logger().Info("Patient linked to chat",
		logger.Int64("chat_id", chatID),
		logger.Int64("patient_id", patient.ID),
	)

	message := "Телефон получен. Давайте запишемся."
	if err := h.service.SendMessage(ctx, chatID, message, keyboard.CreateRemoveKeyboard()); err != nil {
		return err
	}

	return showCounselors(ctx, h.service, chatID)
}
