package handlers

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/go-telegram/bot/models"

	"mindconnect_booking/internal/bot/keyboard"
	botservice "mindconnect_booking/internal/bot/service"
	"mindconnect_booking/pkg/errors"
	"mindconnect_booking/pkg/logger"
)

// StartHandler обрабатывает команду /start
type StartHandler struct {
	service *botservice.Service
}

// NewStartHandler создает новый обработчик команды /start
func NewStartHandler(service *botservice.Service) *StartHandler {
	return &StartHandler{service: service}
}

// Handle обрабатывает команду /start
func (h *StartHandler) Handle(ctx context.Context, update *models.Update) error {
	if update.Message == nil || !strings.HasPrefix(update.Message.Text, "/start") {
		return nil
	}

	chatID := update.Message.Chat.ID

	_, err := h.service.Booking().PatientByChatID(ctx, chatID)
	switch {
	case err == nil:
		if err := h.service.SendMessage(ctx, chatID, "Добро пожаловать обратно!", keyboard.CreateRemoveKeyboard()); err != nil {
			return err
		}
		return showCounselors(ctx, h.service, chatID)

	case stderrors.Is(err, errors.ErrUnknownPatient):
		message := "Здравствуйте! Чтобы записаться к психологу, поделитесь своим номером телефона, нажав кнопку ниже."
		return h.service.SendMessage(ctx, chatID, message, keyboard.CreateContactKeyboard())

	default:
		h.service.Logger().Error("Failed to check patient registration",
			logger.Int64("chat_id", chatID),
			logger.Error(err),
		)
		h.service.SendError(ctx, chatID, "Произошла ошибка при проверке регистрации")
		return err
	}
}
