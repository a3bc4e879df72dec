package handlers

import (
	"context"

	"github.com/go-telegram/bot/models"

	botservice "mindconnect_booking/internal/bot/service"
)

// DefaultHandler обрабатывает неопознанные сообщения
type DefaultHandler struct {
	service *botservice.Service
}

// NewDefaultHandler создает новый обработчик по умолчанию
func NewDefaultHandler(service *botservice.Service) *DefaultHandler {
	return &DefaultHandler{service: service}
}

// Handle подсказывает доступные команды
func (h *DefaultHandler) Handle(ctx context.Context, update *models.Update) error {
	if update.Message == nil {
		return nil
	}

	message := "Нажмите /start, чтобы записаться к психологу, или /my, чтобы посмотреть свои записи."
	return h.service.SendSimpleMessage(ctx, update.Message.Chat.ID, message)
}
