package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot/models"

	"mindconnect_booking/internal/bot/keyboard"
	botservice "mindconnect_booking/internal/bot/service"
)

// AppointmentsHandler обрабатывает команду /my
type AppointmentsHandler struct {
	service *botservice.Service
}

// NewAppointmentsHandler создает обработчик списка записей пациента
func NewAppointmentsHandler(service *botservice.Service) *AppointmentsHandler {
	return &AppointmentsHandler{service: service}
}

// Handle показывает предстоящие записи с кнопками отмены
func (h *AppointmentsHandler) Handle(ctx context.Context, update *models.Update) error {
	if update.Message == nil {
		return nil
	}

	chatID := update.Message.Chat.ID

	patient, err := h.service.Booking().PatientByChatID(ctx, chatID)
	if err != nil {
		h.service.SendError(ctx, chatID, botservice.UserMessage(err))
		return err
	}

	appts, err := h.service.Booking().UpcomingAppointments(ctx, patient.ID, h.service.Now())
	if err != nil {
		h.service.SendError(ctx, chatID, botservice.UserMessage(err))
		return err
	}

	if len(appts) == 0 {
		return h.service.SendSimpleMessage(ctx, chatID, "У вас нет предстоящих записей. Нажмите /start, чтобы записаться.")
	}

	var b strings.Builder
	b.WriteString("Ваши записи:\n")
	for _, a := range appts {
		fmt.Fprintf(&b, "• %s, %s\n", a.GetFormattedDateTime(), a.CounselorName)
	}

	return h.service.SendMessage(ctx, chatID, b.String(), keyboard.CreateCancelKeyboard(appts))
}
