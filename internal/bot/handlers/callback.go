package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot/models"

	"mindconnect_booking/internal/booking"
	"mindconnect_booking/internal/bot/keyboard"
	botservice "mindconnect_booking/internal/bot/service"
	"mindconnect_booking/pkg/logger"
)

// CallbackHandler обрабатывает callback query от inline кнопок
type CallbackHandler struct {
	service *botservice.Service
}

// NewCallbackHandler создает новый обработчик callback query
func NewCallbackHandler(service *botservice.Service) *CallbackHandler {
	return &CallbackHandler{service: service}
}

// Handle обрабатывает callback query
func (h *CallbackHandler) Handle(ctx context.Context, update *models.Update) error {
	if update.CallbackQuery == nil {
		return nil
	}

	cb := update.CallbackQuery
	chatID := CallbackChatID(cb)

	data, err := keyboard.ParseCallback(cb.Data)
	if err != nil {
		h.service.Logger().Warn("Invalid callback data",
			logger.Int64("chat_id", chatID),
			logger.String("data", cb.Data),
		)
		h.service.AnswerCallbackQuery(ctx, cb.ID, "Неверный выбор")
		return err
	}

	switch data.Action {
	case keyboard.ActionCounselor:
		h.service.AnswerCallbackQuery(ctx, cb.ID, "")
		return showDateSelection(ctx, h.service, chatID, data.CounselorID)
	case keyboard.ActionDate:
		h.service.AnswerCallbackQuery(ctx, cb.ID, "")
		return showSlotSelection(ctx, h.service, chatID, data.CounselorID, data.Date)
	case keyboard.ActionSlot:
		return h.handleSlotSelection(ctx, cb, chatID, data)
	default:
		return h.handleCancel(ctx, cb, chatID, data.AppointmentID)
	}
}

func (h *CallbackHandler) handleSlotSelection(ctx context.Context, cb *models.CallbackQuery, chatID int64, data keyboard.Callback) error {
	patient, err := h.service.Booking().PatientByChatID(ctx, chatID)
	if err != nil {
		h.service.AnswerCallbackQuery(ctx, cb.ID, "")
		h.service.SendError(ctx, chatID, botservice.UserMessage(err))
		return err
	}

	appt, err := h.service.Booking().Book(ctx, booking.BookingRequest{
		CounselorID: data.CounselorID,
		PatientID:   patient.ID,
		Date:        data.Date,
		Slot:        data.Slot,
	}, h.service.Now())
	if err != nil {
		h.service.AnswerCallbackQuery(ctx, cb.ID, "Слот недоступен")
		h.service.SendError(ctx, chatID, botservice.UserMessage(err))
		return err
	}

	h.service.AnswerCallbackQuery(ctx, cb.ID, "Вы записаны")

	// Кнопки слотов больше не актуальны
	if msgID := callbackMessageID(cb); msgID != 0 {
		h.service.DeleteMessage(ctx, chatID, msgID)
	}

	text := fmt.Sprintf("Вы записаны на консультацию %s к психологу %s. Мы напомним о ней заранее.",
		appt.GetFormattedDateTime(), appt.CounselorName)
	return h.service.SendSimpleMessage(ctx, chatID, text)
}

func (h *CallbackHandler) handleCancel(ctx context.Context, cb *models.CallbackQuery, chatID int64, appointmentID string) error {
	patient, err := h.service.Booking().PatientByChatID(ctx, chatID)
	if err != nil {
		h.service.AnswerCallbackQuery(ctx, cb.ID, "")
		h.service.SendError(ctx, chatID, botservice.UserMessage(err))
		return err
	}

	if err := h.service.Booking().Cancel(ctx, appointmentID, patient.ID, h.service.Now()); err != nil {
		h.service.AnswerCallbackQuery(ctx, cb.ID, "Не удалось отменить")
		h.service.SendError(ctx, chatID, botservice.UserMessage(err))
		return err
	}

	h.service.AnswerCallbackQuery(ctx, cb.ID, "Запись отменена")
	return h.service.SendSimpleMessage(ctx, chatID, "Запись отменена, слот снова свободен.")
}

// CallbackChatID возвращает чат, из которого пришел callback query
func CallbackChatID(cb *models.CallbackQuery) int64 {
	switch {
	case cb.Message.Message != nil:
		return cb.Message.Message.Chat.ID
	case cb.Message.InaccessibleMessage != nil:
		return cb.Message.InaccessibleMessage.Chat.ID
	default:
		return cb.From.ID
	}
}

func callbackMessageID(cb *models.CallbackQuery) int {
	if cb.Message.Message != nil {
		return cb.Message.Message.ID
	}
	return 0
}
