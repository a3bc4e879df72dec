package service

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"mindconnect_booking/internal/booking"
	"mindconnect_booking/internal/config"
	"mindconnect_booking/internal/validation"
	"mindconnect_booking/pkg/errors"
	"mindconnect_booking/pkg/logger"
)

// Messenger часть Telegram Bot API, которой пользуется бот. *bot.Bot реализует его.
type Messenger interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
}

// Service представляет основной сервис Telegram бота
type Service struct {
	messenger Messenger
	booking   *booking.Service
	config    *config.Config
	log       *logger.Logger
	now       func() time.Time
}

// NewService создает новый экземпляр сервиса бота
func NewService(messenger Messenger, bookings *booking.Service, cfg *config.Config, log *logger.Logger) *Service {
	return &Service{
		messenger: messenger,
		booking:   bookings,
		config:    cfg,
		log:       log,
		now:       time.Now,
	}
}

// SetClock подменяет источник текущего времени
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Now возвращает текущее время в часовом поясе расписания
func (s *Service) Now() time.Time {
	return s.now().In(s.booking.Location())
}

// Booking возвращает сервис записи
func (s *Service) Booking() *booking.Service {
	return s.booking
}

// Logger возвращает логгер сервиса
func (s *Service) Logger() *logger.Logger {
	return s.log
}

// SlotsPerRow количество кнопок слотов в ряду
func (s *Service) SlotsPerRow() int {
	return s.config.Schedule.SlotsPerRow
}

// SendMessage отправляет сообщение пользователю
func (s *Service) SendMessage(ctx context.Context, chatID int64, text string, replyMarkup tgmodels.ReplyMarkup) error {
	params := &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: replyMarkup,
	}

	if _, err := s.messenger.SendMessage(ctx, params); err != nil {
		return errors.ErrTelegramAPI.WithError(err)
	}
	return nil
}

// SendSimpleMessage отправляет простое текстовое сообщение
func (s *Service) SendSimpleMessage(ctx context.Context, chatID int64, text string) error {
	return s.SendMessage(ctx, chatID, text, nil)
}

// SendError отправляет сообщение об ошибке пользователю
func (s *Service) SendError(ctx context.Context, chatID int64, message string) {
	if err := s.SendSimpleMessage(ctx, chatID, message); err != nil {
		s.log.Error("Failed to send error message",
			logger.Int64("chat_id", chatID),
			logger.Error(err),
		)
	}
}

// AnswerCallbackQuery отвечает на callback query
func (s *Service) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) {
	params := &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackQueryID,
		Text:            text,
	}

	if _, err := s.messenger.AnswerCallbackQuery(ctx, params); err != nil {
		s.log.Warn("Failed to answer callback query", logger.Error(err))
	}
}

// DeleteMessage удаляет сообщение
func (s *Service) DeleteMessage(ctx context.Context, chatID int64, messageID int) {
	params := &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	}

	if _, err := s.messenger.DeleteMessage(ctx, params); err != nil {
		s.log.Warn("Failed to delete message",
			logger.Int64("chat_id", chatID),
			logger.Error(err),
		)
	}
}

// ListBookingDates возвращает даты, на которые можно записаться, начиная с сегодняшней
func (s *Service) ListBookingDates() []string {
	days := s.config.Schedule.BookingDays
	dates := make([]string, 0, days)

	d := s.Now()
	for len(dates) < days {
		if !s.config.Schedule.SkipWeekend || (d.Weekday() != time.Saturday && d.Weekday() != time.Sunday) {
			dates = append(dates, d.Format(validation.DateLayout))
		}
		d = d.AddDate(0, 0, 1)
	}
	return dates
}

// UserMessage переводит ошибку в текст для пациента
func UserMessage(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrSlotTaken):
		return "К сожалению, этот слот уже заняли. Пожалуйста, выберите другой."
	case stderrors.Is(err, errors.ErrPastSlot):
		return "Это время уже прошло. Пожалуйста, выберите другой слот."
	case stderrors.Is(err, errors.ErrUnknownCounselor):
		return "Психолог не найден."
	case stderrors.Is(err, errors.ErrUnknownPatient):
		return "Сначала зарегистрируйтесь командой /start."
	case stderrors.Is(err, errors.ErrAppointmentNotFound):
		return "Запись не найдена или уже отменена."
	case stderrors.Is(err, errors.ErrInvalidSlotLabel), stderrors.Is(err, errors.ErrInvalidDate):
		return "Неверный выбор."
	case stderrors.Is(err, errors.ErrInvalidName), stderrors.Is(err, errors.ErrInvalidPhoneNumber):
		return "Не удалось прочитать контакт. Попробуйте еще раз."
	default:
		return "Произошла ошибка. Попробуйте позже."
	}
}
