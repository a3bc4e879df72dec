package handlers

import (
	"context"
	"fmt"

	"mindconnect_booking/internal/bot/keyboard"
	botservice "mindconnect_booking/internal/bot/service"
	"mindconnect_booking/pkg/logger"
)

// showCounselors отправляет список психологов
func showCounselors(ctx context.Context, s *botservice.Service, chatID int64) error {
	counselors, err := s.Booking().ListCounselors(ctx)
	if err != nil {
		s.SendError(ctx, chatID, "Ошибка при получении списка психологов")
		return err
	}

	if len(counselors) == 0 {
		return s.SendSimpleMessage(ctx, chatID, "Сейчас нет психологов, доступных для записи.")
	}

	return s.SendMessage(ctx, chatID, "Выберите психолога:", keyboard.CreateCounselorKeyboard(counselors))
}

// showDateSelection отправляет даты для записи к психологу
func showDateSelection(ctx context.Context, s *botservice.Service, chatID, counselorID int64) error {
	counselor, err := s.Booking().GetCounselor(ctx, counselorID)
	if err != nil {
		s.SendError(ctx, chatID, botservice.UserMessage(err))
		return err
	}

	dates := s.ListBookingDates()
	if len(dates) == 0 {
		return s.SendSimpleMessage(ctx, chatID, "Нет дат, доступных для записи.")
	}

	text := fmt.Sprintf("Психолог %s. Выберите дату:", counselor.Name)
	return s.SendMessage(ctx, chatID, text, keyboard.CreateDateSelectionKeyboard(counselorID, dates))
}

// showSlotSelection отправляет свободные слоты психолога на дату
func showSlotSelection(ctx context.Context, s *botservice.Service, chatID, counselorID int64, date string) error {
	slots, err := s.Booking().BookableSlots(ctx, counselorID, date, s.Now())
	if err != nil {
		s.Logger().Error("Failed to get bookable slots",
			logger.Int64("counselor_id", counselorID),
			logger.String("date", date),
			logger.Error(err),
		)
		s.SendError(ctx, chatID, botservice.UserMessage(err))
		return err
	}

	if len(slots) == 0 {
		return s.SendSimpleMessage(ctx, chatID, "На выбранную дату нет свободных слотов. Попробуйте другую дату.")
	}

	kb := keyboard.CreateSlotSelectionKeyboard(counselorID, date, slots, s.SlotsPerRow())
	return s.SendMessage(ctx, chatID, fmt.Sprintf("Свободные слоты на %s:", date), kb)
}
