// Package booking вычисляет свободные слоты психологов и оформляет записи.
//
// Занятость слота определяется только ограничением уникальности
// (counselor_id, date, slot) в хранилище: предварительная проверка
// доступности лишь отсекает заведомо занятые слоты.
package booking

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"mindconnect_booking/internal/schedule"
	"mindconnect_booking/internal/scheduler"
	"mindconnect_booking/internal/storage"
	"mindconnect_booking/internal/storage/models"
	"mindconnect_booking/internal/validation"
	"mindconnect_booking/pkg/errors"
	"mindconnect_booking/pkg/logger"
	"mindconnect_booking/pkg/metrics"
)

// Options настройки сервиса записи
type Options struct {
	// Location часовой пояс, в котором заданы рабочие часы и даты
	Location *time.Location
	// ReminderLead за сколько до начала консультации отправлять напоминание
	ReminderLead time.Duration

	DefaultWorkStart    string
	DefaultWorkEnd      string
	DefaultIntervalMins int
}

// CounselorInput данные для регистрации психолога
type CounselorInput struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Credential   string `json:"credential"`
	Phone        string `json:"phone"`
	ChatID       *int64 `json:"chat_id,omitempty"`
	WorkStart    string `json:"work_start"`
	WorkEnd      string `json:"work_end"`
	IntervalMins int    `json:"interval_mins"`
}

// PatientInput данные для регистрации пациента
type PatientInput struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	ChatID *int64 `json:"chat_id,omitempty"`
}

// BookingRequest запрос на запись к психологу
type BookingRequest struct {
	CounselorID int64                  `json:"counselor_id"`
	PatientID   int64                  `json:"patient_id"`
	Date        string                 `json:"date"`
	Slot        string                 `json:"slot"`
	Kind        models.AppointmentKind `json:"kind"`
	Notes       string                 `json:"notes,omitempty"`
}

// Service реализует генерацию расписания, поиск свободных слотов и запись
type Service struct {
	storage   storage.Storage
	scheduler scheduler.ReminderScheduler
	opts      Options
	log       *logger.Logger
	newID     func() string
}

// NewService создает сервис записи. scheduler может быть nil, тогда напоминания не планируются.
func NewService(store storage.Storage, sched scheduler.ReminderScheduler, opts Options, log *logger.Logger) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	return &Service{
		storage:   store,
		scheduler: sched,
		opts:      opts,
		log:       log,
		newID:     uuid.NewString,
	}
}

// Location возвращает часовой пояс расписания
func (s *Service) Location() *time.Location {
	return s.opts.Location
}

// generateSchedule проверяет рабочие часы и нарезает их на слоты
func (s *Service) generateSchedule(workStart, workEnd string, intervalMins int) (schedule.Labels, error) {
	start, err := schedule.ParseClock(workStart)
	if err != nil {
		return nil, err
	}
	end, err := schedule.ParseClock(workEnd)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateIntervalMinutes(intervalMins); err != nil {
		return nil, err
	}

	labels, err := schedule.Generate(start, end, time.Duration(intervalMins)*time.Minute)
	if err != nil {
		return nil, err
	}

	metrics.RecordScheduleGenerated()
	return labels, nil
}

// RegisterCounselor регистрирует психолога и генерирует его расписание
func (s *Service) RegisterCounselor(ctx context.Context, in CounselorInput) (*models.Counselor, error) {
	if err := validation.ValidateName(in.Name); err != nil {
		return nil, err
	}
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validation.ValidateCredential(in.Credential); err != nil {
		return nil, err
	}
	if err := validation.ValidatePhoneNumber(in.Phone); err != nil {
		return nil, err
	}

	if in.WorkStart == "" {
		in.WorkStart = s.opts.DefaultWorkStart
	}
	if in.WorkEnd == "" {
		in.WorkEnd = s.opts.DefaultWorkEnd
	}
	if in.IntervalMins == 0 {
		in.IntervalMins = s.opts.DefaultIntervalMins
	}

	labels, err := s.generateSchedule(in.WorkStart, in.WorkEnd, in.IntervalMins)
	if err != nil {
		return nil, err
	}

	c := &models.Counselor{
		Name:         in.Name,
		Email:        in.Email,
		Credential:   in.Credential,
		Phone:        validation.NormalizePhoneNumber(in.Phone),
		ChatID:       in.ChatID,
		WorkStart:    in.WorkStart,
		WorkEnd:      in.WorkEnd,
		IntervalMins: in.IntervalMins,
		Schedule:     labels,
	}

	if err := s.storage.CreateCounselor(ctx, c); err != nil {
		if stderrors.Is(err, storage.ErrConflict) {
			return nil, errors.ErrDuplicateCounselor.WithContext(map[string]interface{}{
				"email":      in.Email,
				"credential": in.Credential,
			})
		}
		return nil, errors.ErrDatabase.WithError(err)
	}

	metrics.RecordCounselorRegistration()
	s.log.Info("Counselor registered",
		logger.Int64("counselor_id", c.ID),
		logger.Int("slots", len(c.Schedule)),
	)

	return c, nil
}

// SetWorkingHours меняет рабочие часы и целиком заменяет расписание психолога
func (s *Service) SetWorkingHours(ctx context.Context, counselorID int64, workStart, workEnd string, intervalMins int) (*models.Counselor, error) {
	labels, err := s.generateSchedule(workStart, workEnd, intervalMins)
	if err != nil {
		return nil, err
	}

	if err := s.storage.UpdateWorkingHours(ctx, counselorID, workStart, workEnd, intervalMins, labels); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.ErrUnknownCounselor.WithContext(map[string]interface{}{"counselor_id": counselorID})
		}
		return nil, errors.ErrDatabase.WithError(err)
	}

	s.log.Info("Working hours updated",
		logger.Int64("counselor_id", counselorID),
		logger.String("work_start", workStart),
		logger.String("work_end", workEnd),
		logger.Int("interval_mins", intervalMins),
	)

	return s.GetCounselor(ctx, counselorID)
}

// GetCounselor возвращает психолога по ID
func (s *Service) GetCounselor(ctx context.Context, counselorID int64) (*models.Counselor, error) {
	c, err := s.storage.GetCounselor(ctx, counselorID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.ErrUnknownCounselor.WithContext(map[string]interface{}{"counselor_id": counselorID})
		}
		return nil, errors.ErrDatabase.WithError(err)
	}
	return c, nil
}

// ListCounselors возвращает всех психологов
func (s *Service) ListCounselors(ctx context.Context) ([]*models.Counselor, error) {
	counselors, err := s.storage.ListCounselors(ctx)
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}
	return counselors, nil
}

// RegisterPatient регистрирует пациента. Повторная регистрация того же чата возвращает существующего пациента.
func (s *Service) RegisterPatient(ctx context.Context, in PatientInput) (*models.Patient, error) {
	if err := validation.ValidateName(in.Name); err != nil {
		return nil, err
	}
	if err := validation.ValidatePhoneNumber(in.Phone); err != nil {
		return nil, err
	}
	if in.Email != "" {
		if err := validation.ValidateEmail(in.Email); err != nil {
			return nil, err
		}
	}
	if in.ChatID != nil {
		if err := validation.ValidateChatID(*in.ChatID); err != nil {
			return nil, err
		}
		if existing, err := s.PatientByChatID(ctx, *in.ChatID); err == nil {
			return existing, nil
		} else if !stderrors.Is(err, errors.ErrUnknownPatient) {
			return nil, err
		}
	}

	p := &models.Patient{
		Name:   in.Name,
		Email:  in.Email,
		Phone:  validation.NormalizePhoneNumber(in.Phone),
		ChatID: in.ChatID,
	}

	if err := s.storage.CreatePatient(ctx, p); err != nil {
		if stderrors.Is(err, storage.ErrConflict) && in.ChatID != nil {
			// Параллельная регистрация того же чата
			return s.PatientByChatID(ctx, *in.ChatID)
		}
		return nil, errors.ErrDatabase.WithError(err)
	}

	metrics.RecordPatientRegistration()
	s.log.Info("Patient registered", logger.Int64("patient_id", p.ID))

	return p, nil
}

// GetPatient возвращает пациента по ID
func (s *Service) GetPatient(ctx context.Context, patientID int64) (*models.Patient, error) {
	p, err := s.storage.GetPatient(ctx, patientID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.ErrUnknownPatient.WithContext(map[string]interface{}{"patient_id": patientID})
		}
		return nil, errors.ErrDatabase.WithError(err)
	}
	return p, nil
}

// PatientByChatID возвращает пациента по Telegram чату
func (s *Service) PatientByChatID(ctx context.Context, chatID int64) (*models.Patient, error) {
	p, err := s.storage.GetPatientByChatID(ctx, chatID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.ErrUnknownPatient.WithContext(map[string]interface{}{"chat_id": chatID})
		}
		return nil, errors.ErrDatabase.WithError(err)
	}
	return p, nil
}

// AvailableSlots возвращает расписание психолога без занятых на дату слотов, в исходном порядке
func (s *Service) AvailableSlots(ctx context.Context, counselorID int64, date string) ([]schedule.Label, error) {
	_, available, err := s.availableSlots(ctx, counselorID, date)
	if err != nil {
		metrics.RecordAvailabilityQuery("error")
		return nil, err
	}

	metrics.RecordAvailabilityQuery("success")
	return available, nil
}

func (s *Service) availableSlots(ctx context.Context, counselorID int64, date string) (*models.Counselor, []schedule.Label, error) {
	if _, err := validation.ValidateDate(date); err != nil {
		return nil, nil, err
	}

	c, err := s.GetCounselor(ctx, counselorID)
	if err != nil {
		return nil, nil, err
	}

	occupied, err := s.storage.ListOccupiedSlots(ctx, counselorID, date)
	if err != nil {
		return nil, nil, errors.ErrDatabase.WithError(err)
	}

	taken := make(map[schedule.Label]struct{}, len(occupied))
	for _, label := range occupied {
		taken[label] = struct{}{}
	}

	available := make([]schedule.Label, 0, len(c.Schedule))
	for _, label := range c.Schedule {
		if _, ok := taken[label]; !ok {
			available = append(available, label)
		}
	}

	return c, available, nil
}

// BookableSlots возвращает свободные слоты, которые начинаются строго после now
func (s *Service) BookableSlots(ctx context.Context, counselorID int64, date string, now time.Time) ([]schedule.Label, error) {
	available, err := s.AvailableSlots(ctx, counselorID, date)
	if err != nil {
		return nil, err
	}

	day, err := time.ParseInLocation(validation.DateLayout, date, s.opts.Location)
	if err != nil {
		return nil, errors.ErrInvalidDate.WithError(err)
	}

	bookable := make([]schedule.Label, 0, len(available))
	for _, label := range available {
		start, err := label.Start()
		if err != nil {
			// Расписание генерируется сервисом, битая подпись означает ручную правку БД
			s.log.Warn("Skipping malformed slot label",
				logger.Int64("counselor_id", counselorID),
				logger.String("slot", string(label)),
			)
			continue
		}
		if start.On(day, s.opts.Location).After(now) {
			bookable = append(bookable, label)
		}
	}

	return bookable, nil
}

// Book оформляет запись. Занятость слота и запись создаются в одной транзакции.
func (s *Service) Book(ctx context.Context, req BookingRequest, requestedAt time.Time) (*models.Appointment, error) {
	appt, err := s.book(ctx, req, requestedAt)
	metrics.RecordBooking(bookingResult(err))

	if err != nil {
		s.log.WithContext(ctx).Warn("Booking rejected",
			logger.Int64("counselor_id", req.CounselorID),
			logger.Int64("patient_id", req.PatientID),
			logger.String("date", req.Date),
			logger.String("slot", req.Slot),
			logger.Error(err),
		)
		return nil, err
	}

	s.log.WithContext(ctx).Info("Appointment booked",
		logger.String("appointment_id", appt.ID),
		logger.Int64("counselor_id", appt.CounselorID),
		logger.Int64("patient_id", appt.PatientID),
		logger.String("date", appt.Date),
		logger.String("slot", string(appt.Slot)),
	)

	return appt, nil
}

func (s *Service) book(ctx context.Context, req BookingRequest, requestedAt time.Time) (*models.Appointment, error) {
	start, _, err := schedule.ParseLabel(req.Slot)
	if err != nil {
		return nil, err
	}
	if _, err := validation.ValidateDate(req.Date); err != nil {
		return nil, err
	}
	day, err := time.ParseInLocation(validation.DateLayout, req.Date, s.opts.Location)
	if err != nil {
		return nil, errors.ErrInvalidDate.WithError(err)
	}

	if req.Kind == "" {
		req.Kind = models.KindOnline
	}
	if !req.Kind.Valid() {
		return nil, errors.ErrInvalidAppointmentKind.WithContext(map[string]interface{}{"kind": req.Kind})
	}

	startsAt := start.On(day, s.opts.Location)
	if !startsAt.After(requestedAt) {
		return nil, errors.ErrPastSlot.WithContext(map[string]interface{}{
			"date": req.Date,
			"slot": req.Slot,
		})
	}

	if _, err := s.GetPatient(ctx, req.PatientID); err != nil {
		return nil, err
	}

	counselor, available, err := s.availableSlots(ctx, req.CounselorID, req.Date)
	if err != nil {
		return nil, err
	}
	label := schedule.Label(req.Slot)
	if !schedule.Labels(available).Contains(label) {
		return nil, errors.ErrSlotTaken.WithContext(map[string]interface{}{
			"date": req.Date,
			"slot": req.Slot,
		})
	}

	appt := &models.Appointment{
		ID:            s.newID(),
		Kind:          req.Kind,
		Date:          req.Date,
		Slot:          label,
		PatientID:     req.PatientID,
		CounselorID:   req.CounselorID,
		CounselorName: counselor.Name,
		Notes:         req.Notes,
		Status:        models.StatusBooked,
		CreatedAt:     requestedAt.UTC(),
	}

	if err := s.storage.CreateBooking(ctx, appt); err != nil {
		if stderrors.Is(err, storage.ErrConflict) {
			return nil, errors.ErrSlotTaken.WithContext(map[string]interface{}{
				"date": req.Date,
				"slot": req.Slot,
			})
		}
		return nil, errors.ErrDatabase.WithError(err)
	}

	s.scheduleReminder(ctx, appt, startsAt)

	return appt, nil
}

func bookingResult(err error) string {
	switch {
	case err == nil:
		return "booked"
	case stderrors.Is(err, errors.ErrSlotTaken):
		return "slot_taken"
	case stderrors.Is(err, errors.ErrPastSlot):
		return "past_slot"
	case stderrors.Is(err, errors.ErrUnknownCounselor), stderrors.Is(err, errors.ErrUnknownPatient):
		return "unknown"
	case stderrors.Is(err, errors.ErrDatabase):
		return "error"
	default:
		return "invalid"
	}
}

// Cancel отменяет запись пациента и освобождает слот
func (s *Service) Cancel(ctx context.Context, appointmentID string, patientID int64, now time.Time) error {
	appt, err := s.storage.GetAppointment(ctx, appointmentID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.ErrAppointmentNotFound.WithContext(map[string]interface{}{"appointment_id": appointmentID})
		}
		return errors.ErrDatabase.WithError(err)
	}

	if appt.PatientID != patientID || !appt.IsActive() {
		return errors.ErrAppointmentNotFound.WithContext(map[string]interface{}{"appointment_id": appointmentID})
	}

	startsAt, err := appt.StartsAt(s.opts.Location)
	if err != nil {
		return errors.ErrDatabase.WithError(err)
	}
	if !startsAt.After(now) {
		return errors.ErrPastSlot.WithContext(map[string]interface{}{
			"appointment_id": appointmentID,
		})
	}

	if err := s.storage.CancelAppointment(ctx, appointmentID, patientID, now); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.ErrAppointmentNotFound.WithContext(map[string]interface{}{"appointment_id": appointmentID})
		}
		return errors.ErrDatabase.WithError(err)
	}

	if s.scheduler != nil {
		if err := s.scheduler.Cancel(ctx, appointmentID); err != nil {
			s.log.Warn("Failed to cancel reminder",
				logger.String("appointment_id", appointmentID),
				logger.Error(err),
			)
		}
	}

	metrics.RecordCancellation()
	s.log.WithContext(ctx).Info("Appointment cancelled",
		logger.String("appointment_id", appointmentID),
		logger.Int64("patient_id", patientID),
	)

	return nil
}

// PatientAppointments возвращает все записи пациента
func (s *Service) PatientAppointments(ctx context.Context, patientID int64) ([]*models.Appointment, error) {
	if _, err := s.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}

	appts, err := s.storage.ListPatientAppointments(ctx, patientID)
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}
	return appts, nil
}

// UpcomingAppointments возвращает действующие записи пациента, которые еще не начались
func (s *Service) UpcomingAppointments(ctx context.Context, patientID int64, now time.Time) ([]*models.Appointment, error) {
	appts, err := s.PatientAppointments(ctx, patientID)
	if err != nil {
		return nil, err
	}

	upcoming := make([]*models.Appointment, 0, len(appts))
	for _, a := range appts {
		if !a.IsActive() {
			continue
		}
		startsAt, err := a.StartsAt(s.opts.Location)
		if err != nil || !startsAt.After(now) {
			continue
		}
		upcoming = append(upcoming, a)
	}

	return upcoming, nil
}

// CounselorAppointments возвращает записи к психологу, при непустой date только на эту дату
func (s *Service) CounselorAppointments(ctx context.Context, counselorID int64, date string) ([]*models.Appointment, error) {
	if date != "" {
		if _, err := validation.ValidateDate(date); err != nil {
			return nil, err
		}
	}
	if _, err := s.GetCounselor(ctx, counselorID); err != nil {
		return nil, err
	}

	appts, err := s.storage.ListCounselorAppointments(ctx, counselorID, date)
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}
	return appts, nil
}

// scheduleReminder планирует напоминание за ReminderLead до начала консультации
func (s *Service) scheduleReminder(ctx context.Context, appt *models.Appointment, startsAt time.Time) {
	if s.scheduler == nil {
		return
	}

	notifyAt := startsAt.Add(-s.opts.ReminderLead)
	if err := s.scheduler.Schedule(ctx, appt, notifyAt); err != nil {
		// Запись уже создана, ошибку планирования только логируем
		metrics.RecordError("booking", "schedule_reminder")
		s.log.Error("Failed to schedule reminder",
			logger.String("appointment_id", appt.ID),
			logger.Error(err),
		)
	}
}

// ReschedulePendingReminders заново планирует напоминания из хранилища после перезапуска
func (s *Service) ReschedulePendingReminders(ctx context.Context, now time.Time) (int, error) {
	if s.scheduler == nil {
		return 0, nil
	}

	if err := s.scheduler.ReschedulePending(ctx); err != nil {
		return 0, err
	}

	today := now.In(s.opts.Location).Format(validation.DateLayout)
	pending, err := s.storage.ListPendingReminders(ctx, today)
	if err != nil {
		return 0, errors.ErrDatabase.WithError(err)
	}

	var scheduled int
	for _, appt := range pending {
		startsAt, err := appt.StartsAt(s.opts.Location)
		if err != nil || !startsAt.After(now) {
			continue
		}
		s.scheduleReminder(ctx, appt, startsAt)
		scheduled++
	}

	s.log.Info("Pending reminders rescheduled", logger.Int("count", scheduled))
	return scheduled, nil
}
