package memory

import (
	"context"
	"sync"
	"time"

	"mindconnect_booking/internal/scheduler"
	"mindconnect_booking/internal/storage/models"
	"mindconnect_booking/pkg/errors"
	"mindconnect_booking/pkg/logger"
	"mindconnect_booking/pkg/metrics"
)

// MemoryScheduler реализует планировщик напоминаний в памяти
type MemoryScheduler struct {
	timers   map[string]*time.Timer
	mu       sync.RWMutex
	sender   scheduler.ReminderSender
	ack      scheduler.ReminderAcknowledger
	log      *logger.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	stopped  bool
	stopOnce sync.Once
	inflight sync.WaitGroup
}

var _ scheduler.ReminderScheduler = (*MemoryScheduler)(nil)

// NewMemoryScheduler создает новый планировщик в памяти.
// ack может быть nil, тогда отправка не фиксируется в хранилище.
func NewMemoryScheduler(sender scheduler.ReminderSender, ack scheduler.ReminderAcknowledger, log *logger.Logger) *MemoryScheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &MemoryScheduler{
		timers: make(map[string]*time.Timer),
		sender: sender,
		ack:    ack,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start запускает планировщик
func (s *MemoryScheduler) Start(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		return errors.ErrSchedulerUnavailable
	}

	return nil
}

// Schedule планирует напоминание для записи
func (s *MemoryScheduler) Schedule(ctx context.Context, appt *models.Appointment, notifyAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return errors.ErrSchedulerUnavailable
	}

	// Отменить существующий таймер если есть
	if timer, exists := s.timers[appt.ID]; exists {
		timer.Stop()
		delete(s.timers, appt.ID)
	}

	reminder := *appt

	delay := time.Until(notifyAt)
	if delay <= 0 {
		// Время уже прошло, отправляем немедленно
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.deliver(&reminder)
		}()
		return nil
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.fire(&reminder, &timer)
	})
	s.timers[appt.ID] = timer
	metrics.SetPendingReminders(float64(len(s.timers)))

	return nil
}

// Cancel отменяет запланированное напоминание
func (s *MemoryScheduler) Cancel(ctx context.Context, appointmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, exists := s.timers[appointmentID]; exists {
		timer.Stop()
		delete(s.timers, appointmentID)
	}
	metrics.SetPendingReminders(float64(len(s.timers)))

	return nil
}

// ReschedulePending очищает все таймеры; вызывающий затем планирует записи из хранилища заново
func (s *MemoryScheduler) ReschedulePending(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return errors.ErrSchedulerUnavailable
	}

	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	metrics.SetPendingReminders(0)

	return nil
}

// Stop останавливает планировщик и ждет немедленных отправок
func (s *MemoryScheduler) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true

		for id, timer := range s.timers {
			timer.Stop()
			delete(s.timers, id)
		}
		metrics.SetPendingReminders(0)
		s.mu.Unlock()

		s.inflight.Wait()
		s.cancel()
	})

	return nil
}

// fire срабатывает по таймеру. Отправка учитывается в inflight,
// поэтому Stop дожидается ее до закрытия хранилища.
func (s *MemoryScheduler) fire(appt *models.Appointment, timer **time.Timer) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	// Таймер отменен или заменен новым, пока ждал блокировку
	if current, ok := s.timers[appt.ID]; !ok || current != *timer {
		s.mu.Unlock()
		return
	}
	delete(s.timers, appt.ID)
	metrics.SetPendingReminders(float64(len(s.timers)))
	s.inflight.Add(1)
	s.mu.Unlock()

	defer s.inflight.Done()
	s.deliver(appt)
}

// deliver отправляет напоминание, если запись еще действует
func (s *MemoryScheduler) deliver(appt *models.Appointment) {
	channel := s.sender.Channel()

	if s.ack != nil {
		due, err := s.ack.ReminderDue(s.ctx, appt.ID)
		if err != nil {
			metrics.RecordError("scheduler", "check_reminder")
			s.log.Error("Failed to check reminder",
				logger.String("appointment_id", appt.ID),
				logger.Error(err),
			)
			return
		}
		if !due {
			metrics.RecordReminder(channel, "skipped")
			s.log.Debug("Reminder skipped", logger.String("appointment_id", appt.ID))
			return
		}
	}

	if err := s.sender.SendReminder(s.ctx, appt); err != nil {
		metrics.RecordReminder(channel, "error")
		metrics.RecordError("scheduler", "send_reminder")
		s.log.Error("Failed to send reminder",
			logger.String("appointment_id", appt.ID),
			logger.String("channel", channel),
			logger.Error(err),
		)
		return
	}
	metrics.RecordReminder(channel, "success")

	if s.ack == nil {
		return
	}
	if err := s.ack.MarkReminderSent(s.ctx, appt.ID); err != nil {
		metrics.RecordError("scheduler", "ack_reminder")
		s.log.Error("Failed to mark reminder as sent",
			logger.String("appointment_id", appt.ID),
			logger.Error(err),
		)
	}
}

// GetActiveTimersCount возвращает количество активных таймеров
func (s *MemoryScheduler) GetActiveTimersCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.timers)
}
