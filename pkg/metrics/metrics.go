package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики сервиса записи к психологам
var (
	// Метрики Telegram обновлений
	BotUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindconnect_bot_updates_total",
			Help: "Общее количество обработанных обновлений Telegram",
		},
		[]string{"handler", "status"},
	)

	// Метрики пользователей
	PatientRegistrations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mindconnect_patient_registrations_total",
			Help: "Общее количество регистраций пациентов",
		},
	)

	CounselorRegistrations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mindconnect_counselor_registrations_total",
			Help: "Общее количество регистраций психологов",
		},
	)

	// Метрики расписания и записи
	SchedulesGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mindconnect_schedules_generated_total",
			Help: "Сколько раз расписание психолога было сгенерировано",
		},
	)

	AvailabilityQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindconnect_availability_queries_total",
			Help: "Количество запросов свободных слотов",
		},
		[]string{"status"},
	)

	Bookings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindconnect_bookings_total",
			Help: "Попытки записи по результату",
		},
		[]string{"result"}, // booked, slot_taken, past_slot, unknown, invalid, error
	)

	Cancellations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mindconnect_cancellations_total",
			Help: "Общее количество отмененных записей",
		},
	)

	// Метрики напоминаний
	RemindersSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindconnect_reminders_total",
			Help: "Отправленные напоминания о записи",
		},
		[]string{"channel", "status"},
	)

	PendingReminders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mindconnect_pending_reminders",
			Help: "Количество запланированных напоминаний",
		},
	)

	// Метрики базы данных
	DatabaseOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindconnect_database_operations_total",
			Help: "Общее количество операций с базой данных",
		},
		[]string{"operation", "table", "status"},
	)

	// Метрики производительности
	MemoryUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mindconnect_memory_usage_bytes",
			Help: "Использование памяти в байтах",
		},
	)

	GoroutinesCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mindconnect_goroutines_count",
			Help: "Количество активных горутин",
		},
	)

	// Метрики ошибок
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindconnect_errors_total",
			Help: "Общее количество ошибок",
		},
		[]string{"component", "error_type"},
	)

	// Метрики HTTP сервера
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindconnect_http_requests_total",
			Help: "Общее количество HTTP запросов",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mindconnect_http_request_duration_seconds",
			Help:    "Время обработки HTTP запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// RecordBotUpdate записывает метрику обработки обновления Telegram
func RecordBotUpdate(handler, status string) {
	BotUpdatesTotal.WithLabelValues(handler, status).Inc()
}

// RecordPatientRegistration записывает метрику регистрации пациента
func RecordPatientRegistration() {
	PatientRegistrations.Inc()
}

// RecordCounselorRegistration записывает метрику регистрации психолога
func RecordCounselorRegistration() {
	CounselorRegistrations.Inc()
}

// RecordScheduleGenerated записывает метрику генерации расписания
func RecordScheduleGenerated() {
	SchedulesGenerated.Inc()
}

// RecordAvailabilityQuery записывает метрику запроса свободных слотов
func RecordAvailabilityQuery(status string) {
	AvailabilityQueries.WithLabelValues(status).Inc()
}

// RecordBooking записывает результат попытки записи
func RecordBooking(result string) {
	Bookings.WithLabelValues(result).Inc()
}

// RecordCancellation записывает метрику отмены записи
func RecordCancellation() {
	Cancellations.Inc()
}

// RecordReminder записывает метрику отправки напоминания
func RecordReminder(channel, status string) {
	RemindersSent.WithLabelValues(channel, status).Inc()
}

// SetPendingReminders устанавливает количество запланированных напоминаний
func SetPendingReminders(count float64) {
	PendingReminders.Set(count)
}

// RecordDatabaseOperation записывает метрику операции с БД
func RecordDatabaseOperation(operation, table, status string) {
	DatabaseOperations.WithLabelValues(operation, table, status).Inc()
}

// RecordError записывает метрику ошибки
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordHTTPRequest записывает метрику HTTP запроса
func RecordHTTPRequest(method, endpoint, status string) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
}
