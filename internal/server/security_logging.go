package server

import (
	"net/http"
	"strings"
	"time"

	tgmodels "github.com/go-telegram/bot/models"

	"mindconnect_booking/internal/middleware"
	"mindconnect_booking/pkg/logger"
)

// SecurityLogger логирует события безопасности
type SecurityLogger struct {
	logger *logger.Logger
	ips    *middleware.IPResolver
}

// NewSecurityLogger создает новый логгер безопасности
func NewSecurityLogger(log *logger.Logger, ips *middleware.IPResolver) *SecurityLogger {
	return &SecurityLogger{logger: log, ips: ips}
}

func (sl *SecurityLogger) requestFields(r *http.Request) []logger.Field {
	return []logger.Field{
		logger.String("ip", sl.ips.ClientIP(r)),
		logger.String("user_agent", r.UserAgent()),
		logger.String("path", r.URL.Path),
		logger.String("method", r.Method),
	}
}

// LogFailedAuth логирует неудачную попытку аутентификации
func (sl *SecurityLogger) LogFailedAuth(r *http.Request, reason string) {
	fields := append(sl.requestFields(r), logger.String("reason", reason))
	sl.logger.WithContext(r.Context()).Warn("Authentication failed", fields...)
}

// LogSuspiciousActivity логирует подозрительную активность
func (sl *SecurityLogger) LogSuspiciousActivity(r *http.Request, activity string, details map[string]interface{}) {
	fields := append(sl.requestFields(r), logger.String("activity", activity))
	for key, value := range details {
		fields = append(fields, logger.Any(key, value))
	}

	sl.logger.WithContext(r.Context()).Warn("Suspicious activity detected", fields...)
}

// LogValidationError логирует ошибки валидации входящих данных
func (sl *SecurityLogger) LogValidationError(r *http.Request, field, reason string) {
	fields := append(sl.requestFields(r),
		logger.String("field", field),
		logger.String("reason", reason),
	)
	sl.logger.WithContext(r.Context()).Warn("Validation error", fields...)
}

// LogTelegramUpdate логирует обработку Telegram update
func (sl *SecurityLogger) LogTelegramUpdate(update *tgmodels.Update, processingTime time.Duration) {
	var chatID int64
	var updateType string

	switch {
	case update.Message != nil:
		updateType = "message"
		chatID = update.Message.Chat.ID
	case update.CallbackQuery != nil:
		updateType = "callback_query"
		chatID = update.CallbackQuery.From.ID
	default:
		updateType = "other"
	}

	sl.logger.Info("Telegram update processed",
		logger.Int64("update_id", update.ID),
		logger.String("type", updateType),
		logger.Int64("chat_id", chatID),
		logger.Duration("processing_time", processingTime),
	)
}

// LogSystemEvent логирует системные события
func (sl *SecurityLogger) LogSystemEvent(event string, level string, details map[string]interface{}) {
	fields := []logger.Field{logger.String("event", event)}
	for key, value := range details {
		fields = append(fields, logger.Any(key, value))
	}

	switch strings.ToLower(level) {
	case "error":
		sl.logger.Error("System event", fields...)
	case "warn", "warning":
		sl.logger.Warn("System event", fields...)
	case "debug":
		sl.logger.Debug("System event", fields...)
	default:
		sl.logger.Info("System event", fields...)
	}
}

// securityAuditMiddleware логирует запросы к webhook и ответы с ошибками
func (s *Server) securityAuditMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := middleware.NewResponseWriter(w)
		next.ServeHTTP(wrapped, r)

		status := wrapped.StatusCode()
		if status >= http.StatusInternalServerError || status == http.StatusUnauthorized || status == http.StatusForbidden {
			s.securityLogger.LogSuspiciousActivity(r, "http_error", map[string]interface{}{
				"status_code":    status,
				"duration_ms":    time.Since(start).Milliseconds(),
				"content_length": r.ContentLength,
			})
		}
	})
}
