package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"mindconnect_booking/internal/middleware"
	"mindconnect_booking/pkg/logger"
	"mindconnect_booking/pkg/metrics"
)

// RequestIDHeader заголовок с идентификатором запроса
const RequestIDHeader = "X-Request-ID"

// requestLoggingMiddleware присваивает запросу ID и логирует результат
func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		r = r.WithContext(logger.ContextWithRequestID(r.Context(), requestID))

		wrapped := middleware.NewResponseWriter(w)
		next.ServeHTTP(wrapped, r)

		s.logger.WithContext(r.Context()).Info("HTTP request completed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status_code", wrapped.StatusCode()),
			logger.Duration("duration", time.Since(start)),
			logger.String("ip", s.ips.ClientIP(r)),
		)
	})
}

// securityHeadersMiddleware добавляет заголовки безопасности
func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// recoveryLogger передает паники из gorilla/handlers в наш логгер
type recoveryLogger struct {
	log *logger.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	metrics.RecordError("http", "panic")
	l.log.Error("Recovered from panic", logger.String("panic", fmt.Sprint(v...)))
}
