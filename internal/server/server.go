package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgmodels "github.com/go-telegram/bot/models"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mindconnect_booking/internal/booking"
	"mindconnect_booking/internal/config"
	"mindconnect_booking/internal/middleware"
	"mindconnect_booking/internal/storage"
	"mindconnect_booking/pkg/logger"
)

// Version версия сервиса для health check
const Version = "1.0.0"

// UpdateHandler обрабатывает обновления Telegram, пришедшие через webhook
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update *tgmodels.Update)
}

// Server представляет HTTP сервер с middleware
type Server struct {
	httpServer     *http.Server
	config         *config.Config
	logger         *logger.Logger
	bookings       *booking.Service
	rateLimiter    *middleware.RateLimiter
	ips            *middleware.IPResolver
	securityLogger *SecurityLogger
	healthChecker  *HealthChecker
	updates        UpdateHandler
	now            func() time.Time
}

// New создает новый HTTP сервер. updates может быть nil, если бот не настроен.
func New(cfg *config.Config, log *logger.Logger, bookings *booking.Service, store storage.Storage, updates UpdateHandler) *Server {
	ips, err := middleware.NewIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		// Без доверенных прокси адрес клиента берется из RemoteAddr
		log.Warn("Invalid trusted proxies, forwarding headers ignored", logger.Error(err))
	}

	s := &Server{
		config:         cfg,
		logger:         log,
		bookings:       bookings,
		rateLimiter:    middleware.NewRateLimiter(cfg.Server.RateLimitPerMinute, time.Minute, log),
		ips:            ips,
		securityLogger: NewSecurityLogger(log, ips),
		healthChecker:  NewHealthChecker(store, Version),
		updates:        updates,
		now:            time.Now,
	}

	s.httpServer = &http.Server{
		Addr:           ":" + cfg.Server.Port,
		Handler:        s.setupRoutes(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	return s
}

// Handler возвращает корневой обработчик со всеми middleware
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// setupRoutes настраивает маршруты с middleware
func (s *Server) setupRoutes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.healthChecker.HealthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if s.updates != nil {
		r.HandleFunc("/webhook", s.handleWebhook).Methods(http.MethodPost)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/counselors", s.handleRegisterCounselor).Methods(http.MethodPost)
	api.HandleFunc("/counselors", s.handleListCounselors).Methods(http.MethodGet)
	api.HandleFunc("/counselors/{id}", s.handleGetCounselor).Methods(http.MethodGet)
	api.HandleFunc("/counselors/{id}/hours", s.handleSetWorkingHours).Methods(http.MethodPut)
	api.HandleFunc("/counselors/{id}/slots", s.handleAvailableSlots).Methods(http.MethodGet)
	api.HandleFunc("/counselors/{id}/appointments", s.handleCounselorAppointments).Methods(http.MethodGet)
	api.HandleFunc("/patients", s.handleRegisterPatient).Methods(http.MethodPost)
	api.HandleFunc("/patients/{id}/appointments", s.handlePatientAppointments).Methods(http.MethodGet)
	api.HandleFunc("/appointments", s.handleBook).Methods(http.MethodPost)
	api.HandleFunc("/appointments/{id}", s.handleCancel).Methods(http.MethodDelete)

	// Prometheus внутри роутера, чтобы видеть шаблон маршрута
	r.Use(middleware.PrometheusMiddleware)

	return s.applyMiddleware(r)
}

// applyMiddleware применяет middleware в правильном порядке
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	// Применяем middleware в обратном порядке (последний применяется первым)
	h := handler

	// 5. Rate limiting
	h = middleware.HTTPRateLimitMiddleware(s.rateLimiter, s.ips)(h)

	// 4. Security audit
	h = s.securityAuditMiddleware(h)

	// 3. CORS
	h = handlers.CORS(
		handlers.AllowedOrigins(s.config.Server.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(h)

	// 2. Access log и request id
	h = s.requestLoggingMiddleware(h)

	// 1. Security headers и восстановление после паники
	h = s.securityHeadersMiddleware(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{log: s.logger}),
		handlers.PrintRecoveryStack(false),
	)(h)

	return h
}

// Start запускает сервер и блокируется до отмены контекста
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", logger.String("addr", s.httpServer.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown корректно завершает работу сервера
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	s.securityLogger.LogSystemEvent("server_shutdown", "info", nil)

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	s.rateLimiter.Close()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Error during server shutdown", logger.Error(err))
		s.securityLogger.LogSystemEvent("server_shutdown_error", "error", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}

	s.logger.Info("HTTP server shut down successfully")
	return nil
}
