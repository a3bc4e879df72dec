package server

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"mindconnect_booking/internal/storage"
	"mindconnect_booking/pkg/metrics"
)

const (
	statusHealthy   = "healthy"
	statusWarning   = "warning"
	statusUnhealthy = "unhealthy"
)

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Version   string            `json:"version,omitempty"`
	Uptime    string            `json:"uptime,omitempty"`
	Checks    map[string]string `json:"checks"`
}

// HealthChecker проверяет состояние системы
type HealthChecker struct {
	storage   storage.Storage
	startTime time.Time
	version   string
}

// NewHealthChecker создает новый health checker
func NewHealthChecker(store storage.Storage, version string) *HealthChecker {
	return &HealthChecker{
		storage:   store,
		startTime: time.Now(),
		version:   version,
	}
}

// HealthHandler обрабатывает запросы health check
func (h *HealthChecker) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	overall := statusHealthy

	if err := h.checkDatabase(ctx); err != nil {
		checks["database"] = statusUnhealthy + ": " + err.Error()
		overall = statusUnhealthy
	} else {
		checks["database"] = statusHealthy
	}

	for name, status := range map[string]string{
		"memory":     h.checkMemory(),
		"goroutines": h.checkGoroutines(),
	} {
		checks[name] = status
		if status != statusHealthy && overall == statusHealthy {
			overall = statusWarning
		}
	}

	response := HealthResponse{
		Status:    overall,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    checks,
	}

	code := http.StatusOK
	if overall == statusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, response)
}

// checkDatabase проверяет соединение с базой данных
func (h *HealthChecker) checkDatabase(ctx context.Context) error {
	if h.storage == nil {
		return nil
	}
	return h.storage.Ping(ctx)
}

// checkMemory проверяет использование памяти
func (h *HealthChecker) checkMemory() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	metrics.MemoryUsage.Set(float64(m.Alloc))

	const warningLimit = 500 * 1024 * 1024   // 500MB
	const criticalLimit = 1024 * 1024 * 1024 // 1GB

	switch {
	case m.Alloc > criticalLimit:
		return "critical: memory usage > 1GB"
	case m.Alloc > warningLimit:
		return "warning: memory usage > 500MB"
	}
	return statusHealthy
}

// checkGoroutines проверяет количество горутин
func (h *HealthChecker) checkGoroutines() string {
	count := runtime.NumGoroutine()

	metrics.GoroutinesCount.Set(float64(count))

	switch {
	case count > 1000:
		return "critical: too many goroutines"
	case count > 100:
		return "warning: high goroutine count"
	}
	return statusHealthy
}
