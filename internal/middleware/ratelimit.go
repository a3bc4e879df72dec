package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mindconnect_booking/pkg/logger"
	"mindconnect_booking/pkg/metrics"
)

// RateLimiter ограничивает частоту запросов по ключу (IP адрес или chat ID)
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	logger   *logger.Logger

	// Cleanup
	cleanupInterval time.Duration
	idleTTL         time.Duration
	lastAccess      map[string]time.Time
	done            chan struct{}
	closeOnce       sync.Once
}

// NewRateLimiter создает rate limiter на requests запросов за период per
func NewRateLimiter(requests int, per time.Duration, log *logger.Logger) *RateLimiter {
	if requests <= 0 {
		requests = 1
	}

	rl := &RateLimiter{
		limiters:        make(map[string]*rate.Limiter),
		lastAccess:      make(map[string]time.Time),
		limit:           rate.Every(per / time.Duration(requests)),
		burst:           requests,
		logger:          log,
		cleanupInterval: 5 * time.Minute,
		idleTTL:         10 * time.Minute,
		done:            make(chan struct{}),
	}

	// Запускаем goroutine для очистки неиспользуемых limiters
	go rl.cleanupRoutine()

	return rl
}

// GetLimiter возвращает limiter для конкретного ключа
func (rl *RateLimiter) GetLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[key] = limiter
	}

	rl.lastAccess[key] = time.Now()
	return limiter
}

// Allow проверяет, разрешен ли запрос для данного ключа
func (rl *RateLimiter) Allow(key string) bool {
	return rl.GetLimiter(key).Allow()
}

// Size возвращает количество отслеживаемых ключей
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// cleanupRoutine периодически удаляет неиспользуемые limiters
func (rl *RateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.done:
			return
		}
	}
}

// cleanup удаляет limiters, которые не использовались дольше idleTTL
func (rl *RateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.idleTTL)
	var cleaned int

	for key, lastAccessed := range rl.lastAccess {
		if lastAccessed.Before(cutoff) {
			delete(rl.limiters, key)
			delete(rl.lastAccess, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		rl.logger.Debug("Cleaned up rate limiters",
			logger.Int("cleaned_count", cleaned),
			logger.Int("remaining_count", len(rl.limiters)),
		)
	}
}

// Close останавливает cleanup routine
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() { close(rl.done) })
}

// HTTPRateLimitMiddleware создает HTTP middleware для rate limiting по IP
func HTTPRateLimitMiddleware(limiter *RateLimiter, ips *IPResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ips.ClientIP(r)

			if !limiter.Allow(key) {
				limiter.logger.Warn("Rate limit exceeded",
					logger.String("ip", key),
					logger.String("user_agent", r.UserAgent()),
				)
				metrics.RecordError("http", "rate_limited")

				w.Header().Set("Retry-After", "60")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ChatRateLimiter ограничивает обновления Telegram по чату и глобально
type ChatRateLimiter struct {
	chatLimiter   *RateLimiter
	globalLimiter *rate.Limiter
	logger        *logger.Logger
}

// NewChatRateLimiter создает rate limiter для Telegram бота
func NewChatRateLimiter(chatRequestsPerMinute, globalRequestsPerSecond int, log *logger.Logger) *ChatRateLimiter {
	if globalRequestsPerSecond <= 0 {
		globalRequestsPerSecond = 1
	}

	return &ChatRateLimiter{
		chatLimiter:   NewRateLimiter(chatRequestsPerMinute, time.Minute, log),
		globalLimiter: rate.NewLimiter(rate.Limit(globalRequestsPerSecond), globalRequestsPerSecond),
		logger:        log,
	}
}

// AllowChat проверяет, может ли чат отправить запрос
func (crl *ChatRateLimiter) AllowChat(chatID int64) bool {
	if !crl.globalLimiter.Allow() {
		crl.logger.Warn("Global rate limit exceeded", logger.Int64("chat_id", chatID))
		return false
	}

	if !crl.chatLimiter.Allow(fmt.Sprintf("chat_%d", chatID)) {
		crl.logger.Warn("Chat rate limit exceeded", logger.Int64("chat_id", chatID))
		return false
	}

	return true
}

// Close закрывает все ресурсы
func (crl *ChatRateLimiter) Close() {
	crl.chatLimiter.Close()
}
