package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	tgmodels "github.com/go-telegram/bot/models"

	"mindconnect_booking/pkg/logger"
)

// SecretTokenHeader заголовок, в котором Telegram передает secret_token вебхука
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

const webhookTimeout = 30 * time.Second

// verifySecretToken сравнивает заголовок с настроенным секретом
func (s *Server) verifySecretToken(r *http.Request) bool {
	expected := s.config.Telegram.SecretToken
	if expected == "" {
		return true
	}
	provided := r.Header.Get(SecretTokenHeader)
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// handleWebhook обрабатывает Telegram webhook
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if !s.verifySecretToken(r) {
		s.securityLogger.LogFailedAuth(r, "invalid_secret_token")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var update tgmodels.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&update); err != nil {
		s.logger.Error("Failed to decode Telegram update", logger.Error(err))
		s.securityLogger.LogValidationError(r, "update", err.Error())
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), webhookTimeout)
	defer cancel()

	s.updates.HandleUpdate(ctx, &update)

	s.securityLogger.LogTelegramUpdate(&update, time.Since(start))
	w.WriteHeader(http.StatusOK)
}
