package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"mindconnect_booking/pkg/errors"
	"mindconnect_booking/pkg/logger"
	"mindconnect_booking/pkg/metrics"
)

const maxBodyBytes = 1 << 20

// ErrorResponse тело ответа с ошибкой
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// statusForError сопоставляет код доменной ошибки HTTP статусу
func statusForError(appErr *errors.AppError) int {
	code := appErr.Code
	switch {
	case strings.HasPrefix(code, "INVALID_"):
		return http.StatusBadRequest
	case strings.HasPrefix(code, "UNKNOWN_"), strings.HasSuffix(code, "_NOT_FOUND"):
		return http.StatusNotFound
	case code == errors.ErrSlotTaken.Code, code == errors.ErrDuplicateCounselor.Code:
		return http.StatusConflict
	case code == errors.ErrPastSlot.Code:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError отправляет ошибку в формате {"code", "message"}
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		appErr = errors.Wrap(err, "INTERNAL", "internal server error")
	}

	status := statusForError(appErr)
	if status >= http.StatusInternalServerError {
		metrics.RecordError("http", strings.ToLower(appErr.Code))
		s.logger.WithContext(r.Context()).Error("Request failed",
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
	}

	// Err и Context остаются в логах, клиент видит только код и сообщение
	writeJSON(w, status, ErrorResponse{Code: appErr.Code, Message: appErr.Message})
}

// decodeJSON читает тело запроса в v
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		s.securityLogger.LogValidationError(r, "body", err.Error())
		s.writeError(w, r, errors.ErrInvalidRequest.WithError(err))
		return false
	}
	return true
}
