package errors

import "fmt"

// AppError представляет доменную ошибку с кодом и контекстом
type AppError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Err     error       `json:"-"`
	Context interface{} `json:"context,omitempty"`
}

// Error реализует интерфейс error
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap позволяет использовать errors.Is и errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по коду, поэтому копии из WithContext/WithError
// совпадают с предопределенными значениями
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithContext добавляет контекст к ошибке
func (e *AppError) WithContext(ctx interface{}) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Context: ctx,
	}
}

// WithError добавляет underlying ошибку
func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
		Context: e.Context,
	}
}

// Предопределенные ошибки
var (
	// Ошибки расписания
	ErrInvalidRange = &AppError{
		Code:    "INVALID_RANGE",
		Message: "invalid working hours range or interval",
	}

	ErrInvalidSlotLabel = &AppError{
		Code:    "INVALID_SLOT_LABEL",
		Message: "slot label must look like HH:MM - HH:MM",
	}

	// Ошибки бронирования
	ErrUnknownCounselor = &AppError{
		Code:    "UNKNOWN_COUNSELOR",
		Message: "counselor not found",
	}

	ErrUnknownPatient = &AppError{
		Code:    "UNKNOWN_PATIENT",
		Message: "patient not found",
	}

	ErrPastSlot = &AppError{
		Code:    "PAST_SLOT",
		Message: "slot has already started",
	}

	ErrSlotTaken = &AppError{
		Code:    "SLOT_TAKEN",
		Message: "slot is no longer available",
	}

	ErrAppointmentNotFound = &AppError{
		Code:    "APPOINTMENT_NOT_FOUND",
		Message: "appointment not found",
	}

	ErrDuplicateCounselor = &AppError{
		Code:    "DUPLICATE_COUNSELOR",
		Message: "counselor with this credential or email already exists",
	}

	// Ошибки валидации
	ErrInvalidID = &AppError{
		Code:    "INVALID_ID",
		Message: "invalid identifier",
	}

	ErrInvalidDate = &AppError{
		Code:    "INVALID_DATE",
		Message: "invalid date",
	}

	ErrInvalidTime = &AppError{
		Code:    "INVALID_TIME",
		Message: "invalid time",
	}

	ErrInvalidPhoneNumber = &AppError{
		Code:    "INVALID_PHONE_NUMBER",
		Message: "invalid phone number",
	}

	ErrInvalidEmail = &AppError{
		Code:    "INVALID_EMAIL",
		Message: "invalid email",
	}

	ErrInvalidName = &AppError{
		Code:    "INVALID_NAME",
		Message: "invalid name",
	}

	ErrInvalidCredential = &AppError{
		Code:    "INVALID_CREDENTIAL",
		Message: "invalid professional credential",
	}

	ErrInvalidAppointmentKind = &AppError{
		Code:    "INVALID_APPOINTMENT_KIND",
		Message: "appointment kind must be online or in_person",
	}

	ErrInvalidRequest = &AppError{
		Code:    "INVALID_REQUEST",
		Message: "malformed request body",
	}

	// Системные ошибки
	ErrDatabase = &AppError{
		Code:    "DATABASE",
		Message: "database error",
	}

	ErrConfigurationInvalid = &AppError{
		Code:    "CONFIGURATION_INVALID",
		Message: "invalid configuration",
	}

	ErrTelegramAPI = &AppError{
		Code:    "TELEGRAM_API",
		Message: "telegram api error",
	}

	ErrSchedulerUnavailable = &AppError{
		Code:    "SCHEDULER_UNAVAILABLE",
		Message: "reminder scheduler is stopped",
	}
)

// New создает новую ошибку приложения
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap оборачивает обычную ошибку в AppError
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsAppError проверяет, является ли ошибка AppError
func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}

// AsAppError извлекает AppError из цепочки ошибок
func AsAppError(err error) (*AppError, bool) {
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			return appErr, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
