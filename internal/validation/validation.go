package validation

import (
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"mindconnect_booking/pkg/errors"
)

// Формат даты записи
const DateLayout = "2006-01-02"

// Регулярные выражения для валидации
var (
	phoneRegex      = regexp.MustCompile(`^\+?[1-9]\d{7,14}$`)
	phoneStripRegex = regexp.MustCompile(`[\s()\-.]`)
	dateRegex       = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRegex       = regexp.MustCompile(`^\d{2}:\d{2}$`)
	credentialRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9/\-. ]{2,31}$`)
)

// ValidateID валидирует числовой идентификатор из URL или callback данных
func ValidateID(idStr string) (int64, error) {
	if idStr == "" {
		return 0, errors.ErrInvalidID.WithContext("идентификатор не может быть пустым")
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, errors.ErrInvalidID.WithError(err).WithContext(map[string]interface{}{
			"input": idStr,
		})
	}

	if id <= 0 {
		return 0, errors.ErrInvalidID.WithContext(map[string]interface{}{
			"input":  idStr,
			"reason": "идентификатор должен быть положительным числом",
		})
	}

	return id, nil
}

// NormalizePhoneNumber убирает разделители из номера телефона
func NormalizePhoneNumber(phone string) string {
	return phoneStripRegex.ReplaceAllString(strings.TrimSpace(phone), "")
}

// ValidatePhoneNumber валидирует номер телефона после нормализации
func ValidatePhoneNumber(phone string) error {
	if phone == "" {
		return errors.ErrInvalidPhoneNumber.WithContext("номер телефона не может быть пустым")
	}

	if !phoneRegex.MatchString(NormalizePhoneNumber(phone)) {
		return errors.ErrInvalidPhoneNumber.WithContext(map[string]interface{}{
			"phone":  phone,
			"reason": "номер должен содержать от 8 до 15 цифр",
		})
	}

	return nil
}

// ValidateEmail валидирует адрес электронной почты
func ValidateEmail(email string) error {
	if email == "" {
		return errors.ErrInvalidEmail.WithContext("email не может быть пустым")
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.ErrInvalidEmail.WithContext(map[string]interface{}{
			"email": email,
		})
	}

	return nil
}

// ValidateDate валидирует дату в формате YYYY-MM-DD.
// Проверка на прошедшую дату выполняется при бронировании по времени начала слота.
func ValidateDate(dateStr string) (time.Time, error) {
	if dateStr == "" {
		return time.Time{}, errors.ErrInvalidDate.WithContext("дата не может быть пустой")
	}

	if !dateRegex.MatchString(dateStr) {
		return time.Time{}, errors.ErrInvalidDate.WithContext(map[string]interface{}{
			"date":   dateStr,
			"reason": "дата должна быть в формате YYYY-MM-DD",
		})
	}

	date, err := time.Parse(DateLayout, dateStr)
	if err != nil {
		return time.Time{}, errors.ErrInvalidDate.WithError(err).WithContext(map[string]interface{}{
			"date": dateStr,
		})
	}

	return date, nil
}

// ValidateTime валидирует время в формате HH:MM
func ValidateTime(timeStr string) (time.Time, error) {
	if timeStr == "" {
		return time.Time{}, errors.ErrInvalidTime.WithContext("время не может быть пустым")
	}

	if !timeRegex.MatchString(timeStr) {
		return time.Time{}, errors.ErrInvalidTime.WithContext(map[string]interface{}{
			"time":   timeStr,
			"reason": "время должно быть в формате HH:MM",
		})
	}

	parsedTime, err := time.Parse("15:04", timeStr)
	if err != nil {
		return time.Time{}, errors.ErrInvalidTime.WithError(err).WithContext(map[string]interface{}{
			"time": timeStr,
		})
	}

	return parsedTime, nil
}

// ValidateIntervalMinutes валидирует продолжительность консультации в минутах
func ValidateIntervalMinutes(minutes int) error {
	if minutes < 5 {
		return errors.ErrInvalidRange.WithContext(map[string]interface{}{
			"interval_mins": minutes,
			"reason":        "слишком короткий слот (минимум 5 минут)",
		})
	}

	if minutes > 480 {
		return errors.ErrInvalidRange.WithContext(map[string]interface{}{
			"interval_mins": minutes,
			"reason":        "слишком длинный слот (максимум 8 часов)",
		})
	}

	return nil
}

// ValidateName валидирует имя пациента или психолога
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.ErrInvalidName.WithContext("имя не может быть пустым")
	}

	if utf8.RuneCountInString(name) > 100 {
		return errors.ErrInvalidName.WithContext("имя слишком длинное (максимум 100 символов)")
	}

	return nil
}

// ValidateCredential валидирует номер профессиональной регистрации (CRO/CRP)
func ValidateCredential(credential string) error {
	if !credentialRegex.MatchString(strings.TrimSpace(credential)) {
		return errors.ErrInvalidCredential.WithContext(map[string]interface{}{
			"credential": credential,
		})
	}

	return nil
}

// ValidateChatID валидирует Telegram Chat ID
func ValidateChatID(chatID int64) error {
	// Для групп Chat ID отрицательный, принимаем любые ненулевые значения
	if chatID == 0 {
		return errors.ErrInvalidID.WithContext("Chat ID не может быть равен нулю")
	}

	return nil
}
