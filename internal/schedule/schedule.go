// Package schedule нарезает рабочие часы психолога на интервалы фиксированной длины.
package schedule

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mindconnect_booking/pkg/errors"
)

const minutesPerDay = 24 * 60

// Clock время суток в минутах от полуночи
type Clock int

// endOfDay допустим только как граница окончания рабочего дня
const endOfDay = "24:00"

// ParseClock разбирает время в формате HH:MM (24 часа, с ведущими нулями).
// "24:00" означает полночь в конце дня.
func ParseClock(s string) (Clock, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, errors.ErrInvalidTime.WithContext(map[string]interface{}{"time": s})
	}
	if s == endOfDay {
		return Clock(minutesPerDay), nil
	}

	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, errors.ErrInvalidTime.WithError(err).WithContext(map[string]interface{}{"time": s})
	}

	return Clock(t.Hour()*60 + t.Minute()), nil
}

// MustClock разбирает время и паникует при ошибке (для констант и тестов)
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String форматирует время как HH:MM
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Duration возвращает смещение от полуночи
func (c Clock) Duration() time.Duration {
	return time.Duration(c) * time.Minute
}

// On возвращает момент времени на указанную дату в часовом поясе loc
func (c Clock) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, loc)
}

// Label подпись слота вида "HH:MM - HH:MM"
type Label string

const labelSeparator = " - "

// NewLabel формирует подпись слота
func NewLabel(start, end Clock) Label {
	return Label(start.String() + labelSeparator + end.String())
}

// ParseLabel проверяет синтаксис подписи и возвращает начало и конец слота
func ParseLabel(label string) (start, end Clock, err error) {
	parts := strings.Split(label, labelSeparator)
	if len(parts) != 2 {
		return 0, 0, errors.ErrInvalidSlotLabel.WithContext(map[string]interface{}{"slot": label})
	}

	start, err = ParseClock(parts[0])
	if err != nil {
		return 0, 0, errors.ErrInvalidSlotLabel.WithError(err).WithContext(map[string]interface{}{"slot": label})
	}
	end, err = ParseClock(parts[1])
	if err != nil {
		return 0, 0, errors.ErrInvalidSlotLabel.WithError(err).WithContext(map[string]interface{}{"slot": label})
	}
	if end <= start {
		return 0, 0, errors.ErrInvalidSlotLabel.WithContext(map[string]interface{}{
			"slot":   label,
			"reason": "конец слота должен быть позже начала",
		})
	}

	return start, end, nil
}

// Start возвращает время начала слота
func (l Label) Start() (Clock, error) {
	start, _, err := ParseLabel(string(l))
	return start, err
}

// Generate нарезает интервал [start, end) на последовательные слоты длиной interval.
// Неполный хвостовой интервал отбрасывается.
func Generate(start, end Clock, interval time.Duration) ([]Label, error) {
	if end <= start || end > minutesPerDay || start < 0 {
		return nil, errors.ErrInvalidRange.WithContext(map[string]interface{}{
			"start": start.String(),
			"end":   end.String(),
		})
	}
	if interval <= 0 || interval%time.Minute != 0 {
		return nil, errors.ErrInvalidRange.WithContext(map[string]interface{}{
			"interval": interval.String(),
			"reason":   "интервал должен быть положительным целым числом минут",
		})
	}

	step := Clock(interval / time.Minute)
	labels := make([]Label, 0, int((end-start)/step))
	for cur := start; cur+step <= end; cur += step {
		labels = append(labels, NewLabel(cur, cur+step))
	}

	return labels, nil
}

// Labels сериализуемый список слотов для хранения в колонке расписания
type Labels []Label

// Value реализует driver.Valuer для INSERT/UPDATE
func (l Labels) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]Label(l))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schedule: %w", err)
	}
	return string(b), nil
}

// Scan реализует sql.Scanner для SELECT
func (l *Labels) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*l = Labels{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported schedule column type: %T", value)
	}

	var out []Label
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to unmarshal schedule: %w", err)
	}
	if out == nil {
		out = []Label{}
	}
	*l = out
	return nil
}

// Contains проверяет наличие слота в расписании
func (l Labels) Contains(label Label) bool {
	for _, v := range l {
		if v == label {
			return true
		}
	}
	return false
}
