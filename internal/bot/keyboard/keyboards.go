package keyboard

import (
	"fmt"
	"strings"

	"github.com/go-telegram/bot/models"

	"mindconnect_booking/internal/schedule"
	storagemodels "mindconnect_booking/internal/storage/models"
	"mindconnect_booking/internal/validation"
)

// Действия inline кнопок
const (
	ActionCounselor = "COUNSELOR"
	ActionDate      = "DATE"
	ActionSlot      = "SLOT"
	ActionCancel    = "CANCEL"
)

const separator = "|"

// Callback разобранные данные inline кнопки
type Callback struct {
	Action        string
	CounselorID   int64
	Date          string
	Slot          string
	AppointmentID string
}

// Encode упаковывает данные в callback_data (не длиннее 64 байт)
func (c Callback) Encode() string {
	switch c.Action {
	case ActionCounselor:
		return fmt.Sprintf("%s|%d", c.Action, c.CounselorID)
	case ActionDate:
		return fmt.Sprintf("%s|%d|%s", c.Action, c.CounselorID, c.Date)
	case ActionSlot:
		return fmt.Sprintf("%s|%d|%s|%s", c.Action, c.CounselorID, c.Date, c.Slot)
	case ActionCancel:
		return c.Action + separator + c.AppointmentID
	default:
		return c.Action
	}
}

// ParseCallback разбирает callback_data
func ParseCallback(data string) (Callback, error) {
	parts := strings.Split(data, separator)
	cb := Callback{Action: parts[0]}

	want := map[string]int{
		ActionCounselor: 2,
		ActionDate:      3,
		ActionSlot:      4,
		ActionCancel:    2,
	}
	n, ok := want[cb.Action]
	if !ok || len(parts) != n {
		return Callback{}, fmt.Errorf("unknown callback data %q", data)
	}

	if cb.Action == ActionCancel {
		if parts[1] == "" {
			return Callback{}, fmt.Errorf("empty appointment id in %q", data)
		}
		cb.AppointmentID = parts[1]
		return cb, nil
	}

	id, err := validation.ValidateID(parts[1])
	if err != nil {
		return Callback{}, fmt.Errorf("invalid counselor id in %q: %w", data, err)
	}
	cb.CounselorID = id

	if n >= 3 {
		if _, err := validation.ValidateDate(parts[2]); err != nil {
			return Callback{}, fmt.Errorf("invalid date in %q: %w", data, err)
		}
		cb.Date = parts[2]
	}
	if n == 4 {
		cb.Slot = parts[3]
	}

	return cb, nil
}

// CreateContactKeyboard создает клавиатуру для запроса контакта
func CreateContactKeyboard() *models.ReplyKeyboardMarkup {
	return &models.ReplyKeyboardMarkup{
		Keyboard: [][]models.KeyboardButton{
			{
				{
					Text:           "Поделиться телефоном",
					RequestContact: true,
				},
			},
		},
		OneTimeKeyboard: true,
		ResizeKeyboard:  true,
	}
}

// CreateRemoveKeyboard создает объект для удаления клавиатуры
func CreateRemoveKeyboard() *models.ReplyKeyboardRemove {
	return &models.ReplyKeyboardRemove{
		RemoveKeyboard: true,
	}
}

// CreateCounselorKeyboard создает inline клавиатуру для выбора психолога
func CreateCounselorKeyboard(counselors []*storagemodels.Counselor) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(counselors))

	for _, c := range counselors {
		btn := models.InlineKeyboardButton{
			Text:         c.Name,
			CallbackData: Callback{Action: ActionCounselor, CounselorID: c.ID}.Encode(),
		}
		rows = append(rows, []models.InlineKeyboardButton{btn})
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// CreateDateSelectionKeyboard создает inline клавиатуру для выбора даты
func CreateDateSelectionKeyboard(counselorID int64, dates []string) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(dates))

	for _, d := range dates {
		btn := models.InlineKeyboardButton{
			Text:         d,
			CallbackData: Callback{Action: ActionDate, CounselorID: counselorID, Date: d}.Encode(),
		}
		rows = append(rows, []models.InlineKeyboardButton{btn})
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// CreateSlotSelectionKeyboard создает inline клавиатуру для выбора слота, по perRow кнопок в ряд
func CreateSlotSelectionKeyboard(counselorID int64, date string, slots []schedule.Label, perRow int) *models.InlineKeyboardMarkup {
	if perRow <= 0 {
		perRow = 1
	}

	var rows [][]models.InlineKeyboardButton
	var row []models.InlineKeyboardButton

	for _, s := range slots {
		row = append(row, models.InlineKeyboardButton{
			Text:         string(s),
			CallbackData: Callback{Action: ActionSlot, CounselorID: counselorID, Date: date, Slot: string(s)}.Encode(),
		})
		if len(row) == perRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// CreateCancelKeyboard создает inline клавиатуру для отмены записей
func CreateCancelKeyboard(appts []*storagemodels.Appointment) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(appts))

	for _, a := range appts {
		btn := models.InlineKeyboardButton{
			Text:         "Отменить " + a.GetFormattedDateTime(),
			CallbackData: Callback{Action: ActionCancel, AppointmentID: a.ID}.Encode(),
		}
		rows = append(rows, []models.InlineKeyboardButton{btn})
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}
