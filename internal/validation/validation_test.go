package validation

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindconnect_booking/pkg/errors"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "valid id", input: "123", want: 123},
		{name: "empty string", input: "", wantErr: true},
		{name: "zero", input: "0", wantErr: true},
		{name: "negative number", input: "-5", wantErr: true},
		{name: "not a number", input: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, stderrors.Is(err, errors.ErrInvalidID))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidatePhoneNumber(t *testing.T) {
	valid := []string{"+5511987654321", "11 98765-4321", "(11) 98765.4321", "+1234567890"}
	for _, phone := range valid {
		assert.NoError(t, ValidatePhoneNumber(phone), phone)
	}

	invalid := []string{"", "12345", "+0123456789", "phone"}
	for _, phone := range invalid {
		err := ValidatePhoneNumber(phone)
		assert.True(t, stderrors.Is(err, errors.ErrInvalidPhoneNumber), phone)
	}
}

func TestNormalizePhoneNumber(t *testing.T) {
	assert.Equal(t, "+5511987654321", NormalizePhoneNumber(" +55 (11) 98765-4321 "))
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("ana@clinic.example"))
	assert.Error(t, ValidateEmail(""))
	assert.Error(t, ValidateEmail("Ana <ana@clinic.example>"))
	assert.Error(t, ValidateEmail("not-an-email"))
}

func TestValidateDate(t *testing.T) {
	date, err := ValidateDate("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, 2024, date.Year())

	// Прошедшие даты допустимы на этом уровне
	_, err = ValidateDate("1999-12-31")
	assert.NoError(t, err)

	for _, input := range []string{"", "01/03/2024", "2024-13-01", "2024-02-30"} {
		_, err := ValidateDate(input)
		assert.True(t, stderrors.Is(err, errors.ErrInvalidDate), input)
	}
}

func TestValidateTime(t *testing.T) {
	parsed, err := ValidateTime("09:40")
	require.NoError(t, err)
	assert.Equal(t, 9, parsed.Hour())
	assert.Equal(t, 40, parsed.Minute())

	for _, input := range []string{"", "9:40", "24:00", "12:60"} {
		_, err := ValidateTime(input)
		assert.True(t, stderrors.Is(err, errors.ErrInvalidTime), input)
	}
}

func TestValidateIntervalMinutes(t *testing.T) {
	assert.NoError(t, ValidateIntervalMinutes(20))
	assert.NoError(t, ValidateIntervalMinutes(50))
	assert.Error(t, ValidateIntervalMinutes(0))
	assert.Error(t, ValidateIntervalMinutes(4))
	assert.Error(t, ValidateIntervalMinutes(481))
}

func TestValidateNameAndCredential(t *testing.T) {
	assert.NoError(t, ValidateName("Ana Souza"))
	assert.Error(t, ValidateName("   "))

	assert.NoError(t, ValidateCredential("CRP 06/12345"))
	assert.Error(t, ValidateCredential(""))
	assert.Error(t, ValidateCredential("#!"))

	assert.NoError(t, ValidateChatID(-100123))
	assert.Error(t, ValidateChatID(0))
}
