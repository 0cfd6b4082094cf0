package filter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t *testing.T) Policy {
	t.Helper()
	pinned := time.Date(2024, 7, 15, 9, 30, 0, 0, time.UTC)
	return Policy{TINDigitsOnly: true, Now: func() time.Time { return pinned }}
}

func TestValidate_TINField(t *testing.T) {
	tests := []struct {
		name     string
		tin      string
		wantCode string
		wantTINs []string
	}{
		{name: "single valid", tin: "123456789", wantTINs: []string{"123456789"}},
		{name: "multiple valid", tin: "111111111,222222222", wantTINs: []string{"111111111", "222222222"}},
		{name: "whitespace trimmed", tin: " 123456789 , 987654321 ", wantTINs: []string{"123456789", "987654321"}},
		{name: "duplicates kept in order", tin: "123456789,123456789", wantTINs: []string{"123456789", "123456789"}},
		{name: "empty string", tin: "", wantCode: CodeMissingTIN},
		{name: "all whitespace tokens", tin: " , ", wantCode: CodeMissingTIN},
		{name: "length 8", tin: "12345678", wantCode: CodeBadTIN},
		{name: "length 10", tin: "1234567890", wantCode: CodeBadTIN},
		{name: "one bad among good", tin: "123456789,12345678", wantCode: CodeBadTIN},
		{name: "letters with digits-only policy", tin: "12345678A", wantCode: CodeBadTIN},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, err := Validate(RawFilter{TIN: tt.tin, EndDate: "2024-06-01"}, fixedClock(t))
			if tt.wantCode != "" {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.wantCode, verr.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTINs, fs.TINs)
		})
	}
}

func TestValidate_TINCharacterPolicy(t *testing.T) {
	policy := fixedClock(t)
	policy.TINDigitsOnly = false

	fs, err := Validate(RawFilter{TIN: "12345678A", EndDate: "2024-06-01"}, policy)
	require.NoError(t, err)
	assert.Equal(t, []string{"12345678A"}, fs.TINs)

	// Length is enforced regardless of the character policy.
	_, err = Validate(RawFilter{TIN: "1234567", EndDate: "2024-06-01"}, policy)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeBadTIN, verr.Code)
}

func TestValidate_EndDate(t *testing.T) {
	policy := fixedClock(t)

	fs, err := Validate(RawFilter{TIN: "123456789", EndDate: "2024-01-15"}, policy)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", fs.EndDateString())

	for name, value := range map[string]string{
		"missing":       "",
		"invalid month": "2024-13-01",
		"wrong layout":  "01/15/2024",
		"not a date":    "soon",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Validate(RawFilter{TIN: "123456789", EndDate: value}, policy)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, CodeBadEndDate, verr.Code)
		})
	}
}

func TestValidate_StartDateDefaultsToToday(t *testing.T) {
	fs, err := Validate(RawFilter{TIN: "123456789", EndDate: "2024-06-01"}, fixedClock(t))
	require.NoError(t, err)
	assert.Equal(t, "2024-07-15", fs.StartDateString())
}

func TestValidate_StartDateDefaultUsesClockZone(t *testing.T) {
	// Early morning in a zone ahead of UTC is still the same calendar day
	// there, even though UTC has not reached it yet.
	policy := Policy{TINDigitsOnly: true, Now: func() time.Time {
		return time.Date(2024, 7, 15, 8, 0, 0, 0, time.FixedZone("UTC+10", 10*60*60))
	}}

	fs, err := Validate(RawFilter{TIN: "123456789", EndDate: "2024-06-01"}, policy)
	require.NoError(t, err)
	assert.Equal(t, "2024-07-15", fs.StartDateString())
}

func TestValidate_StartDateExplicit(t *testing.T) {
	fs, err := Validate(RawFilter{TIN: "123456789", EndDate: "2024-06-01", StartDate: "2024-05-01"}, fixedClock(t))
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", fs.StartDateString())

	_, err = Validate(RawFilter{TIN: "123456789", EndDate: "2024-06-01", StartDate: "2024-02-30"}, fixedClock(t))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeBadStartDate, verr.Code)
}

func TestValidate_StartAfterEndAccepted(t *testing.T) {
	// No cross-field check: a reversed range validates and matches nothing.
	fs, err := Validate(RawFilter{TIN: "123456789", EndDate: "2024-01-01", StartDate: "2024-12-31"}, fixedClock(t))
	require.NoError(t, err)
	assert.True(t, fs.StartDate.After(fs.EndDate))
}

func TestValidate_NPI(t *testing.T) {
	policy := fixedClock(t)

	tests := []struct {
		name    string
		npi     string
		wantErr bool
	}{
		{name: "absent", npi: "", wantErr: false},
		{name: "ten alphanumeric", npi: "ABC1234567", wantErr: false},
		{name: "ten digits", npi: "0123456789", wantErr: false},
		{name: "nine chars", npi: "ABC123456", wantErr: true},
		{name: "eleven chars", npi: "ABC12345678", wantErr: true},
		{name: "non-alphanumeric", npi: "ABC123456!", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, err := Validate(RawFilter{TIN: "123456789", EndDate: "2024-06-01", NPI: tt.npi}, policy)
			if tt.wantErr {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, CodeBadNPI, verr.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.npi, fs.NPI)
			assert.Equal(t, tt.npi != "", fs.HasNPI())
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	err := error(&ValidationError{Code: CodeBadTIN, Field: "fe_tin", Value: "12345678"})
	assert.Contains(t, err.Error(), "bad-tin")
	assert.Contains(t, err.Error(), "12345678")

	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}
