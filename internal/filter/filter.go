// Package filter parses and validates raw report filter fields into a FilterSet.
package filter

import (
	"fmt"
	"strings"
	"time"
)

// Date layout accepted for start_date and end_date.
const dateLayout = "2006-01-02"

// Error codes returned by Validate.
const (
	CodeMissingTIN   = "missing-tin"
	CodeBadTIN       = "bad-tin"
	CodeBadEndDate   = "bad-end-date"
	CodeBadStartDate = "bad-start-date"
	CodeBadNPI       = "bad-npi"
)

const (
	tinLength = 9
	npiLength = 10
)

// RawFilter carries the untrusted form fields for one report request.
type RawFilter struct {
	TIN       string // fe_tin: comma-separated TIN list
	EndDate   string // end_date: YYYY-MM-DD, required
	StartDate string // start_date: YYYY-MM-DD, optional
	NPI       string // npi: optional
}

// FilterSet is a validated, immutable set of report filter criteria.
// TINs is never empty and preserves insertion order; duplicates are kept.
type FilterSet struct {
	TINs      []string
	EndDate   time.Time
	StartDate time.Time
	NPI       string // empty means absent
}

// HasNPI reports whether an NPI clause should be added to the query.
func (f FilterSet) HasNPI() bool {
	return f.NPI != ""
}

// EndDateString returns the end date in wire format.
func (f FilterSet) EndDateString() string {
	return f.EndDate.Format(dateLayout)
}

// StartDateString returns the start date in wire format.
func (f FilterSet) StartDateString() string {
	return f.StartDate.Format(dateLayout)
}

// ValidationError is a caller-fixable input error. It never reaches the
// warehouse; handlers map it to a client error response.
type ValidationError struct {
	Code  string
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: invalid value %q for field %s", e.Code, e.Value, e.Field)
	}
	return fmt.Sprintf("%s: field %s", e.Code, e.Field)
}

// Policy controls validation behavior that varies by deployment.
type Policy struct {
	// TINDigitsOnly additionally requires TIN tokens to be all digits.
	TINDigitsOnly bool
	// Now supplies the wall-clock date used when start_date is absent.
	// Defaults to time.Now.
	Now func() time.Time
}

// DefaultPolicy matches production behavior: digit-only TINs, real clock.
func DefaultPolicy() Policy {
	return Policy{TINDigitsOnly: true, Now: time.Now}
}

// Validate parses raw fields into a FilterSet or returns a *ValidationError.
// It performs no cross-field checks: a start date after the end date is
// accepted and simply matches nothing.
func Validate(raw RawFilter, policy Policy) (FilterSet, error) {
	now := policy.Now
	if now == nil {
		now = time.Now
	}

	tins, err := parseTINs(raw.TIN, policy.TINDigitsOnly)
	if err != nil {
		return FilterSet{}, err
	}

	endDate, err := time.Parse(dateLayout, strings.TrimSpace(raw.EndDate))
	if err != nil {
		return FilterSet{}, &ValidationError{Code: CodeBadEndDate, Field: "end_date", Value: raw.EndDate}
	}

	// Absent start date defaults to the calendar date the request is
	// processed in the clock's own zone, so repeated identical requests
	// are not deterministic.
	y, m, d := now().Date()
	startDate := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if s := strings.TrimSpace(raw.StartDate); s != "" {
		startDate, err = time.Parse(dateLayout, s)
		if err != nil {
			return FilterSet{}, &ValidationError{Code: CodeBadStartDate, Field: "start_date", Value: raw.StartDate}
		}
	}

	npi := strings.TrimSpace(raw.NPI)
	if npi != "" && !validNPI(npi) {
		return FilterSet{}, &ValidationError{Code: CodeBadNPI, Field: "npi", Value: raw.NPI}
	}

	return FilterSet{
		TINs:      tins,
		EndDate:   endDate,
		StartDate: startDate,
		NPI:       npi,
	}, nil
}

func parseTINs(field string, digitsOnly bool) ([]string, error) {
	tokens := strings.Split(field, ",")
	tins := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		tins = append(tins, token)
	}
	if len(tins) == 0 {
		return nil, &ValidationError{Code: CodeMissingTIN, Field: "fe_tin"}
	}
	for _, tin := range tins {
		if len(tin) != tinLength {
			return nil, &ValidationError{Code: CodeBadTIN, Field: "fe_tin", Value: tin}
		}
		if digitsOnly && !allDigits(tin) {
			return nil, &ValidationError{Code: CodeBadTIN, Field: "fe_tin", Value: tin}
		}
	}
	return tins, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validNPI(s string) bool {
	if len(s) != npiLength {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}
