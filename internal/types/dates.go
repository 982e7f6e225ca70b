package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// parseDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp.
// Empty input yields the zero time.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

// UnmarshalJSON accepts date-only values for dateOfService.
func (c *Claim) UnmarshalJSON(data []byte) error {
	type plain Claim
	aux := struct {
		*plain
		DateOfService string `json:"dateOfService"`
	}{plain: (*plain)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	dos, err := parseDate(aux.DateOfService)
	if err != nil {
		return fmt.Errorf("dateOfService: %w", err)
	}
	c.DateOfService = dos
	return nil
}

// UnmarshalJSON accepts date-only values for effectiveDate and expirationDate.
func (r *Rule) UnmarshalJSON(data []byte) error {
	type plain Rule
	aux := struct {
		*plain
		EffectiveDate  string  `json:"effectiveDate"`
		ExpirationDate *string `json:"expirationDate,omitempty"`
	}{plain: (*plain)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	eff, err := parseDate(aux.EffectiveDate)
	if err != nil {
		return fmt.Errorf("effectiveDate: %w", err)
	}
	r.EffectiveDate = eff

	r.ExpirationDate = nil
	if aux.ExpirationDate != nil && *aux.ExpirationDate != "" {
		exp, err := parseDate(*aux.ExpirationDate)
		if err != nil {
			return fmt.Errorf("expirationDate: %w", err)
		}
		r.ExpirationDate = &exp
	}
	return nil
}
