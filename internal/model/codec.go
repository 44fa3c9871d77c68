package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Accepted layouts for invoice dates in JSON payloads.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
}

// ParseDate parses an extracted invoice date into a calendar date.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return CalendarDate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// UnmarshalJSON accepts both plain calendar dates and RFC3339 timestamps.
func (r *InvoiceRecord) UnmarshalJSON(data []byte) error {
	type alias InvoiceRecord
	aux := struct {
		*alias
		Date string `json:"date"`
	}{alias: (*alias)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Date == "" {
		r.Date = time.Time{}
		return nil
	}
	d, err := ParseDate(aux.Date)
	if err != nil {
		return err
	}
	r.Date = d
	if r.Amount.Currency == "" {
		r.Amount.Currency = DefaultCurrency
	}
	return nil
}

// MarshalJSON writes the invoice date as a calendar date.
func (r InvoiceRecord) MarshalJSON() ([]byte, error) {
	type alias InvoiceRecord
	aux := struct {
		alias
		Date string `json:"date"`
	}{alias: alias(r)}
	if !r.Date.IsZero() {
		aux.Date = r.Date.Format("2006-01-02")
	}
	return json.Marshal(aux)
}
