package core

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// DayEntry is the raw add/edit form input: a date and a free-text count.
type DayEntry struct {
	Date  string `json:"date" validate:"required,datetime=2006-01-02"`
	Count string `json:"count"`
}

// Parse returns the canonical key and numeric count, or ErrInvalidDate /
// ErrInvalidCount.
func (e DayEntry) Parse() (string, float64, error) {
	e.Date = strings.TrimSpace(e.Date)
	if err := validate.Struct(e); err != nil {
		return "", 0, ErrInvalidDate
	}
	count, err := ParseCount(e.Count)
	if err != nil {
		return "", 0, err
	}
	return e.Date, count, nil
}
