package core

import (
	"errors"
	"strings"
	"time"
)

// DateLayout is the canonical YYYY-MM-DD form used as the tally key.
const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date")

// Today returns the canonical date for now in loc. A nil loc means UTC.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(DateLayout)
}

// ParseDate trims s and checks that it is a canonical calendar date.
// The returned string is the key to use in a Mapping.
func ParseDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalidDate
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", ErrInvalidDate
	}
	return s, nil
}
