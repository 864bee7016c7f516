package core

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidCount = errors.New("invalid count")

// ParseCount converts free-text input into a count.
//
// It follows the coercion rules of a numeric text field: surrounding whitespace
// is ignored, a blank field reads as 0, decimal and exponent forms are accepted,
// and 0x/0o/0b prefixed integers are accepted. Negative and fractional values are
// allowed. Anything that does not produce a finite number is rejected, since it
// could not be persisted.
func ParseCount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.Contains(s, "_") {
		return 0, ErrInvalidCount
	}

	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			v, err := strconv.ParseUint(s[2:], base, 64)
			if err != nil {
				return 0, ErrInvalidCount
			}
			return float64(v), nil
		}
	}

	lower := strings.ToLower(strings.TrimLeft(s, "+-"))
	if strings.HasPrefix(lower, "inf") || strings.HasPrefix(lower, "nan") {
		return 0, ErrInvalidCount
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidCount
	}
	return v, nil
}

// FormatCount renders a count without trailing zeros, e.g. 3 or 2.5.
func FormatCount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
