package utils

import (
	"strconv"
	"strings"
)

// ParseLocaleFloat parses a pt-BR formatted decimal string ("1,50") into a
// float64. It returns (0, false) for empty or malformed input so callers can
// substitute a default without branching on error types.
func ParseLocaleFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseLocaleQuantity parses a pt-BR formatted quantity string where "." is the
// thousands separator and "," the decimal separator ("1.234.567,89").
func ParseLocaleQuantity(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
