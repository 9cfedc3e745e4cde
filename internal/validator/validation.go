package validator

import (
	"errors"
	"strings"
	"unicode"
)

// ValidatePartNumber trims the raw query and requires at least 3 characters.
func ValidatePartNumber(s string) (string, error) {
	q := strings.TrimSpace(s)
	if len(q) < 3 {
		return "", errors.New("part number must be at least 3 characters")
	}
	return q, nil
}

// NormalizeStrict strips everything that is not a letter or digit and uppercases.
// This is the canonical form used for catalogue lookups and exact-match filtering.
func NormalizeStrict(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// NormalizeLoose lowercases and removes spaces and hyphens only. Some upstream
// search pages index part numbers this way.
func NormalizeLoose(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}
