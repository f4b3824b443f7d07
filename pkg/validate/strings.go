package validate

import (
	"regexp"
	"strings"
	"unicode"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// NormalizeString trims whitespace and normalizes string input
func NormalizeString(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeEmail normalizes email addresses (lowercase and trim)
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone keeps digits and a leading +.
func NormalizePhone(phone string) string {
	cleaned := strings.TrimSpace(phone)
	if cleaned == "" {
		return ""
	}

	var result strings.Builder
	for i, r := range cleaned {
		if i == 0 && r == '+' {
			result.WriteRune(r)
		} else if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}

	return result.String()
}

func IsValidEmail(email string) bool {
	normalized := NormalizeEmail(email)
	if normalized == "" || len(normalized) > 254 {
		return false
	}
	return emailRegex.MatchString(normalized)
}

// IsValidPhone accepts 7 to 15 digits, optionally prefixed with +.
func IsValidPhone(phone string) bool {
	normalized := strings.TrimPrefix(NormalizePhone(phone), "+")
	return len(normalized) >= 7 && len(normalized) <= 15
}

// MaxLen reports whether s fits within n runes.
func MaxLen(s string, n int) bool {
	return len([]rune(s)) <= n
}
