package sanitizer

import (
	"regexp"
	"strings"
)

var (
	dotRegex      = regexp.MustCompile(`\.{2,}`)
	nonDigitRegex = regexp.MustCompile(`\D`)
)

// NormalizeEmail prevents common email input errors but preserves the
// original value for invalid formats so validation can report on it.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	email = strings.ToLower(email)

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return email
	}

	local := parts[0]
	domain := parts[1]

	// Consecutive dots cause delivery failures with some providers.
	local = dotRegex.ReplaceAllString(local, ".")
	local = strings.Trim(local, ".")

	return local + "@" + domain
}

// NormalizeOTPCode strips everything but digits from a one-time code.
// Users paste codes with spaces or dashes; the provider expects bare digits.
func NormalizeOTPCode(code string) string {
	return nonDigitRegex.ReplaceAllString(code, "")
}

// TrimUsername collapses surrounding whitespace on a display username.
func TrimUsername(username string) string {
	return strings.TrimSpace(username)
}
