package validator

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

var otpCodeRegex = regexp.MustCompile(`^\d+$`)

// ValidEmail validates an email address for typical web application use.
// Stricter than RFC 5322: display names, quoted local parts, and missing
// TLDs are rejected because identity providers refuse them anyway.
func ValidEmail(field, value string) Rule {
	return Rule{
		Check: func() bool {
			if strings.TrimSpace(value) == "" {
				return false
			}

			addr, err := mail.ParseAddress(value)
			if err != nil || addr.Address != value {
				return false
			}

			parts := strings.Split(value, "@")
			if len(parts) != 2 {
				return false
			}
			local, domain := parts[0], parts[1]
			if local == "" || domain == "" {
				return false
			}
			// Require a dot in the domain; bare hostnames pass mail.ParseAddress.
			if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
				return false
			}
			return true
		},
		Error: ValidationError{
			Field:   field,
			Message: "must be a valid email address",
		},
	}
}

// MinPasswordLength enforces a minimum password length.
func MinPasswordLength(field, value string, min int) Rule {
	return Rule{
		Check: func() bool {
			return len(value) >= min
		},
		Error: ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be at least %d characters", min),
		},
	}
}

// PasswordsMatch enforces that a password and its confirmation are identical.
func PasswordsMatch(field, password, confirmation string) Rule {
	return Rule{
		Check: func() bool {
			return password == confirmation
		},
		Error: ValidationError{
			Field:   field,
			Message: "passwords do not match",
		},
	}
}

// OTPCode validates a numeric one-time code of the given length.
func OTPCode(field, value string, length int) Rule {
	return Rule{
		Check: func() bool {
			return len(value) == length && otpCodeRegex.MatchString(value)
		},
		Error: ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be a %d-digit code", length),
		},
	}
}

// RequiredString rejects empty or whitespace-only values.
func RequiredString(field, value string) Rule {
	return Rule{
		Check: func() bool {
			return strings.TrimSpace(value) != ""
		},
		Error: ValidationError{
			Field:   field,
			Message: "is required",
		},
	}
}
