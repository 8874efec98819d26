package validate

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// Email checks the value is a well-formed address.
func Email(message string) Rule {
	return func(_ context.Context, _ Form, value string) error {
		if !emailPattern.MatchString(value) {
			return errors.New(message)
		}
		return nil
	}
}

// MinLength checks the value is at least n characters.
func MinLength(n int, message string) Rule {
	return func(_ context.Context, _ Form, value string) error {
		if len([]rune(value)) < n {
			return errors.New(message)
		}
		return nil
	}
}

// MaxLength checks the value is at most n characters.
func MaxLength(n int, message string) Rule {
	return func(_ context.Context, _ Form, value string) error {
		if len([]rune(value)) > n {
			return errors.New(message)
		}
		return nil
	}
}

// Alphanumeric checks the value contains only latin letters and digits.
func Alphanumeric(message string) Rule {
	return func(_ context.Context, _ Form, value string) error {
		for _, r := range value {
			switch {
			case r >= 'a' && r <= 'z':
			case r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9':
			default:
				return errors.New(message)
			}
		}
		return nil
	}
}

// Numeric checks the value parses as a non-negative integer.
func Numeric(message string) Rule {
	return func(_ context.Context, _ Form, value string) error {
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || n < 0 {
			return errors.New(message)
		}
		return nil
	}
}

// URL checks the value is an absolute http(s) URL.
func URL(message string) Rule {
	return func(_ context.Context, _ Form, value string) error {
		u, err := url.Parse(strings.TrimSpace(value))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New(message)
		}
		return nil
	}
}

// MatchesField checks the value equals a sibling field, which expresses
// the password-confirmation rule.
func MatchesField(name, message string) Rule {
	return func(_ context.Context, form Form, value string) error {
		if value != form.Value(name) {
			return errors.New(message)
		}
		return nil
	}
}
