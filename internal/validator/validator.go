package validator

import (
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidEmail       = errors.New("invalid email")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrAccountNameTooLong = errors.New("account name is too long")
	ErrDescriptionTooLong = errors.New("description is too long")
	ErrTooManyTags        = errors.New("too many tags")
	ErrInvalidTag         = errors.New("invalid tag")
	ErrInvalidAccountData = errors.New("invalid account data")
)

const (
	MaxAccountName = 80
	MaxDescription = 255
	MaxTags        = 20
)

var (
	emailRegex    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)
	tagRegex      = regexp.MustCompile(`^[\p{L}\p{N}_\-]{1,32}$`)
)

func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrInvalidPassword
	}
	return nil
}

func ValidateAccountName(name string) error {
	if utf8.RuneCountInString(name) > MaxAccountName {
		return ErrAccountNameTooLong
	}
	return nil
}

func ValidateDescription(description string) error {
	if utf8.RuneCountInString(description) > MaxDescription {
		return ErrDescriptionTooLong
	}
	return nil
}

// ValidateTags expects tags already trimmed and deduplicated.
func ValidateTags(tags []string) error {
	if len(tags) > MaxTags {
		return ErrTooManyTags
	}
	for _, tag := range tags {
		if !tagRegex.MatchString(tag) {
			return fmt.Errorf("%w: %q", ErrInvalidTag, tag)
		}
	}
	return nil
}

// ValidateAccountData checks the numeric keys the reports read. Other keys
// pass through untouched.
func ValidateAccountData(data map[string]any, numericKeys ...string) error {
	for _, key := range numericKeys {
		raw, ok := data[key]
		if !ok || raw == nil {
			continue
		}
		var value decimal.Decimal
		switch v := raw.(type) {
		case string:
			parsed, err := decimal.NewFromString(v)
			if err != nil {
				return fmt.Errorf("%w: %s must be a number", ErrInvalidAccountData, key)
			}
			value = parsed
		case float64:
			value = decimal.NewFromFloat(v)
		default:
			return fmt.Errorf("%w: %s must be a number", ErrInvalidAccountData, key)
		}
		if value.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidAccountData, key)
		}
	}
	return nil
}
