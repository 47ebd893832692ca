package handlers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"finance/internal/calendar"
	"finance/internal/models"
	"finance/internal/money"

	"github.com/shopspring/decimal"
)

var errInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")

// parseDate accepts a bare date or an RFC 3339 timestamp.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if day, err := calendar.Parse(raw); err == nil {
		return day, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	return time.Time{}, errInvalidDate
}

// parseOptionalDate returns the zero time for an empty value.
func parseOptionalDate(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	return parseDate(raw)
}

func parseAmount(raw string) (decimal.Decimal, error) {
	return money.ParsePositive(raw)
}

// parseSignedAmount allows zero and negative values, as initial balances do.
func parseSignedAmount(raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	return money.Parse(raw)
}

func parseKind(raw string) (models.EntryKind, error) {
	return models.ParseEntryKind(raw)
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// pagination reads page and limit, capping limit at 200.
func pagination(page, limit string, defaultLimit int) (int, int) {
	l := parseInt(limit, defaultLimit)
	if l > 200 {
		l = 200
	}
	p := parseInt(page, 1)
	return l, (p - 1) * l
}
