package services

import (
	"database/sql"
	"errors"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrEntryNotFound     = errors.New("entry not found")
	ErrRecurringNotFound = errors.New("recurring definition not found")
	ErrInvalidRange      = errors.New("end date must not be before start date")
	ErrRangeTooLarge     = errors.New("date range too large")
	ErrInvalidAccount    = errors.New("invalid account")
	ErrMissingSchedule   = errors.New("next_transaction_at is required")
)

// notFound maps sql.ErrNoRows to target and leaves other errors alone.
func notFound(err, target error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return target
	}
	return err
}
