package models

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrMissingAccount      = errors.New("account is required")
	ErrSameAccountTransfer = errors.New("creditor and debtor must differ")
)

// Entry is a concrete Income, Expense or Transfer. Income and Expense use
// AccountID; Transfer uses CreditorID (receiving) and DebtorID (paying).
type Entry struct {
	ID           string          `json:"id"`
	Kind         EntryKind       `json:"kind"`
	AccountID    string          `json:"account_id,omitempty"`
	CreditorID   string          `json:"creditor_id,omitempty"`
	DebtorID     string          `json:"debtor_id,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	TransactedAt time.Time       `json:"transacted_at"`
	Description  string          `json:"description"`
	PersonID     *string         `json:"person_id,omitempty"`
	Tags         []string        `json:"tags"`
}

func (e Entry) Validate() error {
	return validatePosting(e.Kind, e.AccountID, e.CreditorID, e.DebtorID, e.Amount)
}

// AccountIDs lists every account the entry touches.
func (e Entry) AccountIDs() []string {
	return postingAccounts(e.Kind, e.AccountID, e.CreditorID, e.DebtorID)
}

// Deltas are the signed changes the entry applies to current_balance.
func (e Entry) Deltas() []Delta {
	switch e.Kind {
	case KindIncome:
		return []Delta{{AccountID: e.AccountID, Amount: e.Amount}}
	case KindExpense:
		return []Delta{{AccountID: e.AccountID, Amount: e.Amount.Neg()}}
	case KindTransfer:
		return []Delta{
			{AccountID: e.CreditorID, Amount: e.Amount},
			{AccountID: e.DebtorID, Amount: e.Amount.Neg()},
		}
	}
	return nil
}

// Recurring is a template that spawns entries every Frequency until
// RemainingRecurrences reaches zero, at which point the definition is deleted.
// A nil RemainingRecurrences never runs out.
type Recurring struct {
	ID                   string          `json:"id"`
	Kind                 EntryKind       `json:"kind"`
	AccountID            string          `json:"account_id,omitempty"`
	CreditorID           string          `json:"creditor_id,omitempty"`
	DebtorID             string          `json:"debtor_id,omitempty"`
	Amount               decimal.Decimal `json:"amount"`
	Description          string          `json:"description"`
	PersonID             *string         `json:"person_id,omitempty"`
	Tags                 []string        `json:"tags"`
	NextTransactionAt    time.Time       `json:"next_transaction_at"`
	Frequency            Frequency       `json:"frequency"`
	RemainingRecurrences *int            `json:"remaining_recurrences"`
}

var (
	ErrInvalidRemaining  = errors.New("remaining_recurrences must be greater than zero")
	ErrUnknownFrequency  = errors.New("unknown frequency")
)

func (r Recurring) Validate() error {
	if err := validatePosting(r.Kind, r.AccountID, r.CreditorID, r.DebtorID, r.Amount); err != nil {
		return err
	}
	if !r.Frequency.Valid() {
		return ErrUnknownFrequency
	}
	if r.RemainingRecurrences != nil && *r.RemainingRecurrences <= 0 {
		return ErrInvalidRemaining
	}
	return nil
}

func (r Recurring) AccountIDs() []string {
	return postingAccounts(r.Kind, r.AccountID, r.CreditorID, r.DebtorID)
}

// Occurrence builds the concrete entry for a scheduled date.
func (r Recurring) Occurrence(id string, at time.Time) Entry {
	tags := append([]string(nil), r.Tags...)
	return Entry{
		ID:           id,
		Kind:         r.Kind,
		AccountID:    r.AccountID,
		CreditorID:   r.CreditorID,
		DebtorID:     r.DebtorID,
		Amount:       r.Amount,
		TransactedAt: at,
		Description:  r.Description,
		PersonID:     r.PersonID,
		Tags:         tags,
	}
}

type Frequency string

const (
	Daily     Frequency = "daily"
	Weekly    Frequency = "weekly"
	Biweekly  Frequency = "biweekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Biweekly, Monthly, Quarterly, Yearly:
		return true
	}
	return false
}

// Delta is a signed change to one account's current_balance.
type Delta struct {
	AccountID string
	Amount    decimal.Decimal
}

// Reverse negates every delta.
func Reverse(deltas []Delta) []Delta {
	out := make([]Delta, 0, len(deltas))
	for _, d := range deltas {
		out = append(out, Delta{AccountID: d.AccountID, Amount: d.Amount.Neg()})
	}
	return out
}

// MergeDeltas nets deltas per account, drops accounts whose net is zero and
// orders the result by account id so locks are always taken in the same order.
func MergeDeltas(groups ...[]Delta) []Delta {
	sums := map[string]decimal.Decimal{}
	for _, group := range groups {
		for _, d := range group {
			sums[d.AccountID] = sums[d.AccountID].Add(d.Amount)
		}
	}
	out := make([]Delta, 0, len(sums))
	for accountID, amount := range sums {
		if amount.IsZero() {
			continue
		}
		out = append(out, Delta{AccountID: accountID, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

func validatePosting(kind EntryKind, accountID, creditorID, debtorID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	switch kind {
	case KindIncome, KindExpense:
		if accountID == "" {
			return ErrMissingAccount
		}
	case KindTransfer:
		if creditorID == "" || debtorID == "" {
			return ErrMissingAccount
		}
		if creditorID == debtorID {
			return ErrSameAccountTransfer
		}
	default:
		return ErrUnknownKind
	}
	return nil
}

func postingAccounts(kind EntryKind, accountID, creditorID, debtorID string) []string {
	if kind == KindTransfer {
		return []string{creditorID, debtorID}
	}
	return []string{accountID}
}
