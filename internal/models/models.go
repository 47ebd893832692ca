package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FamilyID     *string   `db:"family_id" json:"family_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type AccountType string

const (
	AccountCash       AccountType = "cash"
	AccountSavings    AccountType = "savings"
	AccountCreditCard AccountType = "credit_card"
	AccountWallet     AccountType = "wallet"
	AccountInvestment AccountType = "investment"
	AccountLoan       AccountType = "loan"
	AccountOther      AccountType = "other"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountCash, AccountSavings, AccountCreditCard, AccountWallet, AccountInvestment, AccountLoan, AccountOther:
		return true
	}
	return false
}

type Account struct {
	ID             string          `db:"id" json:"id"`
	UserID         string          `db:"user_id" json:"user_id"`
	Name           string          `db:"name" json:"name"`
	Type           AccountType     `db:"type" json:"type"`
	InitialBalance decimal.Decimal `db:"initial_balance" json:"initial_balance"`
	InitialDate    time.Time       `db:"initial_date" json:"initial_date"`
	CurrentBalance decimal.Decimal `db:"current_balance" json:"current_balance"`
	Data           AccountData     `db:"data" json:"data"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

const (
	DataInterestRate              = "interest_rate"
	DataAverageBalanceRequirement = "average_balance_requirement"
)

// AccountData holds type-specific account fields, stored as JSONB.
type AccountData map[string]any

func (d AccountData) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

func (d *AccountData) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = AccountData{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("account data: unsupported type %T", src)
	}
	data := AccountData{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return err
		}
	}
	*d = data
	return nil
}

// Decimal reads a numeric field that may be stored as a JSON number or string.
func (d AccountData) Decimal(key string) (decimal.Decimal, bool) {
	switch v := d[key].(type) {
	case string:
		parsed, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, false
		}
		return parsed, true
	case float64:
		return decimal.NewFromFloat(v), true
	case json.Number:
		parsed, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero, false
		}
		return parsed, true
	}
	return decimal.Zero, false
}

type Balance struct {
	AccountID     string          `db:"account_id" json:"account_id"`
	RecordedUntil time.Time       `db:"recorded_until" json:"recorded_until"`
	Balance       decimal.Decimal `db:"balance" json:"balance"`
}

var ErrUnknownKind = errors.New("unknown entry kind")

type EntryKind string

const (
	KindIncome   EntryKind = "income"
	KindExpense  EntryKind = "expense"
	KindTransfer EntryKind = "transfer"
)

var EntryKinds = []EntryKind{KindIncome, KindExpense, KindTransfer}

func ParseEntryKind(raw string) (EntryKind, error) {
	switch EntryKind(raw) {
	case KindIncome, KindExpense, KindTransfer:
		return EntryKind(raw), nil
	}
	switch raw {
	case "incomes":
		return KindIncome, nil
	case "expenses":
		return KindExpense, nil
	case "transfers":
		return KindTransfer, nil
	}
	return "", ErrUnknownKind
}
