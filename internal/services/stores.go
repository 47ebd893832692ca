package services

import (
	"context"
	"time"

	"finance/internal/models"
	"finance/internal/store"
	"finance/internal/websocket"

	"github.com/shopspring/decimal"
)

type AccountStore interface {
	Create(ctx context.Context, tx store.Execer, account models.Account) error
	Update(ctx context.Context, tx store.Execer, account models.Account) (int64, error)
	Delete(ctx context.Context, tx store.Execer, accountID string) (int64, error)
	GetByID(ctx context.Context, accountID string) (models.Account, error)
	GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (models.Account, error)
	GetVisible(ctx context.Context, accountID, userID string) (models.Account, error)
	ListVisible(ctx context.Context, userID string) ([]models.Account, error)
	ListAll(ctx context.Context) ([]models.Account, error)
	AdjustBalance(ctx context.Context, tx store.Execer, accountID string, delta decimal.Decimal) (int64, error)
	SetCurrentBalance(ctx context.Context, tx store.Execer, accountID string, balance decimal.Decimal) error
}

type EntryStore interface {
	Create(ctx context.Context, tx store.Execer, entry models.Entry) error
	Update(ctx context.Context, tx store.Execer, entry models.Entry) (int64, error)
	Delete(ctx context.Context, tx store.Execer, kind models.EntryKind, entryID string) (int64, error)
	GetByID(ctx context.Context, kind models.EntryKind, entryID string) (models.Entry, error)
	GetForUpdate(ctx context.Context, tx store.Getter, kind models.EntryKind, entryID string) (models.Entry, error)
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.Entry, error)
	ListTransfersForAccount(ctx context.Context, q store.Selecter, accountID string) ([]models.Entry, error)
	DeleteByAccount(ctx context.Context, tx store.Execer, accountID string) error
	DailyTotals(ctx context.Context, accountID string, from, to time.Time) ([]store.CategoryTotal, error)
	MonthlyTotals(ctx context.Context, accountID string, from, to time.Time) ([]store.CategoryTotal, error)
	Totals(ctx context.Context, q store.Getter, accountID string) (store.LedgerTotals, error)
	TotalsBetween(ctx context.Context, accountID string, from, to *time.Time) (store.LedgerTotals, error)
	EarliestTransactedAt(ctx context.Context, accountID string) (*time.Time, error)
}

type RecurringStore interface {
	Create(ctx context.Context, tx store.Execer, rec models.Recurring) error
	Update(ctx context.Context, tx store.Execer, rec models.Recurring) (int64, error)
	Delete(ctx context.Context, tx store.Execer, kind models.EntryKind, id string) (int64, error)
	GetByID(ctx context.Context, kind models.EntryKind, id string) (models.Recurring, error)
	GetForUpdate(ctx context.Context, tx store.Getter, kind models.EntryKind, id string) (models.Recurring, error)
	ListDue(ctx context.Context, kind models.EntryKind, now time.Time) ([]models.Recurring, error)
	ListByAccount(ctx context.Context, accountID string) ([]models.Recurring, error)
	Advance(ctx context.Context, tx store.Execer, kind models.EntryKind, id string, next time.Time, remaining *int) error
	DeleteByAccount(ctx context.Context, tx store.Execer, accountID string) error
}

type BalanceStore interface {
	Upsert(ctx context.Context, tx store.Execer, accountID string, recordedUntil time.Time, balance decimal.Decimal) error
	InsertIfMissing(ctx context.Context, tx store.Execer, accountID string, recordedUntil time.Time, balance decimal.Decimal) (bool, error)
	ShiftFrom(ctx context.Context, tx store.Execer, accountID string, day time.Time, delta decimal.Decimal) (int64, error)
	LatestOnOrBefore(ctx context.Context, accountID string, day time.Time) (*models.Balance, error)
	ListByAccount(ctx context.Context, accountID string) ([]models.Balance, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID *string, action, entityType, entityID string, data any) error
}

type BalanceHub interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
}
