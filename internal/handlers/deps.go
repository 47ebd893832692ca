package handlers

import (
	"context"
	"time"

	"finance/internal/models"
	"finance/internal/services"
	"finance/internal/store"

	"github.com/shopspring/decimal"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, user models.User) error
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, userID string) (models.User, error)
	SetFamily(ctx context.Context, tx store.Execer, userID string, familyID *string) (int64, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
	Grant(ctx context.Context, tx store.Execer, userID string, grantedBy *string) error
	HasAnyAdmin(ctx context.Context) (bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID *string, action, entityType, entityID string, data any) error
	List(ctx context.Context, limit, offset int) ([]store.AuditEntry, error)
	ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]store.AuditEntry, error)
}

type AccountService interface {
	Create(ctx context.Context, userID string, in services.AccountInput) (models.Account, error)
	Get(ctx context.Context, userID, accountID string) (models.Account, error)
	List(ctx context.Context, userID string) ([]models.Account, error)
	Update(ctx context.Context, userID, accountID string, in services.AccountInput) (models.Account, error)
	Delete(ctx context.Context, userID, accountID string) error
}

type LedgerService interface {
	Create(ctx context.Context, userID string, entry models.Entry) (models.Entry, error)
	Get(ctx context.Context, userID string, kind models.EntryKind, entryID string) (models.Entry, error)
	Update(ctx context.Context, userID string, entry models.Entry) (models.Entry, error)
	Delete(ctx context.Context, userID string, kind models.EntryKind, entryID string) error
	List(ctx context.Context, userID, accountID string, limit, offset int) ([]models.Entry, error)
}

type RecurringService interface {
	Create(ctx context.Context, userID string, rec models.Recurring) (models.Recurring, error)
	Get(ctx context.Context, userID string, kind models.EntryKind, id string) (models.Recurring, error)
	ListByAccount(ctx context.Context, userID, accountID string) ([]models.Recurring, error)
	Update(ctx context.Context, userID string, rec models.Recurring) (models.Recurring, error)
	Delete(ctx context.Context, userID string, kind models.EntryKind, id string) error
}

type ProjectionService interface {
	Calculate(ctx context.Context, accountID string, start, end time.Time) (services.ProjectionResult, error)
	AverageBalance(ctx context.Context, accountID string, asOf time.Time) (services.AverageBalanceResult, error)
}

type SnapshotService interface {
	BackfillBalancesForAccount(ctx context.Context, accountID string) (int, error)
	BalanceForDate(ctx context.Context, accountID string, day time.Time) (decimal.Decimal, error)
	List(ctx context.Context, accountID string) ([]models.Balance, error)
	RecordMonthlyBalances(ctx context.Context) (int, error)
}

type ReconcileService interface {
	Reconcile(ctx context.Context, accountID string) (services.ReconcileResult, error)
	ReconcileAll(ctx context.Context) ([]services.ReconcileResult, error)
}

type Materializer interface {
	TransactAll(ctx context.Context) ([]services.MaterializeResult, error)
}

// Deps groups the stores and services the handlers call.
type Deps struct {
	Users        UserStore
	Admins       AdminStore
	Audit        AuditStore
	Accounts     AccountService
	Ledger       LedgerService
	Recurring    RecurringService
	Projection   ProjectionService
	Snapshots    SnapshotService
	Reconcile    ReconcileService
	Materializer Materializer
}
