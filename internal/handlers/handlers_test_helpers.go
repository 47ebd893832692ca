package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"finance/internal/auth"
	"finance/internal/clock"
	"finance/internal/config"
	"finance/internal/logging"
	"finance/internal/models"
	"finance/internal/services"
	"finance/internal/store"
	"finance/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

// txCounts records how the sql-backed fake runner finished each transaction.
type txCounts struct {
	commits   int
	rollbacks int
}

// newTestTxRunner hands fn a real *sqlx.Tx over a driver that accepts
// everything, so handler code sees genuine commit and rollback calls.
func newTestTxRunner(t *testing.T) (fakeTxRunner, *txCounts) {
	t.Helper()
	name := fmt.Sprintf("noop-%d", atomic.AddUint64(&noopDriverCounter, 1))
	sql.Register(name, noopDriver{})
	dbConn, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("failed to open noop db: %v", err)
	}
	t.Cleanup(func() { _ = dbConn.Close() })
	xdb := sqlx.NewDb(dbConn, name)
	counts := &txCounts{}
	return fakeTxRunner{
		withTxFn: func(ctx context.Context, fn func(*sqlx.Tx) error) error {
			tx, err := xdb.BeginTxx(ctx, nil)
			if err != nil {
				return err
			}
			if err := fn(tx); err != nil {
				_ = tx.Rollback()
				counts.rollbacks++
				return err
			}
			counts.commits++
			return tx.Commit()
		},
	}, counts
}

var noopDriverCounter uint64

type noopDriver struct{}

func (noopDriver) Open(string) (driver.Conn, error) { return noopConn{}, nil }

type noopConn struct{}

func (noopConn) Prepare(string) (driver.Stmt, error) { return noopStmt{}, nil }
func (noopConn) Close() error                        { return nil }
func (noopConn) Begin() (driver.Tx, error)           { return noopTx{}, nil }

func (noopConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return noopTx{}, nil
}

type noopStmt struct{}

func (noopStmt) Close() error                               { return nil }
func (noopStmt) NumInput() int                              { return -1 }
func (noopStmt) Exec([]driver.Value) (driver.Result, error) { return driver.RowsAffected(1), nil }
func (noopStmt) Query([]driver.Value) (driver.Rows, error)  { return nil, io.EOF }

type noopTx struct{}

func (noopTx) Commit() error   { return nil }
func (noopTx) Rollback() error { return nil }

type stubUserStore struct {
	createFn     func(ctx context.Context, tx store.Execer, user models.User) error
	getByEmailFn func(ctx context.Context, email string) (models.User, error)
	getByIDFn    func(ctx context.Context, userID string) (models.User, error)
	setFamilyFn  func(ctx context.Context, tx store.Execer, userID string, familyID *string) (int64, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, user models.User) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, user)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	if s.getByEmailFn == nil {
		return models.User{}, sql.ErrNoRows
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (models.User, error) {
	if s.getByIDFn == nil {
		return models.User{}, sql.ErrNoRows
	}
	return s.getByIDFn(ctx, userID)
}

func (s stubUserStore) SetFamily(ctx context.Context, tx store.Execer, userID string, familyID *string) (int64, error) {
	if s.setFamilyFn == nil {
		return 1, nil
	}
	return s.setFamilyFn(ctx, tx, userID, familyID)
}

type stubAdminStore struct {
	isAdminFn     func(ctx context.Context, userID string) (bool, error)
	grantFn       func(ctx context.Context, tx store.Execer, userID string, grantedBy *string) error
	hasAnyAdminFn func(ctx context.Context) (bool, error)
}

func (s stubAdminStore) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if s.isAdminFn == nil {
		return false, nil
	}
	return s.isAdminFn(ctx, userID)
}

func (s stubAdminStore) Grant(ctx context.Context, tx store.Execer, userID string, grantedBy *string) error {
	if s.grantFn == nil {
		return nil
	}
	return s.grantFn(ctx, tx, userID, grantedBy)
}

func (s stubAdminStore) HasAnyAdmin(ctx context.Context) (bool, error) {
	if s.hasAnyAdminFn == nil {
		return true, nil
	}
	return s.hasAnyAdminFn(ctx)
}

type stubAuditStore struct {
	logFn          func(ctx context.Context, tx store.Execer, actorID *string, action, entityType, entityID string, data any) error
	listFn         func(ctx context.Context, limit, offset int) ([]store.AuditEntry, error)
	listByEntityFn func(ctx context.Context, entityType, entityID string, limit, offset int) ([]store.AuditEntry, error)
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID *string, action, entityType, entityID string, data any) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

func (s stubAuditStore) List(ctx context.Context, limit, offset int) ([]store.AuditEntry, error) {
	if s.listFn == nil {
		return []store.AuditEntry{}, nil
	}
	return s.listFn(ctx, limit, offset)
}

func (s stubAuditStore) ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]store.AuditEntry, error) {
	if s.listByEntityFn == nil {
		return []store.AuditEntry{}, nil
	}
	return s.listByEntityFn(ctx, entityType, entityID, limit, offset)
}

type stubAccountService struct {
	createFn func(ctx context.Context, userID string, in services.AccountInput) (models.Account, error)
	getFn    func(ctx context.Context, userID, accountID string) (models.Account, error)
	listFn   func(ctx context.Context, userID string) ([]models.Account, error)
	updateFn func(ctx context.Context, userID, accountID string, in services.AccountInput) (models.Account, error)
	deleteFn func(ctx context.Context, userID, accountID string) error
}

func (s stubAccountService) Create(ctx context.Context, userID string, in services.AccountInput) (models.Account, error) {
	return s.createFn(ctx, userID, in)
}

// Get defaults to an account owned by the caller.
func (s stubAccountService) Get(ctx context.Context, userID, accountID string) (models.Account, error) {
	if s.getFn == nil {
		return models.Account{ID: accountID, UserID: userID}, nil
	}
	return s.getFn(ctx, userID, accountID)
}

func (s stubAccountService) List(ctx context.Context, userID string) ([]models.Account, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, userID)
}

func (s stubAccountService) Update(ctx context.Context, userID, accountID string, in services.AccountInput) (models.Account, error) {
	return s.updateFn(ctx, userID, accountID, in)
}

func (s stubAccountService) Delete(ctx context.Context, userID, accountID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, userID, accountID)
}

type stubLedgerService struct {
	createFn func(ctx context.Context, userID string, entry models.Entry) (models.Entry, error)
	getFn    func(ctx context.Context, userID string, kind models.EntryKind, entryID string) (models.Entry, error)
	updateFn func(ctx context.Context, userID string, entry models.Entry) (models.Entry, error)
	deleteFn func(ctx context.Context, userID string, kind models.EntryKind, entryID string) error
	listFn   func(ctx context.Context, userID, accountID string, limit, offset int) ([]models.Entry, error)
}

func (s stubLedgerService) Create(ctx context.Context, userID string, entry models.Entry) (models.Entry, error) {
	return s.createFn(ctx, userID, entry)
}

func (s stubLedgerService) Get(ctx context.Context, userID string, kind models.EntryKind, entryID string) (models.Entry, error) {
	return s.getFn(ctx, userID, kind, entryID)
}

func (s stubLedgerService) Update(ctx context.Context, userID string, entry models.Entry) (models.Entry, error) {
	return s.updateFn(ctx, userID, entry)
}

func (s stubLedgerService) Delete(ctx context.Context, userID string, kind models.EntryKind, entryID string) error {
	return s.deleteFn(ctx, userID, kind, entryID)
}

func (s stubLedgerService) List(ctx context.Context, userID, accountID string, limit, offset int) ([]models.Entry, error) {
	return s.listFn(ctx, userID, accountID, limit, offset)
}

type stubRecurringService struct {
	createFn func(ctx context.Context, userID string, rec models.Recurring) (models.Recurring, error)
	getFn    func(ctx context.Context, userID string, kind models.EntryKind, id string) (models.Recurring, error)
	listFn   func(ctx context.Context, userID, accountID string) ([]models.Recurring, error)
	updateFn func(ctx context.Context, userID string, rec models.Recurring) (models.Recurring, error)
	deleteFn func(ctx context.Context, userID string, kind models.EntryKind, id string) error
}

func (s stubRecurringService) Create(ctx context.Context, userID string, rec models.Recurring) (models.Recurring, error) {
	return s.createFn(ctx, userID, rec)
}

func (s stubRecurringService) Get(ctx context.Context, userID string, kind models.EntryKind, id string) (models.Recurring, error) {
	return s.getFn(ctx, userID, kind, id)
}

func (s stubRecurringService) ListByAccount(ctx context.Context, userID, accountID string) ([]models.Recurring, error) {
	return s.listFn(ctx, userID, accountID)
}

func (s stubRecurringService) Update(ctx context.Context, userID string, rec models.Recurring) (models.Recurring, error) {
	return s.updateFn(ctx, userID, rec)
}

func (s stubRecurringService) Delete(ctx context.Context, userID string, kind models.EntryKind, id string) error {
	return s.deleteFn(ctx, userID, kind, id)
}

type stubProjectionService struct {
	calculateFn func(ctx context.Context, accountID string, start, end time.Time) (services.ProjectionResult, error)
	averageFn   func(ctx context.Context, accountID string, asOf time.Time) (services.AverageBalanceResult, error)
}

func (s stubProjectionService) Calculate(ctx context.Context, accountID string, start, end time.Time) (services.ProjectionResult, error) {
	return s.calculateFn(ctx, accountID, start, end)
}

func (s stubProjectionService) AverageBalance(ctx context.Context, accountID string, asOf time.Time) (services.AverageBalanceResult, error) {
	return s.averageFn(ctx, accountID, asOf)
}

type stubSnapshotService struct {
	backfillFn   func(ctx context.Context, accountID string) (int, error)
	balanceForFn func(ctx context.Context, accountID string, day time.Time) (decimal.Decimal, error)
	listFn       func(ctx context.Context, accountID string) ([]models.Balance, error)
	recordFn     func(ctx context.Context) (int, error)
}

func (s stubSnapshotService) BackfillBalancesForAccount(ctx context.Context, accountID string) (int, error) {
	return s.backfillFn(ctx, accountID)
}

func (s stubSnapshotService) BalanceForDate(ctx context.Context, accountID string, day time.Time) (decimal.Decimal, error) {
	return s.balanceForFn(ctx, accountID, day)
}

func (s stubSnapshotService) List(ctx context.Context, accountID string) ([]models.Balance, error) {
	return s.listFn(ctx, accountID)
}

func (s stubSnapshotService) RecordMonthlyBalances(ctx context.Context) (int, error) {
	return s.recordFn(ctx)
}

type stubReconcileService struct {
	reconcileFn    func(ctx context.Context, accountID string) (services.ReconcileResult, error)
	reconcileAllFn func(ctx context.Context) ([]services.ReconcileResult, error)
}

func (s stubReconcileService) Reconcile(ctx context.Context, accountID string) (services.ReconcileResult, error) {
	return s.reconcileFn(ctx, accountID)
}

func (s stubReconcileService) ReconcileAll(ctx context.Context) ([]services.ReconcileResult, error) {
	return s.reconcileAllFn(ctx)
}

type stubMaterializer struct {
	transactAllFn func(ctx context.Context) ([]services.MaterializeResult, error)
}

func (s stubMaterializer) TransactAll(ctx context.Context) ([]services.MaterializeResult, error) {
	return s.transactAllFn(ctx)
}

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// newTestHandler fills unset stores with permissive stubs.
func newTestHandler(txRunner fakeTxRunner, deps Deps) *Handler {
	cfg := config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      "secret",
		TokenTTL:       time.Minute,
		AllowedOrigins: []string{"*"},
	}
	if deps.Users == nil {
		deps.Users = stubUserStore{}
	}
	if deps.Admins == nil {
		deps.Admins = stubAdminStore{}
	}
	if deps.Audit == nil {
		deps.Audit = stubAuditStore{}
	}
	if deps.Accounts == nil {
		deps.Accounts = stubAccountService{}
	}
	return New(cfg, txRunner, deps, websocket.NewHub(), clock.Fixed(testNow), logging.NewSilent())
}

// serve routes one request through the full router, authenticated as userID
// unless userID is empty.
func serve(t *testing.T, h *Handler, method, target, body, userID string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if userID != "" {
		token, err := auth.GenerateToken("secret", userID, time.Minute)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}

func stringPtr(value string) *string {
	return &value
}
