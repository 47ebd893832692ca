package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"finance/internal/calendar"
	"finance/internal/models"
	"finance/internal/store"
	"finance/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var errForeignKey = errors.New("violates foreign key constraint")

// memDB is an in-memory stand-in for the relational store. memTxRunner
// snapshots it before each transaction and restores it on error.
type memDB struct {
	users     map[string]models.User
	accounts  map[string]models.Account
	entries   map[string]models.Entry
	recurring map[string]models.Recurring
	balances  map[string]models.Balance
	audit     []string
	lockOrder []string

	failEntryCreate func(entry models.Entry) error
	failAudit       error
}

func newMemDB() *memDB {
	return &memDB{
		users:     map[string]models.User{},
		accounts:  map[string]models.Account{},
		entries:   map[string]models.Entry{},
		recurring: map[string]models.Recurring{},
		balances:  map[string]models.Balance{},
	}
}

type memState struct {
	accounts  map[string]models.Account
	entries   map[string]models.Entry
	recurring map[string]models.Recurring
	balances  map[string]models.Balance
	audit     []string
}

func (m *memDB) snapshot() memState {
	return memState{
		accounts:  cloneMap(m.accounts),
		entries:   cloneMap(m.entries),
		recurring: cloneMap(m.recurring),
		balances:  cloneMap(m.balances),
		audit:     append([]string(nil), m.audit...),
	}
}

func (m *memDB) restore(s memState) {
	m.accounts = s.accounts
	m.entries = s.entries
	m.recurring = s.recurring
	m.balances = s.balances
	m.audit = s.audit
}

func cloneMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *memDB) addUser(id string, familyID *string) {
	m.users[id] = models.User{ID: id, Username: id, FamilyID: familyID}
}

func (m *memDB) addAccount(id, userID string, initial string, initialDate time.Time) models.Account {
	account := models.Account{
		ID:             id,
		UserID:         userID,
		Name:           id,
		Type:           models.AccountCash,
		InitialBalance: decimal.RequireFromString(initial),
		InitialDate:    initialDate,
		CurrentBalance: decimal.RequireFromString(initial),
		Data:           models.AccountData{},
	}
	m.accounts[id] = account
	return account
}

func (m *memDB) balance(accountID string) decimal.Decimal {
	return m.accounts[accountID].CurrentBalance
}

// ledgerBalance recomputes initial_balance plus the signed ledger.
func (m *memDB) ledgerBalance(accountID string) decimal.Decimal {
	totals, _ := (&memEntries{db: m}).Totals(context.Background(), nil, accountID)
	return m.accounts[accountID].InitialBalance.Add(totals.Net())
}

type memTxRunner struct {
	db    *memDB
	calls int
}

func (r *memTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	r.calls++
	saved := r.db.snapshot()
	if err := fn(nil); err != nil {
		r.db.restore(saved)
		return err
	}
	return nil
}

func entryKey(kind models.EntryKind, id string) string {
	return string(kind) + "/" + id
}

type memAccounts struct{ db *memDB }

func (s *memAccounts) Create(_ context.Context, _ store.Execer, account models.Account) error {
	s.db.accounts[account.ID] = account
	return nil
}

func (s *memAccounts) Update(_ context.Context, _ store.Execer, account models.Account) (int64, error) {
	current, ok := s.db.accounts[account.ID]
	if !ok {
		return 0, nil
	}
	current.Name = account.Name
	current.Type = account.Type
	current.InitialBalance = account.InitialBalance
	current.InitialDate = account.InitialDate
	current.Data = account.Data
	s.db.accounts[account.ID] = current
	return 1, nil
}

func (s *memAccounts) Delete(_ context.Context, _ store.Execer, accountID string) (int64, error) {
	if _, ok := s.db.accounts[accountID]; !ok {
		return 0, nil
	}
	delete(s.db.accounts, accountID)
	for key, b := range s.db.balances {
		if b.AccountID == accountID {
			delete(s.db.balances, key)
		}
	}
	return 1, nil
}

func (s *memAccounts) GetByID(_ context.Context, accountID string) (models.Account, error) {
	account, ok := s.db.accounts[accountID]
	if !ok {
		return models.Account{}, sql.ErrNoRows
	}
	return account, nil
}

func (s *memAccounts) GetForUpdate(ctx context.Context, _ store.Getter, accountID string) (models.Account, error) {
	s.db.lockOrder = append(s.db.lockOrder, accountID)
	return s.GetByID(ctx, accountID)
}

func (s *memAccounts) visible(account models.Account, userID string) bool {
	if account.UserID == userID {
		return true
	}
	owner, viewer := s.db.users[account.UserID], s.db.users[userID]
	return owner.FamilyID != nil && viewer.FamilyID != nil && *owner.FamilyID == *viewer.FamilyID
}

func (s *memAccounts) GetVisible(_ context.Context, accountID, userID string) (models.Account, error) {
	account, ok := s.db.accounts[accountID]
	if !ok || !s.visible(account, userID) {
		return models.Account{}, sql.ErrNoRows
	}
	return account, nil
}

func (s *memAccounts) ListVisible(_ context.Context, userID string) ([]models.Account, error) {
	var out []models.Account
	for _, account := range s.db.accounts {
		if s.visible(account, userID) {
			out = append(out, account)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memAccounts) ListAll(_ context.Context) ([]models.Account, error) {
	out := make([]models.Account, 0, len(s.db.accounts))
	for _, account := range s.db.accounts {
		out = append(out, account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memAccounts) AdjustBalance(_ context.Context, _ store.Execer, accountID string, delta decimal.Decimal) (int64, error) {
	account, ok := s.db.accounts[accountID]
	if !ok {
		return 0, nil
	}
	account.CurrentBalance = account.CurrentBalance.Add(delta)
	s.db.accounts[accountID] = account
	return 1, nil
}

func (s *memAccounts) SetCurrentBalance(_ context.Context, _ store.Execer, accountID string, balance decimal.Decimal) error {
	account := s.db.accounts[accountID]
	account.CurrentBalance = balance
	s.db.accounts[accountID] = account
	return nil
}

type memEntries struct{ db *memDB }

func (s *memEntries) checkAccounts(entry models.Entry) error {
	for _, id := range entry.AccountIDs() {
		if _, ok := s.db.accounts[id]; !ok {
			return errForeignKey
		}
	}
	return nil
}

func (s *memEntries) Create(_ context.Context, _ store.Execer, entry models.Entry) error {
	if s.db.failEntryCreate != nil {
		if err := s.db.failEntryCreate(entry); err != nil {
			return err
		}
	}
	if err := s.checkAccounts(entry); err != nil {
		return err
	}
	s.db.entries[entryKey(entry.Kind, entry.ID)] = entry
	return nil
}

func (s *memEntries) Update(_ context.Context, _ store.Execer, entry models.Entry) (int64, error) {
	key := entryKey(entry.Kind, entry.ID)
	if _, ok := s.db.entries[key]; !ok {
		return 0, nil
	}
	if err := s.checkAccounts(entry); err != nil {
		return 0, err
	}
	s.db.entries[key] = entry
	return 1, nil
}

func (s *memEntries) Delete(_ context.Context, _ store.Execer, kind models.EntryKind, entryID string) (int64, error) {
	key := entryKey(kind, entryID)
	if _, ok := s.db.entries[key]; !ok {
		return 0, nil
	}
	delete(s.db.entries, key)
	return 1, nil
}

func (s *memEntries) GetByID(_ context.Context, kind models.EntryKind, entryID string) (models.Entry, error) {
	entry, ok := s.db.entries[entryKey(kind, entryID)]
	if !ok {
		return models.Entry{}, sql.ErrNoRows
	}
	return entry, nil
}

func (s *memEntries) GetForUpdate(ctx context.Context, _ store.Getter, kind models.EntryKind, entryID string) (models.Entry, error) {
	return s.GetByID(ctx, kind, entryID)
}

func (s *memEntries) touching(accountID string) []models.Entry {
	var out []models.Entry
	for _, entry := range s.db.entries {
		for _, id := range entry.AccountIDs() {
			if id == accountID {
				out = append(out, entry)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TransactedAt.Equal(out[j].TransactedAt) {
			return out[i].TransactedAt.Before(out[j].TransactedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *memEntries) ListByAccount(_ context.Context, accountID string, limit, offset int) ([]models.Entry, error) {
	all := s.touching(accountID)
	if offset >= len(all) {
		return []models.Entry{}, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *memEntries) ListTransfersForAccount(_ context.Context, _ store.Selecter, accountID string) ([]models.Entry, error) {
	var out []models.Entry
	for _, entry := range s.touching(accountID) {
		if entry.Kind == models.KindTransfer {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *memEntries) DeleteByAccount(_ context.Context, _ store.Execer, accountID string) error {
	for _, entry := range s.touching(accountID) {
		delete(s.db.entries, entryKey(entry.Kind, entry.ID))
	}
	return nil
}

// flows lists the entry's (day, category, amount) rows from accountID's side.
func flows(entry models.Entry, accountID string) []store.CategoryTotal {
	day := calendar.Day(entry.TransactedAt)
	var out []store.CategoryTotal
	switch entry.Kind {
	case models.KindIncome:
		out = append(out, store.CategoryTotal{Period: day, Category: store.CategoryIncome, Total: entry.Amount})
	case models.KindExpense:
		out = append(out, store.CategoryTotal{Period: day, Category: store.CategoryExpense, Total: entry.Amount})
	case models.KindTransfer:
		if entry.CreditorID == accountID {
			out = append(out, store.CategoryTotal{Period: day, Category: store.CategoryTransferIn, Total: entry.Amount})
		}
		if entry.DebtorID == accountID {
			out = append(out, store.CategoryTotal{Period: day, Category: store.CategoryTransferOut, Total: entry.Amount})
		}
	}
	return out
}

func (s *memEntries) periodTotals(accountID string, from, to time.Time, period func(time.Time) time.Time) []store.CategoryTotal {
	sums := map[time.Time]map[string]decimal.Decimal{}
	for _, entry := range s.touching(accountID) {
		for _, flow := range flows(entry, accountID) {
			if flow.Period.Before(calendar.Day(from)) || flow.Period.After(calendar.Day(to)) {
				continue
			}
			p := period(flow.Period)
			if sums[p] == nil {
				sums[p] = map[string]decimal.Decimal{}
			}
			sums[p][flow.Category] = sums[p][flow.Category].Add(flow.Total)
		}
	}
	var out []store.CategoryTotal
	for p, byCategory := range sums {
		for category, total := range byCategory {
			out = append(out, store.CategoryTotal{Period: p, Category: category, Total: total})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Period.Equal(out[j].Period) {
			return out[i].Period.Before(out[j].Period)
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func (s *memEntries) DailyTotals(_ context.Context, accountID string, from, to time.Time) ([]store.CategoryTotal, error) {
	return s.periodTotals(accountID, from, to, calendar.Day), nil
}

func (s *memEntries) MonthlyTotals(_ context.Context, accountID string, from, to time.Time) ([]store.CategoryTotal, error) {
	return s.periodTotals(accountID, from, to, calendar.StartOfMonth), nil
}

func (s *memEntries) Totals(ctx context.Context, _ store.Getter, accountID string) (store.LedgerTotals, error) {
	return s.TotalsBetween(ctx, accountID, nil, nil)
}

func (s *memEntries) TotalsBetween(_ context.Context, accountID string, from, to *time.Time) (store.LedgerTotals, error) {
	totals := store.LedgerTotals{Income: decimal.Zero, Expense: decimal.Zero, TransferIn: decimal.Zero, TransferOut: decimal.Zero}
	for _, entry := range s.touching(accountID) {
		for _, flow := range flows(entry, accountID) {
			if from != nil && flow.Period.Before(calendar.Day(*from)) {
				continue
			}
			if to != nil && flow.Period.After(calendar.Day(*to)) {
				continue
			}
			switch flow.Category {
			case store.CategoryIncome:
				totals.Income = totals.Income.Add(flow.Total)
			case store.CategoryExpense:
				totals.Expense = totals.Expense.Add(flow.Total)
			case store.CategoryTransferIn:
				totals.TransferIn = totals.TransferIn.Add(flow.Total)
			case store.CategoryTransferOut:
				totals.TransferOut = totals.TransferOut.Add(flow.Total)
			}
		}
	}
	return totals, nil
}

func (s *memEntries) EarliestTransactedAt(_ context.Context, accountID string) (*time.Time, error) {
	all := s.touching(accountID)
	if len(all) == 0 {
		return nil, nil
	}
	earliest := all[0].TransactedAt
	return &earliest, nil
}

type memRecurring struct{ db *memDB }

func (s *memRecurring) Create(_ context.Context, _ store.Execer, rec models.Recurring) error {
	s.db.recurring[entryKey(rec.Kind, rec.ID)] = rec
	return nil
}

func (s *memRecurring) Update(_ context.Context, _ store.Execer, rec models.Recurring) (int64, error) {
	key := entryKey(rec.Kind, rec.ID)
	if _, ok := s.db.recurring[key]; !ok {
		return 0, nil
	}
	s.db.recurring[key] = rec
	return 1, nil
}

func (s *memRecurring) Delete(_ context.Context, _ store.Execer, kind models.EntryKind, id string) (int64, error) {
	key := entryKey(kind, id)
	if _, ok := s.db.recurring[key]; !ok {
		return 0, nil
	}
	delete(s.db.recurring, key)
	return 1, nil
}

func (s *memRecurring) GetByID(_ context.Context, kind models.EntryKind, id string) (models.Recurring, error) {
	rec, ok := s.db.recurring[entryKey(kind, id)]
	if !ok {
		return models.Recurring{}, sql.ErrNoRows
	}
	return rec, nil
}

func (s *memRecurring) GetForUpdate(ctx context.Context, _ store.Getter, kind models.EntryKind, id string) (models.Recurring, error) {
	return s.GetByID(ctx, kind, id)
}

func sortRecurring(out []models.Recurring) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextTransactionAt.Equal(out[j].NextTransactionAt) {
			return out[i].NextTransactionAt.Before(out[j].NextTransactionAt)
		}
		return out[i].ID < out[j].ID
	})
}

func (s *memRecurring) ListDue(_ context.Context, kind models.EntryKind, now time.Time) ([]models.Recurring, error) {
	var out []models.Recurring
	for _, rec := range s.db.recurring {
		if rec.Kind != kind || rec.NextTransactionAt.After(now) {
			continue
		}
		if rec.RemainingRecurrences != nil && *rec.RemainingRecurrences <= 0 {
			continue
		}
		out = append(out, rec)
	}
	sortRecurring(out)
	return out, nil
}

func (s *memRecurring) ListByAccount(_ context.Context, accountID string) ([]models.Recurring, error) {
	var out []models.Recurring
	for _, rec := range s.db.recurring {
		for _, id := range rec.AccountIDs() {
			if id == accountID {
				out = append(out, rec)
				break
			}
		}
	}
	sortRecurring(out)
	return out, nil
}

func (s *memRecurring) Advance(_ context.Context, _ store.Execer, kind models.EntryKind, id string, next time.Time, remaining *int) error {
	key := entryKey(kind, id)
	rec := s.db.recurring[key]
	rec.NextTransactionAt = next
	rec.RemainingRecurrences = remaining
	s.db.recurring[key] = rec
	return nil
}

func (s *memRecurring) DeleteByAccount(ctx context.Context, _ store.Execer, accountID string) error {
	recs, _ := s.ListByAccount(ctx, accountID)
	for _, rec := range recs {
		delete(s.db.recurring, entryKey(rec.Kind, rec.ID))
	}
	return nil
}

type memBalances struct{ db *memDB }

func balanceKey(accountID string, day time.Time) string {
	return accountID + "/" + calendar.Format(day)
}

func (s *memBalances) Upsert(_ context.Context, _ store.Execer, accountID string, recordedUntil time.Time, balance decimal.Decimal) error {
	s.db.balances[balanceKey(accountID, recordedUntil)] = models.Balance{
		AccountID:     accountID,
		RecordedUntil: calendar.Day(recordedUntil),
		Balance:       balance,
	}
	return nil
}

func (s *memBalances) InsertIfMissing(ctx context.Context, tx store.Execer, accountID string, recordedUntil time.Time, balance decimal.Decimal) (bool, error) {
	if _, ok := s.db.balances[balanceKey(accountID, recordedUntil)]; ok {
		return false, nil
	}
	return true, s.Upsert(ctx, tx, accountID, recordedUntil, balance)
}

func (s *memBalances) ShiftFrom(_ context.Context, _ store.Execer, accountID string, day time.Time, delta decimal.Decimal) (int64, error) {
	var rows int64
	for key, b := range s.db.balances {
		if b.AccountID != accountID || b.RecordedUntil.Before(calendar.Day(day)) {
			continue
		}
		b.Balance = b.Balance.Add(delta)
		s.db.balances[key] = b
		rows++
	}
	return rows, nil
}

func (s *memBalances) LatestOnOrBefore(ctx context.Context, accountID string, day time.Time) (*models.Balance, error) {
	rows, _ := s.ListByAccount(ctx, accountID)
	var latest *models.Balance
	for i := range rows {
		if rows[i].RecordedUntil.After(calendar.Day(day)) {
			break
		}
		latest = &rows[i]
	}
	return latest, nil
}

func (s *memBalances) ListByAccount(_ context.Context, accountID string) ([]models.Balance, error) {
	var out []models.Balance
	for _, b := range s.db.balances {
		if b.AccountID == accountID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedUntil.Before(out[j].RecordedUntil) })
	return out, nil
}

type memAudit struct{ db *memDB }

func (s *memAudit) Log(_ context.Context, _ store.Execer, _ *string, action, _, _ string, _ any) error {
	if s.db.failAudit != nil {
		return s.db.failAudit
	}
	s.db.audit = append(s.db.audit, action)
	return nil
}

type stubHub struct {
	updates map[string][]websocket.BalanceUpdate
}

func newStubHub() *stubHub {
	return &stubHub{updates: map[string][]websocket.BalanceUpdate{}}
}

func (h *stubHub) BroadcastBalance(userID string, update websocket.BalanceUpdate) {
	h.updates[userID] = append(h.updates[userID], update)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func intPtr(v int) *int {
	return &v
}
