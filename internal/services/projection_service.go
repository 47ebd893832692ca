package services

import (
	"context"
	"fmt"
	"time"

	"finance/internal/calendar"
	"finance/internal/clock"
	"finance/internal/models"
	"finance/internal/money"
	"finance/internal/recurrence"
	"finance/internal/store"

	"github.com/shopspring/decimal"
)

// MaxProjectionDays bounds the number of daily buckets one projection builds.
const MaxProjectionDays = 3660

// DayBreakdown is one calendar day of a projection.
type DayBreakdown struct {
	Date        time.Time       `json:"date"`
	Income      decimal.Decimal `json:"income"`
	Expense     decimal.Decimal `json:"expense"`
	TransferIn  decimal.Decimal `json:"transfer_in"`
	TransferOut decimal.Decimal `json:"transfer_out"`
	Balance     decimal.Decimal `json:"balance"`
}

// Net is the day's signed change.
func (d DayBreakdown) Net() decimal.Decimal {
	return d.Income.Sub(d.Expense).Add(d.TransferIn).Sub(d.TransferOut)
}

type ProjectionSummary struct {
	StartingBalance  decimal.Decimal `json:"starting_balance"`
	TotalIncome      decimal.Decimal `json:"total_income"`
	TotalExpense     decimal.Decimal `json:"total_expense"`
	TotalTransferIn  decimal.Decimal `json:"total_transfer_in"`
	TotalTransferOut decimal.Decimal `json:"total_transfer_out"`
	NetChange        decimal.Decimal `json:"net_change"`
	EndingBalance    decimal.Decimal `json:"ending_balance"`
	AverageBalance   decimal.Decimal `json:"average_balance"`
}

// ProjectionResult holds the daily buckets in chronological order. BalanceData
// and AverageData are flat per-day series for charts.
type ProjectionResult struct {
	AccountID   string            `json:"account_id"`
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
	Days        []DayBreakdown    `json:"days"`
	Summary     ProjectionSummary `json:"summary"`
	BalanceData []decimal.Decimal `json:"balance_data"`
	AverageData []decimal.Decimal `json:"average_data"`
}

// ProjectionService computes read-only daily balance projections that merge
// the actual ledger with expanded recurring definitions.
type ProjectionService struct {
	accounts  AccountStore
	entries   EntryStore
	recurring RecurringStore
	snapshots *SnapshotService
	clock     clock.Clock
}

func NewProjectionService(accounts AccountStore, entries EntryStore, recurring RecurringStore, snapshots *SnapshotService, clk clock.Clock) *ProjectionService {
	return &ProjectionService{
		accounts:  accounts,
		entries:   entries,
		recurring: recurring,
		snapshots: snapshots,
		clock:     clk,
	}
}

func (s *ProjectionService) Calculate(ctx context.Context, accountID string, start, end time.Time) (ProjectionResult, error) {
	start, end = calendar.Day(start), calendar.Day(end)
	if end.Before(start) {
		return ProjectionResult{}, ErrInvalidRange
	}
	if calendar.DaysBetween(start, end)+1 > MaxProjectionDays {
		return ProjectionResult{}, ErrRangeTooLarge
	}
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return ProjectionResult{}, notFound(err, ErrAccountNotFound)
	}

	days := newBuckets(start, end)
	actual, err := s.entries.DailyTotals(ctx, accountID, start, end)
	if err != nil {
		return ProjectionResult{}, fmt.Errorf("daily totals: %w", err)
	}
	days.addTotals(actual)

	definitions, err := s.recurring.ListByAccount(ctx, accountID)
	if err != nil {
		return ProjectionResult{}, fmt.Errorf("recurring definitions: %w", err)
	}
	if err := days.addRecurring(accountID, definitions, start, end); err != nil {
		return ProjectionResult{}, err
	}

	starting, err := s.startingBalance(ctx, account, start, definitions)
	if err != nil {
		return ProjectionResult{}, err
	}
	return days.result(accountID, start, end, starting), nil
}

// startingBalance extends the actual balance before start with projected
// occurrences up to the day before start when start lies in the future.
// Occurrences still waiting to be materialized count from their due day, so
// the result does not change when the materializer catches up.
func (s *ProjectionService) startingBalance(ctx context.Context, account models.Account, start time.Time, definitions []models.Recurring) (decimal.Decimal, error) {
	balance, err := s.snapshots.StartingBalance(ctx, account, start)
	if err != nil {
		return decimal.Zero, err
	}
	today := calendar.Day(s.clock.Now())
	if !start.After(today) {
		return balance, nil
	}
	from := today
	for _, def := range definitions {
		if due := calendar.Day(def.NextTransactionAt); due.Before(from) {
			from = due
		}
	}
	gapEnd := calendar.AddDays(start, -1)
	gap := newBuckets(from, gapEnd)
	if err := gap.addRecurring(account.ID, definitions, from, gapEnd); err != nil {
		return decimal.Zero, err
	}
	for _, day := range gap.days {
		balance = balance.Add(day.Net())
	}
	return balance, nil
}

// AverageBalanceResult is the month-to-date average daily balance.
type AverageBalanceResult struct {
	AccountID        string            `json:"account_id"`
	From             time.Time         `json:"from"`
	AsOf             time.Time         `json:"as_of"`
	Days             int               `json:"days"`
	AverageBalance   decimal.Decimal   `json:"average_balance"`
	Requirement      *decimal.Decimal  `json:"requirement,omitempty"`
	MeetsRequirement *bool             `json:"meets_requirement,omitempty"`
	Shortfall        decimal.Decimal   `json:"shortfall"`
	BalanceData      []decimal.Decimal `json:"balance_data"`
}

// AverageBalance averages the actual daily closing balances from the first of
// asOf's month through asOf and compares them with the account's
// average_balance_requirement when one is set.
func (s *ProjectionService) AverageBalance(ctx context.Context, accountID string, asOf time.Time) (AverageBalanceResult, error) {
	asOf = calendar.Day(asOf)
	from := calendar.StartOfMonth(asOf)
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return AverageBalanceResult{}, notFound(err, ErrAccountNotFound)
	}
	actual, err := s.entries.DailyTotals(ctx, accountID, from, asOf)
	if err != nil {
		return AverageBalanceResult{}, fmt.Errorf("daily totals: %w", err)
	}
	starting, err := s.snapshots.StartingBalance(ctx, account, from)
	if err != nil {
		return AverageBalanceResult{}, err
	}
	days := newBuckets(from, asOf)
	days.addTotals(actual)
	projection := days.result(accountID, from, asOf, starting)

	result := AverageBalanceResult{
		AccountID:      accountID,
		From:           from,
		AsOf:           asOf,
		Days:           len(projection.Days),
		AverageBalance: projection.Summary.AverageBalance,
		Shortfall:      decimal.Zero,
		BalanceData:    projection.BalanceData,
	}
	if requirement, ok := account.Data.Decimal(models.DataAverageBalanceRequirement); ok {
		meets := !result.AverageBalance.LessThan(requirement)
		result.Requirement = &requirement
		result.MeetsRequirement = &meets
		if !meets {
			result.Shortfall = requirement.Sub(result.AverageBalance)
		}
	}
	return result, nil
}

// buckets holds one DayBreakdown per calendar day from start, in order.
type buckets struct {
	start time.Time
	days  []DayBreakdown
}

func newBuckets(start, end time.Time) *buckets {
	n := calendar.DaysBetween(start, end) + 1
	if n < 0 {
		n = 0
	}
	b := &buckets{start: start, days: make([]DayBreakdown, n)}
	for i := range b.days {
		b.days[i] = DayBreakdown{
			Date:        calendar.AddDays(start, i),
			Income:      decimal.Zero,
			Expense:     decimal.Zero,
			TransferIn:  decimal.Zero,
			TransferOut: decimal.Zero,
			Balance:     decimal.Zero,
		}
	}
	return b
}

func (b *buckets) at(day time.Time) *DayBreakdown {
	i := calendar.DaysBetween(b.start, day)
	if i < 0 || i >= len(b.days) {
		return nil
	}
	return &b.days[i]
}

func (b *buckets) add(day time.Time, category string, amount decimal.Decimal) {
	bucket := b.at(day)
	if bucket == nil {
		return
	}
	switch category {
	case store.CategoryIncome:
		bucket.Income = bucket.Income.Add(amount)
	case store.CategoryExpense:
		bucket.Expense = bucket.Expense.Add(amount)
	case store.CategoryTransferIn:
		bucket.TransferIn = bucket.TransferIn.Add(amount)
	case store.CategoryTransferOut:
		bucket.TransferOut = bucket.TransferOut.Add(amount)
	}
}

func (b *buckets) addTotals(totals []store.CategoryTotal) {
	for _, total := range totals {
		b.add(calendar.Day(total.Period), total.Category, total.Total)
	}
}

// addRecurring expands every definition over [start, end] and books each
// occurrence from accountID's point of view.
func (b *buckets) addRecurring(accountID string, definitions []models.Recurring, start, end time.Time) error {
	for _, def := range definitions {
		category := recurringCategory(accountID, def)
		if category == "" {
			continue
		}
		occurrences, err := recurrence.Expand(def.NextTransactionAt, def.Frequency, def.RemainingRecurrences, start, end)
		if err != nil {
			return fmt.Errorf("expand recurring %s: %w", def.ID, err)
		}
		for _, at := range occurrences {
			b.add(calendar.Day(at), category, def.Amount)
		}
	}
	return nil
}

func recurringCategory(accountID string, def models.Recurring) string {
	switch def.Kind {
	case models.KindIncome:
		if def.AccountID == accountID {
			return store.CategoryIncome
		}
	case models.KindExpense:
		if def.AccountID == accountID {
			return store.CategoryExpense
		}
	case models.KindTransfer:
		if def.CreditorID == accountID {
			return store.CategoryTransferIn
		}
		if def.DebtorID == accountID {
			return store.CategoryTransferOut
		}
	}
	return ""
}

// result walks the buckets from starting and builds the summary.
func (b *buckets) result(accountID string, start, end time.Time, starting decimal.Decimal) ProjectionResult {
	summary := ProjectionSummary{
		StartingBalance:  starting,
		TotalIncome:      decimal.Zero,
		TotalExpense:     decimal.Zero,
		TotalTransferIn:  decimal.Zero,
		TotalTransferOut: decimal.Zero,
	}
	balance := starting
	sum := decimal.Zero
	balanceData := make([]decimal.Decimal, 0, len(b.days))
	for i := range b.days {
		day := &b.days[i]
		balance = balance.Add(day.Net())
		day.Balance = balance
		sum = sum.Add(balance)
		balanceData = append(balanceData, balance)
		summary.TotalIncome = summary.TotalIncome.Add(day.Income)
		summary.TotalExpense = summary.TotalExpense.Add(day.Expense)
		summary.TotalTransferIn = summary.TotalTransferIn.Add(day.TransferIn)
		summary.TotalTransferOut = summary.TotalTransferOut.Add(day.TransferOut)
	}
	summary.EndingBalance = balance
	summary.NetChange = balance.Sub(starting)
	summary.AverageBalance = starting
	if len(b.days) > 0 {
		summary.AverageBalance = money.Round(sum.Div(decimal.NewFromInt(int64(len(b.days)))))
	}
	averageData := make([]decimal.Decimal, len(b.days))
	for i := range averageData {
		averageData[i] = summary.AverageBalance
	}
	return ProjectionResult{
		AccountID:   accountID,
		Start:       start,
		End:         end,
		Days:        b.days,
		Summary:     summary,
		BalanceData: balanceData,
		AverageData: averageData,
	}
}
