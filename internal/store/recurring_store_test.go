package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"finance/internal/models"

	"github.com/shopspring/decimal"
)

func TestRecurringStoreCreateTransfer(t *testing.T) {
	ctx := context.Background()
	remaining := 3
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO recurring_transfers") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 10 || args[1] != "acc-b" || args[2] != "acc-a" || args[8] != "monthly" {
				t.Fatalf("unexpected args: %#v", args)
			}
			if got, ok := args[9].(*int); !ok || *got != 3 {
				t.Fatalf("unexpected remaining: %#v", args[9])
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewRecurringStore(stubDB{})
	err := store.Create(ctx, execer, models.Recurring{
		ID:                   "rt-1",
		Kind:                 models.KindTransfer,
		CreditorID:           "acc-b",
		DebtorID:             "acc-a",
		Amount:               decimal.NewFromInt(50),
		Frequency:            models.Monthly,
		RemainingRecurrences: &remaining,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRecurringStoreListDue(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	store := NewRecurringStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FROM recurring_expenses") ||
				!strings.Contains(query, "remaining_recurrences IS NULL OR remaining_recurrences > 0") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 1 || args[0] != now {
				t.Fatalf("unexpected args: %#v", args)
			}
			account := "acc-1"
			*dest.(*[]recurringRow) = []recurringRow{{
				Kind:      "expense",
				ID:        "re-1",
				AccountID: &account,
				Frequency: "weekly",
			}}
			return nil
		},
	})
	due, err := store.ListDue(ctx, models.KindExpense, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(due) != 1 || due[0].Frequency != models.Weekly || due[0].AccountID != "acc-1" {
		t.Fatalf("unexpected definitions: %#v", due)
	}
}

func TestRecurringStoreAdvance(t *testing.T) {
	ctx := context.Background()
	next := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	remaining := 1
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "UPDATE recurring_incomes") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 3 || args[0] != next || args[2] != "ri-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewRecurringStore(stubDB{})
	if err := store.Advance(ctx, execer, models.KindIncome, "ri-1", next, &remaining); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRecurringStoreGetForUpdate(t *testing.T) {
	ctx := context.Background()
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FROM recurring_incomes") || !strings.Contains(query, "FOR UPDATE") {
				t.Fatalf("unexpected query: %s", query)
			}
			*dest.(*recurringRow) = recurringRow{Kind: "income", ID: "ri-1"}
			return nil
		},
	}
	store := NewRecurringStore(stubDB{})
	rec, err := store.GetForUpdate(ctx, getter, models.KindIncome, "ri-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID != "ri-1" || rec.Kind != models.KindIncome {
		t.Fatalf("unexpected definition: %#v", rec)
	}
}

func TestRecurringStoreDeleteByAccount(t *testing.T) {
	log := &execLog{}
	store := NewRecurringStore(stubDB{})
	if err := store.DeleteByAccount(context.Background(), log, "acc-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(log.queries) != 3 || !strings.Contains(log.queries[0], "recurring_incomes") {
		t.Fatalf("unexpected queries: %#v", log.queries)
	}
}
