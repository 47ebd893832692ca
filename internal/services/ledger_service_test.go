package services

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"finance/internal/models"
)

func TestLedgerTransferAppliesAndRevertsBothSides(t *testing.T) {
	ctx := context.Background()
	h := newHarness(day(2025, 3, 10))
	h.db.addUser("u1", nil)
	h.db.addAccount("acc-x", "u1", "1000.00", day(2025, 1, 1))
	h.db.addAccount("acc-y", "u1", "1000.00", day(2025, 1, 1))

	transfer, err := h.ledger.Create(ctx, "u1", models.Entry{
		Kind:         models.KindTransfer,
		CreditorID:   "acc-x",
		DebtorID:     "acc-y",
		Amount:       dec("300.00"),
		TransactedAt: day(2025, 3, 10),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.db.balance("acc-x").Equal(dec("1300")) || !h.db.balance("acc-y").Equal(dec("700")) {
		t.Fatalf("unexpected balances: x=%s y=%s", h.db.balance("acc-x"), h.db.balance("acc-y"))
	}

	if err := h.ledger.Delete(ctx, "u1", models.KindTransfer, transfer.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.db.balance("acc-x").Equal(dec("1000")) || !h.db.balance("acc-y").Equal(dec("1000")) {
		t.Fatalf("balances not reverted: x=%s y=%s", h.db.balance("acc-x"), h.db.balance("acc-y"))
	}
}

func TestLedgerLocksAccountsInIDOrder(t *testing.T) {
	h := newHarness(day(2025, 3, 10))
	h.db.addUser("u1", nil)
	h.db.addAccount("a", "u1", "0", day(2025, 1, 1))
	h.db.addAccount("b", "u1", "0", day(2025, 1, 1))

	_, err := h.ledger.Create(context.Background(), "u1", models.Entry{
		Kind:       models.KindTransfer,
		CreditorID: "b",
		DebtorID:   "a",
		Amount:     dec("5"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(h.db.lockOrder, []string{"a", "b"}) {
		t.Fatalf("unexpected lock order: %v", h.db.lockOrder)
	}
}

func TestLedgerUpdateSameAccountAppliesDifferenceOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(day(2025, 3, 10))
	h.db.addUser("u1", nil)
	h.db.addAccount("acc-a", "u1", "1000.00", day(2025, 1, 1))

	income, err := h.ledger.Create(ctx, "u1", models.Entry{Kind: models.KindIncome, AccountID: "acc-a", Amount: dec("100")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.db.lockOrder = nil
	income.Amount = dec("150")
	if _, err := h.ledger.Update(ctx, "u1", income); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.db.balance("acc-a").Equal(dec("1150")) {
		t.Fatalf("expected 1150, got %s", h.db.balance("acc-a"))
	}
	if len(h.db.lockOrder) != 1 {
		t.Fatalf("expected a single lock, got %v", h.db.lockOrder)
	}
}

func TestLedgerUpdateMovesEntryBetweenAccounts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(day(2025, 3, 10))
	h.db.addUser("u1", nil)
	h.db.addAccount("acc-a", "u1", "1000", day(2025, 1, 1))
	h.db.addAccount("acc-b", "u1", "1000", day(2025, 1, 1))

	income, err := h.ledger.Create(ctx, "u1", models.Entry{Kind: models.KindIncome, AccountID: "acc-a", Amount: dec("100")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	income.AccountID = "acc-b"
	if _, err := h.ledger.Update(ctx, "u1", income); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.db.balance("acc-a").Equal(dec("1000")) || !h.db.balance("acc-b").Equal(dec("1100")) {
		t.Fatalf("unexpected balances: a=%s b=%s", h.db.balance("acc-a"), h.db.balance("acc-b"))
	}
}

func TestLedgerUpdateSwapsTransferSides(t *testing.T) {
	ctx := context.Background()
	h := newHarness(day(2025, 3, 10))
	h.db.addUser("u1", nil)
	h.db.addAccount("acc-a", "u1", "1000", day(2025, 1, 1))
	h.db.addAccount("acc-b", "u1", "1000", day(2025, 1, 1))

	transfer, err := h.ledger.Create(ctx, "u1", models.Entry{
		Kind: models.KindTransfer, CreditorID: "acc-a", DebtorID: "acc-b", Amount: dec("50"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	transfer.CreditorID, transfer.DebtorID = "acc-b", "acc-a"
	if _, err := h.ledger.Update(ctx, "u1", transfer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.db.balance("acc-a").Equal(dec("950")) || !h.db.balance("acc-b").Equal(dec("1050")) {
		t.Fatalf("unexpected balances: a=%s b=%s", h.db.balance("acc-a"), h.db.balance("acc-b"))
	}
}

func TestLedgerBalanceMatchesLedgerAfterMutations(t *testing.T) {
	ctx := context.Background()
	h := newHarness(day(2025, 3, 10))
	h.db.addUser("u1", nil)
	h.db.addAccount("acc-a", "u1", "250.00", day(2025, 1, 1))
	h.db.addAccount("acc-b", "u1", "0.00", day(2025, 1, 1))
	h.db.addAccount("acc-c", "u1", "-40.10", day(2025, 1, 1))

	create := func(e models.Entry) models.Entry {
		t.Helper()
		created, err := h.ledger.Create(ctx, "u1", e)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		return created
	}
	salary := create(models.Entry{Kind: models.KindIncome, AccountID: "acc-a", Amount: dec("1200.55"), TransactedAt: day(2025, 1, 3)})
	rent := create(models.Entry{Kind: models.KindExpense, AccountID: "acc-a", Amount: dec("800.00"), TransactedAt: day(2025, 1, 5)})
	move := create(models.Entry{Kind: models.KindTransfer, CreditorID: "acc-b", DebtorID: "acc-a", Amount: dec("100.25"), TransactedAt: day(2025, 2, 1)})
	create(models.Entry{Kind: models.KindExpense, AccountID: "acc-c", Amount: dec("9.99"), TransactedAt: day(2025, 2, 2)})

	rent.Amount = dec("750.00")
	rent.AccountID = "acc-c"
	if _, err := h.ledger.Update(ctx, "u1", rent); err != nil {
		t.Fatalf("update: %v", err)
	}
	move.DebtorID = "acc-c"
	move.Amount = dec("20.00")
	if _, err := h.ledger.Update(ctx, "u1", move); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := h.ledger.Delete(ctx, "u1", models.KindIncome, salary.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	for _, id := range []string{"acc-a", "acc-b", "acc-c"} {
		if got, want := h.db.balance(id), h.db.ledgerBalance(id); !got.Equal(want) {
			t.Fatalf("%s: current_balance %s, ledger says %s", id, got, want)
		}
	}
}

func TestLedgerCreateValidation(t *testing.T) {
	h := newHarness(day(2025, 3, 10))
	h.db.addUser("u1", nil)
	h.db.addAccount("acc-a", "u1", "0", day(2025, 1, 1))

	tests := []struct {
		name  string
		entry models.Entry
		want  error
	}{
		{"zero amount", models.Entry{Kind: models.KindIncome, AccountID: "acc-a", Amount: dec("0")}, models.ErrInvalidAmount},
		{"negative amount", models.Entry{Kind: models.KindExpense, AccountID: "acc-a", Amount: dec("-1")}, models.ErrInvalidAmount},
		{"missing account", models.Entry{Kind: models.KindIncome, Amount: dec("1")}, models.ErrMissingAccount},
		{"self transfer", models.Entry{Kind: models.KindTransfer, CreditorID: "acc-a", DebtorID: "acc-a", Amount: dec("1")}, models.ErrSameAccountTransfer},
		{"unknown kind", models.Entry{Kind: "refund", AccountID: "acc-a", Amount: dec("1")}, models.ErrUnknownKind},
		{"unknown account", models.Entry{Kind: models.KindIncome, AccountID: "nope", Amount: dec("1")}, ErrAccountNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.ledger.Create(context.Background(), "u1", tc.entry)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if len(h.db.entries) != 0 {
		t.Fatalf("no entry should have been written")
	}
}

func TestLedgerVisibilityFollowsFamily(t *testing.T) {
	ctx := context.Background()
	family := "fam-1"
	h := newHarness(day(2025, 3, 10))
	h.db.addUser("owner", &family)
	h.db.addUser("spouse", &family)
	h.db.addUser("stranger", nil)
	h.db.addAccount("acc-a", "owner", "0", day(2025, 1, 1))

	entry := models.Entry{Kind: models.KindIncome, AccountID: "acc-a", Amount: dec("10")}
	if _, err := h.ledger.Create(ctx, "stranger", entry); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	created, err := h.ledger.Create(ctx, "spouse", entry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := h.ledger.Get(ctx, "stranger", models.KindIncome, created.ID); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
	if len(h.hub.updates["owner"]) != 1 {
		t.Fatalf("expected the owner to be notified, got %#v", h.hub.updates)
	}
}

func TestLedgerRollsBackWhenAuditFails(t *testing.T) {
	h := newHarness(day(2025, 3, 10))
	h.db.addUser("u1", nil)
	h.db.addAccount("acc-a", "u1", "100", day(2025, 1, 1))
	h.db.failAudit = errors.New("audit unavailable")

	_, err := h.ledger.Create(context.Background(), "u1", models.Entry{Kind: models.KindExpense, AccountID: "acc-a", Amount: dec("40")})
	if err == nil {
		t.Fatal("expected error")
	}
	if !h.db.balance("acc-a").Equal(dec("100")) || len(h.db.entries) != 0 {
		t.Fatalf("expected no partial write, balance=%s entries=%d", h.db.balance("acc-a"), len(h.db.entries))
	}
	if len(h.hub.updates) != 0 {
		t.Fatalf("no update should be broadcast for a failed write")
	}
}

func TestLedgerBroadcastsNewBalances(t *testing.T) {
	h := newHarness(day(2025, 3, 10))
	h.db.addUser("u1", nil)
	h.db.addUser("u2", nil)
	h.db.addAccount("acc-a", "u1", "100", day(2025, 1, 1))
	h.db.addAccount("acc-b", "u2", "100", day(2025, 1, 1))
	// both sides of a transfer must be visible to the caller
	_, err := h.ledger.Create(context.Background(), "u1", models.Entry{
		Kind: models.KindTransfer, CreditorID: "acc-b", DebtorID: "acc-a", Amount: dec("25"),
	})
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	_, err = h.ledger.Create(context.Background(), "u1", models.Entry{Kind: models.KindIncome, AccountID: "acc-a", Amount: dec("25.5")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	updates := h.hub.updates["u1"]
	if len(updates) != 1 || updates[0].AccountID != "acc-a" || updates[0].Balance != "125.50" {
		t.Fatalf("unexpected updates: %#v", updates)
	}
}

func TestLedgerDeleteMissingEntry(t *testing.T) {
	h := newHarness(day(2025, 3, 10))
	err := h.ledger.Delete(context.Background(), "u1", models.KindExpense, "missing")
	if !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestLedgerCreateDefaultsTransactedAtToNow(t *testing.T) {
	now := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	h := newHarness(now)
	h.db.addUser("u1", nil)
	h.db.addAccount("acc-a", "u1", "0", day(2025, 1, 1))
	entry, err := h.ledger.Create(context.Background(), "u1", models.Entry{Kind: models.KindIncome, AccountID: "acc-a", Amount: dec("1")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !entry.TransactedAt.Equal(now) || entry.ID == "" || entry.Tags == nil {
		t.Fatalf("unexpected entry: %#v", entry)
	}
}

func TestLedgerListOrdersByTransactedAt(t *testing.T) {
	ctx := context.Background()
	h := newHarness(day(2025, 3, 10))
	h.db.addUser("u1", nil)
	h.db.addAccount("acc-a", "u1", "0", day(2025, 1, 1))
	for _, d := range []int{9, 2, 5} {
		if _, err := h.ledger.Create(ctx, "u1", models.Entry{Kind: models.KindIncome, AccountID: "acc-a", Amount: dec("1"), TransactedAt: day(2025, 3, d)}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	entries, err := h.ledger.List(ctx, "u1", "acc-a", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 || entries[0].TransactedAt.Day() != 2 || entries[2].TransactedAt.Day() != 9 {
		t.Fatalf("unexpected order: %#v", entries)
	}
}

func TestLedgerBackdatedWritesKeepSnapshotsInStep(t *testing.T) {
	ctx := context.Background()
	h := newHarness(day(2025, 4, 10))
	h.db.addUser("u1", nil)
	account, err := h.accountSvc.Create(ctx, "u1", AccountInput{
		Name:           "Checking",
		Type:           models.AccountCash,
		InitialBalance: dec("1000"),
		InitialDate:    day(2025, 1, 5),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snapshots := func() []string {
		rows, _ := h.balances.ListByAccount(ctx, account.ID)
		out := make([]string, 0, len(rows))
		for _, row := range rows {
			out = append(out, row.Balance.StringFixed(2))
		}
		return out
	}
	if got := snapshots(); !reflect.DeepEqual(got, []string{"1000.00", "1000.00", "1000.00"}) {
		t.Fatalf("unexpected seeded snapshots: %v", got)
	}

	income, err := h.ledger.Create(ctx, "u1", models.Entry{Kind: models.KindIncome, AccountID: account.ID, Amount: dec("500"), TransactedAt: day(2025, 2, 15)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := snapshots(); !reflect.DeepEqual(got, []string{"1000.00", "1500.00", "1500.00"}) {
		t.Fatalf("snapshots after backdated create: %v", got)
	}
	result, err := h.projection.Calculate(ctx, account.ID, day(2025, 4, 1), day(2025, 4, 3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Summary.StartingBalance.Equal(dec("1500")) || !result.Summary.EndingBalance.Equal(dec("1500")) {
		t.Fatalf("projection ignored backdated income: starting=%s ending=%s", result.Summary.StartingBalance, result.Summary.EndingBalance)
	}

	income.TransactedAt = day(2025, 3, 20)
	income.Amount = dec("300")
	if _, err := h.ledger.Update(ctx, "u1", income); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := snapshots(); !reflect.DeepEqual(got, []string{"1000.00", "1000.00", "1300.00"}) {
		t.Fatalf("snapshots after moving the entry: %v", got)
	}

	if err := h.ledger.Delete(ctx, "u1", models.KindIncome, income.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := snapshots(); !reflect.DeepEqual(got, []string{"1000.00", "1000.00", "1000.00"}) {
		t.Fatalf("snapshots after delete: %v", got)
	}
	if !h.db.balance(account.ID).Equal(dec("1000")) {
		t.Fatalf("unexpected current balance %s", h.db.balance(account.ID))
	}
}

func TestLedgerBackdatedTransferShiftsBothSides(t *testing.T) {
	ctx := context.Background()
	h := newHarness(day(2025, 3, 10))
	h.db.addUser("u1", nil)
	h.db.addAccount("acc-a", "u1", "100", day(2025, 1, 1))
	h.db.addAccount("acc-b", "u1", "100", day(2025, 1, 1))
	for _, id := range []string{"acc-a", "acc-b"} {
		h.db.balances[balanceKey(id, day(2025, 1, 31))] = models.Balance{AccountID: id, RecordedUntil: day(2025, 1, 31), Balance: dec("100")}
		h.db.balances[balanceKey(id, day(2025, 2, 28))] = models.Balance{AccountID: id, RecordedUntil: day(2025, 2, 28), Balance: dec("100")}
	}

	if _, err := h.ledger.Create(ctx, "u1", models.Entry{Kind: models.KindTransfer, CreditorID: "acc-a", DebtorID: "acc-b", Amount: dec("40"), TransactedAt: time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]string{
		balanceKey("acc-a", day(2025, 1, 31)): "100",
		balanceKey("acc-a", day(2025, 2, 28)): "140",
		balanceKey("acc-b", day(2025, 1, 31)): "100",
		balanceKey("acc-b", day(2025, 2, 28)): "60",
	}
	for key, value := range want {
		if got := h.db.balances[key].Balance; !got.Equal(dec(value)) {
			t.Fatalf("%s: expected %s, got %s", key, value, got)
		}
	}
}

func TestLedgerCurrentMonthWriteLeavesSnapshotsAlone(t *testing.T) {
	h := newHarness(day(2025, 3, 10))
	h.db.addUser("u1", nil)
	h.db.addAccount("acc-a", "u1", "100", day(2025, 1, 1))
	h.db.balances[balanceKey("acc-a", day(2025, 2, 28))] = models.Balance{AccountID: "acc-a", RecordedUntil: day(2025, 2, 28), Balance: dec("100")}

	if _, err := h.ledger.Create(context.Background(), "u1", models.Entry{Kind: models.KindExpense, AccountID: "acc-a", Amount: dec("30"), TransactedAt: day(2025, 3, 1)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.db.balances[balanceKey("acc-a", day(2025, 2, 28))].Balance; !got.Equal(dec("100")) {
		t.Fatalf("closed month moved to %s", got)
	}
}
