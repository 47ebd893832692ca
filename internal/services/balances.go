package services

import (
	"context"
	"sort"
	"time"

	"finance/internal/calendar"
	"finance/internal/models"
	"finance/internal/money"
	"finance/internal/store"
	"finance/internal/websocket"

	"github.com/shopspring/decimal"
)

// balanceChange is a committed current_balance value to push to the owner.
type balanceChange struct {
	OwnerID   string
	AccountID string
	Balance   decimal.Decimal
}

// lockAccounts takes FOR UPDATE locks on every id in ascending order so two
// writers touching the same accounts can never deadlock on ordering.
func lockAccounts(ctx context.Context, tx store.Getter, accounts AccountStore, ids ...string) (map[string]models.Account, error) {
	locked := make(map[string]models.Account, len(ids))
	for _, id := range uniqueSorted(ids) {
		account, err := accounts.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, notFound(err, ErrAccountNotFound)
		}
		locked[id] = account
	}
	return locked, nil
}

// applyDeltas adjusts current_balance for accounts already locked by lockAccounts.
func applyDeltas(ctx context.Context, tx store.Execer, accounts AccountStore, locked map[string]models.Account, deltas []models.Delta) ([]balanceChange, error) {
	changes := make([]balanceChange, 0, len(deltas))
	for _, delta := range deltas {
		rows, err := accounts.AdjustBalance(ctx, tx, delta.AccountID, delta.Amount)
		if err != nil {
			return nil, err
		}
		if rows == 0 {
			return nil, ErrAccountNotFound
		}
		account := locked[delta.AccountID]
		changes = append(changes, balanceChange{
			OwnerID:   account.UserID,
			AccountID: delta.AccountID,
			Balance:   account.CurrentBalance.Add(delta.Amount),
		})
	}
	return changes, nil
}

// snapshotShift moves every month-end snapshot of AccountID recorded on or
// after Day by Amount.
type snapshotShift struct {
	AccountID string
	Day       time.Time
	Amount    decimal.Decimal
}

// entryShifts lists the snapshot corrections for replacing before with after.
// Either side may be nil for a create or a delete.
func entryShifts(before, after *models.Entry) []snapshotShift {
	var out []snapshotShift
	if before != nil {
		for _, delta := range models.Reverse(before.Deltas()) {
			out = append(out, snapshotShift{AccountID: delta.AccountID, Day: calendar.Day(before.TransactedAt), Amount: delta.Amount})
		}
	}
	if after != nil {
		for _, delta := range after.Deltas() {
			out = append(out, snapshotShift{AccountID: delta.AccountID, Day: calendar.Day(after.TransactedAt), Amount: delta.Amount})
		}
	}
	return mergeShifts(out)
}

// mergeShifts nets shifts per account and day and drops the ones that cancel.
func mergeShifts(shifts []snapshotShift) []snapshotShift {
	type key struct {
		account string
		day     time.Time
	}
	sums := map[key]decimal.Decimal{}
	for _, shift := range shifts {
		k := key{shift.AccountID, calendar.Day(shift.Day)}
		sums[k] = sums[k].Add(shift.Amount)
	}
	out := make([]snapshotShift, 0, len(sums))
	for k, amount := range sums {
		if amount.IsZero() {
			continue
		}
		out = append(out, snapshotShift{AccountID: k.account, Day: k.day, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccountID != out[j].AccountID {
			return out[i].AccountID < out[j].AccountID
		}
		return out[i].Day.Before(out[j].Day)
	})
	return out
}

// shiftSnapshots keeps month-end snapshots already recorded in step with a
// ledger change dated on or before them. Snapshots for later months are
// untouched when nothing was recorded yet.
func shiftSnapshots(ctx context.Context, tx store.Execer, balances BalanceStore, shifts []snapshotShift) error {
	for _, shift := range shifts {
		if _, err := balances.ShiftFrom(ctx, tx, shift.AccountID, shift.Day, shift.Amount); err != nil {
			return err
		}
	}
	return nil
}

func broadcast(hub BalanceHub, updateType string, changes []balanceChange) {
	if hub == nil {
		return
	}
	for _, change := range changes {
		if change.OwnerID == "" {
			continue
		}
		hub.BroadcastBalance(change.OwnerID, websocket.BalanceUpdate{
			Type:      updateType,
			AccountID: change.AccountID,
			Balance:   money.Format(change.Balance),
		})
	}
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func deltaAccountIDs(deltas []models.Delta) []string {
	ids := make([]string, 0, len(deltas))
	for _, d := range deltas {
		ids = append(ids, d.AccountID)
	}
	return ids
}

func stringPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
