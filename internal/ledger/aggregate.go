package ledger

import (
	"sort"
	"time"

	"tally/internal/core"
)

// CalculateBalance returns income minus expenses in minor units. Deleted
// records are ignored.
func CalculateBalance(txs []core.Transaction) int64 {
	var balance int64
	for _, tx := range txs {
		if tx.IsDeleted {
			continue
		}
		switch tx.Type {
		case core.Income:
			balance += tx.AmountMinor
		case core.Expense:
			balance -= tx.AmountMinor
		}
	}
	return balance
}

// StartOfMonth returns midnight on the first day of t's month, in t's location.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// MonthToDateExpenses sums expenses dated on or after the first day of
// now's month.
func MonthToDateExpenses(txs []core.Transaction, now time.Time) int64 {
	start := StartOfMonth(now)
	var total int64
	for _, tx := range txs {
		if tx.IsDeleted || tx.Type != core.Expense {
			continue
		}
		if !tx.Date.Before(start) {
			total += tx.AmountMinor
		}
	}
	return total
}

// MonthlyExpenses sums expenses dated within the given calendar month,
// evaluated in loc.
func MonthlyExpenses(txs []core.Transaction, year int, month time.Month, loc *time.Location) int64 {
	var total int64
	for _, tx := range txs {
		if tx.IsDeleted || tx.Type != core.Expense {
			continue
		}
		d := tx.Date.In(loc)
		if d.Year() == year && d.Month() == month {
			total += tx.AmountMinor
		}
	}
	return total
}

// ExpenseLimitStatus measures now's calendar-month spending against a
// monthly limit. A non-positive limit yields a zero status.
func ExpenseLimitStatus(txs []core.Transaction, limitMinor int64, now time.Time) core.LimitStatus {
	if limitMinor <= 0 {
		return core.LimitStatus{}
	}
	current := MonthlyExpenses(txs, now.Year(), now.Month(), now.Location())
	return core.LimitStatus{
		LimitMinor:     limitMinor,
		CurrentMinor:   current,
		PercentageUsed: float64(current) / float64(limitMinor) * 100,
		Exceeded:       current > limitMinor,
	}
}

// MonthOverview totals a calendar month and breaks expenses down by
// category, largest first. Unknown categories are named "Unknown".
func MonthOverview(txs []core.Transaction, cats []core.Category, year int, month time.Month, loc *time.Location) core.MonthOverview {
	names := categoryNames(cats)
	overview := core.MonthOverview{Year: year, Month: int(month)}
	byCategory := map[string]int64{}
	var order []string

	for _, tx := range txs {
		if tx.IsDeleted {
			continue
		}
		d := tx.Date.In(loc)
		if d.Year() != year || d.Month() != month {
			continue
		}
		switch tx.Type {
		case core.Income:
			overview.Income.Cents += tx.AmountMinor
		case core.Expense:
			overview.Expenses.Cents += tx.AmountMinor
			if _, seen := byCategory[tx.CategoryID]; !seen {
				order = append(order, tx.CategoryID)
			}
			byCategory[tx.CategoryID] += tx.AmountMinor
		}
	}
	overview.Balance = core.Money{Cents: overview.Income.Cents - overview.Expenses.Cents}

	for _, id := range order {
		overview.ByCategory = append(overview.ByCategory, core.CategoryAmount{
			CategoryID: id,
			Name:       nameOr(names, id),
			Amount:     core.Money{Cents: byCategory[id]},
		})
	}
	sort.SliceStable(overview.ByCategory, func(i, j int) bool {
		return overview.ByCategory[i].Amount.Cents > overview.ByCategory[j].Amount.Cents
	})
	return overview
}

// SortByDateDesc returns a copy of txs ordered newest first. Ties keep
// their input order.
func SortByDateDesc(txs []core.Transaction) []core.Transaction {
	out := append([]core.Transaction(nil), txs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out
}

// RecentTransactions returns up to limit transactions, newest first.
func RecentTransactions(txs []core.Transaction, limit int) []core.Transaction {
	sorted := SortByDateDesc(txs)
	if limit >= 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}
