package ledger

import (
	"strings"
	"time"

	"tally/internal/core"
)

// Filters narrows a transaction list. Zero-valued fields do not filter.
// Date bounds are inclusive and compared as given; callers normalize them
// (e.g. start of day, end of day) before filtering.
type Filters struct {
	StartDate  time.Time
	EndDate    time.Time
	CategoryID string
	Type       core.TransactionType
	// Search is a case-insensitive substring match on the note.
	Search string
}

// FilterTransactions returns the transactions matching every set filter,
// preserving input order.
func FilterTransactions(txs []core.Transaction, f Filters) []core.Transaction {
	search := strings.ToLower(f.Search)
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if !f.StartDate.IsZero() && tx.Date.Before(f.StartDate) {
			continue
		}
		if !f.EndDate.IsZero() && tx.Date.After(f.EndDate) {
			continue
		}
		if f.CategoryID != "" && tx.CategoryID != f.CategoryID {
			continue
		}
		if f.Type != "" && tx.Type != f.Type {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(tx.Note), search) {
			continue
		}
		out = append(out, tx)
	}
	return out
}
