package sheets

import (
	"context"

	"tally/internal/core"
)

// Ports for outbound export adapters.
type (
	// TransactionExporter replaces a remote table with the given
	// transactions and reports how many rows were written, header included.
	TransactionExporter interface {
		ExportTransactions(ctx context.Context, txs []core.Transaction, cats []core.Category) (int, error)
	}
)
