// Package ledger owns the transaction and category collections: CRUD with
// soft delete, filtering, aggregates and CSV export.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/kv"
	"tally/internal/log"
)

// Store is the authoritative surface over the transaction collection. Every
// mutation rewrites the whole collection under kv.KeyTransactions.
type Store struct {
	mu        sync.Mutex
	kv        kv.Store
	now       func() time.Time
	newID     func() string
	currency  string
	retention time.Duration
	loc       *time.Location
	logger    *log.Logger
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithDefaultCurrency sets the currency stamped on new transactions that
// do not name one.
func WithDefaultCurrency(code string) Option {
	return func(s *Store) { s.currency = code }
}

// WithRetention sets how long soft-deleted transactions are kept before
// PurgeDeleted removes them. Zero keeps them forever.
func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// WithLocation sets the zone whose calendar days Export writes.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = loc }
}

func New(store kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:       store,
		now:      time.Now,
		newID:    uuid.NewString,
		currency: core.DefaultCurrency,
		logger:   log.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent(log.ComponentLedger)
	return s
}

func (s *Store) load(ctx context.Context) ([]core.Transaction, error) {
	var txs []core.Transaction
	if _, err := kv.GetJSON(ctx, s.kv, kv.KeyTransactions, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

func (s *Store) persist(ctx context.Context, txs []core.Transaction) error {
	if txs == nil {
		txs = []core.Transaction{}
	}
	return kv.SetJSON(ctx, s.kv, kv.KeyTransactions, txs)
}

func (s *Store) storageFailure(ctx context.Context, msg string, err error, op string, fields log.LogFields) {
	s.logger.LogError(ctx, msg, err, op, log.ErrorTypeStorage, fields)
}

// ListTransactions returns the non-deleted transactions of userID in
// storage order. A storage failure yields an empty result.
func (s *Store) ListTransactions(ctx context.Context, userID string) []core.Transaction {
	txs, err := s.load(ctx)
	if err != nil {
		s.storageFailure(ctx, "Failed to load transactions", err, log.OpList, log.NewFields().WithUser(userID))
		return []core.Transaction{}
	}
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.UserID == userID && !tx.IsDeleted {
			out = append(out, tx)
		}
	}
	return out
}

// GetTransaction looks up a non-deleted transaction by id.
func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, bool) {
	txs, err := s.load(ctx)
	if err != nil {
		s.storageFailure(ctx, "Failed to load transactions", err, log.OpRead,
			log.NewFields().With(log.FieldTransactionID, id))
		return core.Transaction{}, false
	}
	for _, tx := range txs {
		if tx.ID == id && !tx.IsDeleted {
			return tx, true
		}
	}
	return core.Transaction{}, false
}

// SaveTransaction creates a transaction when in.ID is empty, otherwise it
// merges in into the stored record owned by userID.
func (s *Store) SaveTransaction(ctx context.Context, in core.TransactionInput, userID string) (core.Transaction, error) {
	if in.ID == "" {
		return s.create(ctx, in, userID)
	}
	return s.update(ctx, in, userID)
}

func (s *Store) create(ctx context.Context, in core.TransactionInput, userID string) (core.Transaction, error) {
	if userID == "" {
		return core.Transaction{}, &core.ValidationError{Field: "userId", Err: core.ErrMissingOwner}
	}
	now := s.now().UTC()
	tx := core.Transaction{
		ID:        s.newID(),
		UserID:    userID,
		Currency:  s.currency,
		CreatedAt: now,
		UpdatedAt: now,
	}.Merge(in)
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txs, err := s.load(ctx)
	if err != nil {
		s.storageFailure(ctx, "Failed to load transactions", err, log.OpCreate, log.NewFields().WithUser(userID))
		return core.Transaction{}, fmt.Errorf("load transactions: %w", err)
	}
	txs = append(txs, tx)
	if err := s.persist(ctx, txs); err != nil {
		s.storageFailure(ctx, "Failed to save transaction", err, log.OpCreate,
			log.NewFields().WithUser(userID).WithTransaction(tx.ID, tx.AmountMinor, tx.CategoryID))
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "Transaction created", log.NewFields().
		WithUser(userID).
		WithTransaction(tx.ID, tx.AmountMinor, tx.CategoryID).
		WithOperation(log.OpCreate).
		With("type", tx.Type).
		ToSlice()...)
	return tx, nil
}

func (s *Store) update(ctx context.Context, in core.TransactionInput, userID string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs, err := s.load(ctx)
	if err != nil {
		s.storageFailure(ctx, "Failed to load transactions", err, log.OpUpdate,
			log.NewFields().With(log.FieldTransactionID, in.ID))
		return core.Transaction{}, fmt.Errorf("load transactions: %w", err)
	}
	idx := indexOf(txs, in.ID)
	if idx < 0 || txs[idx].UserID != userID {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", in.ID, core.ErrNotFound)
	}

	merged := txs[idx].Merge(in)
	if err := merged.Validate(); err != nil {
		return core.Transaction{}, err
	}
	merged.UpdatedAt = s.now().UTC()
	txs[idx] = merged

	if err := s.persist(ctx, txs); err != nil {
		s.storageFailure(ctx, "Failed to update transaction", err, log.OpUpdate,
			log.NewFields().WithTransaction(merged.ID, merged.AmountMinor, merged.CategoryID))
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "Transaction updated", log.NewFields().
		WithUser(userID).
		WithTransaction(merged.ID, merged.AmountMinor, merged.CategoryID).
		WithOperation(log.OpUpdate).
		ToSlice()...)
	return merged, nil
}

// DeleteTransaction soft-deletes id. An unknown id is not an error.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	return s.setDeleted(ctx, id, true, log.OpDelete)
}

// RestoreTransaction clears the soft-delete flag of id. An unknown id is not
// an error.
func (s *Store) RestoreTransaction(ctx context.Context, id string) error {
	return s.setDeleted(ctx, id, false, log.OpRestore)
}

func (s *Store) setDeleted(ctx context.Context, id string, deleted bool, op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := log.NewFields().With(log.FieldTransactionID, id)
	txs, err := s.load(ctx)
	if err != nil {
		s.storageFailure(ctx, "Failed to load transactions", err, op, fields)
		return fmt.Errorf("load transactions: %w", err)
	}
	idx := indexOf(txs, id)
	if idx < 0 {
		s.logger.DebugContext(ctx, "Transaction not found, nothing to change", fields.WithOperation(op).ToSlice()...)
		return nil
	}
	if txs[idx].IsDeleted == deleted {
		return nil
	}
	txs[idx].IsDeleted = deleted
	txs[idx].UpdatedAt = s.now().UTC()

	if err := s.persist(ctx, txs); err != nil {
		s.storageFailure(ctx, "Failed to persist transaction state", err, op, fields)
		return fmt.Errorf("save transaction: %w", err)
	}
	s.logger.InfoContext(ctx, "Transaction deleted flag changed", fields.WithOperation(op).With("is_deleted", deleted).ToSlice()...)
	return nil
}

// PurgeDeleted physically removes soft-deleted transactions whose last
// update is older than the retention period. It returns the number removed.
func (s *Store) PurgeDeleted(ctx context.Context) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txs, err := s.load(ctx)
	if err != nil {
		s.storageFailure(ctx, "Failed to load transactions", err, log.OpPurge, nil)
		return 0, fmt.Errorf("load transactions: %w", err)
	}
	cutoff := s.now().UTC().Add(-s.retention)
	kept := txs[:0]
	for _, tx := range txs {
		if tx.IsDeleted && tx.UpdatedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, tx)
	}
	removed := len(txs) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := s.persist(ctx, kept); err != nil {
		s.storageFailure(ctx, "Failed to persist purge", err, log.OpPurge, nil)
		return 0, fmt.Errorf("save transactions: %w", err)
	}
	s.logger.InfoContext(ctx, "Soft-deleted transactions purged",
		log.FieldOperation, log.OpPurge, log.FieldCount, removed, "retention", s.retention.String())
	return removed, nil
}

// Export writes userID's transactions as CSV to w.
func (s *Store) Export(ctx context.Context, w io.Writer, userID string) error {
	txs := SortByDateDesc(s.ListTransactions(ctx, userID))
	cats := s.ListCategories(ctx)
	if err := ExportCSV(w, txs, cats, s.loc); err != nil {
		s.logger.LogError(ctx, "Failed to export transactions", err, log.OpExport, log.ErrorTypeInternal,
			log.NewFields().WithUser(userID))
		return err
	}
	s.logger.InfoContext(ctx, "Transactions exported",
		log.FieldUserID, userID, log.FieldCount, len(txs), log.FieldOperation, log.OpExport)
	return nil
}

func indexOf(txs []core.Transaction, id string) int {
	for i := range txs {
		if txs[i].ID == id {
			return i
		}
	}
	return -1
}

// IsNotFound reports whether err signals an unknown record.
func IsNotFound(err error) bool {
	return errors.Is(err, core.ErrNotFound)
}
