// Package kv defines the key-value storage port shared by the ledger, the
// notification feed and the reminder engine.
package kv

import "context"

// Store is the outbound storage port. Values are opaque byte slices; callers
// store JSON documents through GetJSON and SetJSON.
type Store interface {
	// Read returns the value under key. found is false when the key is absent.
	Read(ctx context.Context, key string) (value []byte, found bool, err error)
	// Write replaces the value under key.
	Write(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists the keys starting with prefix, in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
