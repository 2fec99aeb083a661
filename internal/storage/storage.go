package storage

import (
	"context"
	"strings"
)

// AccountStore persists one opaque blob of payment history per account.
type AccountStore interface {
	Load(ctx context.Context, account string) ([]byte, bool, error)
	Save(ctx context.Context, account string, data []byte) error
	Delete(ctx context.Context, account string) error
}

// AccountKey normalizes an account address for use as a storage key.
func AccountKey(account string) string {
	return strings.ToLower(strings.TrimSpace(account))
}
