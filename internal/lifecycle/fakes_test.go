package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"payPlanner/internal/indexer"
	"payPlanner/internal/pricing"
	"payPlanner/internal/storage"
)

type fakeTracker struct {
	mu       sync.Mutex
	deposit  func(pricing.FindDeposit) (pricing.DepositStatus, error)
	fillByTx func(pricing.DepositRef) (pricing.DepositStatus, error)
	calls    []string
}

func (f *fakeTracker) GetDeposit(_ context.Context, find pricing.FindDeposit) (pricing.DepositStatus, error) {
	f.record("deposit")
	if f.deposit == nil {
		return pricing.DepositStatus{}, pricing.ErrDepositNotFound
	}
	return f.deposit(find)
}

func (f *fakeTracker) GetFillByDepositTx(_ context.Context, ref pricing.DepositRef) (pricing.DepositStatus, error) {
	f.record("fill_by_tx")
	if f.fillByTx == nil {
		return pricing.DepositStatus{}, pricing.ErrFillNotFound
	}
	return f.fillByTx(ref)
}

func (f *fakeTracker) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeTracker) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeIndexer struct {
	mu       sync.Mutex
	deposits []indexer.Deposit
	listErr  error
	find     func(indexer.Lookup) (indexer.Deposit, error)
	lookups  int
}

func (f *fakeIndexer) ListDeposits(context.Context, common.Address, int) ([]indexer.Deposit, error) {
	return f.deposits, f.listErr
}

func (f *fakeIndexer) FindDeposit(_ context.Context, lookup indexer.Lookup) (indexer.Deposit, error) {
	f.mu.Lock()
	f.lookups++
	f.mu.Unlock()
	if f.find == nil {
		return indexer.Deposit{}, indexer.ErrNotFound
	}
	return f.find(lookup)
}

// failingStorage rejects every write.
type failingStorage struct {
	*storage.MemoryStore
}

func (failingStorage) Save(context.Context, string, []byte) error {
	return errors.New("disk full")
}

const testAccount = "0x00000000000000000000000000000000000000ab"

func newTestStore(t *testing.T, accounts storage.AccountStore, tracker DepositTracker, remote RemoteIndexer) *Store {
	t.Helper()
	if accounts == nil {
		accounts = storage.NewMemoryStore()
	}
	s := NewStore(accounts, tracker, remote, Config{PollInterval: 5 * time.Millisecond}, nil, nil)
	t.Cleanup(s.Close)
	return s
}
