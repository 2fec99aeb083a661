package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"payPlanner/internal/indexer"
	"payPlanner/internal/metrics"
	"payPlanner/internal/model"
	"payPlanner/internal/pricing"
	"payPlanner/internal/storage"
)

// DepositTracker looks deposits and fills up on chain.
type DepositTracker interface {
	GetDeposit(ctx context.Context, find pricing.FindDeposit) (pricing.DepositStatus, error)
	GetFillByDepositTx(ctx context.Context, ref pricing.DepositRef) (pricing.DepositStatus, error)
}

// RemoteIndexer is the deposit indexer the store reconciles against.
type RemoteIndexer interface {
	ListDeposits(ctx context.Context, depositor common.Address, limit int) ([]indexer.Deposit, error)
	FindDeposit(ctx context.Context, lookup indexer.Lookup) (indexer.Deposit, error)
}

// Config tunes the store.
type Config struct {
	PollInterval   time.Duration
	ReconcileLimit int
	PersistTimeout time.Duration
	// SpokePool fills in spoke pool addresses missing from an entry.
	SpokePool func(chainID uint64) (common.Address, error)
}

// Subscriber receives a snapshot after every persisted change.
type Subscriber func(entries []model.PaymentHistoryEntry)

// Store holds the payment history of one account. Every mutation is
// persisted before subscribers are notified.
type Store struct {
	storage  storage.AccountStore
	tracker  DepositTracker
	remote   RemoteIndexer
	cfg      Config
	logger   *zap.Logger
	recorder metrics.Recorder
	now      func() time.Time

	mu      sync.Mutex
	account string
	entries []model.PaymentHistoryEntry
	pollers map[string]context.CancelFunc
	closed  bool

	// writeMu serializes mutations together with their notifications.
	writeMu sync.Mutex
	subsMu  sync.Mutex
	subs    map[uint64]Subscriber
	nextSub uint64

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewStore creates a store. tracker and remote may be nil.
func NewStore(accounts storage.AccountStore, tracker DepositTracker, remote RemoteIndexer, cfg Config, logger *zap.Logger, recorder metrics.Recorder) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if accounts == nil {
		accounts = storage.NewMemoryStore()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.ReconcileLimit <= 0 {
		cfg.ReconcileLimit = 50
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		storage:  accounts,
		tracker:  tracker,
		remote:   remote,
		cfg:      cfg,
		logger:   logger,
		recorder: metrics.OrNoop(recorder),
		now:      func() time.Time { return time.Now().UTC() },
		pollers:  make(map[string]context.CancelFunc),
		subs:     make(map[uint64]Subscriber),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Init loads the account's persisted entries, reconciles them with the remote
// indexer and starts pollers. Corrupt persisted data is discarded.
func (s *Store) Init(ctx context.Context, account string) error {
	key := storage.AccountKey(account)
	if key == "" {
		return fmt.Errorf("account required")
	}

	s.writeMu.Lock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.writeMu.Unlock()
		return fmt.Errorf("store closed")
	}
	s.stopPollersLocked()
	s.account = key
	s.entries = nil
	s.mu.Unlock()

	entries := s.load(ctx, key)

	s.mu.Lock()
	s.entries = entries
	s.commitLocked(ctx, false)
	s.writeMu.Unlock()

	if s.remote != nil {
		if err := s.Reconcile(ctx); err != nil {
			s.logger.Warn("initial reconcile failed", zap.String("account", key), zap.Error(err))
		}
	}

	s.mu.Lock()
	for i := range s.entries {
		s.syncPollerLocked(&s.entries[i])
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) load(ctx context.Context, account string) []model.PaymentHistoryEntry {
	data, ok, err := s.storage.Load(ctx, account)
	if err != nil {
		s.logger.Warn("load history failed", zap.String("account", account), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	entries, err := model.DecodeEntries(data)
	if err != nil {
		s.logger.Warn("discarding corrupt history", zap.String("account", account), zap.Error(err))
		if err := s.storage.Delete(ctx, account); err != nil {
			s.logger.Warn("delete corrupt history failed", zap.String("account", account), zap.Error(err))
		}
		return nil
	}
	return entries
}

// Close stops every poller and waits for them to exit.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopPollersLocked()
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// Account returns the initialized account key.
func (s *Store) Account() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// Snapshot returns a copy of every entry, newest first.
func (s *Store) Snapshot() []model.PaymentHistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() []model.PaymentHistoryEntry {
	out := make([]model.PaymentHistoryEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Clone()
	}
	return out
}

// Entry returns a copy of the entry with id.
func (s *Store) Entry(id string) (model.PaymentHistoryEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.entries[i].Clone(), true
	}
	return model.PaymentHistoryEntry{}, false
}

// Polling reports whether a poller is active for id.
func (s *Store) Polling(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pollers[id]
	return ok
}

// Subscribe registers fn and returns a function that removes it. Subscribers
// run synchronously in commit order; they may read the store but must not
// mutate it.
func (s *Store) Subscribe(fn Subscriber) func() {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

// Clear deletes every entry of the account, locally and in storage.
func (s *Store) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.stopPollersLocked()
	s.entries = nil
	account := s.account
	s.mu.Unlock()

	var err error
	if account != "" {
		if derr := s.storage.Delete(ctx, account); derr != nil {
			err = fmt.Errorf("delete history: %w", derr)
		}
	}

	s.mu.Lock()
	s.commitLocked(ctx, false)
	return err
}

// Reconcile merges the account's deposits from the remote indexer.
func (s *Store) Reconcile(ctx context.Context) error {
	if s.remote == nil {
		return nil
	}
	account := s.Account()
	if account == "" || !common.IsHexAddress(account) {
		return fmt.Errorf("reconcile needs an initialized account address")
	}
	deposits, err := s.remote.ListDeposits(ctx, common.HexToAddress(account), s.cfg.ReconcileLimit)
	if err != nil {
		return fmt.Errorf("list deposits: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	if s.account != account {
		s.mu.Unlock()
		return nil
	}
	for _, dep := range deposits {
		remote := settleFilled(dep.Entry())
		if i := matchEntry(s.entries, remote); i >= 0 {
			s.entries[i] = Merge(s.entries[i], remote)
			s.syncPollerLocked(&s.entries[i])
			continue
		}
		s.entries = append(s.entries, remote)
		s.syncPollerLocked(&s.entries[len(s.entries)-1])
	}
	sortEntries(s.entries)
	s.commitLocked(ctx, true)
	return nil
}

// commitLocked persists, releases mu and notifies subscribers. The caller
// must hold writeMu and mu.
func (s *Store) commitLocked(ctx context.Context, persist bool) {
	snapshot := s.snapshotLocked()
	if persist {
		s.persistLocked(ctx)
	}
	s.mu.Unlock()

	s.subsMu.Lock()
	subs := make([]Subscriber, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subsMu.Unlock()
	for _, fn := range subs {
		fn(snapshot)
	}
}

func (s *Store) persistLocked(ctx context.Context) {
	if s.account == "" {
		return
	}
	data, err := model.EncodeEntries(s.entries)
	if err != nil {
		s.recorder.IncCounter(metrics.PersistFailure, nil)
		s.logger.Warn("encode history failed", zap.Error(err))
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PersistTimeout)
	defer cancel()
	if err := s.storage.Save(ctx, s.account, data); err != nil {
		s.recorder.IncCounter(metrics.PersistFailure, nil)
		s.logger.Warn("persist history failed", zap.String("account", s.account), zap.Error(err))
	}
}

func (s *Store) indexLocked(id string) int {
	for i := range s.entries {
		if s.entries[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) spokePool(chainID uint64) string {
	if s.cfg.SpokePool == nil {
		return ""
	}
	addr, err := s.cfg.SpokePool(chainID)
	if err != nil {
		return ""
	}
	return addr.Hex()
}

