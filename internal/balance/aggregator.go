package balance

import (
	"context"
	"errors"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"payPlanner/internal/chain"
	"payPlanner/internal/metrics"
	"payPlanner/internal/model"
)

// DefaultCacheTTL is how long fetched balances are reused.
const DefaultCacheTTL = 15 * time.Second

const individualReadConcurrency = 8

// Reader is the per-chain balance API.
type Reader interface {
	NativeBalance(ctx context.Context, account common.Address) (*big.Int, error)
	TokenBalances(ctx context.Context, account common.Address, tokens []common.Address) (map[common.Address]*big.Int, error)
	MulticallBalances(ctx context.Context, account common.Address, tokens []common.Address) (map[common.Address]*big.Int, error)
	TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error)
}

// Source returns the Reader for a chain.
type Source interface {
	Reader(chainID uint64) (Reader, bool)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(chainID uint64) (Reader, bool)

func (f SourceFunc) Reader(chainID uint64) (Reader, bool) { return f(chainID) }

// FromRegistry exposes the registry's clients as balance readers.
func FromRegistry(reg *chain.Registry) Source {
	return SourceFunc(func(chainID uint64) (Reader, bool) {
		c, ok := reg.Client(chainID)
		if !ok {
			return nil, false
		}
		return c, true
	})
}

// Balances maps a token to the wallet's balance of it.
type Balances map[model.TokenKey]*big.Int

// Get returns the balance for key, zero when absent.
func (b Balances) Get(key model.TokenKey) *big.Int {
	if v, ok := b[key]; ok && v != nil {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Aggregator fetches wallet balances across chains.
type Aggregator struct {
	source  Source
	cache   *Cache
	logger  *zap.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// NewAggregator builds an Aggregator. A non-positive ttl selects DefaultCacheTTL.
func NewAggregator(source Source, ttl time.Duration, logger *zap.Logger, recorder metrics.Recorder) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Aggregator{
		source:  source,
		cache:   NewCache(ttl),
		logger:  logger,
		metrics: metrics.OrNoop(recorder),
		now:     time.Now,
	}
}

// Fetch returns the balance of every requested token. Chains are queried
// concurrently; any token that cannot be read resolves to zero.
func (a *Aggregator) Fetch(ctx context.Context, wallet common.Address, tokens []model.TokenKey) Balances {
	byChain := make(map[uint64][]common.Address)
	seen := make(map[model.TokenKey]struct{}, len(tokens))
	for _, key := range tokens {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		byChain[key.ChainID] = append(byChain[key.ChainID], key.Address)
	}

	results := make(map[uint64]map[common.Address]*big.Int, len(byChain))
	resultCh := make(chan chainResult, len(byChain))

	var g errgroup.Group
	for chainID, addrs := range byChain {
		chainID, addrs := chainID, addrs
		g.Go(func() error {
			resultCh <- chainResult{chainID: chainID, balances: a.fetchChain(ctx, chainID, wallet, addrs)}
			return nil
		})
	}
	_ = g.Wait()
	close(resultCh)
	for res := range resultCh {
		results[res.chainID] = res.balances
	}

	out := make(Balances, len(seen))
	for key := range seen {
		v := results[key.ChainID][key.Address]
		if v == nil || v.Sign() < 0 {
			v = new(big.Int)
		}
		out[key] = v
	}
	return out
}

// Invalidate forgets cached balances of wallet, e.g. after a payment.
func (a *Aggregator) Invalidate(wallet common.Address) {
	a.cache.Invalidate(wallet)
}

type chainResult struct {
	chainID  uint64
	balances map[common.Address]*big.Int
}

func (a *Aggregator) fetchChain(ctx context.Context, chainID uint64, wallet common.Address, addrs []common.Address) map[common.Address]*big.Int {
	if cached, ok := a.cache.Lookup(chainID, wallet, addrs, a.now()); ok {
		a.metrics.IncCounter(metrics.BalanceCacheHit, map[string]string{"chain": chainLabel(chainID)})
		return cached
	}

	out := make(map[common.Address]*big.Int, len(addrs))
	reader, ok := a.source.Reader(chainID)
	if !ok {
		a.logger.Warn("no chain client for balances", zap.Uint64("chain_id", chainID))
		for _, addr := range addrs {
			out[addr] = new(big.Int)
		}
		return out
	}

	tokens := make([]common.Address, 0, len(addrs))
	for _, addr := range addrs {
		if addr == (common.Address{}) {
			out[addr] = a.nativeBalance(ctx, reader, chainID, wallet)
			continue
		}
		tokens = append(tokens, addr)
	}

	if len(tokens) > 0 {
		for token, v := range a.tokenBalances(ctx, reader, chainID, wallet, tokens) {
			out[token] = v
		}
	}

	a.cache.Store(chainID, wallet, out, a.now())
	return out
}

func (a *Aggregator) nativeBalance(ctx context.Context, reader Reader, chainID uint64, wallet common.Address) *big.Int {
	v, err := reader.NativeBalance(ctx, wallet)
	if err != nil || v == nil {
		a.logger.Warn("native balance failed", zap.Uint64("chain_id", chainID), zap.Error(err))
		return new(big.Int)
	}
	return v
}

// tokenBalances tries the batched RPC, then multicall, then one read per token.
func (a *Aggregator) tokenBalances(ctx context.Context, reader Reader, chainID uint64, wallet common.Address, tokens []common.Address) map[common.Address]*big.Int {
	batched, err := reader.TokenBalances(ctx, wallet, tokens)
	if err == nil {
		return fillMissing(batched, tokens)
	}
	if errors.Is(err, chain.ErrMethodUnsupported) {
		a.logger.Debug("batched balance method unsupported", zap.Uint64("chain_id", chainID))
	} else {
		a.logger.Warn("batched balance call failed", zap.Uint64("chain_id", chainID), zap.Error(err))
	}
	a.metrics.IncCounter(metrics.BalanceFallback, map[string]string{"chain": chainLabel(chainID), "tier": "multicall"})

	multi, err := reader.MulticallBalances(ctx, wallet, tokens)
	if err == nil {
		return fillMissing(multi, tokens)
	}
	a.logger.Warn("multicall balance call failed", zap.Uint64("chain_id", chainID), zap.Error(err))
	a.metrics.IncCounter(metrics.BalanceFallback, map[string]string{"chain": chainLabel(chainID), "tier": "individual"})

	return a.individualBalances(ctx, reader, chainID, wallet, tokens)
}

func (a *Aggregator) individualBalances(ctx context.Context, reader Reader, chainID uint64, wallet common.Address, tokens []common.Address) map[common.Address]*big.Int {
	unique := make([]common.Address, 0, len(tokens))
	seen := make(map[common.Address]struct{}, len(tokens))
	for _, token := range tokens {
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		unique = append(unique, token)
	}

	values := make([]*big.Int, len(unique))
	var g errgroup.Group
	g.SetLimit(individualReadConcurrency)
	for i, token := range unique {
		i, token := i, token
		g.Go(func() error {
			v, err := reader.TokenBalance(ctx, token, wallet)
			if err != nil || v == nil {
				a.logger.Debug("token balance failed",
					zap.Uint64("chain_id", chainID),
					zap.String("token", token.Hex()),
					zap.Error(err),
				)
				v = new(big.Int)
			}
			values[i] = v
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[common.Address]*big.Int, len(unique))
	for i, token := range unique {
		out[token] = values[i]
	}
	return out
}

func fillMissing(got map[common.Address]*big.Int, tokens []common.Address) map[common.Address]*big.Int {
	out := make(map[common.Address]*big.Int, len(tokens))
	for _, token := range tokens {
		if v, ok := got[token]; ok && v != nil {
			out[token] = v
			continue
		}
		out[token] = new(big.Int)
	}
	return out
}

func chainLabel(chainID uint64) string {
	return strconv.FormatUint(chainID, 10)
}
