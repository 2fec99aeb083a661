package pricing

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"payPlanner/internal/chain"
	"payPlanner/internal/model"
)

var (
	// ErrDepositNotFound means no deposit event matched the lookup.
	ErrDepositNotFound = errors.New("deposit not found")
	// ErrFillNotFound means the deposit exists but no fill was observed.
	ErrFillNotFound = errors.New("fill not found")
)

// LogReader is the chain access the tracker needs.
type LogReader interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, from, to uint64, address common.Address, topics [][]common.Hash) ([]types.Log, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// LogSource returns the LogReader of a chain.
type LogSource interface {
	LogReader(chainID uint64) (LogReader, bool)
}

type registrySource struct{ reg *chain.Registry }

func (s registrySource) LogReader(chainID uint64) (LogReader, bool) {
	c, ok := s.reg.Client(chainID)
	if !ok {
		return nil, false
	}
	return c, true
}

// LogsFromRegistry adapts a chain registry to a LogSource.
func LogsFromRegistry(reg *chain.Registry) LogSource {
	return registrySource{reg: reg}
}

// FindDeposit identifies a deposit by chains, spoke pools and id.
type FindDeposit struct {
	OriginChainID        uint64
	DestinationChainID   uint64
	OriginSpokePool      common.Address
	DestinationSpokePool common.Address
	DepositID            *big.Int
}

// DepositRef identifies a deposit by its origin transaction.
type DepositRef struct {
	OriginChainID        uint64
	DestinationChainID   uint64
	OriginSpokePool      common.Address
	DestinationSpokePool common.Address
	DepositTxHash        common.Hash
}

// DepositStatus is what the tracker learned about a deposit.
type DepositStatus struct {
	DepositID     *big.Int
	DepositTxHash string
	FillTxHash    string
	Status        model.Stage
	ObservedAt    time.Time
}

// Tracker follows deposits and fills through spoke pool logs.
type Tracker struct {
	source    LogSource
	lookback  uint64
	batchSize uint64
	logger    *zap.Logger
}

// NewTracker creates a tracker scanning the last lookback blocks in batchSize chunks.
func NewTracker(source LogSource, lookback, batchSize uint64, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize == 0 {
		batchSize = 5000
	}
	return &Tracker{source: source, lookback: lookback, batchSize: batchSize, logger: logger}
}

// GetDeposit finds the deposit and, when present, its fill.
func (t *Tracker) GetDeposit(ctx context.Context, find FindDeposit) (DepositStatus, error) {
	if find.DepositID == nil {
		return DepositStatus{}, fmt.Errorf("deposit id required")
	}
	spokeABI, err := chain.SpokePoolABI()
	if err != nil {
		return DepositStatus{}, fmt.Errorf("load spoke pool abi: %w", err)
	}
	origin, ok := t.source.LogReader(find.OriginChainID)
	if !ok {
		return DepositStatus{}, fmt.Errorf("chain %d not configured", find.OriginChainID)
	}

	topics := [][]common.Hash{
		{spokeABI.Events["FundsDeposited"].ID},
		{uintTopic(new(big.Int).SetUint64(find.DestinationChainID))},
		{uintTopic(find.DepositID)},
	}
	deposit, err := t.latestLog(ctx, origin, find.OriginSpokePool, topics)
	if err != nil {
		return DepositStatus{}, fmt.Errorf("search deposit: %w", err)
	}
	if deposit == nil {
		return DepositStatus{}, ErrDepositNotFound
	}

	status := DepositStatus{
		DepositID:     new(big.Int).Set(find.DepositID),
		DepositTxHash: deposit.TxHash.Hex(),
		Status:        model.StageRelayPending,
		ObservedAt:    t.blockTime(ctx, origin, deposit.BlockNumber),
	}
	return t.withFill(ctx, status, find.OriginChainID, find.DestinationChainID, find.DestinationSpokePool)
}

// GetFillByDepositTx recovers the deposit id from the deposit receipt and
// searches the destination chain for the fill.
func (t *Tracker) GetFillByDepositTx(ctx context.Context, ref DepositRef) (DepositStatus, error) {
	spokeABI, err := chain.SpokePoolABI()
	if err != nil {
		return DepositStatus{}, fmt.Errorf("load spoke pool abi: %w", err)
	}
	origin, ok := t.source.LogReader(ref.OriginChainID)
	if !ok {
		return DepositStatus{}, fmt.Errorf("chain %d not configured", ref.OriginChainID)
	}
	receipt, err := origin.TransactionReceipt(ctx, ref.DepositTxHash)
	if err != nil {
		return DepositStatus{}, fmt.Errorf("fetch receipt %s: %w", ref.DepositTxHash.Hex(), err)
	}

	depositEvent := spokeABI.Events["FundsDeposited"].ID
	var depositID *big.Int
	for _, lg := range receipt.Logs {
		if lg == nil || len(lg.Topics) < 3 || lg.Topics[0] != depositEvent {
			continue
		}
		if ref.OriginSpokePool != (common.Address{}) && lg.Address != ref.OriginSpokePool {
			continue
		}
		depositID = new(big.Int).SetBytes(lg.Topics[2].Bytes())
		break
	}
	if depositID == nil {
		return DepositStatus{}, ErrDepositNotFound
	}

	status := DepositStatus{
		DepositID:     depositID,
		DepositTxHash: ref.DepositTxHash.Hex(),
		Status:        model.StageRelayPending,
		ObservedAt:    t.blockTime(ctx, origin, receipt.BlockNumber.Uint64()),
	}
	status, err = t.withFill(ctx, status, ref.OriginChainID, ref.DestinationChainID, ref.DestinationSpokePool)
	if err != nil {
		return status, err
	}
	if status.FillTxHash == "" && status.Status == model.StageRelayPending {
		return status, ErrFillNotFound
	}
	return status, nil
}

func (t *Tracker) withFill(ctx context.Context, status DepositStatus, originChainID, destChainID uint64, destPool common.Address) (DepositStatus, error) {
	dest, ok := t.source.LogReader(destChainID)
	if !ok || destPool == (common.Address{}) {
		return status, nil
	}
	originTopic := uintTopic(new(big.Int).SetUint64(originChainID))
	idTopic := uintTopic(status.DepositID)

	fill, err := t.latestLog(ctx, dest, destPool, [][]common.Hash{{chain.FilledRelayTopic}, {originTopic}, {idTopic}})
	if err != nil {
		return status, fmt.Errorf("search fill: %w", err)
	}
	if fill != nil {
		status.FillTxHash = fill.TxHash.Hex()
		status.Status = model.StageRelayFilled
		status.ObservedAt = t.blockTime(ctx, dest, fill.BlockNumber)
		return status, nil
	}

	slow, err := t.latestLog(ctx, dest, destPool, [][]common.Hash{{chain.RequestedSlowFillTopic}, {originTopic}, {idTopic}})
	if err != nil {
		return status, fmt.Errorf("search slow fill: %w", err)
	}
	if slow != nil {
		status.Status = model.StageRequestedSlowFill
		status.ObservedAt = t.blockTime(ctx, dest, slow.BlockNumber)
	}
	return status, nil
}

// latestLog scans the lookback window newest batch first and returns the
// first matching log, or nil.
func (t *Tracker) latestLog(ctx context.Context, reader LogReader, address common.Address, topics [][]common.Hash) (*types.Log, error) {
	latest, err := reader.LatestBlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest block: %w", err)
	}
	ranges, err := chain.LookbackRanges(latest, t.lookback, t.batchSize)
	if err != nil {
		return nil, err
	}
	for _, r := range ranges {
		logs, err := reader.FilterLogs(ctx, r.From, r.To, address, topics)
		if err != nil {
			return nil, fmt.Errorf("filter logs %d-%d: %w", r.From, r.To, err)
		}
		for j := len(logs) - 1; j >= 0; j-- {
			if !logs[j].Removed {
				lg := logs[j]
				return &lg, nil
			}
		}
	}
	return nil, nil
}

func (t *Tracker) blockTime(ctx context.Context, reader LogReader, number uint64) time.Time {
	ts, err := reader.BlockTimestamp(ctx, number)
	if err != nil {
		t.logger.Debug("block timestamp unavailable", zap.Uint64("block", number), zap.Error(err))
		return time.Now().UTC()
	}
	return time.Unix(int64(ts), 0).UTC()
}

func uintTopic(v *big.Int) common.Hash {
	return common.BigToHash(v)
}
