package pricing

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"payPlanner/internal/chain"
	"payPlanner/internal/model"
)

type fakeLogReader struct {
	latest   uint64
	logs     []types.Log
	receipts map[common.Hash]*types.Receipt
	queries  int
}

func (f *fakeLogReader) LatestBlockNumber(context.Context) (uint64, error) { return f.latest, nil }

func (f *fakeLogReader) FilterLogs(_ context.Context, from, to uint64, address common.Address, topics [][]common.Hash) ([]types.Log, error) {
	f.queries++
	var out []types.Log
	for _, lg := range f.logs {
		if lg.BlockNumber < from || lg.BlockNumber > to || lg.Address != address {
			continue
		}
		if matchTopics(lg.Topics, topics) {
			out = append(out, lg)
		}
	}
	return out, nil
}

func matchTopics(have []common.Hash, want [][]common.Hash) bool {
	for i, options := range want {
		if len(options) == 0 {
			continue
		}
		if i >= len(have) || have[i] != options[0] {
			return false
		}
	}
	return true
}

func (f *fakeLogReader) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	r, ok := f.receipts[hash]
	if !ok {
		return nil, errors.New("not found")
	}
	return r, nil
}

func (f *fakeLogReader) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	return 1_700_000_000 + number, nil
}

type fakeLogSource map[uint64]*fakeLogReader

func (s fakeLogSource) LogReader(chainID uint64) (LogReader, bool) {
	r, ok := s[chainID]
	if !ok {
		return nil, false
	}
	return r, true
}

var (
	originPool = common.HexToAddress("0x09aea4b2242abC8bb4BB78D537A67a245A7bEC64")
	destPool   = common.HexToAddress("0xe35e9842fceaCA96570B734083f4a58e8F7C5f2A")
)

func depositLog(t *testing.T, block uint64, destChain uint64, id int64, tx common.Hash) types.Log {
	t.Helper()
	spokeABI, err := chain.SpokePoolABI()
	require.NoError(t, err)
	return types.Log{
		Address:     originPool,
		BlockNumber: block,
		TxHash:      tx,
		Topics: []common.Hash{
			spokeABI.Events["FundsDeposited"].ID,
			common.BigToHash(new(big.Int).SetUint64(destChain)),
			common.BigToHash(big.NewInt(id)),
			common.Hash{},
		},
	}
}

func TestGetDepositFindsFill(t *testing.T) {
	depositTx := common.HexToHash("0xd1")
	fillTx := common.HexToHash("0xf1")
	origin := &fakeLogReader{latest: 20_000, logs: []types.Log{depositLog(t, 19_990, 42161, 77, depositTx)}}
	dest := &fakeLogReader{latest: 9_000, logs: []types.Log{{
		Address:     destPool,
		BlockNumber: 8_000,
		TxHash:      fillTx,
		Topics:      []common.Hash{chain.FilledRelayTopic, common.BigToHash(big.NewInt(8453)), common.BigToHash(big.NewInt(77))},
	}}}
	tracker := NewTracker(fakeLogSource{8453: origin, 42161: dest}, 10_000, 1_000, nil)

	status, err := tracker.GetDeposit(context.Background(), FindDeposit{
		OriginChainID:        8453,
		DestinationChainID:   42161,
		OriginSpokePool:      originPool,
		DestinationSpokePool: destPool,
		DepositID:            big.NewInt(77),
	})
	require.NoError(t, err)
	require.Equal(t, model.StageRelayFilled, status.Status)
	require.Equal(t, depositTx.Hex(), status.DepositTxHash)
	require.Equal(t, fillTx.Hex(), status.FillTxHash)
	require.Equal(t, int64(1_700_008_000), status.ObservedAt.Unix())
	// newest batch first: the deposit sits in the last batch so one query suffices
	require.Equal(t, 1, origin.queries)
}

func TestGetDepositNotFound(t *testing.T) {
	origin := &fakeLogReader{latest: 100}
	tracker := NewTracker(fakeLogSource{8453: origin}, 50, 10, nil)

	_, err := tracker.GetDeposit(context.Background(), FindDeposit{
		OriginChainID: 8453, DestinationChainID: 10, OriginSpokePool: originPool, DepositID: big.NewInt(1),
	})
	require.ErrorIs(t, err, ErrDepositNotFound)
	require.Equal(t, 5, origin.queries)
}

func TestGetFillByDepositTx(t *testing.T) {
	depositTx := common.HexToHash("0xd2")
	lg := depositLog(t, 500, 42161, 12, depositTx)
	origin := &fakeLogReader{latest: 600, receipts: map[common.Hash]*types.Receipt{
		depositTx: {BlockNumber: big.NewInt(500), Logs: []*types.Log{&lg}},
	}}
	dest := &fakeLogReader{latest: 900, logs: []types.Log{{
		Address:     destPool,
		BlockNumber: 880,
		Topics:      []common.Hash{chain.RequestedSlowFillTopic, common.BigToHash(big.NewInt(8453)), common.BigToHash(big.NewInt(12))},
	}}}
	tracker := NewTracker(fakeLogSource{8453: origin, 42161: dest}, 1_000, 100, nil)

	ref := DepositRef{OriginChainID: 8453, DestinationChainID: 42161, OriginSpokePool: originPool, DestinationSpokePool: destPool, DepositTxHash: depositTx}
	status, err := tracker.GetFillByDepositTx(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, model.StageRequestedSlowFill, status.Status)
	require.Equal(t, "12", status.DepositID.String())

	dest.logs = nil
	status, err = tracker.GetFillByDepositTx(context.Background(), ref)
	require.ErrorIs(t, err, ErrFillNotFound)
	require.Equal(t, model.StageRelayPending, status.Status)
}
