package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"payPlanner/internal/indexer"
	"payPlanner/internal/metrics"
	"payPlanner/internal/model"
	"payPlanner/internal/pricing"
)

// observation is one remote view of a deposit.
type observation struct {
	Source        string
	Status        model.Stage
	DepositID     *big.Int
	DepositTxHash string
	FillTxHash    string
	At            time.Time
}

// syncPollerLocked starts or stops the poller of e. Starting is idempotent.
func (s *Store) syncPollerLocked(e *model.PaymentHistoryEntry) {
	_, running := s.pollers[e.ID]
	eligible := !s.closed && !e.Terminal() && e.Trackable()
	switch {
	case eligible && !running:
		ctx, cancel := context.WithCancel(s.baseCtx)
		s.pollers[e.ID] = cancel
		s.wg.Add(1)
		go s.poll(ctx, e.ID)
	case !eligible && running:
		s.stopPollerLocked(e.ID)
	}
}

func (s *Store) stopPollerLocked(id string) {
	if cancel, ok := s.pollers[id]; ok {
		cancel()
		delete(s.pollers, id)
	}
}

func (s *Store) stopPollersLocked() {
	for id := range s.pollers {
		s.stopPollerLocked(id)
	}
}

func (s *Store) poll(ctx context.Context, id string) {
	defer s.wg.Done()
	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if !s.pollOnce(ctx, id) {
			return
		}
		timer.Reset(s.cfg.PollInterval)
	}
}

// pollOnce runs one tick and reports whether polling should continue.
func (s *Store) pollOnce(ctx context.Context, id string) bool {
	entry, ok := s.Entry(id)
	if !ok || entry.Terminal() {
		return false
	}

	obs, err := s.lookup(ctx, entry)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.recorder.IncCounter(metrics.PollTick, map[string]string{"source": "none", "result": "miss"})
		s.logger.Debug("poll tick found nothing", zap.String("entry_id", id), zap.Error(err))
		return true
	}
	s.recorder.IncCounter(metrics.PollTick, map[string]string{"source": obs.Source, "result": string(obs.Status)})
	if !changes(entry, obs) {
		return true
	}

	updated, ok := s.observe(ctx, id, obs)
	return ok && !updated.Terminal()
}

// lookup queries the on-chain tracker by deposit id, then by deposit
// transaction, then the remote indexer. The first success wins.
func (s *Store) lookup(ctx context.Context, e model.PaymentHistoryEntry) (observation, error) {
	var errs []error
	if s.tracker != nil {
		originPool := poolAddress(e.OriginSpokePool, s.spokePool(e.OriginChainID))
		destPool := poolAddress(e.DestinationSpokePool, s.spokePool(e.DestinationChainID))

		if e.DepositID != nil && originPool != (common.Address{}) {
			st, err := s.tracker.GetDeposit(ctx, pricing.FindDeposit{
				OriginChainID:        e.OriginChainID,
				DestinationChainID:   e.DestinationChainID,
				OriginSpokePool:      originPool,
				DestinationSpokePool: destPool,
				DepositID:            e.DepositID,
			})
			if err == nil {
				return fromTracker("deposit", st), nil
			}
			errs = append(errs, fmt.Errorf("get deposit: %w", err))
		}
		if e.DepositTxHash != "" {
			st, err := s.tracker.GetFillByDepositTx(ctx, pricing.DepositRef{
				OriginChainID:        e.OriginChainID,
				DestinationChainID:   e.DestinationChainID,
				OriginSpokePool:      originPool,
				DestinationSpokePool: destPool,
				DepositTxHash:        common.HexToHash(e.DepositTxHash),
			})
			if err == nil {
				return fromTracker("fill_by_tx", st), nil
			}
			errs = append(errs, fmt.Errorf("get fill by deposit tx: %w", err))
		}
	}
	if s.remote != nil {
		dep, err := s.remote.FindDeposit(ctx, indexer.Lookup{
			OriginChainID:      e.OriginChainID,
			DestinationChainID: e.DestinationChainID,
			DepositID:          e.DepositID,
			DepositTxHash:      e.DepositTxHash,
		})
		if err == nil {
			at := dep.FilledAt
			if at.IsZero() {
				at = dep.DepositedAt
			}
			return observation{
				Source:        "indexer",
				Status:        dep.Status,
				DepositID:     dep.DepositID,
				DepositTxHash: dep.DepositTxHash,
				FillTxHash:    dep.FillTxHash,
				At:            at,
			}, nil
		}
		errs = append(errs, fmt.Errorf("indexer: %w", err))
	}
	if len(errs) == 0 {
		return observation{}, errors.New("no lookup source available")
	}
	return observation{}, errors.Join(errs...)
}

// changes reports whether applying obs would alter e.
func changes(e model.PaymentHistoryEntry, obs observation) bool {
	switch {
	case e.DepositID == nil && obs.DepositID != nil:
		return true
	case e.DepositTxHash == "" && obs.DepositTxHash != "":
		return true
	case obs.Status == model.StageRelayFilled, obs.Status == model.StageFilled,
		obs.Status == model.StageSettled, obs.Status == model.StageFailed:
		return true
	default:
		return ahead(obs.Status, e.Status)
	}
}

func fromTracker(source string, st pricing.DepositStatus) observation {
	return observation{
		Source:        source,
		Status:        st.Status,
		DepositID:     st.DepositID,
		DepositTxHash: st.DepositTxHash,
		FillTxHash:    st.FillTxHash,
		At:            st.ObservedAt,
	}
}

func poolAddress(stored, configured string) common.Address {
	for _, s := range []string{stored, configured} {
		if common.IsHexAddress(s) {
			return common.HexToAddress(s)
		}
	}
	return common.Address{}
}

// observe applies a remote observation to the entry with id.
func (s *Store) observe(ctx context.Context, id string, obs observation) (model.PaymentHistoryEntry, bool) {
	return s.mutate(ctx, id, "observe_"+obs.Source, func(e *model.PaymentHistoryEntry, now time.Time) {
		if e.DepositID == nil && obs.DepositID != nil {
			e.DepositID = new(big.Int).Set(obs.DepositID)
		}
		if e.DepositTxHash == "" {
			e.DepositTxHash = obs.DepositTxHash
		}
		at := obs.At
		if at.IsZero() {
			at = now
		}
		switch obs.Status {
		case model.StageRelayFilled, model.StageFilled, model.StageSettled:
			settle(e, fillStage(e.Mode), obs.FillTxHash, at, now)
		case model.StageFailed:
			msg := "deposit reported failed by " + obs.Source
			e.AppendError(msg)
			e.UpsertTimeline(model.StageFailed, at, "", msg)
			e.Status = model.StageFailed
		default:
			if ahead(obs.Status, e.Status) {
				advance(e, obs.Status, at, "")
			}
		}
	})
}
