package chain

import "fmt"

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// TrailingRange returns the inclusive range covering the last n blocks up to
// latest. A zero n, or one reaching past genesis, covers the whole chain.
func TrailingRange(latest, n uint64) BlockRange {
	if n == 0 || n > latest {
		return BlockRange{From: 0, To: latest}
	}
	return BlockRange{From: latest - n + 1, To: latest}
}

// LookbackRanges splits the last lookback blocks up to latest into batches,
// newest batch first. Only the oldest batch may be shorter than batchSize.
func LookbackRanges(latest, lookback, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	window := TrailingRange(latest, lookback)
	ranges := make([]BlockRange, 0, (window.To-window.From)/batchSize+1)
	end := window.To
	for {
		start := window.From
		if end-window.From+1 > batchSize {
			start = end - batchSize + 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if start == window.From {
			return ranges, nil
		}
		end = start - 1
	}
}
