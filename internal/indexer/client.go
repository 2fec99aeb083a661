package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// DefaultBaseURL is the public deposit indexer.
const DefaultBaseURL = "https://indexer.api.across.to"

// ErrNotFound means the indexer has no matching deposit.
var ErrNotFound = errors.New("deposit not indexed")

// Config controls the indexer client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

// Client queries the remote deposit indexer.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    int
	backoff    time.Duration
	logger     *zap.Logger
}

// NewClient creates an indexer client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
		retries:    cfg.Retries,
		backoff:    cfg.Backoff,
		logger:     logger,
	}
}

// Lookup selects one deposit, by id on a chain pair or by deposit transaction.
type Lookup struct {
	OriginChainID      uint64
	DestinationChainID uint64
	DepositID          *big.Int
	DepositTxHash      string
}

// ListDeposits returns the most recent deposits of depositor.
func (c *Client) ListDeposits(ctx context.Context, depositor common.Address, limit int) ([]Deposit, error) {
	params := url.Values{}
	params.Set("depositor", depositor.Hex())
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	return c.deposits(ctx, params)
}

// FindDeposit returns the deposit matching lookup or ErrNotFound.
func (c *Client) FindDeposit(ctx context.Context, lookup Lookup) (Deposit, error) {
	params := url.Values{}
	switch {
	case lookup.DepositTxHash != "":
		params.Set("depositTxHash", lookup.DepositTxHash)
	case lookup.DepositID != nil:
		params.Set("depositId", lookup.DepositID.String())
	default:
		return Deposit{}, fmt.Errorf("lookup needs a deposit id or transaction hash")
	}
	if lookup.OriginChainID != 0 {
		params.Set("originChainId", strconv.FormatUint(lookup.OriginChainID, 10))
	}
	if lookup.DestinationChainID != 0 {
		params.Set("destinationChainId", strconv.FormatUint(lookup.DestinationChainID, 10))
	}
	params.Set("limit", "1")

	deposits, err := c.deposits(ctx, params)
	if err != nil {
		return Deposit{}, err
	}
	if len(deposits) == 0 {
		return Deposit{}, ErrNotFound
	}
	return deposits[0], nil
}

func (c *Client) deposits(ctx context.Context, params url.Values) ([]Deposit, error) {
	var body []byte
	err := withRetry(ctx, c.retries, c.backoff, func(ctx context.Context) error {
		var err error
		body, err = c.get(ctx, "/deposits", params)
		if err != nil {
			c.logger.Warn("indexer request failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("query deposits: %w", err)
	}

	raw, err := recordList(body)
	if err != nil {
		return nil, fmt.Errorf("decode deposits: %w", err)
	}
	out := make([]Deposit, 0, len(raw))
	for _, item := range raw {
		dep, err := parseDeposit(item)
		if err != nil {
			c.logger.Warn("skipping malformed deposit record", zap.Error(err))
			continue
		}
		out = append(out, dep)
	}
	return out, nil
}

// StatusError is a non-200 indexer response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("indexer status %d: %s", e.StatusCode, e.Body)
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return []byte("[]"), nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body))}
	default:
		return nil, permanent(&StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body))})
	}
}

// recordList accepts either a bare array or an object wrapping one under
// "deposits".
func recordList(body []byte) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var wrapped struct {
			Deposits []json.RawMessage `json:"deposits"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, err
		}
		return wrapped.Deposits, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 256 {
		return s[:256]
	}
	return s
}
