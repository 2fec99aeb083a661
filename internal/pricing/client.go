package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// DefaultBaseURL is the public bridge pricing API.
const DefaultBaseURL = "https://app.across.to/api"

// Config controls the pricing client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	SpokePools map[uint64]common.Address
}

// Client talks to the bridge pricing API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	spokePools map[uint64]common.Address
	logger     *zap.Logger
}

// NewClient creates a pricing client.
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
	pools := make(map[uint64]common.Address, len(cfg.SpokePools))
	for id, addr := range cfg.SpokePools {
		pools[id] = addr
	}
	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
		spokePools: pools,
		logger:     logger,
	}
}

// APIError is a non-200 response from the pricing API.
type APIError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pricing api %s: status %d: %s", e.Path, e.StatusCode, e.Body)
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request %s: %w", path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("pricing api call",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// SpokePoolAddress returns the configured spoke pool on chainID.
func (c *Client) SpokePoolAddress(chainID uint64) (common.Address, error) {
	addr, ok := c.spokePools[chainID]
	if !ok {
		return common.Address{}, fmt.Errorf("no spoke pool configured for chain %d", chainID)
	}
	return addr, nil
}
