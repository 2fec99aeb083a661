package pricing

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"payPlanner/internal/model"
)

// AvailableRoute is a bridge route reported by the pricing API.
type AvailableRoute struct {
	model.Route
	InputSymbol  string
	OutputSymbol string
}

type routeResponse struct {
	OriginChainID          uint64 `json:"originChainId"`
	OriginToken            string `json:"originToken"`
	DestinationChainID     uint64 `json:"destinationChainId"`
	DestinationToken       string `json:"destinationToken"`
	OriginTokenSymbol      string `json:"originTokenSymbol"`
	DestinationTokenSymbol string `json:"destinationTokenSymbol"`
	IsNative               bool   `json:"isNative"`
}

// AvailableRoutes lists routes delivering token on chainID.
func (c *Client) AvailableRoutes(ctx context.Context, token common.Address, chainID uint64) ([]AvailableRoute, error) {
	params := url.Values{}
	params.Set("destinationChainId", strconv.FormatUint(chainID, 10))
	params.Set("destinationToken", token.Hex())

	var resp []routeResponse
	if err := c.getJSON(ctx, "/available-routes", params, &resp); err != nil {
		return nil, err
	}

	routes := make([]AvailableRoute, 0, len(resp))
	for _, r := range resp {
		if !common.IsHexAddress(r.OriginToken) || !common.IsHexAddress(r.DestinationToken) {
			continue
		}
		routes = append(routes, AvailableRoute{
			Route: model.Route{
				OriginChainID:      r.OriginChainID,
				DestinationChainID: r.DestinationChainID,
				InputToken:         common.HexToAddress(r.OriginToken),
				OutputToken:        common.HexToAddress(r.DestinationToken),
				IsNative:           r.IsNative,
			},
			InputSymbol:  r.OriginTokenSymbol,
			OutputSymbol: r.DestinationTokenSymbol,
		})
	}
	return routes, nil
}

type swapTokenResponse struct {
	ChainID  uint64 `json:"chainId"`
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	LogoURL  string `json:"logoUrl"`
	PriceUSD string `json:"priceUsd"`
}

// SwapTokens returns the token catalogue with USD prices.
func (c *Client) SwapTokens(ctx context.Context) ([]model.ListedToken, error) {
	var resp []swapTokenResponse
	if err := c.getJSON(ctx, "/swap/tokens", nil, &resp); err != nil {
		return nil, err
	}

	out := make([]model.ListedToken, 0, len(resp))
	for _, t := range resp {
		if !common.IsHexAddress(t.Address) {
			continue
		}
		item := model.ListedToken{TokenDescriptor: model.TokenDescriptor{
			Address:  common.HexToAddress(t.Address),
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
			ChainID:  t.ChainID,
			LogoURL:  t.LogoURL,
		}}
		if t.PriceUSD != "" {
			if price, err := decimal.NewFromString(t.PriceUSD); err == nil {
				item.PriceUSD = &price
			}
		}
		out = append(out, item)
	}
	return out, nil
}

type limitsResponse struct {
	MinDeposit string `json:"minDeposit"`
	MaxDeposit string `json:"maxDeposit"`
}

func (l limitsResponse) parse() (model.DepositLimits, error) {
	minDeposit, err := model.ParseAmount(l.MinDeposit)
	if err != nil {
		return model.DepositLimits{}, fmt.Errorf("min deposit: %w", err)
	}
	maxDeposit, err := model.ParseAmount(l.MaxDeposit)
	if err != nil {
		return model.DepositLimits{}, fmt.Errorf("max deposit: %w", err)
	}
	return model.DepositLimits{MinDeposit: minDeposit, MaxDeposit: maxDeposit}, nil
}

func routeParams(route model.Route) url.Values {
	params := url.Values{}
	params.Set("inputToken", route.InputToken.Hex())
	params.Set("outputToken", route.OutputToken.Hex())
	params.Set("originChainId", strconv.FormatUint(route.OriginChainID, 10))
	params.Set("destinationChainId", strconv.FormatUint(route.DestinationChainID, 10))
	return params
}

// Limits returns the deposit bounds of a route.
func (c *Client) Limits(ctx context.Context, route model.Route) (model.DepositLimits, error) {
	var resp limitsResponse
	if err := c.getJSON(ctx, "/limits", routeParams(route), &resp); err != nil {
		return model.DepositLimits{}, err
	}
	return resp.parse()
}

// CrossChainMessage is a destination contract call attached to a deposit.
// FallbackRecipient receives the funds if the call reverts.
type CrossChainMessage struct {
	Message           []byte
	FallbackRecipient common.Address
}

// QuoteRequest asks for a bridge quote at a given input amount.
type QuoteRequest struct {
	Route     model.Route
	Amount    *big.Int
	Recipient common.Address
	Message   *CrossChainMessage
}

type suggestedFeesResponse struct {
	TotalRelayFee struct {
		Total string `json:"total"`
	} `json:"totalRelayFee"`
	OutputAmount string         `json:"outputAmount"`
	Timestamp    string         `json:"timestamp"`
	FillDeadline string         `json:"fillDeadline"`
	Limits       limitsResponse `json:"limits"`
}

// Quote prices a bridge deposit of req.Amount.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (model.QuoteSummary, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return model.QuoteSummary{}, fmt.Errorf("quote amount must be positive")
	}
	params := routeParams(req.Route)
	params.Set("amount", req.Amount.String())
	params.Set("recipient", req.Recipient.Hex())
	if req.Message != nil {
		params.Set("message", "0x"+hex.EncodeToString(req.Message.Message))
		params.Set("fallbackRecipient", req.Message.FallbackRecipient.Hex())
	}

	var resp suggestedFeesResponse
	if err := c.getJSON(ctx, "/suggested-fees", params, &resp); err != nil {
		return model.QuoteSummary{}, err
	}

	fee, err := model.ParseAmount(resp.TotalRelayFee.Total)
	if err != nil {
		return model.QuoteSummary{}, fmt.Errorf("relay fee: %w", err)
	}
	output := new(big.Int).Sub(req.Amount, fee)
	if resp.OutputAmount != "" {
		if output, err = model.ParseAmount(resp.OutputAmount); err != nil {
			return model.QuoteSummary{}, fmt.Errorf("output amount: %w", err)
		}
	}
	if output.Sign() < 0 {
		output = new(big.Int)
	}
	limits, err := resp.Limits.parse()
	if err != nil {
		return model.QuoteSummary{}, err
	}

	return model.QuoteSummary{
		InputAmount:  new(big.Int).Set(req.Amount),
		OutputAmount: output,
		TotalFee:     fee,
		ExpiresAt:    unixString(resp.FillDeadline),
		Limits:       limits,
	}, nil
}

// SwapQuoteRequest asks for the input needed to deliver Amount of the output token.
type SwapQuoteRequest struct {
	Route     model.Route
	Amount    *big.Int
	Depositor common.Address
	Recipient common.Address
	Slippage  decimal.Decimal
	AppFee    *decimal.Decimal
}

type swapApprovalResponse struct {
	InputAmount          string `json:"inputAmount"`
	ExpectedOutputAmount string `json:"expectedOutputAmount"`
	MinOutputAmount      string `json:"minOutputAmount"`
	ExpectedFillTime     int64  `json:"expectedFillTime"`
	ApprovalTxns         []struct {
		ChainID uint64 `json:"chainId"`
		To      string `json:"to"`
		Data    string `json:"data"`
	} `json:"approvalTxns"`
}

// SwapQuote prices an exact-output swap.
func (c *Client) SwapQuote(ctx context.Context, req SwapQuoteRequest) (model.SwapQuoteSummary, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return model.SwapQuoteSummary{}, fmt.Errorf("swap amount must be positive")
	}
	params := routeParams(req.Route)
	params.Set("tradeType", "exactOutput")
	params.Set("amount", req.Amount.String())
	params.Set("depositor", req.Depositor.Hex())
	params.Set("recipient", req.Recipient.Hex())
	params.Set("slippageTolerance", req.Slippage.Mul(decimal.NewFromInt(100)).String())
	if req.AppFee != nil {
		params.Set("appFee", req.AppFee.String())
	}

	var resp swapApprovalResponse
	if err := c.getJSON(ctx, "/swap/approval", params, &resp); err != nil {
		return model.SwapQuoteSummary{}, err
	}

	input, err := model.ParseAmount(resp.InputAmount)
	if err != nil {
		return model.SwapQuoteSummary{}, fmt.Errorf("input amount: %w", err)
	}
	expected, err := model.ParseAmount(resp.ExpectedOutputAmount)
	if err != nil {
		return model.SwapQuoteSummary{}, fmt.Errorf("expected output: %w", err)
	}
	minOut, err := model.ParseAmount(resp.MinOutputAmount)
	if err != nil {
		return model.SwapQuoteSummary{}, fmt.Errorf("min output: %w", err)
	}

	approvals := make([]model.ApprovalTx, 0, len(resp.ApprovalTxns))
	for _, tx := range resp.ApprovalTxns {
		approvals = append(approvals, model.ApprovalTx{
			ChainID: tx.ChainID,
			To:      common.HexToAddress(tx.To),
			Data:    tx.Data,
		})
	}

	return model.SwapQuoteSummary{
		InputAmount:       input,
		ExpectedOutput:    expected,
		MinOutput:         minOut,
		Approvals:         approvals,
		EstimatedFillTime: time.Duration(resp.ExpectedFillTime) * time.Second,
	}, nil
}

func unixString(s string) time.Time {
	secs, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
