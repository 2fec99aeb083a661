package chain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrMethodUnsupported is returned when the node does not expose the batched balance method.
var ErrMethodUnsupported = errors.New("rpc method unsupported")

const rpcMethodNotFound = -32601

// TokenMeta is the ERC-20 metadata read from chain.
type TokenMeta struct {
	Symbol   string
	Name     string
	Decimals uint8
}

// TokenMeta loads token metadata via ERC20 calls. Symbol and name fall back to
// the bytes32 variants used by older tokens.
func (c *Client) TokenMeta(ctx context.Context, token common.Address) (TokenMeta, error) {
	var meta TokenMeta

	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := c.callMethod(ctx, token, stringABI, "decimals")
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	if values, err := c.callMethod(ctx, token, stringABI, "symbol"); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := c.callMethod(ctx, token, bytes32ABI, "symbol"); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else {
		return meta, err
	}

	if values, err := c.callMethod(ctx, token, stringABI, "name"); err == nil {
		if name, ok := values[0].(string); ok {
			meta.Name = name
		}
	} else if values, err := c.callMethod(ctx, token, bytes32ABI, "name"); err == nil {
		if name, ok := bytes32ToString(values[0]); ok {
			meta.Name = name
		}
	}

	return meta, nil
}

// TokenBalance reads balanceOf(account) on a single token.
func (c *Client) TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	parsed, err := erc20ABIStringInstance()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := c.callMethod(ctx, token, parsed, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

type tokenBalancesResult struct {
	Address       string `json:"address"`
	TokenBalances []struct {
		ContractAddress string  `json:"contractAddress"`
		TokenBalance    *string `json:"tokenBalance"`
		Error           any     `json:"error"`
	} `json:"tokenBalances"`
}

// TokenBalances fetches balances for several tokens with one batched RPC call.
// Tokens the node reports an error for are omitted from the result.
func (c *Client) TokenBalances(ctx context.Context, account common.Address, tokens []common.Address) (map[common.Address]*big.Int, error) {
	var result tokenBalancesResult
	if err := c.rpcClient.CallContext(ctx, &result, c.balanceMethod, account, tokens); err != nil {
		if isMethodUnsupported(err) {
			return nil, fmt.Errorf("%s: %w", c.balanceMethod, ErrMethodUnsupported)
		}
		return nil, fmt.Errorf("%s: %w", c.balanceMethod, err)
	}

	out := make(map[common.Address]*big.Int, len(result.TokenBalances))
	for _, item := range result.TokenBalances {
		if item.Error != nil || item.TokenBalance == nil || !common.IsHexAddress(item.ContractAddress) {
			continue
		}
		raw := *item.TokenBalance
		if raw == "0x" {
			raw = "0x0"
		}
		value, err := hexutil.DecodeBig(trimHexZeros(raw))
		if err != nil {
			continue
		}
		out[common.HexToAddress(item.ContractAddress)] = value
	}
	return out, nil
}

type multicallCall struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type multicallResult struct {
	Success    bool
	ReturnData []byte
}

// MulticallBalances reads balanceOf for several tokens through Multicall3.
// Failed sub-calls are omitted from the result.
func (c *Client) MulticallBalances(ctx context.Context, account common.Address, tokens []common.Address) (map[common.Address]*big.Int, error) {
	erc20, err := erc20ABIStringInstance()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	mc, err := multicall3ABIInstance()
	if err != nil {
		return nil, fmt.Errorf("parse multicall abi: %w", err)
	}

	calls := make([]multicallCall, 0, len(tokens))
	for _, token := range tokens {
		data, err := erc20.Pack("balanceOf", account)
		if err != nil {
			return nil, fmt.Errorf("pack balanceOf: %w", err)
		}
		calls = append(calls, multicallCall{Target: token, AllowFailure: true, CallData: data})
	}

	values, err := c.callMethod(ctx, Multicall3Address, mc, "aggregate3", calls)
	if err != nil {
		return nil, err
	}
	results := *abi.ConvertType(values[0], new([]multicallResult)).(*[]multicallResult)
	if len(results) != len(tokens) {
		return nil, fmt.Errorf("aggregate3: expected %d results, got %d", len(tokens), len(results))
	}

	out := make(map[common.Address]*big.Int, len(tokens))
	for i, res := range results {
		if !res.Success || len(res.ReturnData) == 0 {
			continue
		}
		decoded, err := erc20.Unpack("balanceOf", res.ReturnData)
		if err != nil || len(decoded) == 0 {
			continue
		}
		if balance, err := asBigInt(decoded[0]); err == nil {
			out[tokens[i]] = balance
		}
	}
	return out, nil
}

func (c *Client) callMethod(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := c.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return values, nil
}

func isMethodUnsupported(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == rpcMethodNotFound {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "method not found") ||
		strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "not supported")
}

// trimHexZeros strips leading zeros that hexutil.DecodeBig rejects.
func trimHexZeros(s string) string {
	body := strings.TrimLeft(strings.TrimPrefix(s, "0x"), "0")
	if body == "" {
		body = "0"
	}
	return "0x" + body
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
