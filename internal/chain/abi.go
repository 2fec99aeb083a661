package chain

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Multicall3Address is the canonical Multicall3 deployment shared by most EVM chains.
var Multicall3Address = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

const erc20ABIStringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "owner", "type": "address"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const erc20ABIBytes32JSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

const multicall3ABIJSON = `[
  {"inputs": [{"components": [
      {"name": "target", "type": "address"},
      {"name": "allowFailure", "type": "bool"},
      {"name": "callData", "type": "bytes"}
    ], "name": "calls", "type": "tuple[]"}],
   "name": "aggregate3",
   "outputs": [{"components": [
      {"name": "success", "type": "bool"},
      {"name": "returnData", "type": "bytes"}
    ], "name": "returnData", "type": "tuple[]"}],
   "stateMutability": "payable", "type": "function"}
]`

const spokePoolABIJSON = `[
  {"anonymous": false, "name": "FundsDeposited", "type": "event", "inputs": [
    {"indexed": false, "name": "inputToken", "type": "bytes32"},
    {"indexed": false, "name": "outputToken", "type": "bytes32"},
    {"indexed": false, "name": "inputAmount", "type": "uint256"},
    {"indexed": false, "name": "outputAmount", "type": "uint256"},
    {"indexed": true, "name": "destinationChainId", "type": "uint256"},
    {"indexed": true, "name": "depositId", "type": "uint256"},
    {"indexed": false, "name": "quoteTimestamp", "type": "uint32"},
    {"indexed": false, "name": "fillDeadline", "type": "uint32"},
    {"indexed": false, "name": "exclusivityDeadline", "type": "uint32"},
    {"indexed": true, "name": "depositor", "type": "bytes32"},
    {"indexed": false, "name": "recipient", "type": "bytes32"},
    {"indexed": false, "name": "exclusiveRelayer", "type": "bytes32"},
    {"indexed": false, "name": "message", "type": "bytes"}
  ]}
]`

// FilledRelayTopic is topic0 of the spoke pool fill event. Topic1 is the origin
// chain id, topic2 the deposit id.
var FilledRelayTopic = crypto.Keccak256Hash([]byte(
	"FilledRelay(bytes32,bytes32,uint256,uint256,uint256,uint256,uint256,uint32,uint32,bytes32,bytes32,bytes32,bytes32,bytes32,(bytes32,bytes32,uint256,uint8))",
))

// RequestedSlowFillTopic is topic0 of the spoke pool slow fill request event.
var RequestedSlowFillTopic = crypto.Keccak256Hash([]byte(
	"RequestedSlowFill(bytes32,bytes32,uint256,uint256,uint256,uint256,uint32,uint32,bytes32,bytes32,bytes32,bytes32)",
))

var (
	erc20ABIString      abi.ABI
	erc20ABIStringOnce  sync.Once
	erc20ABIStringErr   error
	erc20ABIBytes32     abi.ABI
	erc20ABIBytes32Once sync.Once
	erc20ABIBytes32Err  error
	multicall3ABI       abi.ABI
	multicall3ABIOnce   sync.Once
	multicall3ABIErr    error
	spokePoolABI        abi.ABI
	spokePoolABIOnce    sync.Once
	spokePoolABIErr     error
)

func erc20ABIStringInstance() (abi.ABI, error) {
	erc20ABIStringOnce.Do(func() {
		erc20ABIString, erc20ABIStringErr = abi.JSON(strings.NewReader(erc20ABIStringJSON))
	})
	return erc20ABIString, erc20ABIStringErr
}

func erc20ABIBytes32Instance() (abi.ABI, error) {
	erc20ABIBytes32Once.Do(func() {
		erc20ABIBytes32, erc20ABIBytes32Err = abi.JSON(strings.NewReader(erc20ABIBytes32JSON))
	})
	return erc20ABIBytes32, erc20ABIBytes32Err
}

func multicall3ABIInstance() (abi.ABI, error) {
	multicall3ABIOnce.Do(func() {
		multicall3ABI, multicall3ABIErr = abi.JSON(strings.NewReader(multicall3ABIJSON))
	})
	return multicall3ABI, multicall3ABIErr
}

// SpokePoolABI returns the parsed spoke pool event ABI.
func SpokePoolABI() (abi.ABI, error) {
	spokePoolABIOnce.Do(func() {
		spokePoolABI, spokePoolABIErr = abi.JSON(strings.NewReader(spokePoolABIJSON))
	})
	return spokePoolABI, spokePoolABIErr
}
