package chain

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

func TestMulticallPackAndDecode(t *testing.T) {
	mc, err := multicall3ABIInstance()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	erc20, err := erc20ABIStringInstance()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	account := common.HexToAddress("0x1111111111111111111111111111111111111111")
	callData, err := erc20.Pack("balanceOf", account)
	if err != nil {
		t.Fatalf("pack balanceOf: %v", err)
	}
	calls := []multicallCall{{Target: common.HexToAddress("0x2222222222222222222222222222222222222222"), AllowFailure: true, CallData: callData}}
	if _, err := mc.Pack("aggregate3", calls); err != nil {
		t.Fatalf("pack aggregate3: %v", err)
	}

	balanceData, err := erc20.Methods["balanceOf"].Outputs.Pack(big.NewInt(12345))
	if err != nil {
		t.Fatalf("pack balance output: %v", err)
	}
	encoded, err := mc.Methods["aggregate3"].Outputs.Pack([]multicallResult{
		{Success: true, ReturnData: balanceData},
		{Success: false},
	})
	if err != nil {
		t.Fatalf("pack aggregate3 output: %v", err)
	}

	values, err := mc.Unpack("aggregate3", encoded)
	if err != nil {
		t.Fatalf("unpack aggregate3: %v", err)
	}
	results := *abi.ConvertType(values[0], new([]multicallResult)).(*[]multicallResult)
	if len(results) != 2 || !results[0].Success || results[1].Success {
		t.Fatalf("unexpected results: %+v", results)
	}
	decoded, err := erc20.Unpack("balanceOf", results[0].ReturnData)
	if err != nil {
		t.Fatalf("unpack balance: %v", err)
	}
	got, err := asBigInt(decoded[0])
	if err != nil || got.Int64() != 12345 {
		t.Fatalf("balance mismatch: %v %v", got, err)
	}
}

type codedError struct{ code int }

func (e codedError) Error() string  { return "rpc failure" }
func (e codedError) ErrorCode() int { return e.code }

var _ rpc.Error = codedError{}

func TestIsMethodUnsupported(t *testing.T) {
	if !isMethodUnsupported(codedError{code: rpcMethodNotFound}) {
		t.Fatalf("expected -32601 to be unsupported")
	}
	if !isMethodUnsupported(errors.New("the method alchemy_getTokenBalances does not exist/is not available")) {
		t.Fatalf("expected message match")
	}
	if isMethodUnsupported(codedError{code: -32000}) {
		t.Fatalf("generic server error must not be unsupported")
	}
}

func TestTrimHexZeros(t *testing.T) {
	cases := map[string]string{
		"0x0000000000000000000000000000000000000000000000000de0b6b3a7640000": "0xde0b6b3a7640000",
		"0x0": "0x0",
		"0x":  "0x0",
	}
	for in, want := range cases {
		if got := trimHexZeros(in); got != want {
			t.Fatalf("trimHexZeros(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestSpokePoolABIHasDepositEvent(t *testing.T) {
	parsed, err := SpokePoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	if _, ok := parsed.Events["FundsDeposited"]; !ok {
		t.Fatalf("FundsDeposited missing")
	}
	if FilledRelayTopic == (common.Hash{}) {
		t.Fatalf("fill topic is empty")
	}
}
