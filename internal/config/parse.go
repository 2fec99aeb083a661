package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ParseChainURLs converts "chainId=url" pairs into a map.
func ParseChainURLs(inputs []string) (map[uint64]string, error) {
	out := make(map[uint64]string, len(inputs))
	for _, input := range inputs {
		id, value, err := splitPair(input)
		if err != nil {
			return nil, err
		}
		if value == "" {
			return nil, fmt.Errorf("empty url for chain %d", id)
		}
		out[id] = value
	}
	return out, nil
}

// ParseChainAddresses converts "chainId=0x..." pairs into a map.
func ParseChainAddresses(inputs []string) (map[uint64]common.Address, error) {
	out := make(map[uint64]common.Address, len(inputs))
	for _, input := range inputs {
		id, value, err := splitPair(input)
		if err != nil {
			return nil, err
		}
		if !common.IsHexAddress(value) {
			return nil, fmt.Errorf("invalid address: %s", value)
		}
		out[id] = common.HexToAddress(value)
	}
	return out, nil
}

func splitPair(input string) (uint64, string, error) {
	key, value, ok := strings.Cut(strings.TrimSpace(input), "=")
	if !ok {
		return 0, "", fmt.Errorf("expected chainId=value, got %q", input)
	}
	id, err := strconv.ParseUint(strings.TrimSpace(key), 10, 64)
	if err != nil || id == 0 {
		return 0, "", fmt.Errorf("invalid chain id %q", key)
	}
	return id, strings.TrimSpace(value), nil
}
