package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// chdirTemp moves into an empty directory so no stray config file is read.
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, "https://app.across.to/api", cfg.PricingURL)
	require.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	require.Equal(t, "0.005", cfg.Slippage.String())
	require.Equal(t, "0.98", cfg.USDBuffer.String())
	require.Equal(t, 5, cfg.SwapCandidates)
	require.Equal(t, StorageFile, cfg.Storage)
	require.Equal(t, uint64(50000), cfg.LogLookbackBlocks)
	require.Empty(t, cfg.RPC)
}

func TestLoadFlagsAndEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PAYPLANNER_SPOKE_POOLS", "10=0x6f26Bf09B1C792e3228e5467807a900A503c0281")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.String("slippage", "", "")
	require.NoError(t, flags.Parse([]string{"--rpc", "1=https://eth.example, 8453=https://base.example", "--slippage", "0.02"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 8453}, cfg.ChainIDs())
	require.Equal(t, "https://base.example", cfg.RPC[8453])
	require.Equal(t, "0.02", cfg.Slippage.String())
	require.Equal(t, common.HexToAddress("0x6f26Bf09B1C792e3228e5467807a900A503c0281"), cfg.SpokePools[10])

	clients := cfg.ChainClients()
	require.Len(t, clients, 2)
	require.Equal(t, uint64(1), clients[0].ChainID)
	require.Equal(t, "alchemy_getTokenBalances", clients[0].BalanceMethod)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payplanner.yaml")
	body := "storage: redis\nredis-url: redis://localhost:6379/0\nwrapped-tokens:\n  - 137=0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	require.Equal(t, StorageRedis, cfg.Storage)
	require.Equal(t, common.HexToAddress("0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270"), cfg.WrappedTokens[137])
}

func TestLoadRejectsBadValues(t *testing.T) {
	chdirTemp(t)

	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad rpc pair", env: map[string]string{"PAYPLANNER_RPC": "mainnet"}},
		{name: "bad spoke pool", env: map[string]string{"PAYPLANNER_SPOKE_POOLS": "1=0x123"}},
		{name: "bad slippage", env: map[string]string{"PAYPLANNER_SLIPPAGE": "lots"}},
		{name: "unknown storage", env: map[string]string{"PAYPLANNER_STORAGE": "s3"}},
		{name: "postgres without dsn", env: map[string]string{"PAYPLANNER_STORAGE": "postgres"}},
		{name: "buffer above one", env: map[string]string{"PAYPLANNER_USD_BUFFER": "1.5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("", nil)
			require.Error(t, err)
		})
	}
}

func TestParseChainURLs(t *testing.T) {
	got, err := ParseChainURLs([]string{"1=https://a", " 10 = https://b "})
	require.NoError(t, err)
	require.Equal(t, map[uint64]string{1: "https://a", 10: "https://b"}, got)

	_, err = ParseChainURLs([]string{"0=https://a"})
	require.Error(t, err)
	_, err = ParseChainURLs([]string{"1="})
	require.Error(t, err)
}
