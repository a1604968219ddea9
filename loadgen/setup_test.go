package loadgen

import (
	"bytes"
	"context"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/okx/txloadgen/utils"
)

func testConfig() *utils.Config {
	return &utils.Config{
		Endpoint:     "http://localhost:8545",
		ChainName:    "Custom endpoint",
		Value:        "1",
		GasLimit:     2000000,
		GasPriceGwei: "50",
		Interval:     500 * time.Millisecond,
	}
}

func TestPrepareDefaults(t *testing.T) {
	client := newFakeClient()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	s, err := Prepare(context.Background(), client, testConfig(), key, fastBackOff(3), log.NewLogger(log.DiscardHandler()))
	require.NoError(t, err)

	require.Equal(t, from, s.From)
	require.Equal(t, from, s.Template.To)
	require.Equal(t, big.NewInt(195), s.ChainID)
	require.Equal(t, big.NewInt(1), s.Template.Value)
	require.Equal(t, uint64(2000000), s.Template.GasLimit)
	require.Equal(t, testGasPrice, s.Template.GasPrice)
	require.Nil(t, s.Template.Data)
	require.Equal(t, big.NewInt(1e18), s.Balance)
	require.Equal(t, []string{"chainId", "balance"}, client.Calls())
}

func TestPrepareOptions(t *testing.T) {
	client := newFakeClient()
	client.gas = 53000
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	cfg := testConfig()
	cfg.ChainID = 1952
	cfg.From = from.Hex()
	cfg.To = "0x00000000000000000000000000000000000000aa"
	cfg.DataSizeKB = 1
	cfg.EstimateGas = true

	s, err := Prepare(context.Background(), client, cfg, key, fastBackOff(3), log.NewLogger(log.DiscardHandler()))
	require.NoError(t, err)
	require.Equal(t, int64(1952), s.ChainID.Int64())
	require.Equal(t, ethcmn.HexToAddress(cfg.To), s.Template.To)
	require.Len(t, s.Template.Data, 1024)
	require.Equal(t, uint64(53000), s.Template.GasLimit)
	require.Zero(t, client.Count("chainId"))
	require.Equal(t, 1, client.Count("estimateGas"))
}

func TestPrepareChainIDRetries(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	client := newFakeClient()
	client.chainIDFails = 2
	s, err := Prepare(context.Background(), client, testConfig(), key, fastBackOff(3), log.NewLogger(log.DiscardHandler()))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(195), s.ChainID)
	require.Equal(t, 3, client.Count("chainId"))

	client = newFakeClient()
	client.chainIDFails = 100
	unlimited := func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	_, err = Prepare(context.Background(), client, testConfig(), key, unlimited, log.NewLogger(log.DiscardHandler()))
	require.ErrorContains(t, err, "chain id")
	require.Equal(t, 1+chainIDRetries, client.Count("chainId"))
}

func TestPrepareStartupErrors(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	logger := log.NewLogger(log.DiscardHandler())

	cfg := testConfig()
	cfg.From = "0x00000000000000000000000000000000000000bb"
	_, err = Prepare(context.Background(), newFakeClient(), cfg, key, fastBackOff(0), logger)
	require.ErrorContains(t, err, "does not match")

	_, err = Prepare(context.Background(), newFakeClient(), testConfig(), nil, fastBackOff(0), logger)
	require.Error(t, err)

	client := newFakeClient()
	client.gasErr = errors.New("execution reverted")
	cfg = testConfig()
	cfg.EstimateGas = true
	_, err = Prepare(context.Background(), client, cfg, key, fastBackOff(0), logger)
	require.ErrorContains(t, err, "estimate gas")

	// a missing balance only warns
	client = newFakeClient()
	client.balanceErr = errors.New("method not found")
	s, err := Prepare(context.Background(), client, testConfig(), key, fastBackOff(0), logger)
	require.NoError(t, err)
	require.Nil(t, s.Balance)
}

func TestPrintSummary(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	cfg := testConfig()
	cfg.GasPriceGwei = "0.5"

	s, err := Prepare(context.Background(), newFakeClient(), cfg, key, fastBackOff(0), log.NewLogger(log.DiscardHandler()))
	require.NoError(t, err)

	var buf bytes.Buffer
	s.PrintSummary(&buf, cfg)
	out := buf.String()
	require.Contains(t, out, "Custom endpoint (chain id 195)")
	require.Contains(t, out, "http://localhost:8545")
	require.Contains(t, out, s.From.Hex())
	require.Contains(t, out, "500ms")
	require.Contains(t, out, "Gas price:      0.5 gwei")
	require.Contains(t, out, "1000000000000000000 wei")
	require.NotContains(t, out, hex.EncodeToString(crypto.FromECDSA(key)))
}

func TestFormatGwei(t *testing.T) {
	require.Equal(t, "50", formatGwei(big.NewInt(50_000_000_000)))
	require.Equal(t, "0.5", formatGwei(big.NewInt(500_000_000)))
	require.Equal(t, "0.000000001", formatGwei(big.NewInt(1)))
}
