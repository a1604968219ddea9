package utils

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/okx/txloadgen/testutil"
)

const testChainID = 195

func newTestClient(t *testing.T) (*testutil.FakeNode, *EthClient) {
	node := testutil.NewFakeNode(testChainID)
	client := NewEthClientFromRPC(node.Client(), 5*time.Second)
	t.Cleanup(func() {
		client.Close()
		node.Stop()
	})
	return node, client
}

func TestEthClientQueries(t *testing.T) {
	node, client := newTestClient(t)
	ctx := context.Background()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := GetEthAddressFromPK(key)
	node.SetNonce(addr, 42)
	node.SetBalance(addr, big.NewInt(1e18))
	node.SetGasEstimate(21512)

	version, err := client.Ping(ctx)
	require.NoError(t, err)
	require.Equal(t, testutil.ClientVersion, version)

	chainID, err := client.ChainID(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(testChainID), chainID.Int64())

	nonce, err := client.QueryNonce(ctx, addr, false)
	require.NoError(t, err)
	require.Equal(t, uint64(42), nonce)

	nonce, err = client.QueryNonce(ctx, addr, true)
	require.NoError(t, err)
	require.Equal(t, uint64(42), nonce)
	require.Equal(t, 2, node.Calls("eth_getTransactionCount"))

	balance, err := client.BalanceAt(ctx, addr)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1e18), balance)

	gas, err := client.EstimateGas(ctx, ethereum.CallMsg{From: addr, To: &addr, Value: big.NewInt(1)})
	require.NoError(t, err)
	require.Equal(t, uint64(21512), gas)
}

func TestEthClientSendRawTransaction(t *testing.T) {
	node, client := newTestClient(t)
	ctx := context.Background()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := GetEthAddressFromPK(key)
	node.SetNonce(addr, 3)

	signer := types.LatestSignerForChainID(big.NewInt(testChainID))
	sign := func(nonce uint64) *types.Transaction {
		tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       &addr,
			Value:    big.NewInt(1),
			Gas:      2000000,
			GasPrice: big.NewInt(50_000_000_000),
		}), signer, key)
		require.NoError(t, err)
		return tx
	}

	tx := sign(3)
	hash, err := client.SendRawTransaction(ctx, tx)
	require.NoError(t, err)
	require.Equal(t, tx.Hash(), hash)
	require.Len(t, node.Transactions(), 1)

	_, err = client.SendRawTransaction(ctx, sign(3))
	require.Error(t, err)
	var rpcErr rpc.Error
	require.True(t, errors.As(err, &rpcErr))
	require.Contains(t, rpcErr.Error(), "nonce too low")

	node.RejectWith("insufficient funds for gas * price + value")
	_, err = client.SendRawTransaction(ctx, sign(4))
	require.ErrorContains(t, err, "insufficient funds")
	require.Len(t, node.Transactions(), 1)
}

func TestNewEthClientBadEndpoint(t *testing.T) {
	_, err := NewEthClient(context.Background(), "ftp://node:21", time.Second)
	require.Error(t, err)
}
