package loadgen

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/okx/txloadgen/stats"
	"github.com/okx/txloadgen/testutil"
	"github.com/okx/txloadgen/utils"
)

// runAgainstNode drives a loop through the real rpc client and an in-process node
func runAgainstNode(t *testing.T, node *testutil.FakeNode, count uint64) (*Loop, *stats.Tracker) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)
	node.SetNonce(from, 11)
	node.SetBalance(from, big.NewInt(1e18))

	client := utils.NewEthClientFromRPC(node.Client(), 5*time.Second)
	t.Cleanup(client.Close)

	logger := log.NewLogger(log.DiscardHandler())
	cfg := testConfig()
	s, err := Prepare(context.Background(), client, cfg, key, fastBackOff(0), logger)
	require.NoError(t, err)

	tracker := stats.NewTracker(logger, 0, nil)
	l, err := New(Options{
		Client:   client,
		Key:      key,
		From:     s.From,
		ChainID:  s.ChainID,
		Template: s.Template,
		Count:    count,
		Logger:   logger,
		Tracker:  tracker,
	})
	require.NoError(t, err)
	require.NoError(t, l.Run(context.Background()))
	return l, tracker
}

func TestLoopAgainstNode(t *testing.T) {
	node := testutil.NewFakeNode(195)
	t.Cleanup(node.Stop)

	l, tracker := runAgainstNode(t, node, 4)
	require.Equal(t, uint64(4), l.Sent())
	require.Equal(t, uint64(4), tracker.Snapshot().Sent)

	txs := node.Transactions()
	require.Len(t, txs, 4)
	for i, tx := range txs {
		require.Equal(t, uint64(11+i), tx.Nonce())
		require.Equal(t, int64(1), tx.Value().Int64())
		require.Equal(t, uint64(2000000), tx.Gas())
	}
	require.Equal(t, 4, node.Calls("eth_getTransactionCount"))
	require.Equal(t, 4, node.Calls("eth_sendRawTransaction"))
	require.Equal(t, 4, node.Calls("web3_clientVersion"))
	require.Equal(t, 1, node.Calls("eth_chainId"))
}

func TestLoopAgainstRejectingNode(t *testing.T) {
	node := testutil.NewFakeNode(195)
	t.Cleanup(node.Stop)
	node.RejectWith("nonce too low")

	l, tracker := runAgainstNode(t, node, 3)
	require.Zero(t, l.Sent())
	require.Empty(t, node.Transactions())
	require.Equal(t, 3, node.Calls("eth_getTransactionCount"))
	require.Equal(t, uint64(3), tracker.Snapshot().Failures[RejectionError.String()])
}
