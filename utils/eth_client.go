package utils

import (
	"context"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

var (
	_ Client = (*EthClient)(nil)
)

// Client defines the node operations the load generator depends on
type Client interface {
	// Ping probes the node and returns its client version
	Ping(ctx context.Context) (string, error)
	ChainID(ctx context.Context) (*big.Int, error)
	QueryNonce(ctx context.Context, addr ethcmn.Address, pending bool) (uint64, error)
	BalanceAt(ctx context.Context, addr ethcmn.Address) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	// SendRawTransaction broadcasts a signed transaction and returns the hash reported by the node
	SendRawTransaction(ctx context.Context, tx *types.Transaction) (ethcmn.Hash, error)
	Close()
}

// EthClient wraps the ethereum client with a per-request timeout
type EthClient struct {
	eth       *ethclient.Client
	rpcClient *rpc.Client
	timeout   time.Duration
}

// createHTTPClient creates the HTTP client used for the JSON-RPC connection. The
// load loop is sequential, so a handful of kept-alive connections is enough.
func createHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
		DisableKeepAlives:   false,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// NewEthClient dials the endpoint. No request is sent until the first call.
func NewEthClient(ctx context.Context, endpoint string, timeout time.Duration) (*EthClient, error) {
	rpcClient, err := rpc.DialOptions(ctx, endpoint, rpc.WithHTTPClient(createHTTPClient(timeout)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize rpc client")
	}
	return NewEthClientFromRPC(rpcClient, timeout), nil
}

// NewEthClientFromRPC wraps an existing rpc client
func NewEthClientFromRPC(rpcClient *rpc.Client, timeout time.Duration) *EthClient {
	return &EthClient{
		eth:       ethclient.NewClient(rpcClient),
		rpcClient: rpcClient,
		timeout:   timeout,
	}
}

func (e *EthClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// Ping calls web3_clientVersion
func (e *EthClient) Ping(ctx context.Context) (string, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	var version string
	if err := e.rpcClient.CallContext(ctx, &version, "web3_clientVersion"); err != nil {
		return "", err
	}
	return version, nil
}

// ChainID queries eth_chainId
func (e *EthClient) ChainID(ctx context.Context) (*big.Int, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.eth.ChainID(ctx)
}

// QueryNonce queries eth_getTransactionCount at the latest or pending block
func (e *EthClient) QueryNonce(ctx context.Context, addr ethcmn.Address, pending bool) (uint64, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	if pending {
		return e.eth.PendingNonceAt(ctx, addr)
	}
	return e.eth.NonceAt(ctx, addr, nil)
}

// BalanceAt queries the latest balance of addr
func (e *EthClient) BalanceAt(ctx context.Context, addr ethcmn.Address) (*big.Int, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.eth.BalanceAt(ctx, addr, nil)
}

// EstimateGas queries eth_estimateGas
func (e *EthClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.eth.EstimateGas(ctx, msg)
}

// SendRawTransaction encodes the signed transaction and calls eth_sendRawTransaction
func (e *EthClient) SendRawTransaction(ctx context.Context, tx *types.Transaction) (ethcmn.Hash, error) {
	data, err := tx.MarshalBinary()
	if err != nil {
		return ethcmn.Hash{}, errors.Wrap(err, "failed to encode transaction")
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	var hash ethcmn.Hash
	if err := e.rpcClient.CallContext(ctx, &hash, "eth_sendRawTransaction", hexutil.Encode(data)); err != nil {
		return ethcmn.Hash{}, err
	}
	return hash, nil
}

// Close releases the underlying connection
func (e *EthClient) Close() {
	e.rpcClient.Close()
}
