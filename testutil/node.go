// Package testutil runs an in-process JSON-RPC node for tests
package testutil

import (
	"errors"
	"math/big"
	"net/http"
	"sync"

	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// ClientVersion is the web3_clientVersion answer
const ClientVersion = "fakenode/v0.1.0"

// FakeNode serves the eth and web3 methods the load generator calls. Every
// accepted transaction is mined at once, so the account nonce moves with it.
type FakeNode struct {
	mu sync.Mutex

	chainID  *big.Int
	signer   types.Signer
	nonces   map[ethcmn.Address]uint64
	balances map[ethcmn.Address]*big.Int
	txs      []*types.Transaction
	calls    map[string]int

	rejectErr error
	gasEstim  uint64

	server *rpc.Server
}

// NewFakeNode creates a node for chainID with the eth and web3 namespaces registered
func NewFakeNode(chainID int64) *FakeNode {
	n := &FakeNode{
		chainID:  big.NewInt(chainID),
		signer:   types.LatestSignerForChainID(big.NewInt(chainID)),
		nonces:   make(map[ethcmn.Address]uint64),
		balances: make(map[ethcmn.Address]*big.Int),
		calls:    make(map[string]int),
		gasEstim: 21000,
		server:   rpc.NewServer(),
	}
	if err := n.server.RegisterName("eth", &ethAPI{n}); err != nil {
		panic(err)
	}
	if err := n.server.RegisterName("web3", &web3API{n}); err != nil {
		panic(err)
	}
	return n
}

// Client dials the node in-process
func (n *FakeNode) Client() *rpc.Client {
	return rpc.DialInProc(n.server)
}

// Handler serves the node over HTTP, for use with httptest
func (n *FakeNode) Handler() http.Handler {
	return n.server
}

// Stop shuts the server down; later calls fail
func (n *FakeNode) Stop() {
	n.server.Stop()
}

// SetNonce sets the transaction count of addr
func (n *FakeNode) SetNonce(addr ethcmn.Address, nonce uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nonces[addr] = nonce
}

// SetBalance sets the balance of addr
func (n *FakeNode) SetBalance(addr ethcmn.Address, balance *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.balances[addr] = new(big.Int).Set(balance)
}

// SetGasEstimate sets the eth_estimateGas answer
func (n *FakeNode) SetGasEstimate(gas uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gasEstim = gas
}

// RejectWith makes eth_sendRawTransaction fail with msg, an empty msg accepts again
func (n *FakeNode) RejectWith(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if msg == "" {
		n.rejectErr = nil
		return
	}
	n.rejectErr = errors.New(msg)
}

// Transactions returns the accepted transactions in order
func (n *FakeNode) Transactions() []*types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*types.Transaction(nil), n.txs...)
}

// Calls returns how often method was served
func (n *FakeNode) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *FakeNode) record(method string) {
	n.calls[method]++
}

type ethAPI struct {
	n *FakeNode
}

func (api *ethAPI) ChainId() *hexutil.Big {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	api.n.record("eth_chainId")
	return (*hexutil.Big)(new(big.Int).Set(api.n.chainID))
}

func (api *ethAPI) GetTransactionCount(addr ethcmn.Address, block string) hexutil.Uint64 {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	api.n.record("eth_getTransactionCount")
	return hexutil.Uint64(api.n.nonces[addr])
}

func (api *ethAPI) GetBalance(addr ethcmn.Address, block string) *hexutil.Big {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	api.n.record("eth_getBalance")
	balance, ok := api.n.balances[addr]
	if !ok {
		balance = new(big.Int)
	}
	return (*hexutil.Big)(new(big.Int).Set(balance))
}

func (api *ethAPI) EstimateGas(args map[string]interface{}, block *string) hexutil.Uint64 {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	api.n.record("eth_estimateGas")
	return hexutil.Uint64(api.n.gasEstim)
}

func (api *ethAPI) SendRawTransaction(input hexutil.Bytes) (ethcmn.Hash, error) {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	api.n.record("eth_sendRawTransaction")

	if api.n.rejectErr != nil {
		return ethcmn.Hash{}, api.n.rejectErr
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(input); err != nil {
		return ethcmn.Hash{}, err
	}
	from, err := types.Sender(api.n.signer, tx)
	if err != nil {
		return ethcmn.Hash{}, err
	}

	switch current := api.n.nonces[from]; {
	case tx.Nonce() < current:
		return ethcmn.Hash{}, errors.New("nonce too low")
	case tx.Nonce() > current:
		return ethcmn.Hash{}, errors.New("nonce too high")
	}

	api.n.nonces[from]++
	api.n.txs = append(api.n.txs, tx)
	return tx.Hash(), nil
}

type web3API struct {
	n *FakeNode
}

func (api *web3API) ClientVersion() string {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	api.n.record("web3_clientVersion")
	return ClientVersion
}
