package loadgen

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/okx/txloadgen/utils"
)

var _ utils.Client = (*fakeClient)(nil)

// rpcError mimics a JSON-RPC error answer
type rpcError struct {
	msg string
}

func (e rpcError) Error() string  { return e.msg }
func (e rpcError) ErrorCode() int { return -32000 }

// fakeClient records every call. Accepted transactions advance the nonce
// unless frozen is set.
type fakeClient struct {
	mu sync.Mutex

	calls     []string
	nonce     uint64
	frozen    bool
	sent      []*types.Transaction
	sendTimes []time.Time

	pingErr   error
	pingFails int
	nonceErr  error
	sendErrs  []error
	hashFunc  func(tx *types.Transaction) ethcmn.Hash
	afterSend func(n int)
	onNonce   func() error

	chainID      *big.Int
	chainIDFails int
	balance      *big.Int
	balanceErr   error
	gas          uint64
	gasErr       error
	closed       bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{chainID: big.NewInt(195), balance: big.NewInt(1e18), gas: 21000}
}

func (c *fakeClient) record(call string) {
	c.calls = append(c.calls, call)
}

func (c *fakeClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *fakeClient) Count(call string) int {
	n := 0
	for _, got := range c.Calls() {
		if got == call {
			n++
		}
	}
	return n
}

func (c *fakeClient) Sent() []*types.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*types.Transaction(nil), c.sent...)
}

func (c *fakeClient) SetNonce(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonce = n
}

func (c *fakeClient) Ping(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("ping")
	if c.pingFails > 0 {
		c.pingFails--
		return "", errors.New("connection refused")
	}
	if c.pingErr != nil {
		return "", c.pingErr
	}
	return "fake/v1", nil
}

func (c *fakeClient) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("chainId")
	if c.chainIDFails > 0 {
		c.chainIDFails--
		return nil, errors.New("connection refused")
	}
	return new(big.Int).Set(c.chainID), nil
}

func (c *fakeClient) QueryNonce(ctx context.Context, addr ethcmn.Address, pending bool) (uint64, error) {
	c.mu.Lock()
	c.record("nonce")
	hook := c.onNonce
	c.mu.Unlock()

	if hook != nil {
		if err := hook(); err != nil {
			return 0, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nonceErr != nil {
		return 0, c.nonceErr
	}
	return c.nonce, nil
}

func (c *fakeClient) BalanceAt(ctx context.Context, addr ethcmn.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("balance")
	if c.balanceErr != nil {
		return nil, c.balanceErr
	}
	return new(big.Int).Set(c.balance), nil
}

func (c *fakeClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("estimateGas")
	return c.gas, c.gasErr
}

func (c *fakeClient) SendRawTransaction(ctx context.Context, tx *types.Transaction) (ethcmn.Hash, error) {
	c.mu.Lock()
	c.record("send")

	var err error
	if len(c.sendErrs) > 0 {
		err = c.sendErrs[0]
		c.sendErrs = c.sendErrs[1:]
	}
	hash := tx.Hash()
	if err == nil {
		c.sent = append(c.sent, tx)
		c.sendTimes = append(c.sendTimes, time.Now())
		if !c.frozen {
			c.nonce++
		}
		if c.hashFunc != nil {
			hash = c.hashFunc(tx)
		}
	}
	n := len(c.sent)
	hook := c.afterSend
	c.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if err != nil {
		return ethcmn.Hash{}, err
	}
	return hash, nil
}

func (c *fakeClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}
