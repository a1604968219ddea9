package loadgen

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/okx/txloadgen/stats"
	"github.com/okx/txloadgen/utils"
)

// Options configures a Loop
type Options struct {
	Client   utils.Client
	Key      *ecdsa.PrivateKey
	From     ethcmn.Address
	ChainID  *big.Int
	Template TxTemplate

	// Interval is the pause after every iteration
	Interval time.Duration
	// Count limits the number of iterations, 0 runs until cancelled
	Count uint64
	// PendingNonce queries the nonce at the pending block instead of latest
	PendingNonce bool
	// MaxConsecutiveFailures ends the run with an error, 0 disables the cap
	MaxConsecutiveFailures int
	// WaitForNode retries the connectivity probe and fails the iteration when
	// the node stays down. Without it the probe is informational only.
	WaitForNode bool
	// NewBackOff builds the retry policy of the connectivity probe
	NewBackOff func() backoff.BackOff
	// MaxTPS caps submissions per second, 0 disables the cap
	MaxTPS float64

	Out     io.Writer
	Logger  log.Logger
	Tracker *stats.Tracker
	Hashes  *utils.TxHashWriter
}

// Loop submits one signed transfer per iteration
type Loop struct {
	opts    Options
	signer  types.Signer
	limiter *rate.Limiter
	log     log.Logger
	out     io.Writer

	iteration           uint64
	sent                uint64
	consecutiveFailures int
}

// DefaultBackOff is the connectivity retry policy used when none is configured
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// New validates opts and creates a Loop
func New(opts Options) (*Loop, error) {
	if opts.Client == nil {
		return nil, errors.New("client is required")
	}
	if opts.Key == nil {
		return nil, errors.New("signing key is required")
	}
	if opts.ChainID == nil {
		return nil, errors.New("chain id is required")
	}
	if opts.Template.Value == nil || opts.Template.GasPrice == nil {
		return nil, errors.New("transaction value and gas price are required")
	}
	if opts.NewBackOff == nil {
		opts.NewBackOff = DefaultBackOff
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = log.Root()
	}

	l := &Loop{
		opts:   opts,
		signer: types.LatestSignerForChainID(opts.ChainID),
		log:    opts.Logger,
		out:    opts.Out,
	}
	if opts.MaxTPS > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(opts.MaxTPS), 1)
	}
	return l, nil
}

// Sent returns the number of transactions accepted by the node so far
func (l *Loop) Sent() uint64 {
	return l.sent
}

// Run iterates until ctx is cancelled, Count iterations have run or the
// consecutive failure cap is hit. Cancellation is a clean stop and returns nil.
func (l *Loop) Run(ctx context.Context) error {
	for l.opts.Count == 0 || l.iteration < l.opts.Count {
		if ctx.Err() != nil {
			return nil
		}

		_, err := l.Iterate(ctx)
		if err != nil {
			kind := KindOf(err)
			if kind == Interrupted {
				return nil
			}

			l.consecutiveFailures++
			if l.opts.Tracker != nil {
				l.opts.Tracker.RecordFailure(kind.String())
			}
			l.log.Warn("Iteration failed",
				"iteration", l.iteration,
				"kind", kind.String(),
				"reason", RejectionReason(err),
				"consecutive", l.consecutiveFailures,
				"err", err,
			)

			if limit := l.opts.MaxConsecutiveFailures; limit > 0 && l.consecutiveFailures >= limit {
				return errors.Wrapf(err, "giving up after %d consecutive failed iterations", l.consecutiveFailures)
			}
		} else {
			l.consecutiveFailures = 0
		}

		if l.opts.Count != 0 && l.iteration >= l.opts.Count {
			break
		}
		if err := sleep(ctx, l.opts.Interval); err != nil {
			return nil
		}
	}
	return nil
}

// Iterate runs one probe, nonce query, sign and submit cycle and returns the
// hash reported by the node.
func (l *Loop) Iterate(ctx context.Context) (ethcmn.Hash, error) {
	l.iteration++

	up, err := l.probe(ctx)
	fmt.Fprintf(l.out, "Is chain up?: %t\n", up)
	if err != nil {
		return ethcmn.Hash{}, err
	}

	nonce, err := l.opts.Client.QueryNonce(ctx, l.opts.From, l.opts.PendingNonce)
	if err != nil {
		return ethcmn.Hash{}, classify(ctx, NonceFetchError, err, "failed to query nonce")
	}

	signed, err := SignTx(l.opts.Template, nonce, l.signer, l.opts.Key)
	if err != nil {
		return ethcmn.Hash{}, &IterationError{Kind: SigningError, Err: err}
	}

	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return ethcmn.Hash{}, newIterationError(Interrupted, err, "rate limiter wait aborted")
		}
	}

	hash, err := l.opts.Client.SendRawTransaction(ctx, signed)
	if err != nil {
		return ethcmn.Hash{}, classifySubmission(ctx, err)
	}
	if hash == (ethcmn.Hash{}) {
		hash = signed.Hash()
	} else if hash != signed.Hash() {
		l.log.Warn("Node returned unexpected tx hash", "returned", hash, "local", signed.Hash())
	}

	l.sent++
	fmt.Fprintf(l.out, "%v\n", hash.Bytes())
	fmt.Fprintf(l.out, "%d. %s\n", l.sent, hash.Hex())
	l.log.Debug("Transaction submitted", "iteration", l.iteration, "nonce", nonce, "hash", hash)

	if l.opts.Tracker != nil {
		l.opts.Tracker.RecordSent()
	}
	l.opts.Hashes.Write(hash)

	return hash, nil
}

// probe reports whether the node answered. Without WaitForNode a failed probe
// is only reported; with it the probe is retried and exhaustion fails the iteration.
func (l *Loop) probe(ctx context.Context) (bool, error) {
	ping := func() error {
		_, err := l.opts.Client.Ping(ctx)
		return err
	}

	if !l.opts.WaitForNode {
		if err := ping(); err != nil {
			if ctx.Err() != nil {
				return false, newIterationError(Interrupted, err, "connectivity probe interrupted")
			}
			l.log.Debug("Connectivity probe failed", "err", err)
			return false, nil
		}
		return true, nil
	}

	b := backoff.WithContext(l.opts.NewBackOff(), ctx)
	err := backoff.RetryNotify(ping, b, func(err error, next time.Duration) {
		l.log.Warn("Node unreachable, retrying", "in", next, "err", err)
	})
	if err != nil {
		return false, classify(ctx, ConnectivityError, err, "node unreachable")
	}
	return true, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
