package loadgen

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

// Kind is the closed set of ways an iteration can fail
type Kind int

const (
	// ConnectivityError: the node stayed unreachable through the connectivity retries
	ConnectivityError Kind = iota + 1
	// NonceFetchError: eth_getTransactionCount failed, nothing was signed
	NonceFetchError
	// SigningError: the transaction could not be built or signed
	SigningError
	// SubmissionError: the broadcast failed below the JSON-RPC layer (transport, timeout, bad response)
	SubmissionError
	// RejectionError: the node answered eth_sendRawTransaction with a JSON-RPC error
	RejectionError
	// Interrupted: the run context was cancelled mid-iteration
	Interrupted
)

func (k Kind) String() string {
	switch k {
	case ConnectivityError:
		return "ConnectivityError"
	case NonceFetchError:
		return "NonceFetchError"
	case SigningError:
		return "SigningError"
	case SubmissionError:
		return "SubmissionError"
	case RejectionError:
		return "RejectionError"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown"
	}
}

// IterationError carries the failing step of one iteration
type IterationError struct {
	Kind Kind
	Err  error
}

func (e *IterationError) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *IterationError) Unwrap() error {
	return e.Err
}

func newIterationError(kind Kind, err error, msg string) *IterationError {
	return &IterationError{Kind: kind, Err: errors.Wrap(err, msg)}
}

// KindOf returns the kind of an iteration error, or 0 when err is not one
func KindOf(err error) Kind {
	var iterErr *IterationError
	if errors.As(err, &iterErr) {
		return iterErr.Kind
	}
	return 0
}

// Known node rejection reasons, matched against the JSON-RPC error message
const (
	ReasonNonceTooLow       = "nonce too low"
	ReasonNonceTooHigh      = "nonce too high"
	ReasonAlreadyKnown      = "already known"
	ReasonInsufficientFunds = "insufficient funds"
	ReasonUnderpriced       = "underpriced"
	ReasonIntrinsicGas      = "intrinsic gas too low"
	ReasonGasLimit          = "exceeds block gas limit"
	ReasonUnknown           = "unknown"
)

var rejectionReasons = []struct {
	needle string
	reason string
}{
	{"nonce too low", ReasonNonceTooLow},
	{"nonce too high", ReasonNonceTooHigh},
	{"already known", ReasonAlreadyKnown},
	{"transaction already exists", ReasonAlreadyKnown},
	{"insufficient funds", ReasonInsufficientFunds},
	{"underpriced", ReasonUnderpriced},
	{"intrinsic gas too low", ReasonIntrinsicGas},
	{"exceeds block gas limit", ReasonGasLimit},
}

// RejectionReason names the cause of a node rejection, or "" for other errors
func RejectionReason(err error) string {
	if KindOf(err) != RejectionError {
		return ""
	}
	msg := strings.ToLower(err.Error())
	for _, r := range rejectionReasons {
		if strings.Contains(msg, r.needle) {
			return r.reason
		}
	}
	return ReasonUnknown
}

// classifySubmission maps a broadcast error to its kind. Errors of unknown
// origin are SubmissionError, which the loop treats as recoverable.
func classifySubmission(ctx context.Context, err error) *IterationError {
	if ctx.Err() != nil {
		return newIterationError(Interrupted, err, "submission interrupted")
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return newIterationError(RejectionError, err, "node rejected transaction")
	}
	return newIterationError(SubmissionError, err, "failed to submit transaction")
}

func classify(ctx context.Context, kind Kind, err error, msg string) *IterationError {
	if ctx.Err() != nil {
		return newIterationError(Interrupted, err, msg)
	}
	return newIterationError(kind, err, msg)
}
