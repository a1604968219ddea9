package loadgen

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/pkg/errors"

	"github.com/okx/txloadgen/utils"
)

const chainIDRetries = 5

// Setup is everything resolved once before the first iteration
type Setup struct {
	From     ethcmn.Address
	ChainID  *big.Int
	Template TxTemplate
	// Balance is nil when the node could not report it
	Balance *big.Int
}

// Prepare resolves the sender, chain id and transfer template for a run.
// Any error it returns is a startup error.
func Prepare(ctx context.Context, client utils.Client, cfg *utils.Config, key *ecdsa.PrivateKey, newBackOff func() backoff.BackOff, l log.Logger) (*Setup, error) {
	if key == nil {
		return nil, errors.New("a private key is required")
	}
	if newBackOff == nil {
		newBackOff = DefaultBackOff
	}

	from := utils.GetEthAddressFromPK(key)
	if cfg.From != "" && ethcmn.HexToAddress(cfg.From) != from {
		return nil, errors.Errorf("sender address %s does not match the private key", cfg.From)
	}

	to := from
	if cfg.To != "" {
		to = ethcmn.HexToAddress(cfg.To)
	}

	value, err := cfg.ValueWei()
	if err != nil {
		return nil, err
	}
	gasPrice, err := cfg.GasPrice()
	if err != nil {
		return nil, err
	}
	data, err := RandomData(cfg.DataSizeKB)
	if err != nil {
		return nil, err
	}

	chainID, err := resolveChainID(ctx, client, cfg.ChainID, newBackOff, l)
	if err != nil {
		return nil, err
	}

	s := &Setup{
		From:    from,
		ChainID: chainID,
		Template: TxTemplate{
			To:       to,
			Value:    value,
			GasLimit: cfg.GasLimit,
			GasPrice: gasPrice,
			Data:     data,
		},
	}

	if balance, err := client.BalanceAt(ctx, from); err != nil {
		l.Warn("Failed to query sender balance", "addr", from, "err", err)
	} else {
		s.Balance = balance
	}

	if cfg.EstimateGas {
		gas, err := client.EstimateGas(ctx, ethereum.CallMsg{
			From:     from,
			To:       &to,
			GasPrice: gasPrice,
			Value:    value,
			Data:     data,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to estimate gas")
		}
		l.Info("Estimated gas limit", "gas", gas)
		s.Template.GasLimit = gas
	}

	return s, nil
}

func resolveChainID(ctx context.Context, client utils.Client, configured uint64, newBackOff func() backoff.BackOff, l log.Logger) (*big.Int, error) {
	if configured != 0 {
		return new(big.Int).SetUint64(configured), nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), chainIDRetries), ctx)
	chainID, err := backoff.RetryNotifyWithData(func() (*big.Int, error) {
		return client.ChainID(ctx)
	}, b, func(err error, next time.Duration) {
		l.Warn("Failed to query chain id, retrying", "in", next, "err", err)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to query chain id")
	}
	return chainID, nil
}

// PrintSummary writes the pre-flight summary of a run
func (s *Setup) PrintSummary(w io.Writer, cfg *utils.Config) {
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "Network:        %s (chain id %s)\n", cfg.ChainName, s.ChainID)
	fmt.Fprintf(w, "RPC:            %s\n", cfg.Endpoint)
	fmt.Fprintf(w, "Sender:         %s\n", s.From.Hex())
	fmt.Fprintf(w, "Recipient:      %s\n", s.Template.To.Hex())
	fmt.Fprintf(w, "Interval:       %s\n", cfg.Interval)
	fmt.Fprintf(w, "Value:          %s wei\n", s.Template.Value)
	fmt.Fprintf(w, "Gas limit:      %d\n", s.Template.GasLimit)
	fmt.Fprintf(w, "Gas price:      %s gwei\n", formatGwei(s.Template.GasPrice))
	fmt.Fprintf(w, "Data size:      %d bytes\n", len(s.Template.Data))
	if s.Balance != nil {
		fmt.Fprintf(w, "Balance:        %s wei\n", s.Balance)
	} else {
		fmt.Fprintf(w, "Balance:        unknown\n")
	}
	fmt.Fprintln(w, strings.Repeat("=", 60))
}

func formatGwei(wei *big.Int) string {
	r := new(big.Rat).SetFrac(wei, big.NewInt(params.GWei))
	if r.IsInt() {
		return r.Num().String()
	}
	return strings.TrimRight(r.FloatString(9), "0")
}
