package loadgen

import (
	"crypto/ecdsa"
	"crypto/rand"
	"math/big"

	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

// TxTemplate holds the fields shared by every transfer of a run. Only the
// nonce changes between iterations.
type TxTemplate struct {
	To       ethcmn.Address
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
	Data     []byte
}

// Build creates the unsigned legacy transfer for nonce
func (t TxTemplate) Build(nonce uint64) *types.Transaction {
	to := t.To
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int).Set(t.Value),
		Gas:      t.GasLimit,
		GasPrice: new(big.Int).Set(t.GasPrice),
		Data:     t.Data,
	})
}

// SignTx builds and signs the transfer for nonce
func SignTx(t TxTemplate, nonce uint64, signer types.Signer, key *ecdsa.PrivateKey) (*types.Transaction, error) {
	if key == nil {
		return nil, errors.New("no signing key")
	}
	signed, err := types.SignTx(t.Build(nonce), signer, key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign transaction")
	}
	return signed, nil
}

// RandomData returns sizeKB kilobytes of random calldata, capped at 64KB
func RandomData(sizeKB int) ([]byte, error) {
	if sizeKB <= 0 {
		return nil, nil
	}
	size := sizeKB * 1024
	if size > 64*1024 {
		size = 64 * 1024
	}
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		return nil, errors.Wrap(err, "failed to generate calldata")
	}
	return data, nil
}
