package utils

import (
	"bytes"
	"crypto/ecdsa"
	"os"

	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// ReadKeyFile returns the first non-empty line of a key file
func ReadKeyFile(filepath string) ([]byte, error) {
	info, err := os.Stat(filepath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open key file %s", filepath)
	}
	if info.IsDir() {
		return nil, errors.Errorf("key file %s is a directory", filepath)
	}

	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read key file %s", filepath)
	}
	defer Zero(data)

	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
	return nil, errors.Errorf("key file %s is empty", filepath)
}

// GetEthAddressFromPK converts an ECDSA private key to an Ethereum address
func GetEthAddressFromPK(privateKey *ecdsa.PrivateKey) ethcmn.Address {
	pubkeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		panic(errors.New("convert into pubkey failed"))
	}
	return crypto.PubkeyToAddress(*pubkeyECDSA)
}
