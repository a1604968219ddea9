package utils

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/howeyc/gopass"
	"github.com/pkg/errors"
)

// PromptFunc reads a secret from the user without echoing it
type PromptFunc func() ([]byte, error)

// MaskedPrompt asks for the private key on the terminal, echoing '*' per character
func MaskedPrompt() ([]byte, error) {
	return gopass.GetPasswdPrompt("Private key: ", true, os.Stdin, os.Stderr)
}

// LoadPrivateKey resolves the sender key from, in order, the config value,
// the key file and the prompt. The config value is cleared once parsed.
func LoadPrivateKey(cfg *Config, prompt PromptFunc) (*ecdsa.PrivateKey, error) {
	var (
		raw []byte
		err error
	)
	switch {
	case cfg.PrivateKey != "":
		raw = []byte(cfg.PrivateKey)
		cfg.PrivateKey = ""
	case cfg.PrivateKeyFile != "":
		raw, err = ReadKeyFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, err
		}
	case prompt != nil:
		raw, err = prompt()
		if err != nil {
			return nil, errors.Wrap(err, "failed to read private key")
		}
	default:
		return nil, errors.New("a private key is required")
	}
	defer Zero(raw)

	return ParsePrivateKey(raw)
}

// ParsePrivateKey decodes a hex key, with or without 0x prefix. The
// intermediate buffer is wiped; raw is left to the caller.
func ParsePrivateKey(raw []byte) (*ecdsa.PrivateKey, error) {
	trimmed := bytes.TrimSpace(raw)
	if bytes.HasPrefix(trimmed, []byte("0x")) || bytes.HasPrefix(trimmed, []byte("0X")) {
		trimmed = trimmed[2:]
	}
	if len(trimmed) == 0 {
		return nil, errors.New("a private key is required")
	}

	buf := make([]byte, hex.DecodedLen(len(trimmed)))
	defer Zero(buf)
	if _, err := hex.Decode(buf, trimmed); err != nil {
		// the decode error quotes the offending byte, which is part of the key
		return nil, errors.New("private key is not valid hex")
	}

	key, err := crypto.ToECDSA(buf)
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key")
	}
	return key, nil
}

// Zero overwrites b
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ZeroKey wipes the scalar of an in-memory private key
func ZeroKey(key *ecdsa.PrivateKey) {
	if key == nil || key.D == nil {
		return
	}
	words := key.D.Bits()
	for i := range words {
		words[i] = 0
	}
	key.D.SetInt64(0)
}
