package evm

import (
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/Tom-Bini/manus-bridge-bot/internal/domain/entities"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Signer wraps a decrypted private key for the duration of one execution
// scope. Callers receive it inside DecryptForUse and must not retain it.
type Signer struct {
	priv    *ecdsa.PrivateKey
	address common.Address
}

// NewSignerFromHex parses a hex private key (with or without 0x prefix).
func NewSignerFromHex(keyHex string) (*Signer, error) {
	keyHex = strings.TrimPrefix(strings.TrimSpace(keyHex), "0x")
	priv, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, errors.Wrapf(entities.ErrValidation, "invalid private key: %v", err)
	}
	return &Signer{
		priv:    priv,
		address: crypto.PubkeyToAddress(priv.PublicKey),
	}, nil
}

// AddressFromPrivateKeyHex derives the EVM address without keeping the key.
func AddressFromPrivateKeyHex(keyHex string) (string, error) {
	signer, err := NewSignerFromHex(keyHex)
	if err != nil {
		return "", err
	}
	defer signer.Clear()
	return signer.Address().Hex(), nil
}

// Address returns the signer's EVM address.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignTx signs a transaction for the given chain id.
func (s *Signer) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.priv)
	if err != nil {
		return nil, errors.Wrap(err, "sign transaction")
	}
	return signed, nil
}

// Clear zeroes the private key material.
func (s *Signer) Clear() {
	if s.priv == nil {
		return
	}
	s.priv.D.SetInt64(0)
	s.priv.X.SetInt64(0)
	s.priv.Y.SetInt64(0)
	s.priv = nil
}
