package relaysigner

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// GeneratedSigner holds an in-memory key. It exists for tests and devnets.
type GeneratedSigner struct {
	privateKey *ecdsa.PrivateKey
}

// NewGeneratedSigner wraps key, or a fresh random key when key is nil.
func NewGeneratedSigner(key *ecdsa.PrivateKey) (*GeneratedSigner, error) {
	if key != nil {
		return &GeneratedSigner{privateKey: key}, nil
	}
	privateKey, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &GeneratedSigner{privateKey: privateKey}, nil
}

func (gs *GeneratedSigner) Sign(ctx context.Context, hash []byte) ([]byte, error) {
	sig, err := ethcrypto.Sign(hash, gs.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return sig, nil
}

func (gs *GeneratedSigner) PublicKey(ctx context.Context) ecdsa.PublicKey {
	return gs.privateKey.PublicKey
}

func (gs *GeneratedSigner) Verify(ctx context.Context, sig []byte, hash []byte) (bool, error) {
	return verifyWithKey(&gs.privateKey.PublicKey, sig, hash)
}

func (gs *GeneratedSigner) TypeAsString() string {
	return "generated"
}
