package relaysigner

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/common"
)

// FileSigner signs with a private key loaded from an armored key file.
type FileSigner struct {
	keyPath    string
	privateKey *ecdsa.PrivateKey
}

func NewFileSigner(unsafeDevMode bool, signerKeyPath string) (*FileSigner, error) {
	key, err := common.LoadRelayKey(signerKeyPath, unsafeDevMode)
	if err != nil {
		return nil, err
	}
	return &FileSigner{keyPath: signerKeyPath, privateKey: key}, nil
}

func (fs *FileSigner) Sign(ctx context.Context, hash []byte) ([]byte, error) {
	sig, err := ethcrypto.Sign(hash, fs.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign hash with %s: %w", fs.keyPath, err)
	}
	return sig, nil
}

func (fs *FileSigner) PublicKey(ctx context.Context) ecdsa.PublicKey {
	return fs.privateKey.PublicKey
}

func (fs *FileSigner) Verify(ctx context.Context, sig []byte, hash []byte) (bool, error) {
	return verifyWithKey(&fs.privateKey.PublicKey, sig, hash)
}

func (fs *FileSigner) TypeAsString() string {
	return "file"
}
