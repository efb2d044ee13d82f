// Package relaysigner provides the secp256k1 signing backends of the relay. A signer signs
// transaction hashes and EIP-712 digests; it never hashes its input.
package relaysigner

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ferrumnet/ferrum-network-sub000/pkg/chainutils"
)

// The types of relay signers that are supported
type SignerType int

const (
	InvalidSignerType SignerType = iota
	// file://<path-to-file>
	FileSignerType
	// amazonkms://<arn>
	AmazonKmsSignerType
)

// Signer interface
type Signer interface {
	// Sign expects a keccak256 hash that needs to be signed. The result is r ‖ s ‖ recid.
	Sign(ctx context.Context, hash []byte) (sig []byte, err error)
	// PublicKey returns the ECDSA public key of the signer.
	PublicKey(ctx context.Context) (pubKey ecdsa.PublicKey)
	// Verify recovers a public key from the sig/hash pair and checks that it is the signer's.
	Verify(ctx context.Context, sig []byte, hash []byte) (valid bool, err error)
	// TypeAsString returns the backend name, used as a metrics label.
	TypeAsString() string
}

func NewSignerFromUri(ctx context.Context, signerUri string, unsafeDevMode bool) (Signer, error) {
	signerType, signerKeyConfig := ParseSignerUri(signerUri)

	switch signerType {
	case FileSignerType:
		return NewFileSigner(unsafeDevMode, signerKeyConfig)
	case AmazonKmsSignerType:
		return NewAmazonKmsSigner(ctx, unsafeDevMode, signerKeyConfig)
	default:
		return nil, fmt.Errorf("unsupported relay signer type")
	}
}

func ParseSignerUri(signerUri string) (signerType SignerType, signerKeyConfig string) {
	typeStr, keyConfig, found := strings.Cut(signerUri, "://")
	if !found {
		return InvalidSignerType, ""
	}

	switch typeStr {
	case "file":
		return FileSignerType, keyConfig
	case "amazonkms":
		return AmazonKmsSignerType, keyConfig
	default:
		return InvalidSignerType, ""
	}
}

// Address returns the EVM address of s.
func Address(ctx context.Context, s Signer) common.Address {
	return ethcrypto.PubkeyToAddress(s.PublicKey(ctx))
}

// CheckPublicKey verifies that configured, a 33 byte compressed, 64 byte raw or 65 byte
// uncompressed public key, belongs to s. An empty key is accepted.
func CheckPublicKey(ctx context.Context, s Signer, configured []byte) error {
	if len(configured) == 0 {
		return nil
	}
	if len(configured) == 65 && configured[0] == 0x04 {
		configured = configured[1:]
	}
	want, err := chainutils.EthAddressFromPublicKey(configured)
	if err != nil {
		return fmt.Errorf("invalid signer public key: %w", err)
	}
	if got := Address(ctx, s); got != want {
		return fmt.Errorf("signer public key is for %s but the signer is %s", want, got)
	}
	return nil
}

func verifyWithKey(pub *ecdsa.PublicKey, sig []byte, hash []byte) (bool, error) {
	recovered, err := ethcrypto.SigToPub(hash, sig)
	if err != nil {
		return false, err
	}
	return recovered.Equal(pub), nil
}
