package common

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/openpgp/armor" //nolint // Package is deprecated but we need it in the codebase still.
)

const (
	RelayKeyArmoredBlock = "QUANTUM PORTAL RELAY PRIVATE KEY"

	headerPublicKey     = "PublicKey"
	headerDescription   = "Description"
	headerDeterministic = "UnsafeDeterministicKey"
)

// LoadRelayKey loads a serialized relay key from disk.
func LoadRelayKey(filename string, unsafeDevMode bool) (*ecdsa.PrivateKey, error) {
	return LoadArmoredKey(filename, RelayKeyArmoredBlock, unsafeDevMode)
}

// LoadArmoredKey loads an armored secp256k1 private key. The block body is the raw 32 byte key.
func LoadArmoredKey(filename string, blockType string, unsafeDevMode bool) (*ecdsa.PrivateKey, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	p, err := armor.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read armored file: %w", err)
	}

	if p.Type != blockType {
		return nil, fmt.Errorf("invalid block type: %s", p.Type)
	}

	if v, ok := p.Header[headerDeterministic]; ok {
		deterministic, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s header: %w", headerDeterministic, err)
		}
		if deterministic && !unsafeDevMode {
			return nil, errors.New("refusing to use deterministic key in production")
		}
	}

	b, err := io.ReadAll(p.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize raw key data: %w", err)
	}

	if want, ok := p.Header[headerPublicKey]; ok {
		if got := ethcrypto.PubkeyToAddress(key.PublicKey).String(); got != want {
			return nil, fmt.Errorf("key file header claims address %s but key is %s", want, got)
		}
	}

	return key, nil
}

// WriteArmoredKey writes key to a new file. It refuses to overwrite an existing file.
func WriteArmoredKey(key *ecdsa.PrivateKey, description string, filename string, blockType string, unsafe bool) error {
	if _, err := os.Stat(filename); !os.IsNotExist(err) {
		return errors.New("refusing to override existing key")
	}

	f, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	headers := map[string]string{
		headerPublicKey: ethcrypto.PubkeyToAddress(key.PublicKey).String(),
	}
	if description != "" {
		headers[headerDescription] = description
	}
	if unsafe {
		headers[headerDeterministic] = "true"
	}

	a, err := armor.Encode(f, blockType, headers)
	if err != nil {
		return fmt.Errorf("failed to create armor encoder: %w", err)
	}
	if _, err := a.Write(ethcrypto.FromECDSA(key)); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	if err := a.Close(); err != nil {
		return err
	}
	return f.Close()
}
