package chainutils

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func Keccak256(data ...[]byte) common.Hash {
	return crypto.Keccak256Hash(data...)
}

// EthAddressFromPublicKey derives the address of a secp256k1 key given either the 64 byte X||Y
// form or the 33 byte compressed form.
func EthAddressFromPublicKey(pk []byte) (common.Address, error) {
	var xy []byte
	switch len(pk) {
	case 64:
		xy = pk
	case 33:
		pub, err := crypto.DecompressPubkey(pk)
		if err != nil {
			return common.Address{}, fmt.Errorf("%w: %v", ErrConversion, err)
		}
		xy = crypto.FromECDSAPub(pub)[1:]
	default:
		return common.Address{}, fmt.Errorf("%w: public key must be 64 or 33 bytes, got %d", ErrConversion, len(pk))
	}
	return common.BytesToAddress(crypto.Keccak256(xy)[12:]), nil
}
