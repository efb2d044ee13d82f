// Package chainutils holds the pure helpers shared by the relay: hex conversions, hashing,
// address derivation and legacy transaction signing.
package chainutils

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func has0x(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// HexAdd0x prefixes s with 0x unless it already is.
func HexAdd0x(s string) string {
	if has0x(s) {
		return s
	}
	return "0x" + s
}

// HexRemove0x strips a 0x prefix. Inputs shorter than two characters are rejected.
func HexRemove0x(s string) (string, error) {
	if len(s) < 2 {
		return "", ErrConversion
	}
	if has0x(s) {
		return s[2:], nil
	}
	return s, nil
}

// BytesToHex returns the lowercase hex of b without prefix.
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// BytesToHex0x returns the lowercase hex of b with a 0x prefix.
func BytesToHex0x(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// HexToBytes decodes an even length hex string with or without 0x prefix.
func HexToBytes(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("%w: odd length hex %q", ErrConversion, s)
	}
	if has0x(s) {
		s = s[2:]
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		hi, ok := hexVal(s[2*i])
		if !ok {
			return nil, ErrInvalidHexCharacter
		}
		lo, ok := hexVal(s[2*i+1])
		if !ok {
			return nil, ErrInvalidHexCharacter
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// HexToU64 parses a quantity such as "0x1a".
func HexToU64(s string) (uint64, error) {
	digits, err := HexRemove0x(s)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrConversion, err)
	}
	return v, nil
}

// HexToU256 parses up to 64 hex digits into a 256 bit integer. Leading zeros are accepted.
func HexToU256(s string) (*uint256.Int, error) {
	digits, err := HexRemove0x(s)
	if err != nil {
		return nil, err
	}
	if len(digits) == 0 || len(digits) > 64 {
		return nil, fmt.Errorf("%w: bad u256 length %d", ErrConversion, len(digits))
	}
	if len(digits)%2 != 0 {
		digits = "0" + digits
	}
	b, err := HexToBytes(digits)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(b), nil
}

// U256ToHex0x renders v as a minimal 0x quantity ("0x0" for zero).
func U256ToHex0x(v *uint256.Int) string {
	return v.Hex()
}

// H256ToHex0x renders a 32 byte hash with 0x prefix.
func H256ToHex0x(h common.Hash) string {
	return BytesToHex0x(h[:])
}

// AddressToHex renders a lowercase 0x address.
func AddressToHex(a common.Address) string {
	return BytesToHex0x(a[:])
}

// HexToAddress parses a 20 byte hex address.
func HexToAddress(s string) (common.Address, error) {
	b, err := HexToBytes(s)
	if err != nil {
		return common.Address{}, err
	}
	if len(b) != common.AddressLength {
		return common.Address{}, fmt.Errorf("%w: address must be 20 bytes, got %d", ErrConversion, len(b))
	}
	return common.BytesToAddress(b), nil
}

// DecodeAddressResponse extracts the address from an ABI encoded eth_call result.
func DecodeAddressResponse(result string) (common.Address, error) {
	b, err := HexToBytes(result)
	if err != nil {
		return common.Address{}, err
	}
	if len(b) < 32 {
		return common.Address{}, fmt.Errorf("%w: address response is %d bytes", ErrBadRemoteData, len(b))
	}
	return common.BytesToAddress(b[12:32]), nil
}
