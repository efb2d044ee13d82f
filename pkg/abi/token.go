package abi

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Token is a decoded (or to be encoded) ABI value. Only the field matching Kind is meaningful:
// Address for KindAddress, Number for KindInt/KindUint (Int is two's complement), Bool for
// KindBool, Data for KindFixedBytes/KindBytes/KindString and Tokens for the aggregates.
type Token struct {
	Kind    Kind
	Address common.Address
	Number  uint256.Int
	Bool    bool
	Data    []byte
	Tokens  []Token
}

func AddressToken(a common.Address) Token { return Token{Kind: KindAddress, Address: a} }

func UintToken(v *uint256.Int) Token { return Token{Kind: KindUint, Number: *v} }

func Uint64Token(v uint64) Token { return UintToken(uint256.NewInt(v)) }

func IntToken(v *uint256.Int) Token { return Token{Kind: KindInt, Number: *v} }

func BoolToken(b bool) Token { return Token{Kind: KindBool, Bool: b} }

func FixedBytesToken(b []byte) Token { return Token{Kind: KindFixedBytes, Data: nonNilBytes(b)} }

func BytesToken(b []byte) Token { return Token{Kind: KindBytes, Data: nonNilBytes(b)} }

func StringToken(s string) Token { return Token{Kind: KindString, Data: []byte(s)} }

func ArrayToken(tokens ...Token) Token { return Token{Kind: KindArray, Tokens: nonNilTokens(tokens)} }

func FixedArrayToken(tokens ...Token) Token {
	return Token{Kind: KindFixedArray, Tokens: nonNilTokens(tokens)}
}

func TupleToken(tokens ...Token) Token { return Token{Kind: KindTuple, Tokens: nonNilTokens(tokens)} }

func nonNilBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func nonNilTokens(t []Token) []Token {
	if t == nil {
		return []Token{}
	}
	return t
}

// IsDynamic reports whether the token is tail-encoded.
func (t Token) IsDynamic() bool {
	switch t.Kind {
	case KindBytes, KindString, KindArray:
		return true
	case KindFixedArray, KindTuple:
		for _, e := range t.Tokens {
			if e.IsDynamic() {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (t Token) ToAddress() (common.Address, bool) {
	return t.Address, t.Kind == KindAddress
}

// ToUint returns the numeric value of an Int or Uint token.
func (t Token) ToUint() (*uint256.Int, bool) {
	if t.Kind != KindUint && t.Kind != KindInt {
		return nil, false
	}
	v := t.Number
	return &v, true
}

func (t Token) ToBool() (bool, bool) {
	return t.Bool, t.Kind == KindBool
}

func (t Token) ToFixedBytes() ([]byte, bool) {
	return t.Data, t.Kind == KindFixedBytes
}

func (t Token) ToBytes() ([]byte, bool) {
	return t.Data, t.Kind == KindBytes
}

func (t Token) ToString() (string, bool) {
	return string(t.Data), t.Kind == KindString
}

func (t Token) ToArray() ([]Token, bool) {
	return t.Tokens, t.Kind == KindArray || t.Kind == KindFixedArray
}

func (t Token) ToTuple() ([]Token, bool) {
	return t.Tokens, t.Kind == KindTuple
}
